package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"barfly/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeStore implements domain.RecordStore.
type fakeStore struct {
	profile    *domain.Profile
	profileErr error
	history    []domain.HistoryMessage
	historyErr error
	appended   atomic.Int32
}

func (s *fakeStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.profile, s.profileErr
}

func (s *fakeStore) GetHistory(ctx context.Context, threadID string, limit int) ([]domain.HistoryMessage, error) {
	return s.history, s.historyErr
}

func (s *fakeStore) AppendMessage(ctx context.Context, threadID, role, text string, meta map[string]string) error {
	s.appended.Add(1)
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeProvider implements domain.KnowledgeProvider.
type fakeProvider struct {
	name    string
	result  *domain.ProviderResult
	err     error
	delay   time.Duration
	fetches atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(ctx context.Context, topic string) (*domain.ProviderResult, error) {
	p.fetches.Add(1)
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	return p.result, p.err
}

func allowAll(provider string, cls domain.Classification, ents domain.Entities) (string, bool) {
	return "anything", true
}

func TestBuild_FansOutAndCollectsAll(t *testing.T) {
	store := &fakeStore{
		profile: &domain.Profile{UserID: "u1", Name: "Sam"},
		history: []domain.HistoryMessage{{Role: "user", Text: "earlier"}},
	}
	odds := &fakeProvider{name: "oddsfeed", result: &domain.ProviderResult{Provider: "oddsfeed", Summary: "odds"}}
	buzz := &fakeProvider{name: "venuebuzz", result: &domain.ProviderResult{Provider: "venuebuzz", Summary: "buzz"}}

	agg := New(Config{
		Store:     store,
		Providers: []domain.KnowledgeProvider{odds, buzz},
		Policy:    allowAll,
		Logger:    testLogger(),
	})

	msg := domain.ParsedMessage{SenderID: "u1", ThreadID: "t1", Body: "who wins tonight"}
	bundle := agg.Build(context.Background(), msg, domain.Classification{Intent: domain.IntentMatchup}, Options{})

	if bundle.Profile == nil || bundle.Profile.Name != "Sam" {
		t.Fatalf("missing profile: %+v", bundle.Profile)
	}
	if len(bundle.History) != 1 {
		t.Fatalf("missing history: %+v", bundle.History)
	}
	if len(bundle.Knowledge) != 2 {
		t.Fatalf("expected 2 provider results, got %d", len(bundle.Knowledge))
	}
}

func TestBuild_ProviderFailureDegradesGracefully(t *testing.T) {
	store := &fakeStore{profileErr: errors.New("store down"), historyErr: errors.New("store down")}
	odds := &fakeProvider{name: "oddsfeed", err: errors.New("upstream 503")}
	buzz := &fakeProvider{name: "venuebuzz", err: errors.New("timeout")}

	agg := New(Config{
		Store:     store,
		Providers: []domain.KnowledgeProvider{odds, buzz},
		Policy:    allowAll,
		Logger:    testLogger(),
	})

	msg := domain.ParsedMessage{SenderID: "u1", ThreadID: "t1", Body: "who wins"}
	bundle := agg.Build(context.Background(), msg, domain.Classification{Intent: domain.IntentMatchup}, Options{})

	if bundle == nil {
		t.Fatal("bundle must be usable when every fetch failed")
	}
	if bundle.Profile != nil || len(bundle.History) != 0 || len(bundle.Knowledge) != 0 {
		t.Fatalf("expected empty bundle fields, got %+v", bundle)
	}
}

func TestBuild_SlowProviderIsCutOffByTimeout(t *testing.T) {
	store := &fakeStore{}
	slow := &fakeProvider{name: "oddsfeed", delay: 500 * time.Millisecond,
		result: &domain.ProviderResult{Provider: "oddsfeed"}}

	agg := New(Config{
		Store:        store,
		Providers:    []domain.KnowledgeProvider{slow},
		Policy:       allowAll,
		FetchTimeout: 50 * time.Millisecond,
		Logger:       testLogger(),
	})

	start := time.Now()
	msg := domain.ParsedMessage{SenderID: "u1", Body: "who wins"}
	bundle := agg.Build(context.Background(), msg, domain.Classification{Intent: domain.IntentMatchup}, Options{})
	elapsed := time.Since(start)

	if _, ok := bundle.Knowledge["oddsfeed"]; ok {
		t.Fatal("timed-out provider must be absent, not partial")
	}
	if elapsed > 300*time.Millisecond {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
}

func TestBuild_MinimalSkipsOptionalFetches(t *testing.T) {
	store := &fakeStore{history: []domain.HistoryMessage{{Role: "user", Text: "hi"}}}
	odds := &fakeProvider{name: "oddsfeed", result: &domain.ProviderResult{}}

	agg := New(Config{
		Store:     store,
		Providers: []domain.KnowledgeProvider{odds},
		Policy:    allowAll,
		Logger:    testLogger(),
	})

	msg := domain.ParsedMessage{SenderID: "u1", ThreadID: "t1", Body: "hey!"}
	bundle := agg.Build(context.Background(), msg, domain.Classification{Intent: domain.IntentSmalltalk}, Options{Minimal: true})

	if odds.fetches.Load() != 0 {
		t.Fatal("minimal variant must not touch knowledge providers")
	}
	if bundle.Profile != nil {
		t.Fatal("minimal variant must skip the profile fetch")
	}
	if len(bundle.History) != 1 {
		t.Fatal("minimal variant still loads history")
	}
}

func TestDefaultPolicy(t *testing.T) {
	ents := domain.Entities{Teams: []string{"Lakers"}}
	if topic, ok := DefaultPolicy("oddsfeed", domain.Classification{Intent: domain.IntentGeneral}, ents); !ok || topic != "Lakers" {
		t.Fatalf("team entity should select oddsfeed, got %q %v", topic, ok)
	}
	if _, ok := DefaultPolicy("oddsfeed", domain.Classification{Intent: domain.IntentSmalltalk}, domain.Entities{}); ok {
		t.Fatal("smalltalk with no entities should skip oddsfeed")
	}
	if topic, ok := DefaultPolicy("venuebuzz", domain.Classification{Intent: domain.IntentVenue}, domain.Entities{}); !ok || topic != "nearby" {
		t.Fatalf("venue intent should select venuebuzz, got %q %v", topic, ok)
	}
}
