package deliver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"barfly/internal/dedup"
	"barfly/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeGateway implements domain.DeliveryGateway with scriptable failures.
type fakeGateway struct {
	mu              sync.Mutex
	threadFailures  int // SendToThread fails this many times before succeeding
	threadAlways    bool
	createFailures  int
	createAlways    bool
	typingErr       error
	threadSends     []string
	createSends     []string
	typingStarts    int
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) SendToThread(ctx context.Context, threadID, text string) (*domain.SendReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.threadAlways || g.threadFailures > 0 {
		if g.threadFailures > 0 {
			g.threadFailures--
		}
		return nil, errors.New("thread send failed")
	}
	g.threadSends = append(g.threadSends, text)
	return &domain.SendReceipt{MessageID: "m1", ThreadID: threadID}, nil
}

func (g *fakeGateway) CreateThreadAndSend(ctx context.Context, from, to, text string) (*domain.SendReceipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createAlways || g.createFailures > 0 {
		if g.createFailures > 0 {
			g.createFailures--
		}
		return nil, errors.New("create thread failed")
	}
	g.createSends = append(g.createSends, text)
	return &domain.SendReceipt{MessageID: "m2", ThreadID: "t-new"}, nil
}

func (g *fakeGateway) StartTyping(ctx context.Context, threadID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.typingStarts++
	return g.typingErr
}

func (g *fakeGateway) StopTyping(ctx context.Context, threadID string) error { return g.typingErr }

func newTestOrchestrator(gw *fakeGateway, sent *dedup.Cache) *Orchestrator {
	o := New(Config{
		Gateway:     gw,
		Sent:        sent,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Logger:      testLogger(),
	})
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return o
}

func TestDeliver_SuccessFirstTryMarksKey(t *testing.T) {
	gw := &fakeGateway{}
	sent := dedup.New(10, time.Hour)
	o := newTestOrchestrator(gw, sent)

	outcome, err := o.Deliver(context.Background(), Request{
		DedupKey: "regular-0-42", ThreadID: "t1", Text: "hello",
	})
	if err != nil || outcome != Delivered {
		t.Fatalf("expected delivered, got %v %v", outcome, err)
	}
	if !sent.Seen("regular-0-42") {
		t.Fatal("success must mark the dedup key")
	}
	if len(gw.threadSends) != 1 {
		t.Fatalf("expected 1 thread send, got %d", len(gw.threadSends))
	}
}

func TestDeliver_RetriesSameTargetBeforeFallback(t *testing.T) {
	gw := &fakeGateway{threadFailures: 2}
	o := newTestOrchestrator(gw, dedup.New(10, time.Hour))

	outcome, err := o.Deliver(context.Background(), Request{
		DedupKey: "k", ThreadID: "t1", Text: "hello",
	})
	if err != nil || outcome != Delivered {
		t.Fatalf("expected delivered after retries, got %v %v", outcome, err)
	}
	if len(gw.threadSends) != 1 || len(gw.createSends) != 0 {
		t.Fatalf("third attempt on same target should succeed, got thread=%d create=%d",
			len(gw.threadSends), len(gw.createSends))
	}
}

func TestDeliver_FallsBackToNewThread(t *testing.T) {
	gw := &fakeGateway{threadAlways: true}
	o := newTestOrchestrator(gw, dedup.New(10, time.Hour))

	outcome, err := o.Deliver(context.Background(), Request{
		DedupKey: "k", ThreadID: "t1", From: "bot", To: "user", Text: "hello",
	})
	if err != nil || outcome != Delivered {
		t.Fatalf("expected new-thread delivery, got %v %v", outcome, err)
	}
	if len(gw.createSends) != 1 {
		t.Fatalf("expected new-thread send, got %d", len(gw.createSends))
	}
}

func TestDeliver_NoThreadGoesStraightToNewThread(t *testing.T) {
	gw := &fakeGateway{}
	o := newTestOrchestrator(gw, dedup.New(10, time.Hour))

	outcome, _ := o.Deliver(context.Background(), Request{
		DedupKey: "k", From: "bot", To: "user", Text: "hello",
	})
	if outcome != Delivered || len(gw.createSends) != 1 || len(gw.threadSends) != 0 {
		t.Fatalf("expected direct new-thread delivery: %+v", gw)
	}
}

func TestDeliver_EmergencyAfterBothTargetsExhausted(t *testing.T) {
	// Both targets fail completely; the emergency create succeeds on its
	// single extra shot (3 + 3 failures consumed first).
	gw := &fakeGateway{threadAlways: true, createFailures: 3}
	o := newTestOrchestrator(gw, dedup.New(10, time.Hour))

	outcome, err := o.Deliver(context.Background(), Request{
		DedupKey: "k", ThreadID: "t1", From: "bot", To: "user", Text: "long reply",
	})
	if err != nil || outcome != Delivered {
		t.Fatalf("expected emergency delivery, got %v %v", outcome, err)
	}
	if len(gw.createSends) != 1 || gw.createSends[0] == "long reply" {
		t.Fatalf("emergency must send the canned message, got %v", gw.createSends)
	}
}

func TestDeliver_GiveUpDoesNotMarkKey(t *testing.T) {
	gw := &fakeGateway{threadAlways: true, createAlways: true}
	sent := dedup.New(10, time.Hour)
	o := newTestOrchestrator(gw, sent)

	outcome, err := o.Deliver(context.Background(), Request{
		DedupKey: "regular-0-42", ThreadID: "t1", From: "bot", To: "user", Text: "hello",
	})
	if outcome != GaveUp || err == nil {
		t.Fatalf("expected give up, got %v %v", outcome, err)
	}
	if sent.Seen("regular-0-42") {
		t.Fatal("give up must not mark the dedup key: redelivery must stay eligible")
	}
}

func TestDeliver_TypingFailureIsSwallowed(t *testing.T) {
	gw := &fakeGateway{typingErr: errors.New("typing broken")}
	o := newTestOrchestrator(gw, dedup.New(10, time.Hour))

	outcome, err := o.Deliver(context.Background(), Request{
		DedupKey: "k", ThreadID: "t1", Text: "hello",
	})
	if err != nil || outcome != Delivered {
		t.Fatalf("typing failures must not affect delivery, got %v %v", outcome, err)
	}
}
