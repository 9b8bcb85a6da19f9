// Package aggregate builds the per-message context bundle by fanning out to
// the record store and the knowledge providers concurrently. Its defining
// property is graceful degradation: a failed or timed-out fetch becomes an
// absent result and a logged warning, never an aggregation failure.
package aggregate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"barfly/internal/domain"
	"barfly/internal/intent"
)

const (
	defaultFetchTimeout = 5 * time.Second
	defaultHistoryLimit = 10
)

// TopicPolicy decides whether a provider should be consulted for this message
// and with what topic. Returning ok=false skips the provider.
type TopicPolicy func(provider string, cls domain.Classification, ents domain.Entities) (topic string, ok bool)

// Aggregator fans out context fetches for one message.
type Aggregator struct {
	store        domain.RecordStore
	providers    []domain.KnowledgeProvider
	extract      domain.EntityExtractor
	policy       TopicPolicy
	fetchTimeout time.Duration
	historyLimit int
	logger       *slog.Logger
}

// Config holds the aggregator dependencies.
type Config struct {
	Store        domain.RecordStore
	Providers    []domain.KnowledgeProvider
	Extractor    domain.EntityExtractor
	Policy       TopicPolicy
	FetchTimeout time.Duration
	HistoryLimit int
	Logger       *slog.Logger
}

func New(cfg Config) *Aggregator {
	if cfg.Extractor == nil {
		cfg.Extractor = intent.ExtractEntities
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		store:        cfg.Store,
		providers:    cfg.Providers,
		extract:      cfg.Extractor,
		policy:       cfg.Policy,
		fetchTimeout: cfg.FetchTimeout,
		historyLimit: cfg.HistoryLimit,
		logger:       cfg.Logger,
	}
}

// Options selects the aggregation variant.
type Options struct {
	// Minimal skips every optional fetch (profile, knowledge providers).
	// Used for conversational intents where added context is latency
	// without value.
	Minimal bool
}

// Build fans out every relevant fetch, waits for all of them to settle, and
// returns the bundle. It never returns an error: missing context is a valid,
// expected state.
func (a *Aggregator) Build(ctx context.Context, msg domain.ParsedMessage, cls domain.Classification, opts Options) *domain.ContextBundle {
	bundle := &domain.ContextBundle{
		Entities:  a.extract(msg.Body),
		Knowledge: make(map[string]*domain.ProviderResult),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	// Recent history is fetched for every variant; it is the one piece of
	// context a conversational reply still wants.
	if msg.ThreadID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
			defer cancel()
			history, err := a.store.GetHistory(fctx, msg.ThreadID, a.historyLimit)
			if err != nil {
				a.logger.Warn("history fetch failed, continuing without it",
					"thread", msg.ThreadID, "error", err)
				return
			}
			mu.Lock()
			bundle.History = history
			mu.Unlock()
		}()
	}

	if !opts.Minimal {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
			defer cancel()
			profile, err := a.store.GetProfile(fctx, msg.SenderID)
			if err != nil {
				a.logger.Warn("profile fetch failed, continuing without it",
					"sender", msg.SenderID, "error", err)
				return
			}
			mu.Lock()
			bundle.Profile = profile
			mu.Unlock()
		}()

		for _, p := range a.providers {
			topic, ok := a.policy(p.Name(), cls, bundle.Entities)
			if !ok {
				continue
			}
			wg.Add(1)
			go func(p domain.KnowledgeProvider, topic string) {
				defer wg.Done()
				fctx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
				defer cancel()
				result, err := p.Fetch(fctx, topic)
				if err != nil {
					a.logger.Warn("knowledge fetch failed, continuing without it",
						"provider", p.Name(), "topic", topic, "error", err)
					return
				}
				mu.Lock()
				bundle.Knowledge[p.Name()] = result
				mu.Unlock()
			}(p, topic)
		}
	}

	wg.Wait()
	return bundle
}

// DefaultPolicy consults oddsfeed for matchup questions or when a team is
// mentioned, and venuebuzz for venue questions or when a venue is mentioned.
func DefaultPolicy(provider string, cls domain.Classification, ents domain.Entities) (string, bool) {
	switch provider {
	case "oddsfeed":
		if len(ents.Teams) > 0 {
			return ents.Teams[0], true
		}
		if cls.Intent == domain.IntentMatchup {
			return "tonight", true
		}
	case "venuebuzz":
		if len(ents.Venues) > 0 {
			return ents.Venues[0], true
		}
		if cls.Intent == domain.IntentVenue {
			return "nearby", true
		}
	}
	return "", false
}
