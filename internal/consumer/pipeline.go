package consumer

import (
	"context"
	"log/slog"

	"barfly/internal/aggregate"
	"barfly/internal/dedup"
	"barfly/internal/deliver"
	"barfly/internal/domain"
	"barfly/internal/intent"
	"barfly/internal/metrics"
	"barfly/internal/ratelimit"
	"barfly/internal/respond"
)

const defaultRateLimitNotice = "Easy there — you're sending messages faster than I can pour. Give it a minute and try again."

// Processor runs the full business pipeline for one surviving record:
// rate-limit check, intent classification, context aggregation, response
// generation, and delivery. One invocation at a time, by the Loop's worker.
type Processor struct {
	limiter      *ratelimit.Limiter
	classifier   *intent.Classifier
	aggregator   *aggregate.Aggregator
	generator    *respond.Generator
	orchestrator *deliver.Orchestrator
	store        domain.RecordStore
	sent         *dedup.Cache

	botID           string
	rateLimitNotice string
	pm              *metrics.Pipeline
	logger          *slog.Logger
}

// ProcessorConfig holds the pipeline dependencies.
type ProcessorConfig struct {
	Limiter      *ratelimit.Limiter
	Classifier   *intent.Classifier
	Aggregator   *aggregate.Aggregator
	Generator    *respond.Generator
	Orchestrator *deliver.Orchestrator
	Store        domain.RecordStore
	Sent         *dedup.Cache

	BotID           string
	RateLimitNotice string
	Metrics         *metrics.Pipeline
	Logger          *slog.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.RateLimitNotice == "" {
		cfg.RateLimitNotice = defaultRateLimitNotice
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Processor{
		limiter:         cfg.Limiter,
		classifier:      cfg.Classifier,
		aggregator:      cfg.Aggregator,
		generator:       cfg.Generator,
		orchestrator:    cfg.Orchestrator,
		store:           cfg.Store,
		sent:            cfg.Sent,
		botID:           cfg.BotID,
		rateLimitNotice: cfg.RateLimitNotice,
		pm:              cfg.Metrics,
		logger:          cfg.Logger,
	}
}

// Process handles one message end to end. It never returns an error: every
// failure mode terminates in either a delivered reply, a delivered notice, or
// a logged give-up that leaves the record eligible for redelivery.
func (p *Processor) Process(ctx context.Context, msg domain.ParsedMessage, rec domain.InboundRecord) {
	baseKey := dedup.RecordKey(rec, msg.SourceID)

	if p.limiter.IsLimited(msg.SenderID) {
		p.deliverRateLimitNotice(ctx, msg, baseKey)
		return
	}
	p.limiter.Record(msg.SenderID)

	cls := p.classifier.Classify(msg.Body)
	p.logger.Info("message classified",
		"sender", msg.SenderID, "intent", cls.Intent, "confidence", cls.Confidence)

	bundle := p.aggregator.Build(ctx, msg, cls, aggregate.Options{
		Minimal: intent.Conversational(cls.Intent),
	})

	reply := p.generator.Generate(ctx, msg.Body, cls, bundle, domain.KindRegular)
	if reply.UsedFallback && p.pm != nil {
		p.pm.RepliesFallback.Inc()
	}

	outcome, err := p.orchestrator.Deliver(ctx, deliver.Request{
		DedupKey: dedup.KindKey(domain.KindRegular, baseKey),
		ThreadID: msg.ThreadID,
		From:     p.botID,
		To:       msg.SenderID,
		Text:     reply.Text,
	})
	if outcome != deliver.Delivered {
		if p.pm != nil {
			p.pm.DeliveryGaveUp.Inc()
		}
		p.logger.Error("reply not delivered, record stays eligible for redelivery",
			"key", baseKey, "error", err)
		return
	}

	if p.pm != nil {
		p.pm.RepliesSent.Inc()
	}
	p.recordExchange(ctx, msg, reply)
}

// deliverRateLimitNotice sends the canned throttle message, itself
// deduplicated under the error kind so a redelivered record does not nag the
// sender twice.
func (p *Processor) deliverRateLimitNotice(ctx context.Context, msg domain.ParsedMessage, baseKey string) {
	if p.pm != nil {
		p.pm.RateLimited.Inc()
	}
	p.logger.Info("sender rate limited", "sender", msg.SenderID, "key", baseKey)

	key := dedup.KindKey(domain.KindError, baseKey)
	if p.sent.Seen(key) {
		return
	}
	if _, err := p.orchestrator.Deliver(ctx, deliver.Request{
		DedupKey: key,
		ThreadID: msg.ThreadID,
		From:     p.botID,
		To:       msg.SenderID,
		Text:     p.rateLimitNotice,
	}); err != nil {
		p.logger.Warn("rate-limit notice not delivered", "sender", msg.SenderID, "error", err)
	}
}

// recordExchange persists both sides of the completed turn. Persistence
// failures are warnings: the reply already went out.
func (p *Processor) recordExchange(ctx context.Context, msg domain.ParsedMessage, reply *domain.Reply) {
	if p.store == nil || msg.ThreadID == "" {
		return
	}
	if err := p.store.AppendMessage(ctx, msg.ThreadID, "user", msg.Body, map[string]string{
		"sender_id": msg.SenderID,
		"source_id": msg.SourceID,
	}); err != nil {
		p.logger.Warn("history append failed", "thread", msg.ThreadID, "role", "user", "error", err)
	}
	if err := p.store.AppendMessage(ctx, msg.ThreadID, "assistant", reply.Text, nil); err != nil {
		p.logger.Warn("history append failed", "thread", msg.ThreadID, "role", "assistant", "error", err)
	}
}
