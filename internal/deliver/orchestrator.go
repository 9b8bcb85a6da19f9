// Package deliver sends replies through the delivery gateway with bounded
// retries, a new-thread fallback, and an emergency minimal message. Exactly
// one of {successful send, exhausted-all-paths} happens per invocation, and
// the dedup cache is mutated only on the success edge.
package deliver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"barfly/internal/dedup"
	"barfly/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
	defaultMaxDelay    = 15 * time.Second
	defaultEmergency   = "Got your message — having trouble replying right now. Try me again in a minute."
)

// Outcome is the terminal state of one delivery invocation.
type Outcome int

const (
	// Delivered: the gateway confirmed a send; the dedup key is marked.
	Delivered Outcome = iota
	// GaveUp: every path failed; the dedup key is NOT marked, so a
	// redelivery of the same record is still eligible to retry.
	GaveUp
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "gave_up"
}

// target is the delivery path currently being attempted.
type target int

const (
	targetExistingThread target = iota
	targetNewThread
	targetEmergency
)

// Request describes one reply to deliver.
type Request struct {
	DedupKey string // already kind-namespaced
	ThreadID string // empty when no thread is known
	From     string
	To       string
	Text     string
}

// Orchestrator drives the delivery state machine.
type Orchestrator struct {
	gateway       domain.DeliveryGateway
	sent          *dedup.Cache
	maxAttempts   int
	baseDelay     time.Duration
	maxDelay      time.Duration
	emergencyText string
	logger        *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Config holds orchestrator dependencies. MaxAttempts is per target.
type Config struct {
	Gateway       domain.DeliveryGateway
	Sent          *dedup.Cache
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	EmergencyText string
	Logger        *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.EmergencyText == "" {
		cfg.EmergencyText = defaultEmergency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		gateway:       cfg.Gateway,
		sent:          cfg.Sent,
		maxAttempts:   cfg.MaxAttempts,
		baseDelay:     cfg.BaseDelay,
		maxDelay:      cfg.MaxDelay,
		emergencyText: cfg.EmergencyText,
		logger:        cfg.Logger,
		sleep:         sleepCtx,
	}
}

// Deliver runs the state machine:
//
//	Pending -> Attempting(existingThread) -> [Success | Attempting(newThread)]
//	        -> [Success | EmergencyAttempt] -> [Success | GiveUp]
//
// Success marks the dedup key and returns Delivered. GiveUp never marks the
// key: possible duplicate delivery on redelivery is preferred over silent
// message loss.
func (o *Orchestrator) Deliver(ctx context.Context, req Request) (Outcome, error) {
	o.startTypingBestEffort(ctx, req.ThreadID)
	defer o.stopTypingBestEffort(req.ThreadID)

	plan := []target{targetNewThread}
	if req.ThreadID != "" {
		plan = []target{targetExistingThread, targetNewThread}
	}

	var lastErr error
	for _, tgt := range plan {
		receipt, err := o.attemptTarget(ctx, tgt, req)
		if err == nil {
			o.markSent(req.DedupKey, receipt, req.Text)
			return Delivered, nil
		}
		lastErr = err
		o.logger.Warn("delivery target exhausted, moving on",
			"target", targetName(tgt), "key", req.DedupKey, "error", err)
	}

	// Emergency attempt: one shot, shorter canned message, no backoff.
	// A simpler payload reduces the risk that the failure is content-related.
	receipt, err := o.send(ctx, targetEmergency, Request{
		ThreadID: req.ThreadID,
		From:     req.From,
		To:       req.To,
		Text:     o.emergencyText,
	})
	if err == nil {
		o.markSent(req.DedupKey, receipt, o.emergencyText)
		return Delivered, nil
	}

	o.logger.Error("all delivery paths exhausted",
		"key", req.DedupKey, "error", err, "prior_error", lastErr)
	return GaveUp, fmt.Errorf("delivery gave up: %w", err)
}

// attemptTarget retries a single target with linear capped backoff.
func (o *Orchestrator) attemptTarget(ctx context.Context, tgt target, req Request) (*domain.SendReceipt, error) {
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt) * o.baseDelay
			if delay > o.maxDelay {
				delay = o.maxDelay
			}
			if err := o.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		receipt, err := o.send(ctx, tgt, req)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		o.logger.Warn("send attempt failed",
			"target", targetName(tgt), "attempt", attempt, "error", err)
	}
	return nil, lastErr
}

func (o *Orchestrator) send(ctx context.Context, tgt target, req Request) (*domain.SendReceipt, error) {
	switch tgt {
	case targetExistingThread:
		return o.gateway.SendToThread(ctx, req.ThreadID, req.Text)
	case targetEmergency:
		if req.ThreadID != "" {
			if receipt, err := o.gateway.SendToThread(ctx, req.ThreadID, req.Text); err == nil {
				return receipt, nil
			}
		}
		return o.gateway.CreateThreadAndSend(ctx, req.From, req.To, req.Text)
	default:
		return o.gateway.CreateThreadAndSend(ctx, req.From, req.To, req.Text)
	}
}

func (o *Orchestrator) markSent(key string, receipt *domain.SendReceipt, text string) {
	if o.sent != nil && key != "" {
		o.sent.MarkSent(key)
	}
	msgID := ""
	if receipt != nil {
		msgID = receipt.MessageID
	}
	o.logger.Info("reply delivered", "key", key, "message_id", msgID, "len", len(text))
}

// Typing indicators are fire-and-forget: detached, errors only logged, and
// never part of the retry accounting.
func (o *Orchestrator) startTypingBestEffort(ctx context.Context, threadID string) {
	if threadID == "" {
		return
	}
	go func() {
		if err := o.gateway.StartTyping(ctx, threadID); err != nil {
			o.logger.Debug("typing start failed", "thread", threadID, "error", err)
		}
	}()
}

func (o *Orchestrator) stopTypingBestEffort(threadID string) {
	if threadID == "" {
		return
	}
	go func() {
		if err := o.gateway.StopTyping(context.Background(), threadID); err != nil {
			o.logger.Debug("typing stop failed", "thread", threadID, "error", err)
		}
	}()
}

func targetName(t target) string {
	switch t {
	case targetExistingThread:
		return "existing_thread"
	case targetNewThread:
		return "new_thread"
	default:
		return "emergency"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
