// Package consumer owns the inbound reliability envelope: it subscribes to
// the message log from the current position, drops stale, duplicate, and
// malformed records, and hands survivors to the pipeline through a serialized
// FIFO work queue — at most one message's business logic runs at a time in
// this process.
package consumer

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"barfly/internal/dedup"
	"barfly/internal/domain"
	"barfly/internal/metrics"
)

const (
	defaultMaxMessageAge   = 5 * time.Minute
	defaultClockSkewBuffer = 30 * time.Second
	defaultQueueSize       = 256
	enqueueTimeout         = 10 * time.Second
)

// ProcessFunc is the business logic invoked for each surviving record.
type ProcessFunc func(ctx context.Context, msg domain.ParsedMessage, rec domain.InboundRecord)

// Loop pulls records from the log, filters them, and drains the surviving
// work strictly FIFO through a single worker.
type Loop struct {
	log     domain.MessageLog
	sent    *dedup.Cache
	process ProcessFunc

	maxAge     time.Duration
	skewBuffer time.Duration
	logger     *slog.Logger
	pm         *metrics.Pipeline

	queue     chan func()
	startedAt time.Time
	now       func() time.Time

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// Config holds the loop dependencies.
type Config struct {
	Log             domain.MessageLog
	Sent            *dedup.Cache
	Process         ProcessFunc
	MaxMessageAge   time.Duration
	ClockSkewBuffer time.Duration
	QueueSize       int
	Metrics         *metrics.Pipeline
	Logger          *slog.Logger
}

func NewLoop(cfg Config) *Loop {
	if cfg.MaxMessageAge <= 0 {
		cfg.MaxMessageAge = defaultMaxMessageAge
	}
	if cfg.ClockSkewBuffer <= 0 {
		cfg.ClockSkewBuffer = defaultClockSkewBuffer
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		log:        cfg.Log,
		sent:       cfg.Sent,
		process:    cfg.Process,
		maxAge:     cfg.MaxMessageAge,
		skewBuffer: cfg.ClockSkewBuffer,
		logger:     cfg.Logger,
		pm:         cfg.Metrics,
		queue:      make(chan func(), cfg.QueueSize),
		now:        time.Now,
	}
}

// Start subscribes to the log from the current position and starts the
// single worker. It returns once the subscription is established.
func (l *Loop) Start(ctx context.Context) error {
	l.startedAt = l.now()

	l.wg.Add(1)
	go l.work()

	if err := l.log.Subscribe(ctx, func(rec domain.InboundRecord) {
		l.onRecord(ctx, rec)
	}); err != nil {
		return err
	}

	l.logger.Info("consumer started", "max_age", l.maxAge, "skew_buffer", l.skewBuffer)
	return nil
}

// Stop disconnects from the log and lets the in-flight task finish. No new
// records are accepted after Stop returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	if err := l.log.Disconnect(); err != nil {
		l.logger.Warn("log disconnect failed", "error", err)
	}
	close(l.queue)
	l.wg.Wait()
	l.logger.Info("consumer stopped")
}

// onRecord applies the filters in order and enqueues survivors. Every drop is
// logged and counted, never retried, never an error.
func (l *Loop) onRecord(ctx context.Context, rec domain.InboundRecord) {
	if l.pm != nil {
		l.pm.RecordsReceived.Inc()
	}

	now := l.now()

	// Startup filter: anything produced before the process started (minus a
	// clock-skew buffer) is historic backlog, not live traffic.
	if rec.ProducedAt.Before(l.startedAt.Add(-l.skewBuffer)) {
		l.logger.Debug("dropping pre-start record",
			"partition", rec.Partition, "offset", rec.Offset, "produced_at", rec.ProducedAt)
		if l.pm != nil {
			l.pm.DroppedStartup.Inc()
		}
		return
	}

	// Age filter: too stale to answer usefully.
	if now.Sub(rec.ProducedAt) > l.maxAge {
		l.logger.Debug("dropping stale record",
			"partition", rec.Partition, "offset", rec.Offset, "age", now.Sub(rec.ProducedAt))
		if l.pm != nil {
			l.pm.DroppedStale.Inc()
		}
		return
	}

	msg, err := ParseRecord(rec)
	if err != nil {
		l.logger.Warn("dropping malformed record",
			"partition", rec.Partition, "offset", rec.Offset, "error", err)
		if l.pm != nil {
			l.pm.DroppedMalformed.Inc()
		}
		return
	}

	// Dedup filter: a record whose regular reply was already confirmed sent
	// is redelivery noise.
	key := dedup.KindKey(domain.KindRegular, dedup.RecordKey(rec, msg.SourceID))
	if l.sent.Seen(key) {
		l.logger.Info("dropping duplicate record",
			"partition", rec.Partition, "offset", rec.Offset, "key", key)
		if l.pm != nil {
			l.pm.DroppedDuplicate.Inc()
		}
		return
	}

	l.enqueue(func() {
		l.process(ctx, msg, rec)
	})
}

// enqueue pushes a task onto the FIFO queue, blocking briefly when full
// instead of dropping.
func (l *Loop) enqueue(task func()) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.stopped {
		l.logger.Warn("record arrived after stop, dropping")
		return
	}

	select {
	case l.queue <- task:
		if l.pm != nil {
			l.pm.QueueDepth.Set(int64(len(l.queue)))
		}
	default:
		l.logger.Warn("work queue full, waiting")
		timer := time.NewTimer(enqueueTimeout)
		defer timer.Stop()
		select {
		case l.queue <- task:
		case <-timer.C:
			l.logger.Error("work queue full, record dropped")
		}
	}
}

// work drains the queue one task at a time until Stop closes it. A panicking
// task is logged and swallowed so the loop itself never dies.
func (l *Loop) work() {
	defer l.wg.Done()
	for task := range l.queue {
		l.runSafely(task)
		if l.pm != nil {
			l.pm.QueueDepth.Set(int64(len(l.queue)))
			l.pm.DedupCacheSize.Set(int64(l.sent.Len()))
		}
	}
}

func (l *Loop) runSafely(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("pipeline task panicked",
				"panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}
