// Package ratelimit provides per-sender admission control for the inbound
// pipeline. A sender is throttled by two independent rules: a fixed count per
// sliding window and a minimum inter-request cooldown.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultMaxPerWindow = 10
	defaultWindow       = 60 * time.Second
	defaultCooldown     = 5 * time.Second
	sweepInterval       = 5 * time.Minute
)

type senderState struct {
	windowStart   time.Time
	countInWindow int
	lastRequestAt time.Time
}

// Limiter tracks request counts per sender. It is consulted before any
// processing begins for a message; Record happens at admission, not after
// completion, so bursts stay throttled even under slow downstream latency.
type Limiter struct {
	mu      sync.Mutex
	senders map[string]*senderState

	maxPerWindow int
	window       time.Duration
	cooldown     time.Duration
	logger       *slog.Logger

	now func() time.Time
}

// Config tunes the limiter. Zero values use the defaults (10 per 60s window,
// 5s cooldown).
type Config struct {
	MaxPerWindow int
	Window       time.Duration
	Cooldown     time.Duration
	Logger       *slog.Logger
}

func New(cfg Config) *Limiter {
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = defaultMaxPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Limiter{
		senders:      make(map[string]*senderState),
		maxPerWindow: cfg.MaxPerWindow,
		window:       cfg.Window,
		cooldown:     cfg.Cooldown,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// IsLimited reports whether senderID has exceeded either throttle. State for
// an elapsed window is reset before the check.
func (l *Limiter) IsLimited(senderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.senders[senderID]
	if !ok {
		return false
	}

	now := l.now()
	if now.Sub(st.windowStart) >= l.window {
		st.windowStart = now
		st.countInWindow = 0
	}

	if st.countInWindow >= l.maxPerWindow {
		return true
	}
	if !st.lastRequestAt.IsZero() && now.Sub(st.lastRequestAt) < l.cooldown {
		return true
	}
	return false
}

// Record counts an admitted request for senderID.
func (l *Limiter) Record(senderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.senders[senderID]
	if !ok {
		st = &senderState{windowStart: now}
		l.senders[senderID] = st
	}
	if now.Sub(st.windowStart) >= l.window {
		st.windowStart = now
		st.countInWindow = 0
	}
	st.countInWindow++
	st.lastRequestAt = now
}

// Sweep evicts senders idle for more than twice the window and returns the
// number of evicted entries.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for id, st := range l.senders {
		if now.Sub(st.lastRequestAt) > 2*l.window {
			delete(l.senders, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeping runs Sweep every 5 minutes until ctx is cancelled.
func (l *Limiter) StartSweeping(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Sweep(); n > 0 {
					l.logger.Debug("rate limiter sweep", "evicted", n)
				}
			}
		}
	}()
}
