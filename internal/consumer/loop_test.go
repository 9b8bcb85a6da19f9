package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"barfly/internal/dedup"
	"barfly/internal/domain"
	"barfly/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeLog hands the subscribed handler back to the test so records can be
// injected directly.
type fakeLog struct {
	handler      domain.RecordHandler
	disconnected bool
}

func (f *fakeLog) Subscribe(ctx context.Context, h domain.RecordHandler) error {
	f.handler = h
	return nil
}

func (f *fakeLog) Disconnect() error {
	f.disconnected = true
	return nil
}

func payload(sender, thread, body string) []byte {
	return []byte(fmt.Sprintf(`{"sender_id":%q,"recipient_id":"bot","thread_id":%q,"body":%q}`,
		sender, thread, body))
}

type processRecorder struct {
	mu   sync.Mutex
	msgs []domain.ParsedMessage
}

func (r *processRecorder) fn(ctx context.Context, msg domain.ParsedMessage, rec domain.InboundRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *processRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func startLoop(t *testing.T, log *fakeLog, sent *dedup.Cache, process ProcessFunc, pm *metrics.Pipeline) *Loop {
	t.Helper()
	l := NewLoop(Config{
		Log:             log,
		Sent:            sent,
		Process:         process,
		MaxMessageAge:   5 * time.Minute,
		ClockSkewBuffer: 30 * time.Second,
		Metrics:         pm,
		Logger:          testLogger(),
	})
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return l
}

func TestLoop_FiltersInOrder(t *testing.T) {
	log := &fakeLog{}
	sent := dedup.New(10, time.Hour)
	rec := &processRecorder{}
	pm := metrics.NewPipeline(metrics.NewCollector())

	l := startLoop(t, log, sent, rec.fn, pm)
	now := l.now()

	// Produced well before process start: startup filter.
	log.handler(domain.InboundRecord{
		Partition: 0, Offset: "1",
		ProducedAt: now.Add(-10 * time.Minute),
		Raw:        payload("u1", "t1", "hello"),
	})
	// Fresh but unparseable: malformed filter.
	log.handler(domain.InboundRecord{
		Partition: 0, Offset: "2",
		ProducedAt: now,
		Raw:        []byte("not json"),
	})
	// Parseable but missing the body: also malformed.
	log.handler(domain.InboundRecord{
		Partition: 0, Offset: "3",
		ProducedAt: now,
		Raw:        []byte(`{"sender_id":"u1"}`),
	})
	// Already answered: dedup filter.
	sent.MarkSent("regular-0-4")
	log.handler(domain.InboundRecord{
		Partition: 0, Offset: "4",
		ProducedAt: now,
		Raw:        payload("u1", "t1", "hello again"),
	})
	// Survivor.
	log.handler(domain.InboundRecord{
		Partition: 0, Offset: "5",
		ProducedAt: now,
		Raw:        payload("u1", "t1", "who wins tonight"),
	})

	l.Stop()

	if got := rec.count(); got != 1 {
		t.Fatalf("expected exactly one surviving record, got %d", got)
	}
	if pm.DroppedStartup.Value() != 1 || pm.DroppedMalformed.Value() != 2 || pm.DroppedDuplicate.Value() != 1 {
		t.Fatalf("unexpected drop counts: startup=%d malformed=%d duplicate=%d",
			pm.DroppedStartup.Value(), pm.DroppedMalformed.Value(), pm.DroppedDuplicate.Value())
	}
	if !log.disconnected {
		t.Fatal("stop must disconnect from the log")
	}
}

func TestLoop_StaleRecordDropped(t *testing.T) {
	log := &fakeLog{}
	rec := &processRecorder{}
	pm := metrics.NewPipeline(metrics.NewCollector())

	l := startLoop(t, log, dedup.New(10, time.Hour), rec.fn, pm)

	// Inside the skew buffer relative to start, but older than max age.
	l.startedAt = l.now().Add(-10 * time.Minute)
	log.handler(domain.InboundRecord{
		Partition: 1, Offset: "7",
		ProducedAt: l.now().Add(-6 * time.Minute),
		Raw:        payload("u1", "t1", "old news"),
	})
	l.Stop()

	if rec.count() != 0 || pm.DroppedStale.Value() != 1 {
		t.Fatalf("expected stale drop, processed=%d stale=%d", rec.count(), pm.DroppedStale.Value())
	}
}

func TestLoop_RedeliveryAfterMarkIsSuppressed(t *testing.T) {
	log := &fakeLog{}
	sent := dedup.New(10, time.Hour)
	pm := metrics.NewPipeline(metrics.NewCollector())

	// The processing step marks the key the way a confirmed delivery does.
	var processed int
	var mu sync.Mutex
	process := func(ctx context.Context, msg domain.ParsedMessage, r domain.InboundRecord) {
		mu.Lock()
		processed++
		mu.Unlock()
		sent.MarkSent(dedup.KindKey(domain.KindRegular, dedup.RecordKey(r, msg.SourceID)))
	}

	l := startLoop(t, log, sent, process, pm)

	record := domain.InboundRecord{
		Partition: 0, Offset: "42",
		ProducedAt: l.now(),
		Raw:        payload("u1", "t1", "who wins tonight"),
	}

	log.handler(record)
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return processed == 1 })

	// Redelivery of the same record after the reply went out.
	log.handler(record)
	l.Stop()

	mu.Lock()
	defer mu.Unlock()
	if processed != 1 {
		t.Fatalf("redelivered record must be suppressed, processed %d times", processed)
	}
	if pm.DroppedDuplicate.Value() != 1 {
		t.Fatalf("expected 1 duplicate drop, got %d", pm.DroppedDuplicate.Value())
	}
}

func TestLoop_PanicDoesNotKillWorker(t *testing.T) {
	log := &fakeLog{}
	rec := &processRecorder{}

	calls := 0
	process := func(ctx context.Context, msg domain.ParsedMessage, r domain.InboundRecord) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		rec.fn(ctx, msg, r)
	}

	l := startLoop(t, log, dedup.New(10, time.Hour), process, nil)
	now := l.now()

	log.handler(domain.InboundRecord{Partition: 0, Offset: "1", ProducedAt: now, Raw: payload("u1", "t1", "a")})
	log.handler(domain.InboundRecord{Partition: 0, Offset: "2", ProducedAt: now, Raw: payload("u1", "t1", "b")})
	l.Stop()

	if rec.count() != 1 {
		t.Fatalf("worker must survive a panicking task, got %d post-panic calls", rec.count())
	}
}

func TestLoop_StopFinishesQueuedWork(t *testing.T) {
	log := &fakeLog{}
	rec := &processRecorder{}

	l := startLoop(t, log, dedup.New(10, time.Hour), func(ctx context.Context, msg domain.ParsedMessage, r domain.InboundRecord) {
		time.Sleep(10 * time.Millisecond)
		rec.fn(ctx, msg, r)
	}, nil)

	now := l.now()
	for i := 0; i < 3; i++ {
		log.handler(domain.InboundRecord{
			Partition: 0, Offset: fmt.Sprint(i),
			ProducedAt: now,
			Raw:        payload("u1", "t1", "msg"),
		})
	}
	l.Stop()

	if rec.count() != 3 {
		t.Fatalf("stop must drain queued work, got %d of 3", rec.count())
	}
}

func TestParseRecord(t *testing.T) {
	good := domain.InboundRecord{Raw: payload("u1", "t1", "hello")}
	msg, err := ParseRecord(good)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if msg.SenderID != "u1" || msg.ThreadID != "t1" || msg.Body != "hello" {
		t.Fatalf("unexpected parse result: %+v", msg)
	}
	if msg.ReceivedAt.IsZero() {
		t.Fatal("ReceivedAt must be stamped")
	}

	for name, raw := range map[string][]byte{
		"not json":    []byte("{{"),
		"no sender":   []byte(`{"body":"hi"}`),
		"empty body":  []byte(`{"sender_id":"u1","body":""}`),
		"null fields": []byte(`{}`),
	} {
		if _, err := ParseRecord(domain.InboundRecord{Raw: raw}); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
