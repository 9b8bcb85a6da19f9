package backend

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"barfly/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestComplete_ReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"Lakers by 4."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(Config{APIBase: srv.URL, APIKey: "k", Logger: testLogger()})
	text, err := o.Complete(context.Background(), []domain.ChatMessage{{Role: "user", Content: "who wins"}}, 256, 0.7)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Lakers by 4." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestComplete_EmptyCompletionIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(Config{APIBase: srv.URL, Logger: testLogger()})
	if _, err := o.Complete(context.Background(), nil, 256, 0.7); err == nil {
		t.Fatal("empty completion must be an error so callers fall back")
	}
}

func TestComplete_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o := NewOpenAI(Config{APIBase: srv.URL, Logger: testLogger()})
	text, err := o.Complete(context.Background(), nil, 64, 0)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "ok" || calls.Load() != 2 {
		t.Fatalf("expected retry then success, got text=%q calls=%d", text, calls.Load())
	}
}

func TestComplete_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	o := NewOpenAI(Config{APIBase: srv.URL, Logger: testLogger()})
	if _, err := o.Complete(context.Background(), nil, 64, 0); err == nil {
		t.Fatal("expected error on 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}
