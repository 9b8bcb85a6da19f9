package domain

import "context"

// CompletionBackend is the generative text service. Errors and timeouts must
// be catchable; callers fall back to deterministic templates on failure.
type CompletionBackend interface {
	Name() string
	Complete(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float64) (string, error)
}
