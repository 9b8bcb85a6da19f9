// Package respond turns a classified, context-enriched message into reply
// text. The primary path is the completion backend; when it is unavailable,
// times out, or returns nothing, a deterministic rule-based fallback takes
// over so the pipeline always has something to deliver.
package respond

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"barfly/internal/domain"
)

const (
	defaultMaxChars     = 900
	defaultPromptBudget = 2400
	defaultMaxTokens    = 400
	defaultTemperature  = 0.7
	defaultTimeout      = 20 * time.Second
)

// Generator produces replies.
type Generator struct {
	backend      domain.CompletionBackend
	timeout      time.Duration
	maxChars     int
	promptBudget int
	maxTokens    int
	temperature  float64
	logger       *slog.Logger
}

// Config holds the generator dependencies and limits. MaxChars is the
// delivery channel's hard length limit.
type Config struct {
	Backend      domain.CompletionBackend
	Timeout      time.Duration
	MaxChars     int
	PromptBudget int
	MaxTokens    int
	Temperature  float64
	Logger       *slog.Logger
}

func New(cfg Config) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	if cfg.PromptBudget <= 0 {
		cfg.PromptBudget = defaultPromptBudget
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		backend:      cfg.Backend,
		timeout:      cfg.Timeout,
		maxChars:     cfg.MaxChars,
		promptBudget: cfg.PromptBudget,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		logger:       cfg.Logger,
	}
}

// Generate never fails: any backend problem routes to the fallback, and the
// result is always non-empty and within the channel limit.
func (g *Generator) Generate(ctx context.Context, userMsg string, cls domain.Classification, bundle *domain.ContextBundle, kind domain.ResponseKind) *domain.Reply {
	text, usedFallback := g.primary(ctx, userMsg, cls, bundle, kind)
	if usedFallback {
		text = Fallback(kind, cls, bundle)
	}

	return &domain.Reply{
		Text:             Truncate(text, g.maxChars),
		SuggestedActions: suggestActions(cls.Intent),
		UsedFallback:     usedFallback,
	}
}

func (g *Generator) primary(ctx context.Context, userMsg string, cls domain.Classification, bundle *domain.ContextBundle, kind domain.ResponseKind) (string, bool) {
	if g.backend == nil {
		return "", true
	}

	messages := []domain.ChatMessage{
		{Role: "system", Content: buildSystemPrompt(cls, bundle, kind, g.promptBudget)},
	}
	if bundle != nil {
		for _, h := range bundle.History {
			role := h.Role
			if role != "assistant" {
				role = "user"
			}
			messages = append(messages, domain.ChatMessage{Role: role, Content: h.Text})
		}
	}
	messages = append(messages, domain.ChatMessage{Role: "user", Content: userMsg})

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.backend.Complete(cctx, messages, g.maxTokens, g.temperature)
	if err != nil {
		g.logger.Warn("completion failed, using fallback", "intent", cls.Intent, "error", err)
		return "", true
	}
	if strings.TrimSpace(text) == "" {
		g.logger.Warn("completion empty, using fallback", "intent", cls.Intent)
		return "", true
	}
	return text, false
}

func suggestActions(in domain.Intent) []string {
	switch in {
	case domain.IntentMatchup:
		return []string{"where to watch", "more games tonight"}
	case domain.IntentVenue:
		return []string{"who wins tonight", "another spot"}
	case domain.IntentHelp:
		return []string{"who wins tonight", "where to watch"}
	default:
		return nil
	}
}
