package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"barfly/internal/domain"
)

const venueBuzzTimeout = 4 * time.Second

// VenueBuzz fetches local-sentiment context: how a venue (or the venues of a
// city) is trending right now.
type VenueBuzz struct {
	http   *resty.Client
	cache  *ttlCache
	logger *slog.Logger
}

// VenueBuzzConfig configures the venuebuzz client.
type VenueBuzzConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
	Logger   *slog.Logger
}

func NewVenueBuzz(cfg VenueBuzzConfig) *VenueBuzz {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(venueBuzzTimeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-Api-Key", cfg.APIKey)
	}
	return &VenueBuzz{
		http:   client,
		cache:  newTTLCache(cfg.CacheTTL),
		logger: cfg.Logger,
	}
}

func (v *VenueBuzz) Name() string { return "venuebuzz" }

type buzzResponse struct {
	Venues []struct {
		Name      string  `json:"name"`
		Sentiment float64 `json:"sentiment"` // -1..1
		Mentions  int     `json:"mentions"`
		Blurb     string  `json:"blurb"`
	} `json:"venues"`
}

// Fetch returns sentiment context for topic (a venue name or city). An empty
// venue list is valid.
func (v *VenueBuzz) Fetch(ctx context.Context, topic string) (*domain.ProviderResult, error) {
	if cached, ok := v.cache.get(topic); ok {
		return cached, nil
	}

	var body buzzResponse
	resp, err := v.http.R().
		SetContext(ctx).
		SetQueryParam("q", topic).
		SetResult(&body).
		Get("/v1/buzz")
	if err != nil {
		return nil, fmt.Errorf("venuebuzz fetch %q: %w", topic, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("venuebuzz fetch %q: status %d", topic, resp.StatusCode())
	}

	result := &domain.ProviderResult{
		Provider:  v.Name(),
		FetchedAt: time.Now(),
	}
	for _, vn := range body.Venues {
		result.Items = append(result.Items, domain.ProviderItem{
			Title:  vn.Name,
			Detail: vn.Blurb,
			Score:  vn.Sentiment,
		})
	}
	if len(result.Items) > 0 {
		top := body.Venues[0]
		result.Summary = fmt.Sprintf("%s is trending (%d mentions, sentiment %+.2f): %s",
			top.Name, top.Mentions, top.Sentiment, top.Blurb)
	} else {
		result.Summary = fmt.Sprintf("no buzz data for %s", topic)
	}

	v.cache.put(topic, result)
	return result, nil
}
