package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"barfly/internal/domain"
)

const oddsFeedTimeout = 4 * time.Second

// OddsFeed fetches game prediction context (moneylines, win probabilities)
// for a team topic.
type OddsFeed struct {
	http   *resty.Client
	cache  *ttlCache
	logger *slog.Logger
}

// OddsFeedConfig configures the oddsfeed client.
type OddsFeedConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
	Logger   *slog.Logger
}

func NewOddsFeed(cfg OddsFeedConfig) *OddsFeed {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(oddsFeedTimeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("X-Api-Key", cfg.APIKey)
	}
	return &OddsFeed{
		http:   client,
		cache:  newTTLCache(cfg.CacheTTL),
		logger: cfg.Logger,
	}
}

func (o *OddsFeed) Name() string { return "oddsfeed" }

type oddsResponse struct {
	Games []struct {
		Home        string  `json:"home"`
		Away        string  `json:"away"`
		HomeWinProb float64 `json:"home_win_prob"`
		Line        string  `json:"line"`
		StartsAt    string  `json:"starts_at"`
	} `json:"games"`
}

// Fetch returns prediction context for topic (a team name). An empty games
// list is valid and yields a result with no items.
func (o *OddsFeed) Fetch(ctx context.Context, topic string) (*domain.ProviderResult, error) {
	if cached, ok := o.cache.get(topic); ok {
		return cached, nil
	}

	var body oddsResponse
	resp, err := o.http.R().
		SetContext(ctx).
		SetQueryParam("team", topic).
		SetResult(&body).
		Get("/v1/games/upcoming")
	if err != nil {
		return nil, fmt.Errorf("oddsfeed fetch %q: %w", topic, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oddsfeed fetch %q: status %d", topic, resp.StatusCode())
	}

	result := &domain.ProviderResult{
		Provider:  o.Name(),
		FetchedAt: time.Now(),
	}
	for _, g := range body.Games {
		result.Items = append(result.Items, domain.ProviderItem{
			Title:  fmt.Sprintf("%s @ %s", g.Away, g.Home),
			Detail: fmt.Sprintf("line %s, home win %.0f%%, starts %s", g.Line, g.HomeWinProb*100, g.StartsAt),
			Score:  g.HomeWinProb,
		})
	}
	if len(result.Items) > 0 {
		top := body.Games[0]
		pick := top.Home
		if top.HomeWinProb < 0.5 {
			pick = top.Away
		}
		result.Summary = fmt.Sprintf("%s @ %s — model likes %s (%s)", top.Away, top.Home, pick, top.Line)
	} else {
		result.Summary = fmt.Sprintf("no upcoming games found for %s", topic)
	}

	o.cache.put(topic, result)
	return result, nil
}
