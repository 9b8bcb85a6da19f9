package domain

import (
	"context"
	"time"
)

// ProviderItem is one record returned by a knowledge provider.
type ProviderItem struct {
	Title  string  `json:"title"`
	Detail string  `json:"detail,omitempty"`
	Score  float64 `json:"score,omitempty"`
}

// ProviderResult is the uniform result shape for all knowledge providers.
// An empty Items slice with a Summary is valid: "no data" is not an error.
type ProviderResult struct {
	Provider  string         `json:"provider"`
	Summary   string         `json:"summary"`
	Items     []ProviderItem `json:"items,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
	FromCache bool           `json:"from_cache"`
}

// KnowledgeProvider is an independent external data source queried to enrich
// a reply. Implementations cache locally, are safe for concurrent use, and
// return an error only for true transport failure.
type KnowledgeProvider interface {
	Name() string
	Fetch(ctx context.Context, topic string) (*ProviderResult, error)
}
