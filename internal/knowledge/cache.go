// Package knowledge implements the external data source clients that enrich
// replies: oddsfeed (game prediction context) and venuebuzz (local sentiment
// context). Each client keeps its own TTL cache and treats "no data" as a
// valid result; only transport failure is an error.
package knowledge

import (
	"sync"
	"time"

	"barfly/internal/domain"
)

const defaultCacheTTL = 5 * time.Minute

// ttlCache is a small per-provider result cache keyed by topic.
type ttlCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	result    *domain.ProviderResult
	expiresAt time.Time
}

func newTTLCache(ttl time.Duration) *ttlCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ttlCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *ttlCache) get(topic string) (*domain.ProviderResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[topic]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, topic)
		return nil, false
	}
	cached := *e.result
	cached.FromCache = true
	return &cached, true
}

func (c *ttlCache) put(topic string, result *domain.ProviderResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[topic] = cacheEntry{result: result, expiresAt: c.now().Add(c.ttl)}
}
