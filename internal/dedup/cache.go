// Package dedup provides the best-effort idempotency guard for outbound
// replies. It is an in-memory cache, not a durable ledger: its job is to
// suppress duplicate user-visible sends within the retention window when the
// log redelivers a record.
package dedup

import (
	"fmt"
	"sync"
	"time"

	"barfly/internal/domain"
)

const (
	defaultCapacity  = 1000
	defaultRetention = time.Hour
)

// Cache is a bounded mapping from dedup key to insertion time. Eviction is
// FIFO: under memory pressure the capacity bound wins over recency. Entries
// are added only after a confirmed successful send.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	order     []string
	capacity  int
	retention time.Duration

	now func() time.Time
}

// New creates a cache. capacity <= 0 and retention <= 0 use the defaults
// (1000 entries, 1 hour).
func New(capacity int, retention time.Duration) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Cache{
		entries:   make(map[string]time.Time, capacity),
		capacity:  capacity,
		retention: retention,
		now:       time.Now,
	}
}

// Seen reports whether key was marked sent within the retention window.
// Expired entries are removed on observation.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.now().Sub(at) > c.retention {
		c.drop(key)
		return false
	}
	return true
}

// MarkSent records a confirmed successful send for key. Call this only after
// the delivery gateway confirmed success.
func (c *Cache) MarkSent(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		for len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = c.now()
}

// Remove deletes key so that a later redelivery can retry. Used when a send
// failed after the key was provisionally marked.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return
	}
	c.drop(key)
}

// drop removes key from both the map and the FIFO order, keeping the two in
// sync so eviction always pops a live entry. Callers must hold mu.
func (c *Cache) drop(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RecordKey derives the dedup key for a record. The partition-offset form is
// preferred because it is unique and monotonic per partition; the upstream
// message ID is used only when the log position is unavailable.
func RecordKey(rec domain.InboundRecord, sourceID string) string {
	if rec.Offset != "" {
		return fmt.Sprintf("%d-%s", rec.Partition, rec.Offset)
	}
	return sourceID
}

// KindKey namespaces a base key by reply kind, so a regular reply and an
// error notice for the same record are tracked independently.
func KindKey(kind domain.ResponseKind, base string) string {
	return string(kind) + "-" + base
}
