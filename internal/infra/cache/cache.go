// Package cache provides the in-process response cache used by the offer
// engine. Entries carry their own TTL; expired entries are never returned
// and are removed lazily on read or by a periodic Sweep.
package cache

import (
	"fmt"
	"sync"
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/observability/metrics"
)

// Clock provides the current time. Tests replace it to control expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

type entry struct {
	offers   []entity.RawOffer
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Cache is a thread-safe TTL store of provider responses.
// Concurrent Puts for the same key are last-write-wins.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   Clock
}

// New creates an empty cache. A nil clock falls back to SystemClock.
func New(clock Clock) *Cache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Cache{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

// Put stores offers under key for ttl. A non-positive ttl stores nothing.
func (c *Cache) Put(key string, offers []entity.RawOffer, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	stored := make([]entity.RawOffer, len(offers))
	copy(stored, offers)

	c.mu.Lock()
	c.entries[key] = entry{offers: stored, storedAt: c.clock.Now(), ttl: ttl}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.UpdateCacheEntries(n)
}

// Get returns the offers stored under key. Expired entries are deleted and
// reported as absent.
func (c *Cache) Get(key string) ([]entity.RawOffer, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		metrics.RecordCacheLookup("miss")
		return nil, false
	}
	if e.expired(now) {
		c.mu.Lock()
		// Re-check: a concurrent Put may have refreshed the key.
		if cur, still := c.entries[key]; still && cur.expired(now) {
			delete(c.entries, key)
			metrics.RecordCacheEvictions(1)
		}
		n := len(c.entries)
		c.mu.Unlock()
		metrics.UpdateCacheEntries(n)
		metrics.RecordCacheLookup("expired")
		return nil, false
	}

	metrics.RecordCacheLookup("hit")
	out := make([]entity.RawOffer, len(e.offers))
	copy(out, e.offers)
	return out, true
}

// Age reports how long ago key was stored. ok is false when the key is
// absent or expired.
func (c *Cache) Age(key string) (time.Duration, bool) {
	now := c.clock.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		return 0, false
	}
	return now.Sub(e.storedAt), true
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	n := len(c.entries)
	c.mu.Unlock()
	metrics.UpdateCacheEntries(n)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	metrics.UpdateCacheEntries(0)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.RecordCacheEvictions(removed)
	metrics.UpdateCacheEntries(n)
	return removed
}

// ProviderKey is the cache key for one provider's offers for a user.
func ProviderKey(provider entity.ProviderID, userID string) string {
	return fmt.Sprintf("offers:%s:%s", provider, userID)
}

// AggregateKey is the cache key for the merged offers of every provider for a user.
func AggregateKey(userID string) string {
	return "offers:all:" + userID
}

// BurstKey holds the last merged response for a user for a few seconds so
// repeated requests skip the provider fan-out.
func BurstKey(userID string) string {
	return "offers:recent:" + userID
}
