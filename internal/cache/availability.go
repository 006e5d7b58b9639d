package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/carpentries/pretix/internal/domain"
)

// Availability memoizes resolver results for a short TTL. It is display-
// layer only and never authoritative: the hold and commit paths always read
// the store. Entries are indexed by the quotas they were computed from so
// that any write touching a quota can drop exactly the affected keys.
type Availability struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry
	byQuota map[string]map[string]struct{}
}

type entry struct {
	value    domain.Availability
	quotaIDs []string
	expires  time.Time
}

// NewAvailability returns a cache with the given TTL. A zero or negative
// TTL disables caching entirely (Get always misses).
func NewAvailability(ttl time.Duration) *Availability {
	return &Availability{
		ttl:     ttl,
		entries: make(map[string]entry),
		byQuota: make(map[string]map[string]struct{}),
	}
}

// Key builds the cache key for one availability query.
func Key(itemID, variationID, subeventID, channel string) string {
	return strings.Join([]string{itemID, variationID, subeventID, channel}, "|")
}

// Get returns the memoized value if present and fresh.
func (c *Availability) Get(key string, now time.Time) (domain.Availability, bool) {
	if c.ttl <= 0 {
		return domain.Availability{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || now.After(e.expires) {
		return domain.Availability{}, false
	}
	return e.value, true
}

// Set stores a value together with the quota ids it was derived from.
func (c *Availability) Set(key string, value domain.Availability, quotaIDs []string, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.unindex(key, old.quotaIDs)
	}
	c.entries[key] = entry{value: value, quotaIDs: quotaIDs, expires: now.Add(c.ttl)}
	for _, q := range quotaIDs {
		keys, ok := c.byQuota[q]
		if !ok {
			keys = make(map[string]struct{})
			c.byQuota[q] = keys
		}
		keys[key] = struct{}{}
	}
}

// Invalidate drops every entry derived from any of the given quotas.
func (c *Availability) Invalidate(quotaIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range quotaIDs {
		for key := range c.byQuota[q] {
			if e, ok := c.entries[key]; ok {
				delete(c.entries, key)
				c.unindex(key, e.quotaIDs)
			}
		}
		delete(c.byQuota, q)
	}
}

func (c *Availability) unindex(key string, quotaIDs []string) {
	for _, q := range quotaIDs {
		if keys, ok := c.byQuota[q]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byQuota, q)
			}
		}
	}
}
