package visionocr

import (
	"sync"
	"time"

	"ragctx/internal/clock"
)

// cacheKey is (region_id, fidelity_tag) per §3.3.
type cacheKey struct {
	regionID string
	fidelity string
}

type cacheEntry struct {
	value     DecodedRegion
	insertedAt time.Time
	seq        uint64 // monotonic insertion order for oldest-eviction
}

// Stats is the production cache-statistics shape mandated by the spec's
// Open Question: {total, valid, expired}, not the drifted {hits, misses,
// evictions} shape seen elsewhere in the source.
type Stats struct {
	Total   int
	Valid   int
	Expired int
}

// Cache is the per-region/fidelity LRU+TTL decode cache of §3.3/§4.2.
// Safe for concurrent use; internal locking serializes contested updates
// (§5).
type Cache struct {
	mu       sync.Mutex
	entries  map[cacheKey]*cacheEntry
	ttl      time.Duration
	maxSize  int
	clock    clock.Clock
	nextSeq  uint64
}

// NewCache constructs a Cache with the given TTL and capacity.
func NewCache(ttl time.Duration, maxSize int, c clock.Clock) *Cache {
	if c == nil {
		c = clock.System{}
	}
	return &Cache{
		entries: make(map[cacheKey]*cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   c,
	}
}

// Get returns the cached DecodedRegion for (regionID, fidelity) if present
// and younger than TTL; otherwise it evicts the (possibly expired) entry
// and returns false.
func (c *Cache) Get(regionID, fidelity string) (DecodedRegion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(regionID, fidelity)
}

func (c *Cache) getLocked(regionID, fidelity string) (DecodedRegion, bool) {
	key := cacheKey{regionID, fidelity}
	entry, ok := c.entries[key]
	if !ok {
		return DecodedRegion{}, false
	}
	if c.clock.Now().Sub(entry.insertedAt) >= c.ttl {
		delete(c.entries, key)
		return DecodedRegion{}, false
	}
	return entry.value, true
}

// Store inserts or overwrites the entry for (regionID, fidelity). If the
// cache is at capacity and the key is new, the oldest-by-insertion entry
// is evicted first (§3.3).
func (c *Cache) Store(regionID, fidelity string, value DecodedRegion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(regionID, fidelity, value)
}

func (c *Cache) storeLocked(regionID, fidelity string, value DecodedRegion) {
	key := cacheKey{regionID, fidelity}
	if _, exists := c.entries[key]; !exists && c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.nextSeq++
	c.entries[key] = &cacheEntry{value: value, insertedAt: c.clock.Now(), seq: c.nextSeq}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey cacheKey
	var oldestSeq uint64
	first := true
	for k, e := range c.entries {
		if first || e.seq < oldestSeq {
			oldestKey = k
			oldestSeq = e.seq
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// StoreBatch stores each DecodedRegion keyed by (region.RegionID, fidelity).
func (c *Cache) StoreBatch(results []DecodedRegion, fidelity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range results {
		c.storeLocked(r.RegionID, fidelity, r)
	}
}

// SplitHits partitions ids into cache hits and misses for the given
// fidelity, preserving input order in both slices.
func (c *Cache) SplitHits(ids []string, fidelity string) (hits []DecodedRegion, misses []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hits = make([]DecodedRegion, 0, len(ids))
	misses = make([]string, 0, len(ids))
	for _, id := range ids {
		if v, ok := c.getLocked(id, fidelity); ok {
			hits = append(hits, v)
		} else {
			misses = append(misses, id)
		}
	}
	return hits, misses
}

// ClearExpired evicts every entry whose age has reached TTL.
func (c *Cache) ClearExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for k, e := range c.entries {
		if now.Sub(e.insertedAt) >= c.ttl {
			delete(c.entries, k)
		}
	}
}

// StatsSnapshot returns {total, valid, expired} over the current entry
// set without mutating it.
func (c *Cache) StatsSnapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if now.Sub(e.insertedAt) >= c.ttl {
			s.Expired++
		} else {
			s.Valid++
		}
	}
	return s
}
