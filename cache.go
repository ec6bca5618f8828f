package permit

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// GrantCache fronts EffectivePermissions. Keys are subject ids, so a
// mutation to one subject invalidates exactly that subject's entry;
// role and group mutations flush everything. Evaluation is correct
// with no cache installed.
type GrantCache interface {
	Get(subjectID string) ([]Grant, bool)
	Set(subjectID string, grants []Grant)
	Invalidate(subjectID string)
	Flush()
}

// MemoryGrantCache is a TTL map cache.
type MemoryGrantCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryGrantEntry
}

type memoryGrantEntry struct {
	grants    []Grant
	expiresAt time.Time
}

func NewMemoryGrantCache(ttl time.Duration) *MemoryGrantCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &MemoryGrantCache{ttl: ttl, entries: make(map[string]memoryGrantEntry)}
}

func (c *MemoryGrantCache) Get(subjectID string) ([]Grant, bool) {
	c.mu.RLock()
	entry, ok := c.entries[subjectID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, subjectID)
		c.mu.Unlock()
		return nil, false
	}
	return entry.grants, true
}

func (c *MemoryGrantCache) Set(subjectID string, grants []Grant) {
	c.mu.Lock()
	c.entries[subjectID] = memoryGrantEntry{grants: grants, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryGrantCache) Invalidate(subjectID string) {
	c.mu.Lock()
	delete(c.entries, subjectID)
	c.mu.Unlock()
}

func (c *MemoryGrantCache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]memoryGrantEntry)
	c.mu.Unlock()
}

// RistrettoGrantCache backs the cache with a ristretto admission cache.
// Suited to hosts with many subjects where a plain map would grow
// unbounded.
type RistrettoGrantCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewRistrettoGrantCache builds a ristretto cache. numCounters and
// maxCost follow ristretto conventions (counters about 10x expected
// entries, cost 1 per entry here).
func NewRistrettoGrantCache(numCounters, maxCost int64, ttl time.Duration) (*RistrettoGrantCache, error) {
	if numCounters <= 0 {
		numCounters = 1e5
	}
	if maxCost <= 0 {
		maxCost = 1e4
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoGrantCache{cache: cache, ttl: ttl}, nil
}

func (c *RistrettoGrantCache) Get(subjectID string) ([]Grant, bool) {
	v, ok := c.cache.Get(subjectID)
	if !ok {
		return nil, false
	}
	grants, ok := v.([]Grant)
	return grants, ok
}

func (c *RistrettoGrantCache) Set(subjectID string, grants []Grant) {
	c.cache.SetWithTTL(subjectID, grants, 1, c.ttl)
	c.cache.Wait()
}

func (c *RistrettoGrantCache) Invalidate(subjectID string) {
	c.cache.Del(subjectID)
}

func (c *RistrettoGrantCache) Flush() {
	c.cache.Clear()
}
