package policy

import (
	"container/list"
	"sync"
	"time"

	"github.com/unionhall/policy/utils"
)

// ============================================================================
// DECISION CACHE
// ============================================================================

// InvalidationPattern selects cached decisions by any subset of key fields.
// Empty fields match everything.
type InvalidationPattern struct {
	UserID   string
	PolicyID string
	EntityID string
}

// CacheStats is a snapshot of the cache's configuration and fill level.
type CacheStats struct {
	Size    int           `json:"size"`
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
}

// DecisionCache stores evaluation outcomes keyed "user:policy[:entity]".
// Implementations must be safe for concurrent use; the cache is the only
// shared mutable structure between in-flight evaluations.
type DecisionCache interface {
	Get(key string) (Decision, bool)
	Set(key string, d Decision)
	Invalidate(pattern InvalidationPattern) int
	Clear()
	Stats() CacheStats
}

// AccessCache is the default DecisionCache: a mutex-guarded map plus an LRU
// list, with per-entry TTL expiry enforced eagerly on Get.
type AccessCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type cacheEntry struct {
	key       string
	decision  Decision
	expiresAt time.Time
}

func NewAccessCache(ttl time.Duration, maxSize int) *AccessCache {
	return &AccessCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the cached decision for key. Expired entries are evicted and
// reported as misses; hits refresh recency.
func (c *AccessCache) Get(key string) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return Decision{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.lru.Remove(el)
		delete(c.entries, key)
		return Decision{}, false
	}
	c.lru.MoveToFront(el)
	return entry.decision, true
}

// Set inserts or refreshes an entry, evicting the least-recently-used one
// when the cache is at capacity.
func (c *AccessCache) Set(key string, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.decision = d
		entry.expiresAt = c.now().Add(c.ttl)
		c.lru.MoveToFront(el)
		return
	}
	if c.lru.Len() >= c.maxSize {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
	entry := &cacheEntry{key: key, decision: d, expiresAt: c.now().Add(c.ttl)}
	c.entries[key] = c.lru.PushFront(entry)
}

// Invalidate removes every entry matching the pattern and returns the count.
func (c *AccessCache) Invalidate(pattern InvalidationPattern) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for key, el := range c.entries {
		if utils.MatchKey(key, pattern.UserID, pattern.PolicyID, pattern.EntityID) {
			c.lru.Remove(el)
			delete(c.entries, key)
			count++
		}
	}
	return count
}

func (c *AccessCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
}

func (c *AccessCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: len(c.entries), MaxSize: c.maxSize, TTL: c.ttl}
}
