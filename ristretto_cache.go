package policy

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoDecisionCache is an optional DecisionCache for high-throughput
// deployments. It trades the default cache's exact LRU accounting and
// pattern-selective invalidation for ristretto's admission policy:
// Invalidate flushes everything, since ristretto keys cannot be enumerated.
type RistrettoDecisionCache struct {
	cache   *ristretto.Cache
	ttl     time.Duration
	maxCost int64
}

func NewRistrettoDecisionCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) (*RistrettoDecisionCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoDecisionCache{cache: c, ttl: ttl, maxCost: maxCost}, nil
}

func (r *RistrettoDecisionCache) Get(key string) (Decision, bool) {
	v, ok := r.cache.Get(key)
	if !ok {
		return Decision{}, false
	}
	d, ok := v.(Decision)
	return d, ok
}

func (r *RistrettoDecisionCache) Set(key string, d Decision) {
	r.cache.SetWithTTL(key, d, 1, r.ttl)
}

// Invalidate flushes the whole cache regardless of pattern. The count is 0
// because ristretto does not expose its resident key set.
func (r *RistrettoDecisionCache) Invalidate(_ InvalidationPattern) int {
	r.cache.Clear()
	return 0
}

func (r *RistrettoDecisionCache) Clear() {
	r.cache.Clear()
}

func (r *RistrettoDecisionCache) Stats() CacheStats {
	return CacheStats{Size: int(r.cache.Metrics.KeysAdded() - r.cache.Metrics.KeysEvicted()), MaxSize: int(r.maxCost), TTL: r.ttl}
}

// ConfigureRistrettoDecisionCache swaps the engine's decision cache for a
// ristretto-backed one. Startup use only, like the registration API.
func (e *Engine) ConfigureRistrettoDecisionCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c, err := NewRistrettoDecisionCache(numCounters, maxCost, bufferItems, ttl)
	if err != nil {
		return err
	}
	e.cache = c
	return nil
}
