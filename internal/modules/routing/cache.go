package routing

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/events"
)

// Cache tiers and lifetimes. Entries are pinned to the graph version at
// write time; a version bump makes every older entry unreachable even
// before its TTL lapses.
const (
	memoryCacheSize = 500
	memoryCacheTTL  = 30 * time.Second
	persistCacheTTL = 120 * time.Second
)

// Cache source tags reported in response metadata
const (
	CacheSourceMemory     = "memory"
	CacheSourcePersistent = "persistent"
)

// memEntry is one in-memory cache slot
type memEntry struct {
	payload   []byte
	version   uint64
	expiresAt time.Time
}

// CacheStats is a point-in-time counter snapshot
type CacheStats struct {
	MemoryEntries     int   `json:"memory_entries"`
	PersistentEntries int   `json:"persistent_entries"`
	Hits              int64 `json:"hits"`
	Misses            int64 `json:"misses"`
}

// Cache is the two-tier route cache: an in-memory LRU in front of the
// persistent route_cache table. Lookups check memory first, then promote
// persistent hits; both tiers are cleared wholesale when the graph
// version bumps.
type Cache struct {
	memory  *lru.Cache[string, memEntry]
	repo    *CacheRepository
	bus     *events.Bus
	metrics *Metrics
	log     zerolog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates the two-tier cache. The repository may be nil, which
// leaves only the in-memory tier active (used in tests).
func NewCache(repo *CacheRepository, bus *events.Bus, metrics *Metrics, log zerolog.Logger) *Cache {
	memory, _ := lru.New[string, memEntry](memoryCacheSize)
	return &Cache{
		memory:  memory,
		repo:    repo,
		bus:     bus,
		metrics: metrics,
		log:     log.With().Str("component", "route-cache").Logger(),
	}
}

// CacheKey builds the canonical cache key. The amount is the caller's
// literal input string; normalizing it would split byte-identical queries
// across distinct keys.
func CacheKey(source, dest, amount, mode string) string {
	return source + "|" + dest + "|" + amount + "|" + mode
}

// Get returns the cached payload for key if a live entry pinned to
// currentVersion exists in either tier. The second return names the tier
// that answered.
func (c *Cache) Get(key string, currentVersion uint64) ([]byte, string, bool) {
	if e, ok := c.memory.Get(key); ok {
		if e.version == currentVersion && time.Now().Before(e.expiresAt) {
			c.hit(CacheSourceMemory)
			return e.payload, CacheSourceMemory, true
		}
		// Stale version or expired: evict on the spot
		c.memory.Remove(key)
	}

	if c.repo != nil {
		e, err := c.repo.Get(key)
		if err != nil {
			c.log.Warn().Err(err).Msg("persistent cache read failed")
		} else if e != nil {
			if e.GraphVersion == currentVersion {
				c.promote(key, e)
				c.hit(CacheSourcePersistent)
				return e.Payload, CacheSourcePersistent, true
			}
			if err := c.repo.Delete(key); err != nil {
				c.log.Warn().Err(err).Msg("failed to evict stale cache row")
			}
		}
	}

	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
	return nil, "", false
}

// Put writes the payload to both tiers, pinned to version
func (c *Cache) Put(key, source, dest, amount string, version uint64, payload []byte) {
	c.memory.Add(key, memEntry{
		payload:   payload,
		version:   version,
		expiresAt: time.Now().Add(memoryCacheTTL),
	})

	if c.repo != nil {
		if err := c.repo.Put(key, source, dest, amount, version, payload, persistCacheTTL); err != nil {
			c.log.Warn().Err(err).Msg("persistent cache write failed")
		}
	}
}

// Clear empties both tiers. Called by the builder after a version bump
// and by the manual invalidation endpoint.
func (c *Cache) Clear(reason string, version uint64) {
	c.memory.Purge()
	if c.repo != nil {
		if err := c.repo.Clear(); err != nil {
			c.log.Warn().Err(err).Msg("failed to clear persistent cache")
		}
	}

	if c.bus != nil {
		c.bus.Publish("routing", &events.RouteCacheClearedData{
			Reason:  reason,
			Version: int64(version),
		})
	}
	c.log.Debug().Str("reason", reason).Uint64("version", version).Msg("route cache cleared")
}

// SweepExpired deletes expired persistent rows
func (c *Cache) SweepExpired() (int64, error) {
	if c.repo == nil {
		return 0, nil
	}
	return c.repo.DeleteExpired()
}

// Stats returns counter and size information for the status endpoint
func (c *Cache) Stats() CacheStats {
	s := CacheStats{
		MemoryEntries: c.memory.Len(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
	}
	if c.repo != nil {
		if n, err := c.repo.Count(); err == nil {
			s.PersistentEntries = n
		}
	}
	return s
}

func (c *Cache) hit(tier string) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(tier).Inc()
	}
}

func (c *Cache) promote(key string, e *persistedEntry) {
	ttl := time.Until(e.ExpiresAt)
	if ttl > memoryCacheTTL {
		ttl = memoryCacheTTL
	}
	c.memory.Add(key, memEntry{
		payload:   e.Payload,
		version:   e.GraphVersion,
		expiresAt: time.Now().Add(ttl),
	})
}

// SweepJob adapts the expired-row sweep to the scheduler
type SweepJob struct {
	cache *Cache
}

// NewSweepJob creates the scheduled cache sweep job
func NewSweepJob(cache *Cache) *SweepJob { return &SweepJob{cache: cache} }

// Name returns the job name
func (j *SweepJob) Name() string { return "route_cache_sweep" }

// Run deletes expired persistent cache rows
func (j *SweepJob) Run() error {
	n, err := j.cache.SweepExpired()
	if err != nil {
		return err
	}
	if n > 0 {
		j.cache.log.Debug().Int64("deleted", n).Msg("swept expired cache rows")
	}
	return nil
}
