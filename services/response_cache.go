package services

import (
	"sync"
	"time"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/utils"
)

// Eviction strategies.
const (
	EvictLRU  = "lru"
	EvictLFU  = "lfu"
	EvictFIFO = "fifo"
)

type responseEntry struct {
	answer      string
	createdAt   time.Time
	accessedAt  time.Time
	accessCount int64
	seq         int64
}

// ResponseCache stores completed answers keyed by query, context and
// session. Strategy is fixed at construction; hits refresh access
// bookkeeping; expired entries never hit.
type ResponseCache struct {
	mu       sync.Mutex
	entries  map[string]*responseEntry
	capacity int
	ttl      time.Duration
	strategy string
	seq      int64

	hits   int64
	misses int64
}

func NewResponseCache(cfg *config.Config) *ResponseCache {
	capacity := cfg.ResponseCacheSize
	if capacity <= 0 {
		capacity = 1000
	}
	return &ResponseCache{
		entries:  make(map[string]*responseEntry),
		capacity: capacity,
		ttl:      time.Duration(cfg.ResponseCacheTTL) * time.Second,
		strategy: cfg.ResponseCacheStrategy,
	}
}

// Key derives the cache key for one answered query.
func (rc *ResponseCache) Key(query, context, sessionID string) string {
	return utils.CacheKey(query, context, sessionID)
}

// Get returns the cached answer when present and unexpired.
func (rc *ResponseCache) Get(key string) (string, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	e, ok := rc.entries[key]
	if !ok {
		rc.misses++
		return "", false
	}
	if time.Since(e.createdAt) > rc.ttl {
		delete(rc.entries, key)
		rc.misses++
		return "", false
	}
	e.accessedAt = time.Now()
	e.accessCount++
	rc.hits++
	return e.answer, true
}

// Put stores an answer, evicting per the configured strategy at capacity.
func (rc *ResponseCache) Put(key, answer string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if _, ok := rc.entries[key]; !ok && len(rc.entries) >= rc.capacity {
		rc.evict()
	}
	rc.seq++
	now := time.Now()
	rc.entries[key] = &responseEntry{
		answer:      answer,
		createdAt:   now,
		accessedAt:  now,
		accessCount: 1,
		seq:         rc.seq,
	}
}

// Invalidate removes one entry.
func (rc *ResponseCache) Invalidate(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.entries, key)
}

// Stats reports cache effectiveness counters.
func (rc *ResponseCache) Stats() map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	total := rc.hits + rc.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(rc.hits) / float64(total)
	}
	return map[string]any{
		"entries":  len(rc.entries),
		"capacity": rc.capacity,
		"strategy": rc.strategy,
		"hits":     rc.hits,
		"misses":   rc.misses,
		"hit_rate": hitRate,
	}
}

// evict removes one victim per the strategy. Callers hold the lock.
func (rc *ResponseCache) evict() {
	var victim string
	var victimEntry *responseEntry

	for k, e := range rc.entries {
		if victimEntry == nil {
			victim, victimEntry = k, e
			continue
		}
		switch rc.strategy {
		case EvictLFU:
			if e.accessCount < victimEntry.accessCount ||
				(e.accessCount == victimEntry.accessCount && e.seq < victimEntry.seq) {
				victim, victimEntry = k, e
			}
		case EvictFIFO:
			if e.seq < victimEntry.seq {
				victim, victimEntry = k, e
			}
		default: // LRU
			if e.accessedAt.Before(victimEntry.accessedAt) {
				victim, victimEntry = k, e
			}
		}
	}
	if victimEntry != nil {
		delete(rc.entries, victim)
	}
}
