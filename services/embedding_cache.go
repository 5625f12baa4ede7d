package services

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/utils"
)

const embeddingSimilarityFloor = 0.95

// embeddingEntry is the persisted form of one cached vector.
type embeddingEntry struct {
	Text   string
	Vector []float32
}

// EmbeddingCache maps text to its embedding vector, keyed by content hash.
// Lookups try the exact hash first and then a word-Jaccard similarity scan
// over stored originals. Eviction is FIFO at capacity. When dir is set,
// entries are persisted one gob file per hash and reloaded on start.
type EmbeddingCache struct {
	mu       sync.Mutex
	entries  map[string]embeddingEntry
	order    []string
	capacity int
	dir      string
}

func NewEmbeddingCache(capacity int, dir string) *EmbeddingCache {
	if capacity <= 0 {
		capacity = 10000
	}
	c := &EmbeddingCache{
		entries:  make(map[string]embeddingEntry),
		capacity: capacity,
		dir:      dir,
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Warn("embedding cache dir unavailable, running in-memory only", "dir", dir, "error", err)
			c.dir = ""
		} else {
			c.load()
		}
	}
	return c
}

// Get returns the cached vector for text, trying the exact hash first and
// then similarity matching.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	key := utils.HashString(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.Vector, true
	}

	// similarity lookup over stored originals
	for _, e := range c.entries {
		if utils.JaccardWords(text, e.Text) >= embeddingSimilarityFloor {
			return e.Vector, true
		}
	}
	return nil, false
}

// Put stores the vector for text, evicting the oldest entry at capacity.
func (c *EmbeddingCache) Put(text string, vector []float32) {
	key := utils.HashString(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = embeddingEntry{Text: text, Vector: vector}
		c.persist(key)
		return
	}

	for len(c.entries) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		c.unpersist(oldest)
	}

	c.entries[key] = embeddingEntry{Text: text, Vector: vector}
	c.order = append(c.order, key)
	c.persist(key)
}

// Len returns the number of cached vectors.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// persist writes one entry to disk. Callers hold the lock.
func (c *EmbeddingCache) persist(key string) {
	if c.dir == "" {
		return
	}
	path := filepath.Join(c.dir, key+".gob")
	f, err := os.Create(path)
	if err != nil {
		logger.Warn("persisting embedding cache entry failed", "error", err)
		return
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(c.entries[key]); err != nil {
		logger.Warn("encoding embedding cache entry failed", "error", err)
	}
}

func (c *EmbeddingCache) unpersist(key string) {
	if c.dir == "" {
		return
	}
	os.Remove(filepath.Join(c.dir, key+".gob"))
}

// load restores persisted entries, stopping at capacity.
func (c *EmbeddingCache) load() {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		logger.Warn("reading embedding cache dir failed", "error", err)
		return
	}
	loaded := 0
	for _, fi := range files {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".gob") {
			continue
		}
		if len(c.entries) >= c.capacity {
			break
		}
		path := filepath.Join(c.dir, fi.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		var e embeddingEntry
		if err := gob.NewDecoder(f).Decode(&e); err != nil {
			f.Close()
			os.Remove(path)
			continue
		}
		f.Close()
		key := strings.TrimSuffix(fi.Name(), ".gob")
		c.entries[key] = e
		c.order = append(c.order, key)
		loaded++
	}
	if loaded > 0 {
		logger.Info("embedding cache restored", "entries", loaded)
	}
}
