package services

import (
	"testing"

	"rag-chatbot-backend/internal/config"
)

func testResponseCache(capacity int, strategy string) *ResponseCache {
	return NewResponseCache(&config.Config{
		ResponseCacheSize:     capacity,
		ResponseCacheTTL:      3600,
		ResponseCacheStrategy: strategy,
	})
}

func TestResponseCacheHitAndMiss(t *testing.T) {
	rc := testResponseCache(10, EvictLRU)
	key := rc.Key("what is a contract", "some context", "s1")

	if _, ok := rc.Get(key); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	rc.Put(key, "a contract is an agreement")
	got, ok := rc.Get(key)
	if !ok || got != "a contract is an agreement" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
}

func TestResponseCacheKeyIncludesSession(t *testing.T) {
	rc := testResponseCache(10, EvictLRU)
	k1 := rc.Key("q", "ctx", "session-a")
	k2 := rc.Key("q", "ctx", "session-b")
	if k1 == k2 {
		t.Fatal("keys must differ per session")
	}
}

func TestResponseCacheExpiry(t *testing.T) {
	rc := NewResponseCache(&config.Config{
		ResponseCacheSize:     10,
		ResponseCacheTTL:      0, // everything expires immediately
		ResponseCacheStrategy: EvictLRU,
	})
	rc.Put("k", "v")
	if _, ok := rc.Get("k"); ok {
		t.Fatal("expired entry must not hit")
	}
}

func TestResponseCacheEvictFIFO(t *testing.T) {
	rc := testResponseCache(2, EvictFIFO)
	rc.Put("first", "1")
	rc.Put("second", "2")
	rc.Put("third", "3") // evicts "first"

	if _, ok := rc.Get("first"); ok {
		t.Fatal("FIFO should have evicted the oldest entry")
	}
	if _, ok := rc.Get("second"); !ok {
		t.Fatal("second entry should survive")
	}
}

func TestResponseCacheEvictLFU(t *testing.T) {
	rc := testResponseCache(2, EvictLFU)
	rc.Put("hot", "1")
	rc.Put("cold", "2")
	rc.Get("hot")
	rc.Get("hot")
	rc.Put("new", "3") // evicts "cold"

	if _, ok := rc.Get("cold"); ok {
		t.Fatal("LFU should have evicted the least-used entry")
	}
	if _, ok := rc.Get("hot"); !ok {
		t.Fatal("frequently used entry should survive")
	}
}

func TestResponseCacheStats(t *testing.T) {
	rc := testResponseCache(10, EvictLRU)
	rc.Put("k", "v")
	rc.Get("k")
	rc.Get("absent")

	stats := rc.Stats()
	if stats["hits"].(int64) != 1 || stats["misses"].(int64) != 1 {
		t.Fatalf("stats = %v", stats)
	}
	if stats["hit_rate"].(float64) != 0.5 {
		t.Fatalf("hit_rate = %v, want 0.5", stats["hit_rate"])
	}
}
