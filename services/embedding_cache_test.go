package services

import (
	"fmt"
	"testing"
)

func TestEmbeddingCacheExactHit(t *testing.T) {
	c := NewEmbeddingCache(10, "")
	vec := []float32{0.1, 0.2, 0.3}
	c.Put("hello world", vec)

	got, ok := c.Get("hello world")
	if !ok {
		t.Fatal("expected exact hit")
	}
	if len(got) != 3 || got[0] != 0.1 {
		t.Fatalf("got %v", got)
	}
}

func TestEmbeddingCacheSimilarHit(t *testing.T) {
	c := NewEmbeddingCache(10, "")
	// identical word set, different ordering: Jaccard 1.0
	c.Put("alpha beta gamma delta epsilon", []float32{1})
	if _, ok := c.Get("beta alpha gamma epsilon delta"); !ok {
		t.Fatal("word-identical query should hit via similarity scan")
	}
}

func TestEmbeddingCacheMissOnDifferentText(t *testing.T) {
	c := NewEmbeddingCache(10, "")
	c.Put("completely unrelated content about chemistry", []float32{1})
	if _, ok := c.Get("quarterly finance report for auditors"); ok {
		t.Fatal("unrelated query must miss")
	}
}

func TestEmbeddingCacheEvictsOldest(t *testing.T) {
	c := NewEmbeddingCache(2, "")
	c.Put("first entry text", []float32{1})
	c.Put("second entry text", []float32{2})
	c.Put("third entry text", []float32{3})

	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("first entry text"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
}

func TestEmbeddingCachePersistence(t *testing.T) {
	dir := t.TempDir()

	c := NewEmbeddingCache(10, dir)
	c.Put("persisted embedding text", []float32{0.5, 0.25})

	// a fresh cache over the same directory reloads the entry
	c2 := NewEmbeddingCache(10, dir)
	got, ok := c2.Get("persisted embedding text")
	if !ok {
		t.Fatal("entry did not survive reload")
	}
	if fmt.Sprintf("%v", got) != "[0.5 0.25]" {
		t.Fatalf("reloaded vector = %v", got)
	}
}
