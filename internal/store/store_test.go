//go:build cgo

package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	c, err := Open(Options{
		Path:           dbPath,
		Name:           "test",
		Dim:            4,
		ConstructionEF: 128,
		SearchEF:       64,
		M:              16,
	})
	if err != nil {
		t.Fatalf("opening collection: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleRecords() []Record {
	return []Record{
		{
			ID:        "a.pdf_0",
			Document:  "alpha text about contracts",
			Metadata:  map[string]any{"filename": "a.pdf", "domain": "law", "chunk_index": 0},
			Embedding: []float32{1, 0, 0, 0},
		},
		{
			ID:        "a.pdf_1",
			Document:  "beta text about liability",
			Metadata:  map[string]any{"filename": "a.pdf", "domain": "law", "chunk_index": 1},
			Embedding: []float32{0, 1, 0, 0},
		},
		{
			ID:        "b.txt_0",
			Document:  "gamma text about enzymes",
			Metadata:  map[string]any{"filename": "b.txt", "domain": "chemistry", "chunk_index": 0},
			Embedding: []float32{0, 0, 1, 0},
		},
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	c, err := Open(Options{Path: dbPath, Name: "test", Dim: 4})
	if err != nil {
		t.Fatalf("opening collection in nested dir: %v", err)
	}
	c.Close()
}

func TestOpenRejectsZeroDim(t *testing.T) {
	_, err := Open(Options{Path: filepath.Join(t.TempDir(), "x.db"), Dim: 0})
	if err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestUpsertAndCount(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()

	if err := c.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	n, err := c.Count(ctx)
	if err != nil {
		t.Fatalf("counting: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 records, got %d", n)
	}

	// Upsert with the same ids must replace, not duplicate.
	if err := c.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("re-upserting: %v", err)
	}
	n, _ = c.Count(ctx)
	if n != 3 {
		t.Fatalf("expected 3 records after re-upsert, got %d", n)
	}
}

func TestUpsertRejectsWrongDim(t *testing.T) {
	c := newTestCollection(t)
	err := c.Upsert(context.Background(), []Record{{
		ID:        "x_0",
		Document:  "x",
		Metadata:  map[string]any{"filename": "x"},
		Embedding: []float32{1, 0},
	}})
	if err == nil {
		t.Fatal("expected dimension error")
	}
}

func TestQueryNearest(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()
	if err := c.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	got, err := c.Query(ctx, []float32{0.9, 0.1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("querying: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "a.pdf_0" {
		t.Fatalf("expected a.pdf_0 nearest, got %s", got[0].ID)
	}
	if got[0].Distance > got[1].Distance {
		t.Fatal("results not ordered by distance")
	}
}

func TestQueryWithWhereFilter(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()
	if err := c.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	got, err := c.Query(ctx, []float32{1, 0, 0, 0}, 5, map[string]any{"domain": "chemistry"})
	if err != nil {
		t.Fatalf("querying with filter: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 filtered result, got %d", len(got))
	}
	if got[0].ID != "b.txt_0" {
		t.Fatalf("expected b.txt_0, got %s", got[0].ID)
	}
}

func TestGetWhere(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()
	if err := c.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	recs, err := c.GetWhere(ctx, map[string]any{"filename": "a.pdf"}, 0)
	if err != nil {
		t.Fatalf("get where: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records for a.pdf, got %d", len(recs))
	}
}

func TestDeleteByFilename(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()
	if err := c.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	removed, err := c.Delete(ctx, map[string]any{"filename": "a.pdf"})
	if err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	n, _ := c.Count(ctx)
	if n != 1 {
		t.Fatalf("expected 1 remaining, got %d", n)
	}
}

func TestDeleteAll(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()
	if err := c.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	removed, err := c.Delete(ctx, nil)
	if err != nil {
		t.Fatalf("deleting all: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	n, _ := c.Count(ctx)
	if n != 0 {
		t.Fatalf("expected empty collection, got %d", n)
	}
}

func TestDistinctMetaValues(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()
	if err := c.Upsert(ctx, sampleRecords()); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	names, err := c.DistinctMetaValues(ctx, "filename")
	if err != nil {
		t.Fatalf("distinct filenames: %v", err)
	}
	if len(names) != 2 || names[0] != "a.pdf" || names[1] != "b.txt" {
		t.Fatalf("unexpected filenames: %v", names)
	}

	domains, err := c.DistinctMetaValues(ctx, "domain")
	if err != nil {
		t.Fatalf("distinct domains: %v", err)
	}
	if len(domains) != 2 {
		t.Fatalf("expected 2 domains, got %v", domains)
	}
}

func TestQueryDistancesAreCosine(t *testing.T) {
	c := newTestCollection(t)
	ctx := context.Background()

	half := float32(math.Sqrt2 / 2)
	recs := []Record{{
		ID:        "d.txt_0",
		Document:  "diagonal unit vector",
		Metadata:  map[string]any{"filename": "d.txt", "chunk_index": 0},
		Embedding: []float32{half, half, 0, 0},
	}}
	if err := c.Upsert(ctx, recs); err != nil {
		t.Fatalf("upserting: %v", err)
	}

	got, err := c.Query(ctx, []float32{1, 0, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("querying: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}

	// cosine distance for a 45 degree angle is 1 - cos = 0.2929; the L2
	// distance for the same pair would be 0.7654 and push a relevant
	// neighbor below the similarity floor
	want := 1 - math.Sqrt2/2
	if math.Abs(got[0].Distance-want) > 0.01 {
		t.Fatalf("distance = %f, want cosine %f", got[0].Distance, want)
	}
}
