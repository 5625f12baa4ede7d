package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/store"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// Index size tiers reported by Status.
const (
	indexTierBaseline   = "baseline"
	indexTierOptimized  = "optimized"  // > 10k vectors
	indexTierEnterprise = "enterprise" // > 100k vectors
)

// VectorIndex wraps the ANN collection with embedding, batched upserts and
// filtered queries. Upserts are paced so the embedding endpoint is never
// overwhelmed.
type VectorIndex struct {
	collection *store.Collection
	embedder   ai.Embedder
	cache      *EmbeddingCache

	batchSize  int
	maxRetries int
	pacer      *rate.Limiter
}

func NewVectorIndex(cfg *config.Config, collection *store.Collection, embedder ai.Embedder, cache *EmbeddingCache) *VectorIndex {
	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = 50
	}
	retries := cfg.UpsertMaxRetries
	if retries <= 0 {
		retries = 3
	}
	delay := time.Duration(cfg.UpsertDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	return &VectorIndex{
		collection: collection,
		embedder:   embedder,
		cache:      cache,
		batchSize:  batch,
		maxRetries: retries,
		pacer:      rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Embed returns the vector for text, consulting the embedding cache first.
func (vi *VectorIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := vi.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := vi.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	vi.cache.Put(text, vec)
	return vec, nil
}

// UpsertChunks embeds and upserts chunks in paced batches. Each batch gets
// up to maxRetries attempts with exponential backoff; a terminal failure
// carries the batch index.
func (vi *VectorIndex) UpsertChunks(ctx context.Context, chunks []models.Chunk) error {
	for batchIdx := 0; batchIdx*vi.batchSize < len(chunks); batchIdx++ {
		start := batchIdx * vi.batchSize
		end := start + vi.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		// pacing delay between batches
		if err := vi.pacer.Wait(ctx); err != nil {
			return utils.NewError(utils.KindCanceled, "vector-index", "upsert canceled", err)
		}

		if err := vi.upsertBatch(ctx, batch, batchIdx); err != nil {
			return err
		}
		logger.Debug("upserted batch", "batch", batchIdx, "size", len(batch))
	}
	return nil
}

func (vi *VectorIndex) upsertBatch(ctx context.Context, batch []models.Chunk, batchIdx int) error {
	var lastErr error
	for attempt := 0; attempt < vi.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return utils.NewError(utils.KindCanceled, "vector-index", "upsert canceled", ctx.Err())
			case <-time.After(backoff):
			}
		}

		records, err := vi.buildRecords(ctx, batch)
		if err != nil {
			lastErr = err
			continue
		}
		if err := vi.collection.Upsert(ctx, records); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return utils.NewError(utils.KindUpsertFailed, "vector-index",
		fmt.Sprintf("upserting batch %d failed after %d attempts", batchIdx, vi.maxRetries), lastErr)
}

func (vi *VectorIndex) buildRecords(ctx context.Context, batch []models.Chunk) ([]store.Record, error) {
	records := make([]store.Record, 0, len(batch))
	for _, c := range batch {
		vec, err := vi.Embed(ctx, c.Text)
		if err != nil {
			return nil, err
		}
		records = append(records, store.Record{
			ID:        c.ID(),
			Document:  c.Text,
			Metadata:  chunkMetadata(c),
			Embedding: vec,
		})
	}
	return records, nil
}

func chunkMetadata(c models.Chunk) map[string]any {
	meta := map[string]any{
		"filename":    c.Filename,
		"chunk_index": c.ChunkIndex,
		"domain":      c.Domain,
		"chunk_type":  string(c.ChunkType),
		"word_count":  c.WordCount,
		"char_count":  c.CharCount,
	}
	if c.Title != "" {
		meta["title"] = c.Title
	}
	if c.DocType != "" {
		meta["doc_type"] = c.DocType
	}
	if c.PageNumber > 0 {
		meta["page_number"] = c.PageNumber
	}
	if c.SectionType != "" {
		meta["section_type"] = c.SectionType
		meta["section_number"] = c.SectionNumber
		meta["section_title"] = c.SectionTitle
	}
	if !c.ProcessedAt.IsZero() {
		meta["processing_timestamp"] = c.ProcessedAt.Format(time.RFC3339)
	}
	return meta
}

// chunkFromRecordMeta rebuilds a chunk from a stored record.
func chunkFromRecordMeta(id, document string, meta map[string]any) models.Chunk {
	c := models.Chunk{Text: document}
	// round-trip through JSON keeps the numeric conversions in one place
	if data, err := json.Marshal(meta); err == nil {
		json.Unmarshal(data, &c)
	}
	if c.Filename == "" {
		c.Filename = id
	}
	return c
}

// Query embeds the query text and returns the nearest chunks with their
// cosine distances.
func (vi *VectorIndex) Query(ctx context.Context, queryText string, nResults int, where map[string]any) ([]models.ScoredChunk, error) {
	vec, err := vi.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	hits, err := vi.collection.Query(ctx, vec, nResults, where)
	if err != nil {
		return nil, utils.NewError(utils.KindQueryFailed, "vector-index", "ANN query failed", err)
	}

	scored := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		scored = append(scored, models.ScoredChunk{
			Chunk:    chunkFromRecordMeta(h.ID, h.Document, h.Metadata),
			Distance: h.Distance,
		})
	}
	return scored, nil
}

// NeighborChunks fetches chunks of one document whose chunk_index falls in
// [center-span, center+span], used for context expansion.
func (vi *VectorIndex) NeighborChunks(ctx context.Context, filename string, center, span int) ([]models.Chunk, error) {
	var out []models.Chunk
	for idx := center - span; idx <= center+span; idx++ {
		if idx < 0 || idx == center {
			continue
		}
		recs, err := vi.collection.GetWhere(ctx, map[string]any{
			"filename":    filename,
			"chunk_index": idx,
		}, 1)
		if err != nil {
			return nil, utils.NewError(utils.KindQueryFailed, "vector-index", "neighbor lookup failed", err)
		}
		for _, r := range recs {
			out = append(out, chunkFromRecordMeta(r.ID, r.Document, r.Metadata))
		}
	}
	return out, nil
}

// DeleteDocument removes every chunk of one filename. Returns the number of
// removed chunks.
func (vi *VectorIndex) DeleteDocument(ctx context.Context, filename string) (int64, error) {
	n, err := vi.collection.Delete(ctx, map[string]any{"filename": filename})
	if err != nil {
		return 0, utils.NewError(utils.KindUpsertFailed, "vector-index", "delete failed", err)
	}
	return n, nil
}

// Reset removes everything from the collection.
func (vi *VectorIndex) Reset(ctx context.Context) (int64, error) {
	n, err := vi.collection.Delete(ctx, nil)
	if err != nil {
		return 0, utils.NewError(utils.KindUpsertFailed, "vector-index", "reset failed", err)
	}
	return n, nil
}

// ListDocuments aggregates the distinct filenames present in the index.
func (vi *VectorIndex) ListDocuments(ctx context.Context) ([]string, error) {
	names, err := vi.collection.DistinctMetaValues(ctx, "filename")
	if err != nil {
		return nil, utils.NewError(utils.KindQueryFailed, "vector-index", "listing documents failed", err)
	}
	return names, nil
}

// ListDomains aggregates the distinct domains present in the index.
func (vi *VectorIndex) ListDomains(ctx context.Context) ([]string, error) {
	domains, err := vi.collection.DistinctMetaValues(ctx, "domain")
	if err != nil {
		return nil, utils.NewError(utils.KindQueryFailed, "vector-index", "listing domains failed", err)
	}
	return domains, nil
}

// Count returns the number of indexed chunks.
func (vi *VectorIndex) Count(ctx context.Context) (int64, error) {
	n, err := vi.collection.Count(ctx)
	if err != nil {
		return 0, utils.NewError(utils.KindQueryFailed, "vector-index", "count failed", err)
	}
	return n, nil
}

// Status reports the size tier of the index.
func (vi *VectorIndex) Status(ctx context.Context) (string, int64, error) {
	n, err := vi.Count(ctx)
	if err != nil {
		return "", 0, err
	}
	tier := indexTierBaseline
	switch {
	case n > 100000:
		tier = indexTierEnterprise
	case n > 10000:
		tier = indexTierOptimized
	}
	return tier, n, nil
}

// Optimize runs an explicit persistence rebuild.
func (vi *VectorIndex) Optimize(ctx context.Context) error {
	if err := vi.collection.Optimize(ctx); err != nil {
		return utils.NewError(utils.KindIndexUnavailable, "vector-index", "optimize failed", err)
	}
	return nil
}
