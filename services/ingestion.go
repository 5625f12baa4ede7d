package services

import (
	"context"
	"fmt"
	"time"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// IngestResult reports one completed document ingest.
type IngestResult struct {
	Filename    string                   `json:"filename"`
	Fingerprint string                   `json:"fingerprint"`
	ChunkCount  int                      `json:"chunk_count"`
	Domain      string                   `json:"domain"`
	Title       string                   `json:"title"`
	Elapsed     time.Duration            `json:"-"`
	Class       models.DocClassification `json:"-"`
}

// IngestionService runs the full pipeline for one uploaded document:
// extract, chunk, enrich, embed and upsert, then record the document in
// the registry.
type IngestionService struct {
	cfg       *config.Config
	extractor *ExtractorRegistry
	enricher  *Enricher
	index     *VectorIndex
	registry  *DocumentRegistry
	monitor   *Monitor
}

func NewIngestionService(cfg *config.Config, extractor *ExtractorRegistry, enricher *Enricher, index *VectorIndex, registry *DocumentRegistry, monitor *Monitor) *IngestionService {
	return &IngestionService{
		cfg:       cfg,
		extractor: extractor,
		enricher:  enricher,
		index:     index,
		registry:  registry,
		monitor:   monitor,
	}
}

// IngestOptions carries per-upload chunking overrides.
type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int
	MIMEType     string
}

// Ingest processes one document end to end. Failures on the ANN path are
// fatal and surfaced as typed errors.
func (s *IngestionService) Ingest(ctx context.Context, filename string, data []byte, opts IngestOptions) (*IngestResult, error) {
	start := time.Now()

	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, utils.NewError(utils.KindPayloadTooLarge, "ingestion",
			fmt.Sprintf("file is %d bytes, maximum is %d", len(data), s.cfg.MaxFileSize), nil)
	}

	pre, err := s.extractor.Extract(ctx, filename, data)
	if err != nil {
		return nil, err
	}
	if len(pre) == 0 {
		return nil, utils.NewError(utils.KindExtractionFailed, "ingestion", "no content extracted", nil)
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.cfg.MaxChunkSize
	}
	overlap := opts.ChunkOverlap
	if overlap < 0 {
		overlap = s.cfg.ChunkOverlap
	}
	chunker := NewChunker(chunkSize, overlap)
	chunks := chunker.Chunk(pre)
	if len(chunks) == 0 {
		// Extraction can succeed yet leave nothing indexable, e.g. a PDF
		// whose text layer holds only fragments. OCR sees the rendered
		// page instead.
		if retry, ok := s.extractor.RetryWithOCR(ctx, filename, data); ok {
			logger.Info("no chunks from native extraction, retrying with OCR", "filename", filename)
			chunks = chunker.Chunk(retry)
		}
	}
	if len(chunks) == 0 {
		return nil, utils.NewError(utils.KindExtractionFailed, "ingestion", "no chunks produced", nil)
	}

	cls := s.enricher.Enrich(ctx, filename, chunks)

	// Re-ingest replaces the previous version of the same filename.
	if _, err := s.index.DeleteDocument(ctx, filename); err != nil {
		logger.Warn("removing previous version failed", "filename", filename, "error", err)
	}

	if err := s.index.UpsertChunks(ctx, chunks); err != nil {
		return nil, err
	}

	fingerprint := utils.HashBytes(data)
	s.registry.Record(filename, fingerprint, opts.MIMEType, int64(len(data)), len(chunks), cls)

	elapsed := time.Since(start)
	s.monitor.Observe("ingest", elapsed)
	telemetry.RecordIngest(ctx, len(chunks), elapsed)
	logger.Info("document ingested",
		"filename", filename,
		"chunks", len(chunks),
		"domain", cls.Domain,
		"elapsed_ms", elapsed.Milliseconds())

	return &IngestResult{
		Filename:    filename,
		Fingerprint: fingerprint,
		ChunkCount:  len(chunks),
		Domain:      cls.Domain,
		Title:       cls.Title,
		Elapsed:     elapsed,
		Class:       cls,
	}, nil
}

// DeleteDocument removes a document from the index and the registry.
func (s *IngestionService) DeleteDocument(ctx context.Context, filename string) (int64, error) {
	removed, err := s.index.DeleteDocument(ctx, filename)
	if err != nil {
		return 0, err
	}
	s.registry.Delete(filename)
	return removed, nil
}

// Reset clears the knowledge base: index and registry both.
func (s *IngestionService) Reset(ctx context.Context) (int64, error) {
	removed, err := s.index.Reset(ctx)
	if err != nil {
		return 0, err
	}
	s.registry.Clear()
	return removed, nil
}
