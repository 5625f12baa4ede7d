package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/services"
)

const TaskIngestDocument = "ingest:document"

// IngestPayload points the worker at a file staged on shared disk. The
// upload handler stages the bytes, the worker owns them from there.
type IngestPayload struct {
	Filename     string `json:"filename"`
	StagedPath   string `json:"staged_path"`
	MIMEType     string `json:"mime_type"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

func NewIngestTask(p IngestPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("ingest"),
	), nil
}

// TaskProcessor runs queued ingests against the same pipeline the
// synchronous upload path uses.
type TaskProcessor struct {
	ingestion *services.IngestionService
}

func NewTaskProcessor(ingestion *services.IngestionService) *TaskProcessor {
	return &TaskProcessor{ingestion: ingestion}
}

func (p *TaskProcessor) HandleIngestDocument(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling ingest payload: %v: %w", err, asynq.SkipRetry)
	}

	data, err := os.ReadFile(payload.StagedPath)
	if err != nil {
		return fmt.Errorf("reading staged file %s: %w", payload.StagedPath, err)
	}

	result, err := p.ingestion.Ingest(ctx, payload.Filename, data, services.IngestOptions{
		ChunkSize:    payload.ChunkSize,
		ChunkOverlap: payload.ChunkOverlap,
		MIMEType:     payload.MIMEType,
	})
	if err != nil {
		logger.Error("queued ingest failed", "filename", payload.Filename, "error", err)
		return err
	}

	// Staged copy is only needed until the ingest lands.
	if err := os.Remove(payload.StagedPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("removing staged file failed", "path", payload.StagedPath, "error", err)
	}

	logger.Info("queued ingest finished",
		"filename", result.Filename,
		"chunks", result.ChunkCount,
		"domain", result.Domain,
		"elapsed_ms", result.Elapsed.Milliseconds())
	return nil
}

// Register wires the processor's handlers onto an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIngestDocument, p.HandleIngestDocument)
}
