package routes

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/queue"
	"rag-chatbot-backend/services"
	"rag-chatbot-backend/utils"
)

// SetupDocumentRoutes wires the ingestion surface: upload, listing,
// deletion, relationships, annotations and knowledge-base reset.
func SetupDocumentRoutes(router *gin.Engine, cfg *config.Config, ingestion *services.IngestionService, index *services.VectorIndex, registry *services.DocumentRegistry, extractors *services.ExtractorRegistry, queueClient *asynq.Client) {
	router.POST("/upload", handleUpload(cfg, ingestion, extractors, queueClient))

	router.GET("/documents", func(c *gin.Context) {
		docs := registry.List()
		filenames, err := index.ListDocuments(c.Request.Context())
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"documents": docs,
			"indexed":   filenames,
			"count":     len(docs),
		})
	})

	router.GET("/documents/:filename", func(c *gin.Context) {
		filename := c.Param("filename")
		doc, ok := registry.Get(filename)
		if !ok {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"document":      doc,
			"relationships": registry.Relationships(filename),
			"annotations":   registry.Annotations(filename),
		})
	})

	router.DELETE("/documents/:filename", func(c *gin.Context) {
		filename := c.Param("filename")
		removed, err := ingestion.DeleteDocument(c.Request.Context(), filename)
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		if removed == 0 {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         "deleted",
			"filename":       filename,
			"chunks_removed": removed,
		})
	})

	router.POST("/documents/:filename/relationships", func(c *gin.Context) {
		var req struct {
			Target string `json:"target" binding:"required"`
			Kind   string `json:"kind" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "target and kind are required", gin.H{"error": err.Error()})
			return
		}
		rel, err := registry.Link(c.Param("filename"), req.Target, req.Kind)
		if err != nil {
			utils.RespondWithNotFound(c, err.Error())
			return
		}
		c.JSON(http.StatusCreated, rel)
	})

	router.POST("/documents/:filename/annotations", func(c *gin.Context) {
		var req struct {
			Text   string `json:"text" binding:"required"`
			Author string `json:"author"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "text is required", gin.H{"error": err.Error()})
			return
		}
		ann, err := registry.Annotate(c.Param("filename"), req.Text, req.Author)
		if err != nil {
			utils.RespondWithNotFound(c, err.Error())
			return
		}
		c.JSON(http.StatusCreated, ann)
	})

	router.GET("/domains", func(c *gin.Context) {
		domains, err := index.ListDomains(c.Request.Context())
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"domains": domains})
	})

	router.POST("/reset_kb", func(c *gin.Context) {
		removed, err := ingestion.Reset(c.Request.Context())
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		logger.Info("knowledge base reset", "chunks_removed", removed)
		c.JSON(http.StatusOK, gin.H{
			"status":         "reset",
			"chunks_removed": removed,
		})
	})
}

func handleUpload(cfg *config.Config, ingestion *services.IngestionService, extractors *services.ExtractorRegistry, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(cfg.MaxFileSize); err != nil {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File size exceeds maximum limit", nil)
			return
		}

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		filename := filepath.Base(header.Filename)
		if _, err := extractors.Get(filename); err != nil {
			utils.RespondWithError(c, http.StatusBadRequest, "unsupported_format",
				"Unsupported file type", gin.H{"supported": extractors.SupportedExtensions()})
			return
		}
		if header.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File size exceeds maximum limit", gin.H{"max_bytes": cfg.MaxFileSize})
			return
		}

		opts := services.IngestOptions{
			MIMEType:     header.Header.Get("Content-Type"),
			ChunkSize:    intForm(c, "chunk_size", 0),
			ChunkOverlap: intForm(c, "chunk_overlap", -1),
		}

		// Large uploads go through the queue so the request returns fast.
		if queueClient != nil && header.Size > cfg.SyncProcessingLimit {
			enqueueUpload(c, cfg, queueClient, file, filename, opts)
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}

		result, err := ingestion.Ingest(c.Request.Context(), filename, data, opts)
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      "processed",
			"filename":    result.Filename,
			"file_type":   strings.TrimPrefix(filepath.Ext(result.Filename), "."),
			"fingerprint": result.Fingerprint,
			"num_chunks":  result.ChunkCount,
			"domain":      result.Domain,
			"title":       result.Title,
			"elapsed_ms":  result.Elapsed.Milliseconds(),
		})
	}
}

// enqueueUpload stages the file on disk and hands it to the worker.
func enqueueUpload(c *gin.Context, cfg *config.Config, queueClient *asynq.Client, file io.Reader, filename string, opts services.IngestOptions) {
	if err := os.MkdirAll(cfg.FileStorageDir, 0755); err != nil {
		utils.RespondWithInternalError(c, "Failed to stage upload", nil)
		return
	}
	stagedPath := filepath.Join(cfg.FileStorageDir, uuid.NewString()+"_"+filename)
	out, err := os.Create(stagedPath)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to stage upload", nil)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(stagedPath)
		utils.RespondWithInternalError(c, "Failed to stage upload", nil)
		return
	}
	out.Close()

	task, err := queue.NewIngestTask(queue.IngestPayload{
		Filename:     filename,
		StagedPath:   stagedPath,
		MIMEType:     opts.MIMEType,
		ChunkSize:    opts.ChunkSize,
		ChunkOverlap: opts.ChunkOverlap,
	})
	if err != nil {
		os.Remove(stagedPath)
		utils.RespondWithInternalError(c, "Failed to enqueue upload", nil)
		return
	}
	info, err := queueClient.Enqueue(task)
	if err != nil {
		os.Remove(stagedPath)
		utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
			"Background processing unavailable, retry with a smaller file", nil)
		return
	}

	logger.Info("upload enqueued", "filename", filename, "task_id", info.ID)
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "queued",
		"filename": filename,
		"task_id":  info.ID,
	})
}

// intForm reads an integer from the posted form, falling back to the URL
// query for GET-style clients.
func intForm(c *gin.Context, name string, fallback int) int {
	raw := strings.TrimSpace(c.PostForm(name))
	if raw == "" {
		raw = strings.TrimSpace(c.Query(name))
	}
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
