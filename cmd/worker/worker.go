package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/queue"
	"rag-chatbot-backend/internal/store"
	"rag-chatbot-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	if cfg.RedisURL == "" {
		log.Fatal("REDIS_URL is required for the worker")
	}
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}

	collection, err := store.Open(store.Options{
		Path:           cfg.StorePath,
		Name:           cfg.CollectionName,
		Dim:            cfg.VectorDimensions,
		ConstructionEF: cfg.ConstructionEF,
		SearchEF:       cfg.SearchEF,
		M:              cfg.HNSWM,
	})
	if err != nil {
		log.Fatal("Failed to open vector store:", err)
	}
	defer collection.Close()

	embedder, err := ai.NewEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	llm := ai.NewLLMClient(cfg)
	docClassifier := ai.NewDocumentClassifier(cfg, llm, rdb)

	embCache := services.NewEmbeddingCache(cfg.EmbeddingCacheSize, cfg.EmbeddingsCacheDir)
	index := services.NewVectorIndex(cfg, collection, embedder, embCache)
	registry, err := services.NewDocumentRegistry(cfg.FileStorageDir)
	if err != nil {
		log.Fatal("Failed to open document registry:", err)
	}

	ocr := services.NewOCRClient(cfg)
	extractors := services.NewExtractorRegistry(ocr)
	enricher := services.NewEnricher(docClassifier)
	monitor := services.NewMonitor()
	ingestion := services.NewIngestionService(cfg, extractors, enricher, index, registry, monitor)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"ingest":  7,
				"default": 3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingestion)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("worker starting", "redis", cfg.RedisURL)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
