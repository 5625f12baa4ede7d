package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/store"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/middleware"
	"rag-chatbot-backend/routes"
	"rag-chatbot-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)
	if _, err := telemetry.InitMetrics(); err != nil {
		logger.Warn("metrics init failed", "error", err)
	}

	// Redis is optional. Without it the caches fall back to in-process
	// implementations and rate limiting is disabled.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = config.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("redis unavailable, using in-process fallbacks", "error", err)
			rdb = nil
		}
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
	queryClassifier := ai.NewQueryClassifier(cfg, llm, rdb)
	docClassifier := ai.NewDocumentClassifier(cfg, llm, rdb)

	embCache := services.NewEmbeddingCache(cfg.EmbeddingCacheSize, cfg.EmbeddingsCacheDir)
	respCache := services.NewResponseCache(cfg)
	index := services.NewVectorIndex(cfg, collection, embedder, embCache)

	registry, err := services.NewDocumentRegistry(cfg.FileStorageDir)
	if err != nil {
		log.Fatal("Failed to open document registry:", err)
	}
	sessions, err := services.NewSessionStore(cfg, rdb)
	if err != nil {
		log.Fatal("Failed to open session store:", err)
	}

	ocr := services.NewOCRClient(cfg)
	reranker := services.NewRerankerClient(cfg)
	extractors := services.NewExtractorRegistry(ocr)
	enricher := services.NewEnricher(docClassifier)
	monitor := services.NewMonitor()

	ingestion := services.NewIngestionService(cfg, extractors, enricher, index, registry, monitor)
	retriever := services.NewRetriever(cfg, index, reranker)
	deduper := services.NewDeduper(cfg)
	assembler := services.NewContextAssembler(cfg)
	dispatcher := services.NewStreamDispatcher(cfg, llm, queryClassifier, retriever, deduper, assembler, index, respCache, sessions, monitor)

	// Queue client for async ingestion of large uploads. Only available
	// when redis is configured.
	var queueClient *asynq.Client
	if cfg.RedisURL != "" {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
	}

	maintenance := services.NewMaintenanceService(cfg, sessions, index)
	if err := maintenance.Start(); err != nil {
		logger.Warn("maintenance scheduler failed to start", "error", err)
	}
	defer maintenance.Stop()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if rdb != nil {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	routes.SetupDocumentRoutes(router, cfg, ingestion, index, registry, extractors, queueClient)
	routes.SetupQueryRoutes(router, cfg, dispatcher)
	routes.SetupHistoryRoutes(router, sessions, assembler)
	routes.SetupStatsRoutes(router, cfg, index, respCache, embCache, monitor, ocr, reranker)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port, "model", cfg.LLMModel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}
