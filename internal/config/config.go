package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// LLM endpoint (ollama-compatible chat API)
	LLMBaseURL     string
	LLMModel       string
	LLMTimeout     int // seconds, total per request
	LLMMaxRetries  int
	LLMRateLimit   float64 // requests per second
	SystemPrompt   string
	StreamKeepText bool // echo accumulated text in every frame instead of deltas

	// Embeddings
	EmbeddingsProvider    string // "ollama" (default), "google"
	EmbeddingsModel       string
	EmbeddingsBaseURL     string
	GeminiAPIKey          string
	GoogleEmbeddingsModel string
	VectorDimensions      int

	// Vector store
	StorePath        string
	CollectionName   string
	ConstructionEF   int
	SearchEF         int
	HNSWM            int
	UpsertBatchSize  int
	UpsertDelayMs    int
	UpsertMaxRetries int

	// Ingestion
	MaxFileSize         int64
	SyncProcessingLimit int64
	MaxChunkSize        int
	ChunkOverlap        int
	FileStorageDir      string
	ConversationsDir    string
	EmbeddingsCacheDir  string

	// OCR sidecar
	OCRServiceURL     string
	OCRServiceEnabled bool
	OCRTimeout        int // seconds

	// Cross-encoder rerank sidecar (optional)
	RerankerURL     string
	RerankerEnabled bool

	// Retrieval tuning
	DefaultNResults     int
	MinSimilarity       float64
	DomainBoost         float64
	VectorWeight        float64
	LexicalWeight       float64
	FactConflictPenalty float64

	// Caches
	ResponseCacheSize     int
	ResponseCacheTTL      int // seconds
	ResponseCacheStrategy string
	EmbeddingCacheSize    int
	QueryClassTTL         int // seconds
	DocClassTTL           int // seconds

	// Context assembly
	MaxContextChars  int
	MaxContextChunks int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Maintenance
	SessionRetentionDays int
	MaintenanceHours     int // interval between maintenance runs

	// Redis (optional; in-process fallbacks used when empty)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Logging
	LogLevel string
	LogFile  string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		LLMBaseURL:     getEnv("LLM_BASE_URL", "http://localhost:11434"),
		LLMModel:       getEnv("LLM_MODEL", ""),
		LLMTimeout:     getEnvInt("LLM_TIMEOUT", 120),
		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),
		LLMRateLimit:   getEnvFloat64("LLM_RATE_LIMIT", 5),
		SystemPrompt:   getEnv("SYSTEM_PROMPT", "You are a helpful assistant. Answer strictly from the provided context. If the context does not contain the answer, say so."),
		StreamKeepText: getEnvBool("STREAM_KEEP_TEXT", false),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "ollama"),
		EmbeddingsModel:       getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
		EmbeddingsBaseURL:     getEnv("EMBEDDINGS_BASE_URL", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 768),

		StorePath:        getEnv("STORE_PATH", "./data/index.db"),
		CollectionName:   getEnv("COLLECTION_NAME", "documents"),
		ConstructionEF:   getEnvInt("HNSW_CONSTRUCTION_EF", 128),
		SearchEF:         getEnvInt("HNSW_SEARCH_EF", 64),
		HNSWM:            getEnvInt("HNSW_M", 16),
		UpsertBatchSize:  getEnvInt("UPSERT_BATCH_SIZE", 50),
		UpsertDelayMs:    getEnvInt("UPSERT_DELAY_MS", 500),
		UpsertMaxRetries: getEnvInt("UPSERT_MAX_RETRIES", 3),

		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 157286400), // 150MB
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520),
		MaxChunkSize:        getEnvInt("MAX_CHUNK_SIZE", 800),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", 400),
		FileStorageDir:      getEnv("FILE_STORAGE_DIR", "./storage"),
		ConversationsDir:    getEnv("CONVERSATIONS_DIR", "./data/conversations"),
		EmbeddingsCacheDir:  getEnv("EMBEDDINGS_CACHE_DIR", "./data/embeddings_cache"),

		OCRServiceURL:     getEnv("OCR_SERVICE_URL", "http://localhost:8001"),
		OCRServiceEnabled: getEnvBool("OCR_SERVICE_ENABLED", false),
		OCRTimeout:        getEnvInt("OCR_TIMEOUT", 300),

		RerankerURL:     getEnv("RERANKER_URL", ""),
		RerankerEnabled: getEnvBool("RERANKER_ENABLED", false),

		DefaultNResults:     getEnvInt("DEFAULT_N_RESULTS", 5),
		MinSimilarity:       getEnvFloat64("MIN_SIMILARITY", 0.3),
		DomainBoost:         getEnvFloat64("DOMAIN_BOOST", 0.2),
		VectorWeight:        getEnvFloat64("VECTOR_WEIGHT", 0.7),
		LexicalWeight:       getEnvFloat64("LEXICAL_WEIGHT", 0.3),
		FactConflictPenalty: getEnvFloat64("FACT_CONFLICT_PENALTY", 0.5),

		ResponseCacheSize:     getEnvInt("RESPONSE_CACHE_SIZE", 1000),
		ResponseCacheTTL:      getEnvInt("RESPONSE_CACHE_TTL", 3600),
		ResponseCacheStrategy: getEnv("RESPONSE_CACHE_STRATEGY", "lru"),
		EmbeddingCacheSize:    getEnvInt("EMBEDDING_CACHE_SIZE", 10000),
		QueryClassTTL:         getEnvInt("QUERY_CLASS_TTL", 3600),
		DocClassTTL:           getEnvInt("DOC_CLASS_TTL", 86400),

		MaxContextChars:  getEnvInt("MAX_CONTEXT_CHARS", 4000),
		MaxContextChunks: getEnvInt("MAX_CONTEXT_CHUNKS", 5),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		SessionRetentionDays: getEnvInt("SESSION_RETENTION_DAYS", 30),
		MaintenanceHours:     getEnvInt("MAINTENANCE_HOURS", 6),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	// Validate required fields
	if cfg.LLMModel == "" {
		return nil, fmt.Errorf("LLM_MODEL is required - set it in .env file")
	}

	if cfg.EmbeddingsProvider == "google" && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required when EMBEDDINGS_PROVIDER=google")
	}

	if cfg.EmbeddingsBaseURL == "" {
		cfg.EmbeddingsBaseURL = cfg.LLMBaseURL
	}

	if cfg.MaxChunkSize < 100 {
		cfg.MaxChunkSize = 100
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		cfg.ChunkOverlap = cfg.MaxChunkSize / 2
	}

	switch cfg.ResponseCacheStrategy {
	case "lru", "lfu", "fifo":
	default:
		return nil, fmt.Errorf("RESPONSE_CACHE_STRATEGY must be lru, lfu or fifo, got %q", cfg.ResponseCacheStrategy)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
