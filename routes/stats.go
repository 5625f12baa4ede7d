package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/services"
	"rag-chatbot-backend/utils"
)

var startedAt = time.Now()

// SetupStatsRoutes wires health and observability endpoints.
func SetupStatsRoutes(router *gin.Engine, cfg *config.Config, index *services.VectorIndex, respCache *services.ResponseCache, embCache *services.EmbeddingCache, monitor *services.Monitor, ocr *services.OCRClient, reranker *services.RerankerClient) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"model":     cfg.LLMModel,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(startedAt).Round(time.Second).String(),
			"version":   "1.0.0",
		})
	})

	router.GET("/stats", func(c *gin.Context) {
		tier, count, err := index.Status(c.Request.Context())
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}

		sidecars := gin.H{}
		if ocr != nil {
			healthy, _ := ocr.IsHealthy(c.Request.Context())
			sidecars["ocr"] = healthy
		}
		if reranker != nil {
			sidecars["reranker"] = true
		}

		c.JSON(http.StatusOK, gin.H{
			"index": gin.H{
				"tier":   tier,
				"chunks": count,
			},
			"caches": gin.H{
				"response":   respCache.Stats(),
				"embeddings": gin.H{"entries": embCache.Len()},
			},
			"operations": monitor.Stats(),
			"sidecars":   sidecars,
			"uptime":     time.Since(startedAt).Round(time.Second).String(),
		})
	})
}
