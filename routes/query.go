package routes

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/services"
	"rag-chatbot-backend/utils"
)

// SetupQueryRoutes wires the question-answering surface.
func SetupQueryRoutes(router *gin.Engine, cfg *config.Config, dispatcher *services.StreamDispatcher) {
	router.POST("/query", func(c *gin.Context) {
		req, ok := bindQuery(c)
		if !ok {
			return
		}
		resp, err := dispatcher.Answer(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	router.POST("/query/stream", func(c *gin.Context) {
		req, ok := bindQuery(c)
		if !ok {
			return
		}

		c.Header("Content-Type", "application/x-ndjson")
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")

		w := c.Writer
		enc := json.NewEncoder(w)
		dispatcher.Dispatch(c.Request.Context(), req, func(frame models.StreamFrame) error {
			if err := enc.Encode(frame); err != nil {
				return err
			}
			w.Flush()
			return nil
		})
	})
}

// bindQuery accepts the documented multipart/urlencoded form fields and,
// additionally, a JSON body.
func bindQuery(c *gin.Context) (models.QueryRequest, bool) {
	var req models.QueryRequest
	if strings.Contains(c.ContentType(), "json") {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", gin.H{"error": err.Error()})
			return req, false
		}
	} else {
		req.Question = c.PostForm("question")
		req.NResults = intForm(c, "n_results", 0)
		req.Expand = intForm(c, "expand", 0)
		req.Filename = c.PostForm("filename")
		req.DomainFilter = c.PostForm("domain_filter")
		req.SessionID = c.PostForm("session_id")
		if raw := c.PostForm("conversation_history"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.History); err != nil {
				utils.RespondWithBadRequest(c, "conversation_history is not valid JSON", gin.H{"error": err.Error()})
				return req, false
			}
		}
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		utils.RespondWithBadRequest(c, "question is required", nil)
		return req, false
	}
	if len(req.Question) > 4000 {
		utils.RespondWithBadRequest(c, "question is too long", gin.H{"max_chars": 4000})
		return req, false
	}
	logger.Debug("query received", "session", req.SessionID, "n_results", req.NResults)
	return req, true
}
