package routes

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-chatbot-backend/services"
	"rag-chatbot-backend/utils"
)

// SetupHistoryRoutes wires conversation persistence.
func SetupHistoryRoutes(router *gin.Engine, sessions *services.SessionStore, assembler *services.ContextAssembler) {
	history := router.Group("/history")

	history.GET("/list", func(c *gin.Context) {
		list, err := sessions.List(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list sessions", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list, "count": len(list)})
	})

	history.GET("/get/:id", func(c *gin.Context) {
		conv, err := sessions.Load(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithNotFound(c, err.Error())
			return
		}
		contextText, err := conv.DecodedContext()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to decode context snapshot", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": conv.SessionID,
			"messages":   conv.Messages,
			"context":    contextText,
			"created_at": conv.CreatedAt,
			"updated_at": conv.UpdatedAt,
		})
	})

	history.GET("/export/:id", func(c *gin.Context) {
		conv, err := sessions.Load(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithNotFound(c, err.Error())
			return
		}
		contextText, err := conv.DecodedContext()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to decode context snapshot", gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition",
			fmt.Sprintf("attachment; filename=conversation_%s.json", conv.SessionID))
		c.JSON(http.StatusOK, gin.H{
			"session_id": conv.SessionID,
			"messages":   conv.Messages,
			"context":    contextText,
			"created_at": conv.CreatedAt,
			"updated_at": conv.UpdatedAt,
		})
	})

	history.POST("/save", func(c *gin.Context) {
		var req struct {
			Conversation services.Conversation `json:"conversation"`
			Context      string                `json:"context"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid conversation payload", gin.H{"error": err.Error()})
			return
		}
		if req.Conversation.SessionID == "" {
			utils.RespondWithBadRequest(c, "session_id is required", nil)
			return
		}
		if err := sessions.Save(c.Request.Context(), &req.Conversation, req.Context); err != nil {
			utils.RespondWithBadRequest(c, err.Error(), nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "saved",
			"session_id": req.Conversation.SessionID,
		})
	})

	history.DELETE("/delete/:id", func(c *gin.Context) {
		id := c.Param("id")
		if err := sessions.Delete(c.Request.Context(), id); err != nil {
			utils.RespondWithNotFound(c, err.Error())
			return
		}
		// drop any cached rolling summary for the session
		assembler.InvalidateSession(id)
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": id})
	})
}
