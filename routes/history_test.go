package routes

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/services"
)

func historyRouter(t *testing.T) (*gin.Engine, *services.SessionStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		ConversationsDir: t.TempDir(),
		MaxContextChars:  4000,
		MaxContextChunks: 5,
	}
	sessions, err := services.NewSessionStore(cfg, nil)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	router := gin.New()
	SetupHistoryRoutes(router, sessions, services.NewContextAssembler(cfg))
	return router, sessions
}

func TestHistoryExportDownloadsConversation(t *testing.T) {
	router, sessions := historyRouter(t)

	conv := &services.Conversation{
		SessionID: "sess-export",
		Messages: []models.ChatMessage{
			{Role: "user", Content: "what is consideration"},
			{Role: "assistant", Content: "something of value exchanged"},
		},
	}
	if err := sessions.Save(context.Background(), conv, "context snapshot body"); err != nil {
		t.Fatalf("saving: %v", err)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/history/export/sess-export", nil))
	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "conversation_sess-export.json") {
		t.Fatalf("content disposition = %q", cd)
	}

	var body struct {
		SessionID string               `json:"session_id"`
		Messages  []models.ChatMessage `json:"messages"`
		Context   string               `json:"context"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body.SessionID != "sess-export" || len(body.Messages) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if body.Context != "context snapshot body" {
		t.Fatalf("context = %q, want the decoded snapshot", body.Context)
	}
}

func TestHistoryExportUnknownSession(t *testing.T) {
	router, _ := historyRouter(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/history/export/nope", nil))
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
