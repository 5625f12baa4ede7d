package routes

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"rag-chatbot-backend/internal/config"
)

func TestHealthResponseShape(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	SetupStatsRoutes(router, &config.Config{LLMModel: "test-model"}, nil, nil, nil, nil, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "ok" || body["model"] != "test-model" {
		t.Fatalf("body = %v", body)
	}
	ts, _ := body["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Fatalf("timestamp %q is not RFC3339: %v", ts, err)
	}
	if _, ok := body["uptime"]; !ok {
		t.Fatal("uptime missing")
	}
}
