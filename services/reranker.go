package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"rag-chatbot-backend/internal/config"
)

// RerankerClient scores (query, passage) pairs with the optional
// cross-encoder sidecar. Not required for correctness; callers degrade to
// hybrid ordering when it fails.
type RerankerClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewRerankerClient returns nil when the sidecar is not configured.
func NewRerankerClient(cfg *config.Config) *RerankerClient {
	if !cfg.RerankerEnabled || cfg.RerankerURL == "" {
		return nil
	}
	return &RerankerClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    cfg.RerankerURL,
	}
}

// Score returns one relevance score per passage, in input order.
func (rc *RerankerClient) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"query":    query,
		"passages": passages,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reranker returned %d", resp.StatusCode)
	}

	var out struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Scores) != len(passages) {
		return nil, fmt.Errorf("reranker returned %d scores for %d passages", len(out.Scores), len(passages))
	}
	return out.Scores, nil
}
