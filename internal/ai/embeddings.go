package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/utils"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds the configured embeddings provider. Default is an
// ollama-compatible endpoint; "google" uses the Generative AI SDK.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	switch cfg.EmbeddingsProvider {
	case "ollama", "":
		return &ollamaEmbedder{
			baseURL: strings.TrimRight(cfg.EmbeddingsBaseURL, "/"),
			model:   cfg.EmbeddingsModel,
			httpClient: &http.Client{
				Timeout: time.Duration(cfg.LLMTimeout) * time.Second,
			},
		}, nil

	case "google":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
		}
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, err
		}
		return &googleEmbedder{client: client, model: cfg.GoogleEmbeddingsModel}, nil

	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
}

type ollamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model":  e.model,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewError(utils.KindModelUnavailable, "embeddings", "embedding endpoint unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewError(utils.KindModelUnavailable, "embeddings",
			fmt.Sprintf("embedding endpoint returned %d", resp.StatusCode), nil)
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, utils.NewError(utils.KindModelUnavailable, "embeddings", "no embedding returned", nil)
	}

	vec := make([]float32, len(out.Embedding))
	for i, f := range out.Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

type googleEmbedder struct {
	client *genai.Client
	model  string
}

func (e *googleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.client.EmbeddingModel(e.model)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, utils.NewError(utils.KindModelUnavailable, "embeddings", "google embeddings failed", err)
	}
	if resp.Embedding == nil {
		return nil, utils.NewError(utils.KindModelUnavailable, "embeddings", "no embedding returned", nil)
	}
	return resp.Embedding.Values, nil
}
