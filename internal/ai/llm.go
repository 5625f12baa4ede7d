package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/utils"
)

// Message is one turn sent to the chat endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenFrame is one frame of the model's token stream.
type TokenFrame struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// LLMClient talks to an ollama-compatible chat endpoint. All calls go
// through a circuit breaker and a shared rate limiter.
type LLMClient struct {
	baseURL     string
	model       string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	maxRetries  int
}

func NewLLMClient(cfg *config.Config) *LLMClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "LLMEndpoint",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	rps := cfg.LLMRateLimit
	if rps <= 0 {
		rps = 5
	}

	return &LLMClient{
		baseURL: strings.TrimRight(cfg.LLMBaseURL, "/"),
		model:   cfg.LLMModel,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.LLMTimeout) * time.Second,
		},
		breaker:     breaker,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		maxRetries:  cfg.LLMMaxRetries,
	}
}

// Model returns the configured model name.
func (lc *LLMClient) Model() string {
	return lc.model
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// StreamReader reads token frames off an open chat stream. Callers must
// Close it when done.
type StreamReader struct {
	body    interface{ Close() error }
	scanner *bufio.Scanner
}

// Next returns the next token frame. A frame with Done=true is the last
// one; subsequent calls return an error.
func (sr *StreamReader) Next() (TokenFrame, error) {
	var frame TokenFrame
	for sr.scanner.Scan() {
		line := bytes.TrimSpace(sr.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &frame); err != nil {
			return frame, fmt.Errorf("decoding token frame: %w", err)
		}
		return frame, nil
	}
	if err := sr.scanner.Err(); err != nil {
		return frame, err
	}
	return frame, errors.New("token stream closed before done frame")
}

func (sr *StreamReader) Close() error {
	return sr.body.Close()
}

// ChatStream opens a streaming chat completion. Transport errors before the
// stream opens are retried with exponential backoff; once the reader is
// handed back, errors belong to the caller.
func (lc *LLMClient) ChatStream(ctx context.Context, messages []Message) (*StreamReader, error) {
	tracer := otel.Tracer("llm-client")
	ctx, span := tracer.Start(ctx, "llm.chat_stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", lc.model),
		attribute.Int("llm.messages", len(messages)),
	)

	var lastErr error
	for attempt := 0; attempt < lc.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, utils.NewError(utils.KindCanceled, "llm", "request canceled", ctx.Err())
			case <-time.After(backoff):
			}
		}

		reader, err := lc.openStream(ctx, messages)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", attempt+1))
			return reader, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) {
			return nil, utils.NewError(utils.KindCanceled, "llm", "request canceled", err)
		}
		logger.Warn("LLM stream open failed", "attempt", attempt+1, "error", err)
	}

	span.SetAttributes(attribute.Bool("llm.error", true))
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, utils.NewError(utils.KindModelTimeout, "llm", "chat stream timed out", lastErr)
	}
	return nil, utils.NewError(utils.KindModelUnavailable, "llm", "chat stream unavailable", lastErr)
}

func (lc *LLMClient) openStream(ctx context.Context, messages []Message) (*StreamReader, error) {
	if err := lc.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := lc.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(chatRequest{
			Model:    lc.model,
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, lc.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := lc.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("chat endpoint returned %d", resp.StatusCode)
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		return &StreamReader{body: resp.Body, scanner: scanner}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*StreamReader), nil
}

// Chat runs a non-streaming completion and returns the full answer text.
// When jsonFormat is true the endpoint is asked for a JSON-constrained
// response.
func (lc *LLMClient) Chat(ctx context.Context, messages []Message, jsonFormat bool) (string, error) {
	tracer := otel.Tracer("llm-client")
	ctx, span := tracer.Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", lc.model))

	if err := lc.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := lc.breaker.Execute(func() (interface{}, error) {
		reqBody := chatRequest{
			Model:    lc.model,
			Messages: messages,
			Stream:   false,
		}
		if jsonFormat {
			reqBody.Format = "json"
		}
		body, err := json.Marshal(reqBody)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, lc.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := lc.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("chat endpoint returned %d", resp.StatusCode)
		}

		var out struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, err
		}
		return out.Message.Content, nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("llm.error", true))
		if errors.Is(err, context.DeadlineExceeded) {
			return "", utils.NewError(utils.KindModelTimeout, "llm", "chat timed out", err)
		}
		return "", utils.NewError(utils.KindModelUnavailable, "llm", "chat unavailable", err)
	}
	return result.(string), nil
}
