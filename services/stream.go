package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/internal/telemetry"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// Dispatcher states, for logging and tests.
const (
	stateIdle        = "idle"
	stateClassifying = "classifying"
	stateRetrieving  = "retrieving"
	stateReranking   = "reranking"
	stateAssembling  = "assembling"
	stateGenerating  = "generating"
	stateStreaming   = "streaming"
	stateDone        = "done"
	stateError       = "error"
	stateCanceled    = "canceled"
)

// FrameWriter receives each outgoing stream frame. Returning an error
// aborts the stream.
type FrameWriter func(models.StreamFrame) error

// StreamDispatcher drives one query through classification, retrieval,
// deduplication, context assembly and LLM generation, forwarding token
// frames to the client. Every stream ends with exactly one terminal frame
// unless the client disconnected.
type StreamDispatcher struct {
	cfg        *config.Config
	llm        *ai.LLMClient
	classifier *ai.QueryClassifier
	retriever  *Retriever
	deduper    *Deduper
	assembler  *ContextAssembler
	index      *VectorIndex
	respCache  *ResponseCache
	sessions   *SessionStore
	monitor    *Monitor
}

func NewStreamDispatcher(cfg *config.Config, llm *ai.LLMClient, classifier *ai.QueryClassifier, retriever *Retriever, deduper *Deduper, assembler *ContextAssembler, index *VectorIndex, respCache *ResponseCache, sessions *SessionStore, monitor *Monitor) *StreamDispatcher {
	return &StreamDispatcher{
		cfg:        cfg,
		llm:        llm,
		classifier: classifier,
		retriever:  retriever,
		deduper:    deduper,
		assembler:  assembler,
		index:      index,
		respCache:  respCache,
		sessions:   sessions,
		monitor:    monitor,
	}
}

// pipelineState is everything the generation stage needs from the
// preparation stages.
type pipelineState struct {
	question       string
	context        string
	classification *models.QueryClassification
	sources        []models.SourceRef
	meta           *models.ContextMetadata
	cacheKey       string
	shortCircuit   *models.StreamFrame // non-nil: emit this terminal frame and stop
}

// prepare runs classification through assembly. It never fails hard:
// degraded stages produce an empty-context answer instead.
func (d *StreamDispatcher) prepare(ctx context.Context, req models.QueryRequest) pipelineState {
	state := stateIdle
	defer func() {
		logger.Debug("query prepared", "final_state", state)
	}()

	question, inlineFilters := ParseInlineFilters(req.Question)
	if question == "" {
		question = req.Question
	}
	ps := pipelineState{question: question}

	// Empty-KB short circuit.
	count, err := d.index.Count(ctx)
	if err != nil {
		logger.Error("index count failed", "error", err)
	}
	if err == nil && count == 0 {
		ps.shortCircuit = &models.StreamFrame{
			Answer: models.MsgEmptyKnowledgeBase,
			Status: models.StreamStatusEmptyKB,
		}
		return ps
	}

	state = stateClassifying
	cls := d.classifier.Classify(ctx, question)
	ps.classification = &cls

	filename := req.Filename
	if f, ok := inlineFilters["filename"]; ok {
		filename = f
	}
	domain := cls.Domain
	if dom, ok := inlineFilters["domain"]; ok {
		domain = dom
	} else if req.DomainFilter != "" {
		domain = req.DomainFilter
	}

	n := req.NResults
	if n <= 0 {
		n = d.cfg.DefaultNResults
	}

	state = stateRetrieving
	candidates, err := d.retriever.Retrieve(ctx, question, RetrieveOptions{
		NResults:     n,
		TargetDomain: domain,
		Filename:     filename,
		Expand:       req.Expand,
	})
	if err != nil {
		// ANN failure degrades to an empty-context answer.
		logger.Error("retrieval failed, degrading to empty context", "error", err)
		candidates = nil
	}

	state = stateReranking
	result := d.deduper.Select(candidates, n)
	ps.sources = result.Sources()

	state = stateAssembling
	contextText, meta := d.assembler.Assemble(question, result, req.History, req.SessionID)
	ps.context = contextText
	ps.meta = &meta

	if len(result.Chunks) == 0 {
		ps.shortCircuit = &models.StreamFrame{
			Answer:          models.MsgNoContext,
			Status:          models.StreamStatusNoContext,
			Classification:  ps.classification,
			ContextMetadata: ps.meta,
		}
		return ps
	}

	ps.cacheKey = d.respCache.Key(question, contextText, req.SessionID)
	return ps
}

// Dispatch streams one answered query to emit. Client disconnect is
// observed via ctx before every token read.
func (d *StreamDispatcher) Dispatch(ctx context.Context, req models.QueryRequest, emit FrameWriter) {
	start := time.Now()

	ps := d.prepare(ctx, req)
	if ps.shortCircuit != nil {
		emit(*ps.shortCircuit)
		return
	}

	domain := "general"
	if ps.classification != nil {
		domain = ps.classification.Domain
	}
	defer func() {
		d.monitor.Observe("query", time.Since(start))
		telemetry.RecordQuery(ctx, domain, time.Since(start))
	}()

	// Response cache: replay the cached answer as one frame.
	if cached, ok := d.respCache.Get(ps.cacheKey); ok {
		telemetry.RecordCacheHit(ctx, "response")
		emit(models.StreamFrame{
			Answer:          cached,
			Status:          models.StreamStatusStreaming,
			Sources:         ps.sources,
			Classification:  ps.classification,
			ContextMetadata: ps.meta,
		})
		emit(models.StreamFrame{
			Status:          models.StreamStatusSuccess,
			Sources:         ps.sources,
			Classification:  ps.classification,
			ContextMetadata: ps.meta,
		})
		return
	}

	// GENERATING: open the upstream stream; retries live inside ChatStream
	// and only happen before the first token.
	reader, err := d.llm.ChatStream(ctx, d.buildMessages(ps))
	if err != nil {
		if utils.IsKind(err, utils.KindCanceled) {
			return
		}
		emit(models.StreamFrame{
			Answer:          fmt.Sprintf("[Error: %v]", err),
			Status:          models.StreamStatusError,
			Sources:         ps.sources,
			Classification:  ps.classification,
			ContextMetadata: ps.meta,
		})
		return
	}
	defer reader.Close()

	// STREAMING
	var full strings.Builder
	tokens := int64(0)
	for {
		select {
		case <-ctx.Done():
			// client gone: abandon upstream, emit nothing further
			logger.Debug("client disconnected mid-stream")
			return
		default:
		}

		frame, err := reader.Next()
		if err != nil {
			emit(models.StreamFrame{
				Answer:          fmt.Sprintf("[Error: %v]", err),
				Status:          models.StreamStatusError,
				Sources:         ps.sources,
				Classification:  ps.classification,
				ContextMetadata: ps.meta,
			})
			return
		}

		if frame.Message.Content != "" {
			tokens++
			full.WriteString(frame.Message.Content)
			if err := emit(models.StreamFrame{
				Answer:          frame.Message.Content,
				Status:          models.StreamStatusStreaming,
				Sources:         ps.sources,
				Classification:  ps.classification,
				ContextMetadata: ps.meta,
			}); err != nil {
				return
			}
		}

		if frame.Done {
			break
		}
	}
	telemetry.RecordTokens(ctx, tokens)

	answer := full.String()
	if tokens == 0 {
		answer = models.MsgNoAnswer
		emit(models.StreamFrame{
			Answer:          answer,
			Status:          models.StreamStatusStreaming,
			Sources:         ps.sources,
			Classification:  ps.classification,
			ContextMetadata: ps.meta,
		})
	}

	d.respCache.Put(ps.cacheKey, answer)
	d.persistTurn(ctx, req, ps, answer)

	emit(models.StreamFrame{
		Status:          models.StreamStatusSuccess,
		Sources:         ps.sources,
		Classification:  ps.classification,
		ContextMetadata: ps.meta,
	})
}

// Answer runs the pipeline without streaming and returns the full
// response body.
func (d *StreamDispatcher) Answer(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	start := time.Now()

	ps := d.prepare(ctx, req)
	if ps.shortCircuit != nil {
		return &models.QueryResponse{
			Answer:          ps.shortCircuit.Answer,
			Status:          ps.shortCircuit.Status,
			Sources:         ps.sources,
			Classification:  ps.classification,
			ContextMetadata: ps.meta,
		}, nil
	}

	domain := "general"
	if ps.classification != nil {
		domain = ps.classification.Domain
	}
	defer func() {
		d.monitor.Observe("query", time.Since(start))
		telemetry.RecordQuery(ctx, domain, time.Since(start))
	}()

	if cached, ok := d.respCache.Get(ps.cacheKey); ok {
		telemetry.RecordCacheHit(ctx, "response")
		return &models.QueryResponse{
			Answer:          cached,
			Context:         ps.context,
			Sources:         ps.sources,
			Classification:  ps.classification,
			ContextMetadata: ps.meta,
			Status:          models.StreamStatusSuccess,
		}, nil
	}

	answer, err := d.llm.Chat(ctx, d.buildMessages(ps), false)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		answer = models.MsgNoAnswer
	}

	d.respCache.Put(ps.cacheKey, answer)
	d.persistTurn(ctx, req, ps, answer)

	return &models.QueryResponse{
		Answer:          answer,
		Context:         ps.context,
		Sources:         ps.sources,
		Classification:  ps.classification,
		ContextMetadata: ps.meta,
		Status:          models.StreamStatusSuccess,
	}, nil
}

func (d *StreamDispatcher) buildMessages(ps pipelineState) []ai.Message {
	return []ai.Message{
		{Role: "system", Content: d.cfg.SystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", ps.context, ps.question)},
	}
}

// persistTurn appends the answered turn to the session transcript.
func (d *StreamDispatcher) persistTurn(ctx context.Context, req models.QueryRequest, ps pipelineState, answer string) {
	if d.sessions == nil || req.SessionID == "" {
		return
	}
	conv, err := d.sessions.Load(ctx, req.SessionID)
	if err != nil {
		conv = &Conversation{SessionID: req.SessionID}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	conv.Messages = append(conv.Messages,
		models.ChatMessage{Role: "user", Content: ps.question, Timestamp: now},
		models.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if err := d.sessions.Save(ctx, conv, ps.context); err != nil {
		logger.Warn("persisting conversation failed", "session", req.SessionID, "error", err)
	}
}
