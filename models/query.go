package models

// ChatMessage is one turn of conversation history supplied by the client.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// QueryRequest carries one question through the query pipeline.
type QueryRequest struct {
	Question     string        `json:"question"`
	NResults     int           `json:"n_results"`
	Expand       int           `json:"expand"`
	Filename     string        `json:"filename,omitempty"`
	DomainFilter string        `json:"domain_filter,omitempty"`
	SessionID    string        `json:"session_id,omitempty"`
	History      []ChatMessage `json:"conversation_history,omitempty"`
}

// QueryClassification is the routing decision for a query.
type QueryClassification struct {
	Domain     string   `json:"domain"`
	Topic      string   `json:"topic"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
}

// DocClassification is the domain decision attached to every chunk of an
// ingested document.
type DocClassification struct {
	Domain     string  `json:"domain"`
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type"`
}

// ScoredChunk is one retrieval candidate with its running scores.
type ScoredChunk struct {
	Chunk       Chunk   `json:"chunk"`
	Distance    float64 `json:"distance"`
	Similarity  float64 `json:"similarity"`
	Lexical     float64 `json:"lexical_score"`
	Hybrid      float64 `json:"hybrid_score"`
	Rerank      float64 `json:"rerank_score,omitempty"`
	Final       float64 `json:"final_score"`
	Confidence  float64 `json:"confidence"`
	Attribution string  `json:"attribution"`
}

// RetrievalResult is the ordered, deduplicated output of the retrieval
// pipeline. Chunks are sorted by Final descending and contain no pair of
// fuzzy duplicates.
type RetrievalResult struct {
	Chunks []ScoredChunk `json:"chunks"`
}

// Sources converts the result to the wire-level source list.
func (r RetrievalResult) Sources() []SourceRef {
	refs := make([]SourceRef, 0, len(r.Chunks))
	for _, sc := range r.Chunks {
		refs = append(refs, SourceRef{
			Filename:    sc.Chunk.Filename,
			ChunkIndex:  sc.Chunk.ChunkIndex,
			Page:        sc.Chunk.PageNumber,
			Attribution: sc.Attribution,
			Confidence:  sc.Confidence,
		})
	}
	return refs
}

// SourceRef is the client-visible attribution for one context chunk.
type SourceRef struct {
	Filename    string  `json:"filename"`
	ChunkIndex  int     `json:"chunk_index"`
	Page        int     `json:"page,omitempty"`
	Attribution string  `json:"attribution"`
	Confidence  float64 `json:"confidence"`
}

// ContextMetadata describes how the context window was assembled.
type ContextMetadata struct {
	TotalChunks     int    `json:"total_chunks"`
	UsedChunks      int    `json:"used_chunks"`
	HistoryMessages int    `json:"history_messages"`
	HasSummary      bool   `json:"has_summary"`
	ContextLength   int    `json:"context_length"`
	ContextTokens   int    `json:"context_tokens,omitempty"`
	Truncated       bool   `json:"truncated,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Stream frame statuses. Every stream ends with exactly one terminal frame
// carrying one of the terminal statuses.
const (
	StreamStatusStreaming = "streaming"
	StreamStatusSuccess   = "success"
	StreamStatusError     = "error"
	StreamStatusEmptyKB   = "empty_kb"
	StreamStatusNoContext = "no_context"
)

// StreamFrame is one newline-delimited JSON message on /query/stream.
type StreamFrame struct {
	Answer          string               `json:"answer"`
	Status          string               `json:"status"`
	Sources         []SourceRef          `json:"sources,omitempty"`
	Classification  *QueryClassification `json:"classification,omitempty"`
	ContextMetadata *ContextMetadata     `json:"context_metadata,omitempty"`
}

// QueryResponse is the non-streaming /query body.
type QueryResponse struct {
	Answer          string               `json:"answer"`
	Context         string               `json:"context"`
	Sources         []SourceRef          `json:"sources"`
	Classification  *QueryClassification `json:"classification,omitempty"`
	ContextMetadata *ContextMetadata     `json:"context_metadata,omitempty"`
	Status          string               `json:"status"`
}

// Messages users see when the pipeline short-circuits.
const (
	MsgEmptyKnowledgeBase = "There is nothing in the knowledge base yet. Please upload a document first."
	MsgNoContext          = "[No relevant context found for your query. Please try rephrasing or uploading more documents.]"
	MsgNoAnswer           = "No answer could be generated. Please try again."
)
