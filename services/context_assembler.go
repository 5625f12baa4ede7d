package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

const (
	maxHistoryUserMessages = 10
	summaryAfterMessages   = 6
	recentTurns            = 3
	recentTurnChars        = 200
)

// ContextAssembler builds the labeled context window handed to the LLM:
// optional conversation summary, recent relevant turns, and the selected
// document chunks.
type ContextAssembler struct {
	maxChars  int
	maxChunks int

	mu        sync.Mutex
	summaries map[string]string // session id -> cached summary

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

func NewContextAssembler(cfg *config.Config) *ContextAssembler {
	return &ContextAssembler{
		maxChars:  cfg.MaxContextChars,
		maxChunks: cfg.MaxContextChunks,
		summaries: make(map[string]string),
	}
}

// Assemble produces the context string and its metadata.
func (ca *ContextAssembler) Assemble(question string, result models.RetrievalResult, history []models.ChatMessage, sessionID string) (string, models.ContextMetadata) {
	meta := models.ContextMetadata{TotalChunks: len(result.Chunks)}

	relevant := filterRelevantHistory(question, history)
	meta.HistoryMessages = len(relevant)

	var zones []string

	// Conversation Summary zone
	if len(history) > summaryAfterMessages {
		summary := ca.sessionSummary(sessionID, history)
		if summary != "" {
			zones = append(zones, "Conversation Summary:\n"+summary)
			meta.HasSummary = true
		}
	}

	// Recent Conversation Context zone
	if len(relevant) > 0 {
		turns := relevant
		if len(turns) > recentTurns {
			turns = turns[len(turns)-recentTurns:]
		}
		var sb strings.Builder
		sb.WriteString("Recent Conversation Context:\n")
		for _, m := range turns {
			sb.WriteString(fmt.Sprintf("%s: %s\n", m.Role, utils.TruncateRunes(m.Content, recentTurnChars)))
		}
		zones = append(zones, strings.TrimRight(sb.String(), "\n"))
	}

	// Document Context zone
	selected := ca.selectChunks(question, result.Chunks)
	meta.UsedChunks = len(selected)
	if len(selected) > 0 {
		var sb strings.Builder
		sb.WriteString("Document Context:\n")
		for _, sc := range selected {
			sb.WriteString(fmt.Sprintf("[%s]\n%s\n\n", sc.Attribution, sc.Chunk.Text))
		}
		zones = append(zones, strings.TrimRight(sb.String(), "\n"))
	}

	context := strings.Join(zones, "\n\n")
	if len(context) > ca.maxChars {
		context = utils.TruncateRunes(context, ca.maxChars)
		meta.Truncated = true
	}
	meta.ContextLength = len(context)
	meta.ContextTokens = ca.countTokens(context)
	return context, meta
}

// InvalidateSession drops the cached summary for a session.
func (ca *ContextAssembler) InvalidateSession(sessionID string) {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	delete(ca.summaries, sessionID)
}

// selectChunks orders retrieval chunks by word overlap with the question
// and caps the selection.
func (ca *ContextAssembler) selectChunks(question string, chunks []models.ScoredChunk) []models.ScoredChunk {
	queryWords := utils.WordSet(question)

	type scored struct {
		sc      models.ScoredChunk
		overlap float64
		pos     int
	}
	list := make([]scored, 0, len(chunks))
	for i, sc := range chunks {
		list = append(list, scored{sc: sc, overlap: lexicalOverlap(queryWords, sc.Chunk.Text), pos: i})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].overlap != list[j].overlap {
			return list[i].overlap > list[j].overlap
		}
		return list[i].pos < list[j].pos
	})

	limit := ca.maxChunks
	if limit <= 0 {
		limit = 5
	}
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]models.ScoredChunk, len(list))
	for i, s := range list {
		out[i] = s.sc
	}
	return out
}

// sessionSummary builds (or returns the cached) "Previous topics" summary
// from the first words of the last 5 user messages.
func (ca *ContextAssembler) sessionSummary(sessionID string, history []models.ChatMessage) string {
	ca.mu.Lock()
	if s, ok := ca.summaries[sessionID]; ok && sessionID != "" {
		ca.mu.Unlock()
		return s
	}
	ca.mu.Unlock()

	var userMsgs []string
	for _, m := range history {
		if m.Role == "user" {
			userMsgs = append(userMsgs, m.Content)
		}
	}
	if len(userMsgs) > 5 {
		userMsgs = userMsgs[len(userMsgs)-5:]
	}

	var topics []string
	for _, m := range userMsgs {
		words := strings.Fields(m)
		if len(words) > 6 {
			words = words[:6]
		}
		if len(words) == 0 {
			continue
		}
		topics = append(topics, strings.Join(words, " "))
	}
	if len(topics) == 0 {
		return ""
	}
	summary := "Previous topics discussed: " + strings.Join(topics, "; ")

	if sessionID != "" {
		ca.mu.Lock()
		ca.summaries[sessionID] = summary
		ca.mu.Unlock()
	}
	return summary
}

// filterRelevantHistory keeps the last user messages whose keyword overlap
// with the question is non-empty, preserving order.
func filterRelevantHistory(question string, history []models.ChatMessage) []models.ChatMessage {
	queryWords := utils.WordSet(question)

	var relevant []models.ChatMessage
	userSeen := 0
	for i := len(history) - 1; i >= 0 && userSeen < maxHistoryUserMessages; i-- {
		m := history[i]
		if m.Role != "user" {
			continue
		}
		userSeen++
		if lexicalOverlap(queryWords, m.Content) > 0 {
			relevant = append(relevant, m)
		}
	}
	// restore chronological order
	for i, j := 0, len(relevant)-1; i < j; i, j = i+1, j-1 {
		relevant[i], relevant[j] = relevant[j], relevant[i]
	}
	return relevant
}

func (ca *ContextAssembler) countTokens(text string) int {
	ca.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warn("tokenizer unavailable, token counts estimated", "error", err)
			return
		}
		ca.enc = enc
	})
	if ca.enc == nil {
		return len(text) / 4
	}
	return len(ca.enc.Encode(text, nil, nil))
}
