package services

import (
	"fmt"
	"strings"
	"testing"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/models"
)

func testAssembler(maxChars, maxChunks int) *ContextAssembler {
	return NewContextAssembler(&config.Config{
		MaxContextChars:  maxChars,
		MaxContextChunks: maxChunks,
	})
}

func scoredChunk(text, attribution string) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk:       models.Chunk{Filename: "doc.pdf", Text: text},
		Attribution: attribution,
	}
}

func TestAssembleDocumentZone(t *testing.T) {
	ca := testAssembler(4000, 5)
	result := models.RetrievalResult{Chunks: []models.ScoredChunk{
		scoredChunk("Contracts require offer and acceptance to form.", "Law Basics, p. 3"),
	}}

	context, meta := ca.Assemble("what forms a contract", result, nil, "")
	if !strings.Contains(context, "Document Context:") {
		t.Fatal("missing document zone")
	}
	if !strings.Contains(context, "[Law Basics, p. 3]") {
		t.Fatal("missing attribution tag")
	}
	if meta.UsedChunks != 1 || meta.TotalChunks != 1 {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.HasSummary {
		t.Fatal("no history, no summary")
	}
}

func TestAssembleSummaryAppearsAfterSixMessages(t *testing.T) {
	ca := testAssembler(4000, 5)
	var history []models.ChatMessage
	for i := 0; i < 7; i++ {
		history = append(history, models.ChatMessage{Role: "user", Content: fmt.Sprintf("question number %d about contracts", i)})
	}

	context, meta := ca.Assemble("contracts", models.RetrievalResult{}, history, "sess")
	if !meta.HasSummary {
		t.Fatal("summary expected after more than six messages")
	}
	if !strings.Contains(context, "Previous topics discussed:") {
		t.Fatal("summary zone missing")
	}
}

func TestAssembleNoSummaryForShortHistory(t *testing.T) {
	ca := testAssembler(4000, 5)
	history := []models.ChatMessage{
		{Role: "user", Content: "first question about contracts"},
		{Role: "assistant", Content: "an answer"},
	}
	_, meta := ca.Assemble("contracts", models.RetrievalResult{}, history, "")
	if meta.HasSummary {
		t.Fatal("short history must not produce a summary")
	}
}

func TestAssembleTruncates(t *testing.T) {
	ca := testAssembler(200, 5)
	result := models.RetrievalResult{Chunks: []models.ScoredChunk{
		scoredChunk(strings.Repeat("long chunk text ", 100), "src"),
	}}
	context, meta := ca.Assemble("q", result, nil, "")
	if !meta.Truncated {
		t.Fatal("expected truncation flag")
	}
	if len(context) > 200 {
		t.Fatalf("context is %d chars, cap is 200", len(context))
	}
}

func TestAssembleCapsChunks(t *testing.T) {
	ca := testAssembler(100000, 2)
	var chunks []models.ScoredChunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, scoredChunk(fmt.Sprintf("chunk %d body text", i), "src"))
	}
	_, meta := ca.Assemble("chunk body", models.RetrievalResult{Chunks: chunks}, nil, "")
	if meta.UsedChunks != 2 {
		t.Fatalf("UsedChunks = %d, want 2", meta.UsedChunks)
	}
}

func TestFilterRelevantHistory(t *testing.T) {
	history := []models.ChatMessage{
		{Role: "user", Content: "tell me about molecules and reactions"},
		{Role: "assistant", Content: "chemistry answer"},
		{Role: "user", Content: "what about equity dividends"},
		{Role: "user", Content: "how strong is a molecules bond"},
	}
	relevant := filterRelevantHistory("how do molecules bond", history)
	for _, m := range relevant {
		if m.Role != "user" {
			t.Fatal("assistant messages must be filtered out")
		}
		if !strings.Contains(m.Content, "molecule") {
			t.Fatalf("irrelevant message kept: %q", m.Content)
		}
	}
	if len(relevant) != 2 {
		t.Fatalf("got %d relevant messages, want 2", len(relevant))
	}
	// chronological order preserved
	if !strings.Contains(relevant[0].Content, "reactions") {
		t.Fatal("relevant history out of order")
	}
}

func TestInvalidateSession(t *testing.T) {
	ca := testAssembler(4000, 5)
	var history []models.ChatMessage
	for i := 0; i < 7; i++ {
		history = append(history, models.ChatMessage{Role: "user", Content: fmt.Sprintf("topic %d words here", i)})
	}
	ca.Assemble("q", models.RetrievalResult{}, history, "sess")
	if _, ok := ca.summaries["sess"]; !ok {
		t.Fatal("summary should be cached")
	}
	ca.InvalidateSession("sess")
	if _, ok := ca.summaries["sess"]; ok {
		t.Fatal("summary should be dropped")
	}
}
