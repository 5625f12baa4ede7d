package services

import (
	"testing"

	"rag-chatbot-backend/utils"
)

func TestParseInlineFilters(t *testing.T) {
	q, filters := ParseInlineFilters("what is the boiling point domain:chemistry filename:handbook.pdf")
	if q != "what is the boiling point" {
		t.Fatalf("cleaned question = %q", q)
	}
	if filters["domain"] != "chemistry" {
		t.Fatalf("domain filter = %q", filters["domain"])
	}
	if filters["filename"] != "handbook.pdf" {
		t.Fatalf("filename filter = %q", filters["filename"])
	}
}

func TestParseInlineFiltersNoFilters(t *testing.T) {
	q, filters := ParseInlineFilters("plain question with no filters")
	if q != "plain question with no filters" {
		t.Fatalf("question changed: %q", q)
	}
	if len(filters) != 0 {
		t.Fatalf("unexpected filters: %v", filters)
	}
}

func TestParseInlineFiltersCaseInsensitive(t *testing.T) {
	_, filters := ParseInlineFilters("Domain:Law what are damages")
	if filters["domain"] != "Law" {
		t.Fatalf("filters = %v", filters)
	}
}

func TestLexicalOverlap(t *testing.T) {
	queryWords := utils.WordSet("boiling point water")
	if got := lexicalOverlap(queryWords, "the boiling point of water is 100 degrees"); got != 1.0 {
		t.Fatalf("full overlap = %f, want 1.0", got)
	}
	if got := lexicalOverlap(queryWords, "unrelated legal text"); got != 0 {
		t.Fatalf("no overlap = %f, want 0", got)
	}
	if got := lexicalOverlap(utils.WordSet(""), "anything"); got != 0 {
		t.Fatalf("empty query = %f, want 0", got)
	}
}
