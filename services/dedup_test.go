package services

import (
	"strings"
	"testing"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/models"
)

func testDeduper() *Deduper {
	return NewDeduper(&config.Config{FactConflictPenalty: 0.5})
}

func candidate(text, domain, filename string, similarity float64) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk:      models.Chunk{Filename: filename, Text: text, Domain: domain},
		Similarity: similarity,
	}
}

func TestSelectDropsByteIdenticalDuplicates(t *testing.T) {
	text := strings.Repeat("the reactor operates at four hundred degrees under pressure ", 3)
	result := testDeduper().Select([]models.ScoredChunk{
		candidate(text, "chemistry", "a.pdf", 0.9),
		candidate(text, "chemistry", "b.pdf", 0.8),
	}, 5)
	if len(result.Chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(result.Chunks))
	}
}

func TestSelectDropsNearIdenticalText(t *testing.T) {
	base := strings.Repeat("boiling point of the solvent is measured at standard conditions ", 3)
	result := testDeduper().Select([]models.ScoredChunk{
		candidate(base, "chemistry", "a.pdf", 0.9),
		candidate(base+"!!", "chemistry", "b.pdf", 0.8),
	}, 5)
	if len(result.Chunks) != 1 {
		t.Fatalf("edit-distance duplicate survived: %d chunks", len(result.Chunks))
	}
}

func TestSelectKeepsDistinctChunks(t *testing.T) {
	a := "The statute of limitations for contract disputes is six years from the date of breach under state law."
	b := "Thermodynamic equilibrium requires that entropy production vanishes throughout the isolated physical system."
	result := testDeduper().Select([]models.ScoredChunk{
		candidate(a, "law", "law.pdf", 0.9),
		candidate(b, "physics", "phys.pdf", 0.8),
	}, 5)
	if len(result.Chunks) != 2 {
		t.Fatalf("distinct chunks were merged: got %d", len(result.Chunks))
	}
}

func TestSelectOrdersByFinalScore(t *testing.T) {
	low := candidate("Common law doctrines evolve through precedent set by appellate court decisions over long periods.", "law", "a.pdf", 0.5)
	high := candidate("Quantum entanglement links particle states so that measurement outcomes correlate across distance.", "physics", "b.pdf", 0.95)
	result := testDeduper().Select([]models.ScoredChunk{low, high}, 5)
	if len(result.Chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(result.Chunks))
	}
	if result.Chunks[0].Final < result.Chunks[1].Final {
		t.Fatal("result not sorted by final score")
	}
	if result.Chunks[0].Chunk.Filename != "b.pdf" {
		t.Fatal("higher-similarity chunk should rank first")
	}
}

func TestFactConflictPenalty(t *testing.T) {
	// both lead with the number 42, texts otherwise unrelated
	a := candidate("Measurement 42 applies to the calibration of pressure gauges in the assembly process today.", "engineering", "a.pdf", 0.9)
	b := candidate("Clause 42 governs termination rights for either contracting party after written notice is served.", "law", "b.pdf", 0.9)
	result := testDeduper().Select([]models.ScoredChunk{a, b}, 5)
	for _, c := range result.Chunks {
		// base 0.9 + domain 0.3 + quality 0.2 + length ~0.01 minus the 0.5 penalty
		if c.Final > 1.0 {
			t.Fatalf("penalty not applied: final = %f", c.Final)
		}
	}
}

func TestConfidenceIsCapped(t *testing.T) {
	c := candidate("Dividend policy balances retained earnings against shareholder distributions across fiscal periods.", "finance", "f.pdf", 0.95)
	result := testDeduper().Select([]models.ScoredChunk{c}, 5)
	if got := result.Chunks[0].Confidence; got > 1.0 {
		t.Fatalf("confidence = %f, must be capped at 1.0", got)
	}
}

func TestBuildAttribution(t *testing.T) {
	c := models.Chunk{Filename: "act.pdf", Title: "Companies Act", PageNumber: 12, SectionType: "section", SectionNumber: "4"}
	got := buildAttribution(c)
	want := "Companies Act, p. 12, section 4"
	if got != want {
		t.Fatalf("attribution = %q, want %q", got, want)
	}

	bare := models.Chunk{Filename: "notes.txt"}
	if got := buildAttribution(bare); got != "notes.txt" {
		t.Fatalf("bare attribution = %q, want filename", got)
	}
}
