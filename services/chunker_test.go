package services

import (
	"strings"
	"testing"

	"rag-chatbot-backend/models"
)

func TestIsStructured(t *testing.T) {
	structured := "Chapter 1 Introduction\nSection 1 Scope\nbody text"
	if !IsStructured(structured) {
		t.Fatal("two header families should count as structured")
	}
	if IsStructured("Chapter 1 only one family here") {
		t.Fatal("a single family should not count as structured")
	}
	if IsStructured("plain prose with no headers at all") {
		t.Fatal("prose should not count as structured")
	}
}

func TestChunkAssignsDenseIndexes(t *testing.T) {
	ck := NewChunker(200, 0)
	pre := []models.PreChunk{
		{Filename: "a.txt", ChunkType: models.ChunkSemantic, Text: strings.Repeat("one sentence here. ", 40)},
		{Filename: "a.txt", ChunkType: models.ChunkTableRow, Text: "name: widget, price: 10"},
	}
	chunks := ck.Chunk(pre)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("chunk %d has index %d, want %d", i, c.ChunkIndex, i)
		}
		if c.Filename != "a.txt" {
			t.Fatalf("chunk %d lost its filename", i)
		}
	}
}

func TestChunkTabularPassThrough(t *testing.T) {
	ck := NewChunker(200, 0)
	pre := []models.PreChunk{
		{Filename: "t.csv", ChunkType: models.ChunkTableRow, Text: strings.Repeat("col: value, ", 60), TagPath: "row-3"},
	}
	chunks := ck.Chunk(pre)
	if len(chunks) != 1 {
		t.Fatalf("tabular record must stay one chunk, got %d", len(chunks))
	}
	if chunks[0].SectionTitle != "row-3" {
		t.Fatalf("tag path not carried: %q", chunks[0].SectionTitle)
	}
}

func TestSplitRecursiveRespectsChunkSize(t *testing.T) {
	ck := NewChunker(150, 0)
	text := strings.Repeat("This is a full sentence that carries some weight. ", 30)
	pieces := ck.splitRecursive(text, splitSeparators)
	if len(pieces) < 2 {
		t.Fatalf("expected multiple pieces, got %d", len(pieces))
	}
	for i, p := range pieces {
		if len(p) > 150+50 {
			t.Fatalf("piece %d is %d chars, far over the chunk size", i, len(p))
		}
	}
}

func TestSplitStructuredTagsSections(t *testing.T) {
	ck := NewChunker(500, 100)
	text := "Chapter 1 General Provisions\n" +
		strings.Repeat("The provisions of this chapter apply to all entities. ", 3) + "\n" +
		"Section 2 Definitions\n" +
		strings.Repeat("In this act the following terms have the meanings given. ", 3)
	chunks := ck.splitText(text)
	if len(chunks) < 2 {
		t.Fatalf("expected one chunk per section, got %d", len(chunks))
	}
	if chunks[0].SectionType != "chapter" || chunks[0].SectionNumber != "1" {
		t.Fatalf("first section tag = %s %s", chunks[0].SectionType, chunks[0].SectionNumber)
	}
	if chunks[1].SectionType != "section" || chunks[1].SectionNumber != "2" {
		t.Fatalf("second section tag = %s %s", chunks[1].SectionType, chunks[1].SectionNumber)
	}
}

func TestHardSplitOverlap(t *testing.T) {
	text := strings.Repeat("x", 250)
	pieces := hardSplit(text, 100, 20)
	if len(pieces) != 3 {
		t.Fatalf("got %d pieces, want 3", len(pieces))
	}
	if len(pieces[0]) != 100 {
		t.Fatalf("first piece %d chars, want 100", len(pieces[0]))
	}
}

func TestNewChunkerClampsBadValues(t *testing.T) {
	ck := NewChunker(10, 600)
	if ck.chunkSize != 100 {
		t.Fatalf("chunk size = %d, want clamped 100", ck.chunkSize)
	}
	if ck.overlap >= ck.chunkSize {
		t.Fatalf("overlap %d must stay below chunk size %d", ck.overlap, ck.chunkSize)
	}
}

func TestSplitStructuredKeepsContentAfterBreak(t *testing.T) {
	marker := "The flux capacitor requires one point twenty one gigawatts of sustained power."
	text := strings.Join([]string{
		"Chapter 1 Introduction",
		"This opening paragraph describes the experimental setup in great detail.",
		"",
		marker,
		"A closing remark that pads the section out and forces another break.",
	}, "\n")

	ck := NewChunker(100, 0)
	chunks := ck.splitStructured(text)

	var all strings.Builder
	for _, c := range chunks {
		all.WriteString(c.Text)
		all.WriteString("\n")
	}
	if !strings.Contains(all.String(), marker) {
		t.Fatalf("line after the break point was dropped, emitted:\n%s", all.String())
	}
}

func TestSplitStructuredCoversEveryLine(t *testing.T) {
	lines := []string{
		"Section 1 Obligations",
		"The first obligation binds the seller to deliver conforming goods on time.",
		"The second obligation binds the buyer to inspect the goods upon arrival.",
		"",
		"The third obligation requires written notice of any defect within a week.",
		"The fourth obligation caps liability at the contract price, no exceptions.",
		"Section 2 Remedies",
		"Remedies include repair, replacement and a refund of the purchase price.",
	}
	ck := NewChunker(120, 100)
	chunks := ck.splitStructured(strings.Join(lines, "\n"))

	var all strings.Builder
	for _, c := range chunks {
		all.WriteString(c.Text)
		all.WriteString("\n")
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.Contains(all.String(), line) {
			t.Fatalf("input line missing from chunks: %q", line)
		}
	}
}

func TestChunkRechunksMarkdown(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 40; i++ {
		body.WriteString("Markdown paragraphs get split like any other prose, not passed through whole. ")
	}
	chunks := NewChunker(400, 0).Chunk([]models.PreChunk{
		{Filename: "notes.md", ChunkType: models.ChunkMarkdown, Text: body.String()},
	})

	if len(chunks) < 2 {
		t.Fatalf("markdown came back as %d chunk(s), want it split", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Text) > 400+100 {
			t.Fatalf("chunk %d is %d chars, far over the chunk size", i, len(c.Text))
		}
		if c.ChunkType != models.ChunkMarkdown {
			t.Fatalf("chunk %d lost its markdown type: %s", i, c.ChunkType)
		}
	}
}
