package models

import (
	"fmt"
	"time"
)

// ChunkType describes how a chunk was produced.
type ChunkType string

const (
	ChunkSemantic     ChunkType = "semantic"
	ChunkTableRow     ChunkType = "table_row"
	ChunkFullDocument ChunkType = "full_document"
	ChunkXMLElement   ChunkType = "xml_element"
	ChunkJSONLeaf     ChunkType = "json_leaf"
	ChunkMarkdown     ChunkType = "markdown"
	ChunkOCR          ChunkType = "ocr"
)

// PreChunk is the raw record an extractor emits before chunking and
// enrichment. Tabular and markup extractors emit one PreChunk per record;
// text extractors emit a single PreChunk holding the whole document.
type PreChunk struct {
	Text        string
	Filename    string
	FileType    string
	ChunkType   ChunkType
	RecordIndex int    // row / element ordinal within the source, when applicable
	Page        int    // 1-based page, 0 when unknown
	TagPath     string // XML tag path or JSON pointer for markup records
}

// Chunk is one indexed retrieval candidate. Identity is {Filename, ChunkIndex};
// ChunkIndex is dense and monotonically increasing per document.
type Chunk struct {
	Filename      string    `json:"filename"`
	ChunkIndex    int       `json:"chunk_index"`
	Text          string    `json:"text"`
	Domain        string    `json:"domain"`
	Title         string    `json:"title,omitempty"`
	DocType       string    `json:"doc_type,omitempty"`
	PageNumber    int       `json:"page_number,omitempty"`
	SectionType   string    `json:"section_type,omitempty"`
	SectionNumber string    `json:"section_number,omitempty"`
	SectionTitle  string    `json:"section_title,omitempty"`
	WordCount     int       `json:"word_count"`
	CharCount     int       `json:"char_count"`
	ChunkType     ChunkType `json:"chunk_type"`
	ProcessedAt   time.Time `json:"processing_timestamp"`
}

// ID returns the stable chunk id used in the vector index.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s_%d", c.Filename, c.ChunkIndex)
}
