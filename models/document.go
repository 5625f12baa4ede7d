package models

import (
	"time"
)

// Document represents a logical document in the knowledge base. Identity is
// the content fingerprint (SHA-256 of the raw bytes); the filename is the
// handle clients use. A Document exists iff at least one chunk with the same
// filename is present in the vector index.
type Document struct {
	Fingerprint string            `bson:"fingerprint" json:"fingerprint"`
	Filename    string            `bson:"filename" json:"filename"`
	SizeBytes   int64             `bson:"size_bytes" json:"size_bytes"`
	MIMEType    string            `bson:"mime_type" json:"mime_type"`
	Domain      string            `bson:"domain" json:"domain"`
	DocType     string            `bson:"doc_type" json:"doc_type"`
	Title       string            `bson:"title" json:"title"`
	ChunkCount  int               `bson:"chunk_count" json:"count"`
	CreatedAt   time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at" json:"updated_at"`
	Versions    []DocumentVersion `bson:"versions" json:"versions,omitempty"`

	// Relationships are stored as an adjacency list in the registry; the
	// document only carries the ids of incident links, never the links
	// themselves, so cascade deletes stay explicit.
	RelationshipIDs []string `bson:"relationship_ids" json:"relationship_ids,omitempty"`
}

// DocumentVersion records one ingest of a document's content. A new version
// is appended only when the content hash differs from the latest one.
type DocumentVersion struct {
	Hash       string    `bson:"hash" json:"hash"`
	SizeBytes  int64     `bson:"size_bytes" json:"size_bytes"`
	ChunkCount int       `bson:"chunk_count" json:"chunk_count"`
	IngestedAt time.Time `bson:"ingested_at" json:"ingested_at"`
}

// DocumentRelationship links two documents (cites, supersedes, relates-to).
// Kept in its own store keyed by id to avoid ownership cycles.
type DocumentRelationship struct {
	ID        string    `bson:"id" json:"id"`
	SourceID  string    `bson:"source_id" json:"source_id"`
	TargetID  string    `bson:"target_id" json:"target_id"`
	Kind      string    `bson:"kind" json:"kind"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// DocumentAnnotation is a free-form note attached to a document.
type DocumentAnnotation struct {
	ID         string    `bson:"id" json:"id"`
	DocumentID string    `bson:"document_id" json:"document_id"`
	Text       string    `bson:"text" json:"text"`
	Author     string    `bson:"author" json:"author,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// Ingest status constants.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
