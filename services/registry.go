package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
)

// registrySnapshot is the on-disk form of the whole registry, serialized
// as one bson document.
type registrySnapshot struct {
	Documents     map[string]*models.Document             `bson:"documents"`
	Relationships map[string]*models.DocumentRelationship `bson:"relationships"`
	Annotations   map[string][]models.DocumentAnnotation  `bson:"annotations"`
	SavedAt       time.Time                               `bson:"saved_at"`
}

// DocumentRegistry tracks document metadata, versions, relationships and
// annotations. Documents are keyed by filename; relationships live in
// their own map as an adjacency list so deletes stay explicit. State is
// persisted as a bson snapshot file after every mutation.
type DocumentRegistry struct {
	mu   sync.Mutex
	path string

	documents     map[string]*models.Document
	relationships map[string]*models.DocumentRelationship
	annotations   map[string][]models.DocumentAnnotation
}

func NewDocumentRegistry(storageDir string) (*DocumentRegistry, error) {
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	r := &DocumentRegistry{
		path:          filepath.Join(storageDir, "registry.bson"),
		documents:     make(map[string]*models.Document),
		relationships: make(map[string]*models.DocumentRelationship),
		annotations:   make(map[string][]models.DocumentAnnotation),
	}
	r.load()
	return r, nil
}

// Record registers (or updates) a document after a successful ingest. A
// new version is appended only when the content hash changed.
func (r *DocumentRegistry) Record(filename, fingerprint, mimeType string, size int64, chunkCount int, cls models.DocClassification) *models.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	doc, ok := r.documents[filename]
	if !ok {
		doc = &models.Document{
			Filename:  filename,
			CreatedAt: now,
		}
		r.documents[filename] = doc
	}

	doc.Fingerprint = fingerprint
	doc.SizeBytes = size
	doc.MIMEType = mimeType
	doc.Domain = cls.Domain
	doc.DocType = cls.Type
	doc.Title = cls.Title
	doc.ChunkCount = chunkCount
	doc.UpdatedAt = now

	if len(doc.Versions) == 0 || doc.Versions[len(doc.Versions)-1].Hash != fingerprint {
		doc.Versions = append(doc.Versions, models.DocumentVersion{
			Hash:       fingerprint,
			SizeBytes:  size,
			ChunkCount: chunkCount,
			IngestedAt: now,
		})
	}

	r.persist()
	return doc
}

// Get returns a copy of one document's metadata.
func (r *DocumentRegistry) Get(filename string) (*models.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.documents[filename]
	if !ok {
		return nil, false
	}
	cp := *doc
	return &cp, true
}

// List returns all registered documents sorted by filename.
func (r *DocumentRegistry) List() []models.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Document, 0, len(r.documents))
	for _, d := range r.documents {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// Delete removes a document, its annotations and every relationship
// incident to it.
func (r *DocumentRegistry) Delete(filename string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[filename]
	if !ok {
		return false
	}
	delete(r.documents, filename)
	delete(r.annotations, filename)

	for _, relID := range doc.RelationshipIDs {
		rel, ok := r.relationships[relID]
		if !ok {
			continue
		}
		other := rel.SourceID
		if other == filename {
			other = rel.TargetID
		}
		if otherDoc, ok := r.documents[other]; ok {
			otherDoc.RelationshipIDs = removeString(otherDoc.RelationshipIDs, relID)
		}
		delete(r.relationships, relID)
	}

	r.persist()
	return true
}

// Clear drops the whole registry. Used by knowledge-base reset.
func (r *DocumentRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = make(map[string]*models.Document)
	r.relationships = make(map[string]*models.DocumentRelationship)
	r.annotations = make(map[string][]models.DocumentAnnotation)
	r.persist()
}

// Link records a relationship between two documents and registers it on
// both sides of the adjacency list.
func (r *DocumentRegistry) Link(sourceFile, targetFile, kind string) (*models.DocumentRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.documents[sourceFile]
	if !ok {
		return nil, fmt.Errorf("document %s not found", sourceFile)
	}
	dst, ok := r.documents[targetFile]
	if !ok {
		return nil, fmt.Errorf("document %s not found", targetFile)
	}

	rel := &models.DocumentRelationship{
		ID:        uuid.NewString(),
		SourceID:  sourceFile,
		TargetID:  targetFile,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	r.relationships[rel.ID] = rel
	src.RelationshipIDs = append(src.RelationshipIDs, rel.ID)
	dst.RelationshipIDs = append(dst.RelationshipIDs, rel.ID)

	r.persist()
	return rel, nil
}

// Relationships returns the relationships incident to one document.
func (r *DocumentRegistry) Relationships(filename string) []models.DocumentRelationship {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.documents[filename]
	if !ok {
		return nil
	}
	out := make([]models.DocumentRelationship, 0, len(doc.RelationshipIDs))
	for _, id := range doc.RelationshipIDs {
		if rel, ok := r.relationships[id]; ok {
			out = append(out, *rel)
		}
	}
	return out
}

// Annotate attaches a note to a document.
func (r *DocumentRegistry) Annotate(filename, text, author string) (*models.DocumentAnnotation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[filename]; !ok {
		return nil, fmt.Errorf("document %s not found", filename)
	}
	ann := models.DocumentAnnotation{
		ID:         uuid.NewString(),
		DocumentID: filename,
		Text:       text,
		Author:     author,
		CreatedAt:  time.Now().UTC(),
	}
	r.annotations[filename] = append(r.annotations[filename], ann)
	r.persist()
	return &ann, nil
}

// Annotations returns the notes attached to one document.
func (r *DocumentRegistry) Annotations(filename string) []models.DocumentAnnotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.DocumentAnnotation(nil), r.annotations[filename]...)
}

// persist writes the bson snapshot. Callers hold the lock.
func (r *DocumentRegistry) persist() {
	snap := registrySnapshot{
		Documents:     r.documents,
		Relationships: r.relationships,
		Annotations:   r.annotations,
		SavedAt:       time.Now().UTC(),
	}
	data, err := bson.Marshal(snap)
	if err != nil {
		logger.Error("marshaling registry snapshot failed", "error", err)
		return
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Error("writing registry snapshot failed", "error", err)
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		logger.Error("replacing registry snapshot failed", "error", err)
	}
}

func (r *DocumentRegistry) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("reading registry snapshot failed", "error", err)
		}
		return
	}
	var snap registrySnapshot
	if err := bson.Unmarshal(data, &snap); err != nil {
		logger.Warn("unmarshaling registry snapshot failed, starting empty", "error", err)
		return
	}
	if snap.Documents != nil {
		r.documents = snap.Documents
	}
	if snap.Relationships != nil {
		r.relationships = snap.Relationships
	}
	if snap.Annotations != nil {
		r.annotations = snap.Annotations
	}
	logger.Info("document registry restored", "documents", len(r.documents))
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
