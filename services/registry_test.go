package services

import (
	"testing"

	"rag-chatbot-backend/models"
)

func testRegistry(t *testing.T) *DocumentRegistry {
	t.Helper()
	r, err := NewDocumentRegistry(t.TempDir())
	if err != nil {
		t.Fatalf("NewDocumentRegistry: %v", err)
	}
	return r
}

func lawClass() models.DocClassification {
	return models.DocClassification{Domain: "law", Title: "Companies Act", Type: "statute"}
}

func TestRegistryRecordAndGet(t *testing.T) {
	r := testRegistry(t)
	r.Record("act.pdf", "hash-1", "application/pdf", 1024, 12, lawClass())

	doc, ok := r.Get("act.pdf")
	if !ok {
		t.Fatal("document not found after record")
	}
	if doc.Domain != "law" || doc.ChunkCount != 12 {
		t.Fatalf("doc = %+v", doc)
	}
	if len(doc.Versions) != 1 {
		t.Fatalf("versions = %d, want 1", len(doc.Versions))
	}
}

func TestRegistryVersionsAppendOnHashChange(t *testing.T) {
	r := testRegistry(t)
	r.Record("act.pdf", "hash-1", "", 1, 1, lawClass())
	r.Record("act.pdf", "hash-1", "", 1, 1, lawClass()) // same content
	r.Record("act.pdf", "hash-2", "", 2, 2, lawClass()) // changed

	doc, _ := r.Get("act.pdf")
	if len(doc.Versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(doc.Versions))
	}
	if doc.Versions[1].Hash != "hash-2" {
		t.Fatalf("latest version hash = %s", doc.Versions[1].Hash)
	}
}

func TestRegistryDeleteCascadesRelationships(t *testing.T) {
	r := testRegistry(t)
	r.Record("a.pdf", "h1", "", 1, 1, lawClass())
	r.Record("b.pdf", "h2", "", 1, 1, lawClass())

	if _, err := r.Link("a.pdf", "b.pdf", "references"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(r.Relationships("b.pdf")) != 1 {
		t.Fatal("relationship missing on target side")
	}

	if !r.Delete("a.pdf") {
		t.Fatal("delete returned false")
	}
	if len(r.Relationships("b.pdf")) != 0 {
		t.Fatal("relationship not cascaded on delete")
	}
}

func TestRegistryAnnotations(t *testing.T) {
	r := testRegistry(t)
	r.Record("a.pdf", "h1", "", 1, 1, lawClass())

	if _, err := r.Annotate("missing.pdf", "note", "me"); err == nil {
		t.Fatal("annotating a missing document must fail")
	}
	if _, err := r.Annotate("a.pdf", "check section 4", "reviewer"); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	anns := r.Annotations("a.pdf")
	if len(anns) != 1 || anns[0].Text != "check section 4" {
		t.Fatalf("annotations = %+v", anns)
	}
}

func TestRegistryPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	r, err := NewDocumentRegistry(dir)
	if err != nil {
		t.Fatalf("NewDocumentRegistry: %v", err)
	}
	r.Record("a.pdf", "h1", "", 1, 3, lawClass())

	r2, err := NewDocumentRegistry(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	doc, ok := r2.Get("a.pdf")
	if !ok {
		t.Fatal("document lost across reload")
	}
	if doc.ChunkCount != 3 {
		t.Fatalf("ChunkCount = %d", doc.ChunkCount)
	}
}

func TestRegistryClear(t *testing.T) {
	r := testRegistry(t)
	r.Record("a.pdf", "h1", "", 1, 1, lawClass())
	r.Clear()
	if len(r.List()) != 0 {
		t.Fatal("registry not empty after clear")
	}
}
