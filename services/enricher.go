package services

import (
	"context"
	"strings"
	"time"

	"rag-chatbot-backend/internal/ai"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// Enricher sanitizes chunk text, fills counts and page references, and
// attaches the document classification to every chunk.
type Enricher struct {
	classifier *ai.DocumentClassifier
}

func NewEnricher(classifier *ai.DocumentClassifier) *Enricher {
	return &Enricher{classifier: classifier}
}

// Enrich mutates the chunk slice in place and returns the document
// classification that all chunks inherit.
func (e *Enricher) Enrich(ctx context.Context, filename string, chunks []models.Chunk) models.DocClassification {
	now := time.Now().UTC()

	var cls models.DocClassification
	if len(chunks) > 0 {
		prefix := utils.TruncateRunes(chunks[0].Text, 1000)
		cls = e.classifier.Classify(ctx, prefix, filename)
	} else {
		cls = models.DocClassification{Domain: "general", Title: filename, Confidence: 0.3, Type: "document"}
	}

	for i := range chunks {
		c := &chunks[i]
		c.Text = utils.SanitizeText(c.Text)
		c.WordCount = len(strings.Fields(c.Text))
		c.CharCount = len(c.Text)
		if c.PageNumber == 0 {
			c.PageNumber = utils.ExtractPageNumber(c.Text)
		}
		c.Domain = cls.Domain
		c.Title = cls.Title
		c.DocType = cls.Type
		c.ProcessedAt = now
	}
	return cls
}
