package services

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

const overFetchCap = 15

// inlineFilterRe matches "domain:law" / "filename:report.pdf" tokens that
// callers may embed directly in the question.
var inlineFilterRe = regexp.MustCompile(`(?i)\b(domain|filename):(\S+)`)

// ParseInlineFilters strips inline filter tokens out of a question and
// returns the cleaned question plus the parsed filters.
func ParseInlineFilters(question string) (string, map[string]string) {
	filters := make(map[string]string)
	cleaned := inlineFilterRe.ReplaceAllStringFunc(question, func(m string) string {
		parts := inlineFilterRe.FindStringSubmatch(m)
		filters[strings.ToLower(parts[1])] = parts[2]
		return ""
	})
	return strings.TrimSpace(strings.Join(strings.Fields(cleaned), " ")), filters
}

// Retriever runs the hybrid retrieval pipeline: filtered over-fetch,
// similarity adjustment, lexical fusion and optional cross-encoder rerank.
type Retriever struct {
	index    *VectorIndex
	reranker *RerankerClient

	minSimilarity float64
	domainBoost   float64
	vectorWeight  float64
	lexicalWeight float64
}

func NewRetriever(cfg *config.Config, index *VectorIndex, reranker *RerankerClient) *Retriever {
	return &Retriever{
		index:         index,
		reranker:      reranker,
		minSimilarity: cfg.MinSimilarity,
		domainBoost:   cfg.DomainBoost,
		vectorWeight:  cfg.VectorWeight,
		lexicalWeight: cfg.LexicalWeight,
	}
}

// RetrieveOptions narrows one retrieval run.
type RetrieveOptions struct {
	NResults     int
	TargetDomain string
	Filename     string
	Expand       int
}

// Retrieve returns the scored candidate list, ordered best first. The list
// still contains fuzzy duplicates; the deduper owns final selection.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts RetrieveOptions) ([]models.ScoredChunk, error) {
	n := opts.NResults
	if n <= 0 {
		n = 5
	}

	// Step 1: over-fetch with filters.
	fetch := n * 3
	if fetch > overFetchCap {
		fetch = overFetchCap
	}
	where := map[string]any{}
	if opts.Filename != "" {
		where["filename"] = opts.Filename
	}
	if opts.TargetDomain != "" && opts.TargetDomain != "general" {
		where["domain"] = opts.TargetDomain
	}
	if len(where) == 0 {
		where = nil
	}

	candidates, err := r.index.Query(ctx, question, fetch, where)
	if err != nil {
		return nil, err
	}

	// Step 2: similarity adjustment and floor.
	kept := candidates[:0]
	for _, c := range candidates {
		c.Similarity = 1 - c.Distance
		if opts.TargetDomain != "" && opts.TargetDomain != "general" && c.Chunk.Domain == opts.TargetDomain {
			c.Similarity += r.domainBoost
		}
		if c.Similarity < r.minSimilarity {
			continue
		}
		kept = append(kept, c)
	}
	candidates = kept

	// Step 3: sparse fusion when enough candidates remain.
	if len(candidates) >= 4 {
		queryWords := utils.WordSet(question)
		for i := range candidates {
			candidates[i].Lexical = lexicalOverlap(queryWords, candidates[i].Chunk.Text)
			candidates[i].Hybrid = r.vectorWeight*candidates[i].Similarity + r.lexicalWeight*candidates[i].Lexical
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Hybrid > candidates[j].Hybrid
		})
		if len(candidates) > 2*n {
			candidates = candidates[:2*n]
		}
	} else {
		for i := range candidates {
			candidates[i].Hybrid = candidates[i].Similarity
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Hybrid > candidates[j].Hybrid
		})
	}

	// Step 4: cross-encoder rerank, degrading gracefully.
	if r.reranker != nil && len(candidates) > 1 {
		passages := make([]string, len(candidates))
		for i, c := range candidates {
			passages[i] = c.Chunk.Text
		}
		scores, err := r.reranker.Score(ctx, question, passages)
		if err != nil {
			logger.Warn("cross-encoder rerank degraded to hybrid ordering", "error", err)
		} else {
			for i := range candidates {
				candidates[i].Rerank = scores[i]
			}
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidates[i].Rerank > candidates[j].Rerank
			})
		}
	}

	// Optional neighbor expansion.
	if opts.Expand > 0 {
		candidates = r.expandNeighbors(ctx, candidates, opts.Expand)
	}

	return candidates, nil
}

// expandNeighbors pulls adjacent chunks of the top candidates into the
// list with a slightly discounted similarity.
func (r *Retriever) expandNeighbors(ctx context.Context, candidates []models.ScoredChunk, span int) []models.ScoredChunk {
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		seen[c.Chunk.ID()] = struct{}{}
	}
	for _, c := range candidates {
		neighbors, err := r.index.NeighborChunks(ctx, c.Chunk.Filename, c.Chunk.ChunkIndex, span)
		if err != nil {
			logger.Warn("neighbor expansion failed", "filename", c.Chunk.Filename, "error", err)
			continue
		}
		for _, nb := range neighbors {
			if _, ok := seen[nb.ID()]; ok {
				continue
			}
			seen[nb.ID()] = struct{}{}
			candidates = append(candidates, models.ScoredChunk{
				Chunk:      nb,
				Similarity: c.Similarity * 0.9,
				Hybrid:     c.Hybrid * 0.9,
			})
		}
	}
	return candidates
}

// lexicalOverlap is |query_words ∩ chunk_words| / max(|query_words|, 1).
func lexicalOverlap(queryWords map[string]struct{}, chunkText string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	chunkWords := utils.WordSet(chunkText)
	inter := 0
	for w := range queryWords {
		if _, ok := chunkWords[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(queryWords))
}
