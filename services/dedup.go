package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

const (
	dedupEditDistance     = 10
	keyInfoOverlapCeiling = 0.9
	domainConsistencyBonus = 0.3
	qualityBonus           = 0.2
)

var (
	numberTokenRe  = regexp.MustCompile(`\d+(?:\.\d+)?`)
	formulaTokenRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]{1,9}\b`)
	alphaWordRe    = regexp.MustCompile(`[a-zA-Z]{3,}`)
)

// Deduper re-scores ranked candidates, rejects near-duplicates and builds
// the final retrieval result.
type Deduper struct {
	factPenalty float64
}

func NewDeduper(cfg *config.Config) *Deduper {
	penalty := cfg.FactConflictPenalty
	if penalty <= 0 {
		penalty = 0.5
	}
	return &Deduper{factPenalty: penalty}
}

// Select scores and deduplicates the ranked candidates, returning at most
// topK chunks sorted by final score.
func (d *Deduper) Select(candidates []models.ScoredChunk, topK int) models.RetrievalResult {
	if topK <= 0 {
		topK = 5
	}

	// domain consistency: distinct domains across chunks with identical text
	domainsByText := make(map[string]map[string]struct{})
	for _, c := range candidates {
		set, ok := domainsByText[c.Chunk.Text]
		if !ok {
			set = make(map[string]struct{})
			domainsByText[c.Chunk.Text] = set
		}
		set[c.Chunk.Domain] = struct{}{}
	}

	numbers := make([][]string, len(candidates))
	for i, c := range candidates {
		numbers[i] = firstNumbers(c.Chunk.Text, 3)
	}

	for i := range candidates {
		c := &candidates[i]

		score := c.Similarity
		domainBonus := 0.0
		if len(domainsByText[c.Chunk.Text]) == 1 {
			domainBonus = domainConsistencyBonus
		}
		score += domainBonus

		lengthScore := float64(len(c.Chunk.Text)) / 1000
		if lengthScore > 1 {
			lengthScore = 1
		}
		score += 0.1 * lengthScore

		if len(strings.TrimSpace(c.Chunk.Text)) > 50 {
			score += qualityBonus
		}

		// conflicting-neighbor penalty on shared leading numbers
		for j := range candidates {
			if j == i {
				continue
			}
			if sharesNumber(numbers[i], numbers[j]) {
				score -= d.factPenalty
			}
		}

		c.Final = score
		c.Confidence = c.Similarity + domainBonus
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		c.Attribution = buildAttribution(c.Chunk)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Final > candidates[j].Final
	})

	var accepted []models.ScoredChunk
	for _, c := range candidates {
		if len(accepted) >= topK {
			break
		}
		if isDuplicate(c, accepted) {
			continue
		}
		accepted = append(accepted, c)
	}
	return models.RetrievalResult{Chunks: accepted}
}

func isDuplicate(c models.ScoredChunk, accepted []models.ScoredChunk) bool {
	for _, a := range accepted {
		if c.Chunk.Text == a.Chunk.Text {
			return true
		}
		if editDistanceBelow(c.Chunk.Text, a.Chunk.Text, dedupEditDistance) {
			return true
		}
		if keyInfoJaccard(c.Chunk.Text, a.Chunk.Text) > keyInfoOverlapCeiling {
			return true
		}
	}
	return false
}

func editDistanceBelow(a, b string, maxDist int) bool {
	// cheap length screen before the DP
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff >= maxDist {
		return false
	}
	return utils.EditDistance(a, b, maxDist) < maxDist
}

// keyInfoSet extracts the identifying tokens of a chunk: its numbers,
// formula-like uppercase-led tokens and the first 10 alphabetic words of
// length >= 3.
func keyInfoSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, n := range numberTokenRe.FindAllString(text, -1) {
		set["n:"+n] = struct{}{}
	}
	for _, f := range formulaTokenRe.FindAllString(text, -1) {
		set["f:"+f] = struct{}{}
	}
	words := alphaWordRe.FindAllString(text, 10)
	for _, w := range words {
		set["w:"+strings.ToLower(w)] = struct{}{}
	}
	return set
}

func keyInfoJaccard(a, b string) float64 {
	sa, sb := keyInfoSet(a), keyInfoSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for k := range sa {
		if _, ok := sb[k]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func firstNumbers(text string, n int) []string {
	return numberTokenRe.FindAllString(text, n)
}

func sharesNumber(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// buildAttribution renders the client-visible source tag from title, page
// and section.
func buildAttribution(c models.Chunk) string {
	title := c.Title
	if title == "" {
		title = c.Filename
	}
	var parts []string
	parts = append(parts, title)
	if c.PageNumber > 0 {
		parts = append(parts, fmt.Sprintf("p. %d", c.PageNumber))
	}
	if c.SectionType != "" && c.SectionNumber != "" {
		parts = append(parts, fmt.Sprintf("%s %s", c.SectionType, c.SectionNumber))
	}
	return strings.Join(parts, ", ")
}
