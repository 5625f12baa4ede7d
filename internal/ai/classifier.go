package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rag-chatbot-backend/internal/config"
	"rag-chatbot-backend/internal/logger"
	"rag-chatbot-backend/models"
	"rag-chatbot-backend/utils"
)

// jsonObjectRe pulls the first JSON object out of a model answer that may
// be wrapped in prose or code fences.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// domainKeywords backs the fallback vote when the LLM classifier fails.
var domainKeywords = map[string][]string{
	"law":         {"legal", "court", "statute", "contract", "liability", "plaintiff", "defendant", "regulation", "clause", "jurisdiction", "attorney", "lawsuit"},
	"chemistry":   {"chemical", "molecule", "reaction", "compound", "acid", "catalyst", "element", "solution", "polymer", "synthesis", "enzyme"},
	"physics":     {"quantum", "particle", "energy", "force", "velocity", "electromagnetic", "relativity", "thermodynamics", "momentum", "wavelength"},
	"religion":    {"god", "faith", "scripture", "church", "prayer", "worship", "theology", "sacred", "divine", "prophet"},
	"medicine":    {"patient", "diagnosis", "treatment", "symptom", "clinical", "disease", "therapy", "medication", "surgical", "dosage"},
	"finance":     {"investment", "portfolio", "revenue", "asset", "equity", "interest", "dividend", "liquidity", "audit", "fiscal", "loan"},
	"engineering": {"design", "structural", "mechanical", "circuit", "tolerance", "specification", "manufacturing", "load", "material", "prototype"},
	"education":   {"student", "curriculum", "teacher", "learning", "classroom", "assessment", "pedagogy", "lecture", "syllabus", "exam"},
	"government":  {"policy", "ministry", "federal", "legislation", "municipal", "agency", "public", "administration", "election", "constitution"},
	"technology":  {"software", "algorithm", "database", "network", "server", "encryption", "protocol", "interface", "deployment", "cloud"},
}

// classCache is a TTL cache over redis with an in-process fallback when no
// redis client is configured.
type classCache struct {
	rdb *redis.Client

	mu      sync.Mutex
	entries map[string]classEntry
}

type classEntry struct {
	value     string
	expiresAt time.Time
}

func newClassCache(rdb *redis.Client) *classCache {
	return &classCache{rdb: rdb, entries: make(map[string]classEntry)}
}

func (c *classCache) get(ctx context.Context, key string) (string, bool) {
	if c.rdb != nil {
		v, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			return v, true
		}
		if err != redis.Nil {
			logger.Warn("classification cache read failed", "error", err)
		}
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

func (c *classCache) set(ctx context.Context, key, value string, ttl time.Duration) {
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
			logger.Warn("classification cache write failed", "error", err)
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = classEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// QueryClassifier routes a query to a domain. LLM first, keyword vote on
// any failure; results cached by query hash.
type QueryClassifier struct {
	llm   *LLMClient
	cache *classCache
	ttl   time.Duration
}

func NewQueryClassifier(cfg *config.Config, llm *LLMClient, rdb *redis.Client) *QueryClassifier {
	return &QueryClassifier{
		llm:   llm,
		cache: newClassCache(rdb),
		ttl:   time.Duration(cfg.QueryClassTTL) * time.Second,
	}
}

func (qc *QueryClassifier) Classify(ctx context.Context, query string) models.QueryClassification {
	key := "qclass:" + utils.HashString(query)
	if cached, ok := qc.cache.get(ctx, key); ok {
		var qcl models.QueryClassification
		if err := json.Unmarshal([]byte(cached), &qcl); err == nil {
			return qcl
		}
	}

	result, err := qc.classifyLLM(ctx, query)
	if err != nil {
		logger.Debug("query classification fell back to keywords", "error", err)
		result = fallbackQueryClassification(query)
	}

	if data, err := json.Marshal(result); err == nil {
		qc.cache.set(ctx, key, string(data), qc.ttl)
	}
	return result
}

func (qc *QueryClassifier) classifyLLM(ctx context.Context, query string) (models.QueryClassification, error) {
	var out models.QueryClassification

	prompt := fmt.Sprintf(`Classify the following query. Respond with a single JSON object:
{"domain": one of %s or "general", "topic": short topic string, "confidence": 0.0-1.0, "keywords": [up to 5 keywords]}

Query: %s`, strings.Join(domainNames(), ", "), query)

	answer, err := qc.llm.Chat(ctx, []Message{
		{Role: "system", Content: "You are a precise text classifier. Reply with JSON only."},
		{Role: "user", Content: prompt},
	}, true)
	if err != nil {
		return out, utils.NewError(utils.KindClassificationFailed, "query-classifier", "llm classification failed", err)
	}

	raw := jsonObjectRe.FindString(answer)
	if raw == "" {
		return out, utils.NewError(utils.KindClassificationFailed, "query-classifier", "no JSON object in answer", nil)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, utils.NewError(utils.KindClassificationFailed, "query-classifier", "malformed JSON in answer", err)
	}
	if out.Domain == "" {
		out.Domain = "general"
	}
	return out, nil
}

// DocumentClassifier assigns a domain, title and type to a document from a
// bounded prefix of its text plus the filename.
type DocumentClassifier struct {
	llm   *LLMClient
	cache *classCache
	ttl   time.Duration
}

func NewDocumentClassifier(cfg *config.Config, llm *LLMClient, rdb *redis.Client) *DocumentClassifier {
	return &DocumentClassifier{
		llm:   llm,
		cache: newClassCache(rdb),
		ttl:   time.Duration(cfg.DocClassTTL) * time.Second,
	}
}

func (dc *DocumentClassifier) Classify(ctx context.Context, prefix, filename string) models.DocClassification {
	keySrc := utils.TruncateRunes(prefix, 500) + filename
	key := "dclass:" + utils.HashString(keySrc)
	if cached, ok := dc.cache.get(ctx, key); ok {
		var dcl models.DocClassification
		if err := json.Unmarshal([]byte(cached), &dcl); err == nil {
			return dcl
		}
	}

	result, err := dc.classifyLLM(ctx, prefix, filename)
	if err != nil {
		logger.Debug("document classification fell back to keywords", "filename", filename, "error", err)
		result = fallbackDocClassification(prefix, filename)
	}

	if data, err := json.Marshal(result); err == nil {
		dc.cache.set(ctx, key, string(data), dc.ttl)
	}
	return result
}

func (dc *DocumentClassifier) classifyLLM(ctx context.Context, prefix, filename string) (models.DocClassification, error) {
	var out models.DocClassification

	prompt := fmt.Sprintf(`Classify the following document excerpt. Respond with a single JSON object:
{"domain": one of %s or "general", "title": document title, "confidence": 0.0-1.0, "type": document type like report, manual, article, contract}

Filename: %s
Excerpt:
%s`, strings.Join(domainNames(), ", "), filename, utils.TruncateRunes(prefix, 1000))

	answer, err := dc.llm.Chat(ctx, []Message{
		{Role: "system", Content: "You are a precise text classifier. Reply with JSON only."},
		{Role: "user", Content: prompt},
	}, true)
	if err != nil {
		return out, utils.NewError(utils.KindClassificationFailed, "doc-classifier", "llm classification failed", err)
	}

	raw := jsonObjectRe.FindString(answer)
	if raw == "" {
		return out, utils.NewError(utils.KindClassificationFailed, "doc-classifier", "no JSON object in answer", nil)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, utils.NewError(utils.KindClassificationFailed, "doc-classifier", "malformed JSON in answer", err)
	}
	if out.Domain == "" {
		out.Domain = "general"
	}
	if out.Title == "" {
		out.Title = filename
	}
	return out, nil
}

// --- keyword fallback ---

func domainNames() []string {
	names := make([]string, 0, len(domainKeywords))
	for d := range domainKeywords {
		names = append(names, d)
	}
	return names
}

// voteDomain counts dictionary hits per domain over the tokenized text.
func voteDomain(text string) (string, []string, int) {
	tokens := utils.WordSet(text)

	bestDomain := "general"
	bestVotes := 0
	var bestHits []string
	for domain, words := range domainKeywords {
		votes := 0
		var hits []string
		for _, w := range words {
			if _, ok := tokens[w]; ok {
				votes++
				hits = append(hits, w)
			}
		}
		if votes > bestVotes {
			bestDomain, bestVotes, bestHits = domain, votes, hits
		}
	}
	return bestDomain, bestHits, bestVotes
}

func fallbackQueryClassification(query string) models.QueryClassification {
	domain, hits, votes := voteDomain(query)
	confidence := 0.3
	if votes > 0 {
		confidence = minFloat(0.3+0.15*float64(votes), 0.8)
	}
	if len(hits) > 5 {
		hits = hits[:5]
	}
	return models.QueryClassification{
		Domain:     domain,
		Topic:      "general",
		Confidence: confidence,
		Keywords:   hits,
	}
}

func fallbackDocClassification(prefix, filename string) models.DocClassification {
	domain, _, votes := voteDomain(prefix + " " + filename)
	confidence := 0.3
	if votes > 0 {
		confidence = minFloat(0.3+0.15*float64(votes), 0.8)
	}
	return models.DocClassification{
		Domain:     domain,
		Title:      filename,
		Confidence: confidence,
		Type:       "document",
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
