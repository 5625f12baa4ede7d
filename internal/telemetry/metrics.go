package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter  metric.Int64Counter
	RequestDuration metric.Float64Histogram
	IngestCounter   metric.Int64Counter
	IngestDuration  metric.Float64Histogram
	ChunksIndexed   metric.Int64Counter
	QueryCounter    metric.Int64Counter
	QueryDuration   metric.Float64Histogram
	TokensStreamed  metric.Int64Counter
	CacheHits       metric.Int64Counter
}

var (
	initOnce sync.Once
	global   *Metrics
)

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("rag-chatbot-backend")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestCounter, err := meter.Int64Counter(
		"ingest.documents.total",
		metric.WithDescription("Total documents ingested"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("Document ingest duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"ingest.chunks.total",
		metric.WithDescription("Total chunks indexed"),
	)
	if err != nil {
		return nil, err
	}

	queryCounter, err := meter.Int64Counter(
		"query.requests.total",
		metric.WithDescription("Total retrieval queries"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"query.duration",
		metric.WithDescription("Query pipeline duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensStreamed, err := meter.Int64Counter(
		"llm.tokens.streamed",
		metric.WithDescription("Total token frames forwarded to clients"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"cache.hits.total",
		metric.WithDescription("Cache hits by cache name"),
	)
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		IngestCounter:   ingestCounter,
		IngestDuration:  ingestDuration,
		ChunksIndexed:   chunksIndexed,
		QueryCounter:    queryCounter,
		QueryDuration:   queryDuration,
		TokensStreamed:  tokensStreamed,
		CacheHits:       cacheHits,
	}
	initOnce.Do(func() { global = m })
	return m, nil
}

// RecordHTTPRequest records one completed HTTP request. Safe to call
// before InitMetrics; it is then a no-op.
func RecordHTTPRequest(ctx context.Context, path string, status int, elapsed time.Duration) {
	if global == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.path", path),
		attribute.Int("http.status", status),
	)
	global.RequestCounter.Add(ctx, 1, attrs)
	global.RequestDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordIngest records one completed document ingest. Safe to call before
// InitMetrics; it is then a no-op.
func RecordIngest(ctx context.Context, chunks int, elapsed time.Duration) {
	if global == nil {
		return
	}
	global.IngestCounter.Add(ctx, 1)
	global.ChunksIndexed.Add(ctx, int64(chunks))
	global.IngestDuration.Record(ctx, elapsed.Seconds())
}

// RecordQuery records one retrieval query.
func RecordQuery(ctx context.Context, domain string, elapsed time.Duration) {
	if global == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("query.domain", domain))
	global.QueryCounter.Add(ctx, 1, attrs)
	global.QueryDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordTokens counts token frames forwarded to a client.
func RecordTokens(ctx context.Context, n int64) {
	if global == nil {
		return
	}
	global.TokensStreamed.Add(ctx, n)
}

// RecordCacheHit counts a hit on the named cache.
func RecordCacheHit(ctx context.Context, cache string) {
	if global == nil {
		return
	}
	global.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.name", cache)))
}
