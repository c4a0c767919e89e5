// Package metrics exposes the memory core's operational counters and
// histograms through OpenTelemetry's Metrics API, bridged to a Prometheus
// exporter (see InitProvider). manage_system.metrics reports its own counts
// and does not read these instruments. Grounded on MrWong99-glyphoxa's
// internal/observe package.
package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for every metric this
// package registers.
const meterName = "github.com/aman-cerp/agentmem"

// latencyBuckets bounds search/graph-RAG/multi-hop latency histograms, in
// seconds, tuned for a local embedded-database read path rather than a
// network call.
var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds every instrument the memory core records against. All
// fields are safe for concurrent use; the underlying OTel instruments
// handle their own synchronisation.
type Metrics struct {
	// SearchDuration tracks hybrid-search request latency (§4.5).
	SearchDuration metric.Float64Histogram
	// GraphRAGDuration tracks graph-RAG traversal latency (§4.6).
	GraphRAGDuration metric.Float64Histogram
	// MultiHopDuration tracks Retrieve-Reason-Prune latency (§4.7).
	MultiHopDuration metric.Float64Histogram

	// CacheHits and CacheMisses track the retrieval cache's hit rate
	// (§4.4). Use with attribute.String("tier", "memory"|"persisted").
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// StrategySelections counts how often each adaptive-selector strategy
	// is chosen. Use with attribute.String("strategy", ...).
	StrategySelections metric.Int64Counter

	// EmbeddingQueueDepth is registered for the number of texts waiting on
	// the embedder's serialised request queue; no code in this module
	// records to it.
	EmbeddingQueueDepth metric.Int64UpDownCounter

	// EmbeddingErrors counts query-embedding failures in hybrid search; the
	// search then returns the error rather than using a zero vector.
	EmbeddingErrors metric.Int64Counter

	// ToolCalls counts façade tool-call invocations. Use with
	// attribute.String("verb", ...), attribute.String("action", ...),
	// attribute.Bool("is_error", ...).
	ToolCalls metric.Int64Counter
}

// New creates a fully initialised Metrics using mp's default meter.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.SearchDuration, err = m.Float64Histogram("agentmem.search.duration",
		metric.WithDescription("Latency of hybrid search requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GraphRAGDuration, err = m.Float64Histogram("agentmem.graph_rag.duration",
		metric.WithDescription("Latency of graph-RAG traversal requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MultiHopDuration, err = m.Float64Histogram("agentmem.multi_hop.duration",
		metric.WithDescription("Latency of Retrieve-Reason-Prune requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.CacheHits, err = m.Int64Counter("agentmem.cache.hits",
		metric.WithDescription("Retrieval cache hits, by tier."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("agentmem.cache.misses",
		metric.WithDescription("Retrieval cache misses, by tier."),
	); err != nil {
		return nil, err
	}

	if met.StrategySelections, err = m.Int64Counter("agentmem.adaptive.strategy_selections",
		metric.WithDescription("Adaptive-selector strategy choices, by strategy."),
	); err != nil {
		return nil, err
	}

	if met.EmbeddingQueueDepth, err = m.Int64UpDownCounter("agentmem.embedding.queue_depth",
		metric.WithDescription("Texts waiting on the embedder's serialised request queue."),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingErrors, err = m.Int64Counter("agentmem.embedding.errors",
		metric.WithDescription("Query-embedding failures in hybrid search."),
	); err != nil {
		return nil, err
	}

	if met.ToolCalls, err = m.Int64Counter("agentmem.facade.tool_calls",
		metric.WithDescription("Tool-call façade invocations, by verb/action/outcome."),
	); err != nil {
		return nil, err
	}

	return met, nil
}
