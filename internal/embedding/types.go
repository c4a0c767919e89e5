// Package embedding turns text into L2-normalised vectors: tokenizer (via
// the configured provider) -> inference -> mean-pool -> normalise, behind a
// serialised request queue and a TTL-bounded LRU cache.
package embedding

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultDimensions is the embedding dimension used when a provider
	// does not report one explicitly.
	DefaultDimensions = 1024

	// DefaultBatchSize is the default number of texts embedded per call.
	DefaultBatchSize = 32

	// MaxBatchSize is an upper bound for batch sizes; the providers in this
	// package do not enforce it.
	MaxBatchSize = 256

	// DefaultCacheSize is the LRU cache's entry cap (keyed by raw input text).
	DefaultCacheSize = 1000

	// DefaultCacheTTL is how long a cached embedding stays valid.
	DefaultCacheTTL = time.Hour

	// DefaultTimeout bounds a single inference call.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts against a
	// remote provider.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text. On inference failure
// Embed/EmbedBatch return an error and no zero-vector substitute; each
// caller decides how to degrade (the façade's add_observation stores a zero
// vector, while hybrid search and multi-hop return the error).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is fixed after the first successful load; a store seeded
	// with a different dimension is rejected (see store.ErrDimensionMismatch).
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector L2-normalises v in a fresh slice, leaving a zero vector
// as-is (the fail-soft marker for a failed inference).
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
