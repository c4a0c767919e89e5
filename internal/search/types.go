// Package search implements the memory core's hybrid retrieval pipeline:
// dense-vector similarity, lexical matching, graph-constrained traversal,
// and their fusion, decay, and context-boost post-processing (spec §4.5),
// plus the graph-RAG (§4.6) and multi-hop Retrieve-Reason-Prune (§4.7)
// strategies the adaptive selector can choose between.
package search

import (
	"github.com/aman-cerp/agentmem/internal/store"
)

// Weights controls how much each retrieval signal contributes to the fused
// score. BM25 + Semantic + Graph should sum to 1.0.
type Weights struct {
	BM25     float64
	Semantic float64
	Graph    float64
}

// DefaultWeights matches config.NewConfig's search section.
func DefaultWeights() Weights {
	return Weights{BM25: 0.4, Semantic: 0.4, Graph: 0.2}
}

// VectorParams carries the caller's HNSW tuning knobs for one query.
type VectorParams struct {
	EfSearch int
	Radius   float64 // 0 disables radius filtering
}

// GraphConstraints narrows graph-RAG / multi-hop traversal.
type GraphConstraints struct {
	MaxDepth          int
	RequiredRelations []string
	TargetIDs         []string
}

// Options is a single search request, already translated from the facade's
// runtime option map into a typed struct (spec §9 design note).
type Options struct {
	Query          string
	Limit          int
	Kinds          []string
	Metadata       map[string]string
	TimeRangeHours int
	Rerank         bool
	SessionID      string
	TaskID         string
	Vector         VectorParams
	Graph          GraphConstraints
}

// Result is one ranked candidate returned to the caller.
type Result struct {
	EntityID    string
	Score       float64
	Explanation []string
}

// DefaultLimit is used when Options.Limit is unset.
const DefaultLimit = 10

// candidate is the pipeline's internal working representation of a scored
// entity before its final Result is emitted.
type candidate struct {
	entity      *store.Entity
	score       float64
	explanation []string
}

func (o Options) limitOrDefault() int {
	if o.Limit > 0 {
		return o.Limit
	}
	return DefaultLimit
}

// LimitOrDefault exposes limitOrDefault to callers outside the package
// (the façade needs it to size non-Options-based retrieval calls like
// agentic_retrieve's vector-only and semantic-walk strategies).
func (o Options) LimitOrDefault() int {
	return o.limitOrDefault()
}

func (o Options) matchesKind(e *store.Entity) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, k := range o.Kinds {
		if k == e.Kind {
			return true
		}
	}
	return false
}

func (o Options) matchesMetadata(e *store.Entity) bool {
	for k, v := range o.Metadata {
		if e.Metadata[k] != v {
			return false
		}
	}
	return true
}
