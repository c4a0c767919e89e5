// Package store provides the persistence layer for the memory core: a
// bi-temporal relational store (SQLite), a vector index (HNSW) over entity
// and observation embeddings, and a full-text index (Bleve) over their
// text content.
package store

import (
	"context"
	"fmt"
	"time"
)

// Validity tracks the bi-temporal window during which a fact is considered
// asserted. AssertedAt is when the fact entered the store; RetractedAt is
// when it was superseded or withdrawn (zero value while still current).
// Assertive distinguishes a positive assertion from a retraction record.
type Validity struct {
	AssertedAt  time.Time
	RetractedAt time.Time
	Assertive   bool
}

// Current reports whether the validity window covers asOf.
func (v Validity) Current(asOf time.Time) bool {
	if !v.Assertive {
		return false
	}
	if v.AssertedAt.After(asOf) {
		return false
	}
	if !v.RetractedAt.IsZero() && !v.RetractedAt.After(asOf) {
		return false
	}
	return true
}

// Entity is a named thing the memory tracks: a person, project, concept,
// or any other addressable node in the graph.
type Entity struct {
	ID       string
	Name     string
	Category string // broad grouping, e.g. "person", "project"
	Kind     string // finer-grained type within a category
	Metadata map[string]string
	Validity Validity
}

// Observation is a timestamped fact recorded against an entity.
type Observation struct {
	ID        string
	EntityID  string
	Text      string
	Embedding []float32
	SessionID string
	TaskID    string
	Validity  Validity
}

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID           string
	FromID       string
	ToID         string
	RelationType string
	Strength     float64 // 0.0-1.0
	Confidence   float64 // 0.0-1.0, lower for derived/logical edges
	Metadata     map[string]string
	Validity     Validity
}

// EntityRank holds the last computed pagerank-style importance score for
// an entity. Absent rank defaults to 0.
type EntityRank struct {
	EntityID string
	Score    float64
	UpdatedAt time.Time
}

// RelationalStore persists entities, observations, relationships, and the
// narrow query surface that stands in for an embedded Datalog engine
// (see DESIGN.md Open Question (a)).
type RelationalStore interface {
	SaveEntity(ctx context.Context, e *Entity) error
	GetEntity(ctx context.Context, id string, asOf time.Time) (*Entity, error)
	RetractEntity(ctx context.Context, id string, at time.Time) error
	ListEntities(ctx context.Context, asOf time.Time, limit int) ([]*Entity, error)

	SaveObservation(ctx context.Context, o *Observation) error
	GetObservationsByEntity(ctx context.Context, entityID string, asOf time.Time) ([]*Observation, error)
	RetractObservation(ctx context.Context, id string, at time.Time) error

	SaveRelationship(ctx context.Context, r *Relationship) error
	GetRelationship(ctx context.Context, id string) (*Relationship, error)
	GetRelationshipsFrom(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error)
	GetRelationshipsTo(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error)
	RetractRelationship(ctx context.Context, id string, at time.Time) error

	// Run executes a named, parameterised query against the relational
	// store. It stands in for the spec's embedded Datalog engine: each
	// program name maps to a fixed prepared statement rather than an
	// arbitrary rule set (see DESIGN.md Open Question (a)).
	Run(ctx context.Context, program string, params map[string]any) ([]map[string]any, error)

	// WithTx runs fn against a transaction-scoped BatchWriter: every write
	// fn makes commits together when fn returns nil, or none do when fn
	// returns an error (§4.1's "batches several writes and rolls back on
	// any failure").
	WithTx(ctx context.Context, fn func(ctx context.Context, tx BatchWriter) error) error

	SaveEntityRank(ctx context.Context, ranks []*EntityRank) error
	GetEntityRank(ctx context.Context, entityID string) (float64, error)

	// Retrieval cache persistence (§4.4 second tier).
	GetCachedResult(ctx context.Context, fingerprint string) ([]byte, bool, error)
	PutCachedResult(ctx context.Context, fingerprint string, payload []byte, expiresAt time.Time) error
	EvictExpiredCacheEntries(ctx context.Context, asOf time.Time) (int, error)

	// Adaptive strategy statistics persistence (§4.8).
	SaveStrategyStats(ctx context.Context, strategy string, stats StrategyStats) error
	LoadStrategyStats(ctx context.Context) (map[string]StrategyStats, error)

	Close() error
}

// BatchWriter exposes the write subset of RelationalStore bound to a
// single transaction, passed to the function given to WithTx.
type BatchWriter interface {
	SaveEntity(ctx context.Context, e *Entity) error
	GetEntity(ctx context.Context, id string, asOf time.Time) (*Entity, error)
	RetractEntity(ctx context.Context, id string, at time.Time) error

	SaveObservation(ctx context.Context, o *Observation) error
	GetObservationsByEntity(ctx context.Context, entityID string, asOf time.Time) ([]*Observation, error)
	RetractObservation(ctx context.Context, id string, at time.Time) error

	SaveRelationship(ctx context.Context, r *Relationship) error
	GetRelationshipsFrom(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error)
	GetRelationshipsTo(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error)
	RetractRelationship(ctx context.Context, id string, at time.Time) error
}

// StrategyStats accumulates reward and cost history for one retrieval
// strategy, seeding the adaptive selector's running averages on startup.
type StrategyStats struct {
	Strategy    string
	Attempts    int64
	RewardTotal float64
	RewardMean  float64
	CostTotal   float64
	LastUsedAt  time.Time
}

// Document is a unit of text to be indexed for full-text search. ID is the
// entity or observation ID it belongs to.
type Document struct {
	ID      string
	Content string
}

// BM25Result is a single full-text search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats describes a full-text index.
type IndexStats struct {
	DocumentCount int
}

// FullTextIndex provides BM25-scored keyword search over entity names and
// observation text.
type FullTextIndex interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Close() error
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	ID       string
	Distance float32 // lower is more similar
	Score    float32 // normalised similarity, 0-1
}

// VectorStoreConfig configures the HNSW index geometry.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible defaults for the given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 200,
		EfSearch:       64,
	}
}

// VectorStore provides approximate nearest-neighbour search over entity and
// observation embeddings.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Get(id string) ([]float32, bool)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Contains(id string) bool
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch is returned when a vector's length doesn't match the
// dimension contract fixed at the store's first successful load.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
