package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker wrapping a RelationalStore's
// read path. Zero values fall back to sensible defaults.
type BreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 5
	}
	if c.Interval == 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.5
	}
	return c
}

// BreakerStore wraps a RelationalStore's read-path calls in a circuit
// breaker, so repeated storage errors short-circuit instead of retrying
// every call against a database that's already failing (spec §7: "storage
// error during read falls back to vector-only" — the breaker is what
// makes that fallback cheap under sustained failure rather than eating a
// fresh timeout per search). Writes pass through untouched: a write
// failure is fatal to its own call per §7 regardless of breaker state.
type BreakerStore struct {
	RelationalStore
	cb *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps rs's read path with a circuit breaker.
func NewBreakerStore(rs RelationalStore, cfg BreakerConfig) *BreakerStore {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        "relational-store-reads",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}
	return &BreakerStore{RelationalStore: rs, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerStore) GetEntity(ctx context.Context, id string, asOf time.Time) (*Entity, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.RelationalStore.GetEntity(ctx, id, asOf)
	})
	if err != nil {
		return nil, breakerErr("get entity", err)
	}
	e, _ := v.(*Entity)
	return e, nil
}

func (b *BreakerStore) GetObservationsByEntity(ctx context.Context, entityID string, asOf time.Time) ([]*Observation, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.RelationalStore.GetObservationsByEntity(ctx, entityID, asOf)
	})
	if err != nil {
		return nil, breakerErr("get observations", err)
	}
	obs, _ := v.([]*Observation)
	return obs, nil
}

func (b *BreakerStore) GetRelationshipsFrom(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.RelationalStore.GetRelationshipsFrom(ctx, entityID, asOf)
	})
	if err != nil {
		return nil, breakerErr("get relationships from", err)
	}
	rels, _ := v.([]*Relationship)
	return rels, nil
}

func (b *BreakerStore) GetRelationshipsTo(ctx context.Context, entityID string, asOf time.Time) ([]*Relationship, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.RelationalStore.GetRelationshipsTo(ctx, entityID, asOf)
	})
	if err != nil {
		return nil, breakerErr("get relationships to", err)
	}
	rels, _ := v.([]*Relationship)
	return rels, nil
}

// breakerErr wraps gobreaker's own sentinel errors (ErrOpenState,
// ErrTooManyRequests) and passthrough errors from the wrapped call in a
// single error path that callers already treat as an ordinary storage
// failure.
func breakerErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
