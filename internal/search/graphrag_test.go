package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/agentmem/internal/store"
)

func seedRelationship(t *testing.T, rs *store.SQLiteStore, id, fromID, toID, relType string, strength float64, asOf time.Time) {
	t.Helper()
	require.NoError(t, rs.SaveRelationship(context.Background(), &store.Relationship{
		ID: id, FromID: fromID, ToID: toID, RelationType: relType,
		Strength: strength, Confidence: 1.0,
		Validity: store.Validity{AssertedAt: asOf, Assertive: true},
	}))
}

func TestGraphRAG_ExpandsAlongRelationships(t *testing.T) {
	p, rs := newTestPipeline(t)
	now := time.Now()

	seedEntity(t, p, rs, "seed", "Payments Service", "project", "payments service owns the checkout flow", now)
	seedEntity(t, p, rs, "hop1", "Checkout Flow", "concept", "unrelated filler content about gardening", now)
	seedEntity(t, p, rs, "hop2", "Gardening Notes", "note", "more unrelated filler content", now)

	seedRelationship(t, rs, "r1", "seed", "hop1", "owns", 0.9, now)
	seedRelationship(t, rs, "r2", "hop1", "hop2", "relates_to", 0.5, now)

	results, err := p.GraphRAG(context.Background(), Options{Query: "payments service", Limit: 10, Graph: GraphConstraints{MaxDepth: 2}})
	require.NoError(t, err)

	ids := make(map[string]bool, len(results))
	for _, r := range results {
		ids[r.EntityID] = true
	}
	assert.True(t, ids["seed"])
	assert.True(t, ids["hop1"])
	assert.True(t, ids["hop2"])
}

func TestGraphRAG_RequiredRelationsFiltersTraversal(t *testing.T) {
	p, rs := newTestPipeline(t)
	now := time.Now()

	seedEntity(t, p, rs, "seed", "Payments Service", "project", "payments service owns the checkout flow", now)
	seedEntity(t, p, rs, "hop1", "Checkout Flow", "concept", "unrelated filler content about gardening", now)

	seedRelationship(t, rs, "r1", "seed", "hop1", "mentions", 0.9, now)

	results, err := p.GraphRAG(context.Background(), Options{
		Query: "payments service", Limit: 10,
		Graph: GraphConstraints{MaxDepth: 2, RequiredRelations: []string{"owns"}},
	})
	require.NoError(t, err)

	for _, r := range results {
		assert.NotEqual(t, "hop1", r.EntityID)
	}
}

func TestGraphRAG_TargetIDsRestrictsResults(t *testing.T) {
	p, rs := newTestPipeline(t)
	now := time.Now()

	seedEntity(t, p, rs, "seed", "Payments Service", "project", "payments service owns the checkout flow", now)
	seedEntity(t, p, rs, "hop1", "Checkout Flow", "concept", "checkout flow detail", now)
	seedRelationship(t, rs, "r1", "seed", "hop1", "owns", 0.9, now)

	results, err := p.GraphRAG(context.Background(), Options{
		Query: "payments service", Limit: 10,
		Graph: GraphConstraints{MaxDepth: 2, TargetIDs: []string{"hop1"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hop1", results[0].EntityID)
}

func TestExpandFromSeed_SeedKeepsItsInitialScore(t *testing.T) {
	p, rs := newTestPipeline(t)
	now := time.Now()

	seedEntity(t, p, rs, "seed", "Root", "note", "root node content", now)
	best := map[string]float64{}
	p.expandFromSeed(context.Background(), "seed", 1.0, MaxGraphDepth, nil, best)
	_ = rs
	assert.Equal(t, 1.0, best["seed"])
}
