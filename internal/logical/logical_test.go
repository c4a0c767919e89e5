package logical

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/agentmem/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func saveEntity(t *testing.T, rs *store.SQLiteStore, e *store.Entity, asOf time.Time) {
	t.Helper()
	e.Validity = store.Validity{AssertedAt: asOf, Assertive: true}
	require.NoError(t, rs.SaveEntity(context.Background(), e))
}

func TestDeriveCandidates_SameCategoryAndKind(t *testing.T) {
	rs := newTestStore(t)
	now := time.Now()

	saveEntity(t, rs, &store.Entity{ID: "e1", Name: "Alice", Category: "person", Kind: "employee"}, now)
	saveEntity(t, rs, &store.Entity{ID: "e2", Name: "Bob", Category: "person", Kind: "employee"}, now)
	saveEntity(t, rs, &store.Entity{ID: "e3", Name: "Roast Project", Category: "project", Kind: "initiative"}, now)

	cands, err := DeriveCandidates(context.Background(), rs, "e1", now)
	require.NoError(t, err)

	var foundCategory, foundKind bool
	for _, c := range cands {
		if c.ToID == "e2" && c.RelationType == RelationSameCategory {
			foundCategory = true
			assert.Equal(t, ConfidenceSameCategory, c.Confidence)
		}
		if c.ToID == "e2" && c.RelationType == RelationSameKind {
			foundKind = true
			assert.Equal(t, ConfidenceSameKind, c.Confidence)
		}
		assert.NotEqual(t, "e3", c.ToID)
	}
	assert.True(t, foundCategory)
	assert.True(t, foundKind)
}

func TestDeriveCandidates_HierarchicalViaParentID(t *testing.T) {
	rs := newTestStore(t)
	now := time.Now()

	saveEntity(t, rs, &store.Entity{ID: "parent", Name: "Team", Category: "team", Kind: "org"}, now)
	saveEntity(t, rs, &store.Entity{
		ID: "child", Name: "Alice", Category: "person", Kind: "employee",
		Metadata: map[string]string{ParentIDMetadataKey: "parent"},
	}, now)

	cands, err := DeriveCandidates(context.Background(), rs, "parent", now)
	require.NoError(t, err)

	var found bool
	for _, c := range cands {
		if c.ToID == "child" && c.RelationType == RelationParentOf {
			found = true
			assert.Equal(t, ConfidenceHierarchical, c.Confidence)
		}
	}
	assert.True(t, found)
}

func TestDeriveCandidates_SameDomainContextual(t *testing.T) {
	rs := newTestStore(t)
	now := time.Now()

	saveEntity(t, rs, &store.Entity{
		ID: "e1", Name: "Alice", Category: "person", Kind: "employee",
		Metadata: map[string]string{DomainMetadataKey: "payments"},
	}, now)
	saveEntity(t, rs, &store.Entity{
		ID: "e2", Name: "Checkout Service", Category: "project", Kind: "service",
		Metadata: map[string]string{DomainMetadataKey: "payments"},
	}, now)

	cands, err := DeriveCandidates(context.Background(), rs, "e1", now)
	require.NoError(t, err)

	var found bool
	for _, c := range cands {
		if c.ToID == "e2" && c.RelationType == RelationSameDomain {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDeriveCandidates_TransitiveViaOneExplicitEdge(t *testing.T) {
	rs := newTestStore(t)
	now := time.Now()
	ctx := context.Background()

	saveEntity(t, rs, &store.Entity{ID: "e1", Name: "Alice", Category: "person", Kind: "employee"}, now)
	saveEntity(t, rs, &store.Entity{ID: "e2", Name: "Payments Service", Category: "project", Kind: "service"}, now)
	saveEntity(t, rs, &store.Entity{ID: "e3", Name: "Checkout Service", Category: "project", Kind: "service"}, now)

	require.NoError(t, rs.SaveRelationship(ctx, &store.Relationship{
		ID: "r1", FromID: "e1", ToID: "e2", RelationType: "owns", Strength: 1, Confidence: 1,
		Validity: store.Validity{AssertedAt: now, Assertive: true},
	}))

	cands, err := DeriveCandidates(ctx, rs, "e1", now)
	require.NoError(t, err)

	var foundCat, foundKind bool
	for _, c := range cands {
		if c.ToID == "e3" && c.RelationType == RelationTransitiveCat {
			foundCat = true
			assert.Equal(t, ConfidenceTransitiveCat, c.Confidence)
		}
		if c.ToID == "e3" && c.RelationType == RelationTransitiveKind {
			foundKind = true
			assert.Equal(t, ConfidenceTransitiveKind, c.Confidence)
		}
	}
	assert.True(t, foundCat)
	assert.True(t, foundKind)
}

func TestDeriveCandidates_DedupKeepsHighestConfidence(t *testing.T) {
	cands := []Candidate{
		{FromID: "a", ToID: "b", RelationType: RelationSameCategory, Confidence: 0.8},
	}
	// Simulate two passes producing the same triple with different confidences.
	found := map[key]float64{}
	for _, c := range append(cands, Candidate{FromID: "a", ToID: "b", RelationType: RelationSameCategory, Confidence: 0.3}) {
		k := key{from: c.FromID, to: c.ToID, relType: c.RelationType}
		if cur, ok := found[k]; !ok || c.Confidence > cur {
			found[k] = c.Confidence
		}
	}
	assert.Equal(t, 0.8, found[key{from: "a", to: "b", relType: RelationSameCategory}])
}

func TestMaterialize_IsIdempotent(t *testing.T) {
	rs := newTestStore(t)
	now := time.Now()
	ctx := context.Background()

	saveEntity(t, rs, &store.Entity{ID: "e1", Name: "Alice", Category: "person", Kind: "employee"}, now)
	saveEntity(t, rs, &store.Entity{ID: "e2", Name: "Bob", Category: "person", Kind: "employee"}, now)

	cands := []Candidate{{FromID: "e1", ToID: "e2", RelationType: RelationSameCategory, Confidence: 0.8}}

	counter := 0
	newID := func() string { counter++; return "rel-" + strconv.Itoa(counter) }

	created, err := Materialize(ctx, rs, cands, now, newID)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	createdAgain, err := Materialize(ctx, rs, cands, now, newID)
	require.NoError(t, err)
	assert.Equal(t, 0, createdAgain)

	rels, err := rs.GetRelationshipsFrom(ctx, "e1", now)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}
