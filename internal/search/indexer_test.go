package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/agentmem/internal/store"
)

func newTestIndexer(t *testing.T) (*Indexer, *store.SQLiteStore) {
	p, rs := newTestPipeline(t)
	return &Indexer{Embedder: p.Embedder, Relational: rs, Content: p.Content, Name: p.Name, FullText: p.FullText}, rs
}

func TestIndexer_Reindex_PopulatesAllThreeIndexes(t *testing.T) {
	ix, rs := newTestIndexer(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, rs.SaveEntity(ctx, &store.Entity{
		ID: "e1", Name: "Alice Johnson", Category: "person", Kind: "person",
		Validity: store.Validity{AssertedAt: now, Assertive: true},
	}))
	require.NoError(t, rs.SaveObservation(ctx, &store.Observation{
		ID: "e1-obs1", EntityID: "e1", Text: "prefers dark roast coffee",
		Validity: store.Validity{AssertedAt: now, Assertive: true},
	}))

	require.NoError(t, ix.Reindex(ctx, "e1"))

	assert.True(t, ix.Content.Contains("e1"))
	assert.True(t, ix.Name.Contains("e1"))

	hits, err := ix.FullText.Search(ctx, "coffee", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "e1", hits[0].DocID)
}

func TestIndexer_Reindex_RetractedEntityIsRemoved(t *testing.T) {
	ix, rs := newTestIndexer(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, rs.SaveEntity(ctx, &store.Entity{
		ID: "e1", Name: "Temp Note", Category: "note", Kind: "note",
		Validity: store.Validity{AssertedAt: now, Assertive: true},
	}))
	require.NoError(t, ix.Reindex(ctx, "e1"))
	require.True(t, ix.Content.Contains("e1"))

	require.NoError(t, rs.RetractEntity(ctx, "e1", now.Add(time.Second)))
	require.NoError(t, ix.Reindex(ctx, "e1"))

	assert.False(t, ix.Content.Contains("e1"))
	assert.False(t, ix.Name.Contains("e1"))
}

func TestIndexer_Remove_DropsFromAllIndexes(t *testing.T) {
	ix, rs := newTestIndexer(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, rs.SaveEntity(ctx, &store.Entity{
		ID: "e1", Name: "Temp Note", Category: "note", Kind: "note",
		Validity: store.Validity{AssertedAt: now, Assertive: true},
	}))
	require.NoError(t, ix.Reindex(ctx, "e1"))

	require.NoError(t, ix.Remove(ctx, "e1"))
	assert.False(t, ix.Content.Contains("e1"))
	assert.False(t, ix.Name.Contains("e1"))
}

func TestContentText_IncludesNameKindAndObservations(t *testing.T) {
	e := &store.Entity{Name: "Alice", Kind: "person"}
	obs := []*store.Observation{{Text: "likes coffee"}, {Text: "works remotely"}}
	text := contentText(e, obs)
	assert.Contains(t, text, "Alice")
	assert.Contains(t, text, "person")
	assert.Contains(t, text, "likes coffee")
	assert.Contains(t, text, "works remotely")
}
