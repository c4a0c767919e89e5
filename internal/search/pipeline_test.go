package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/agentmem/internal/cache"
	"github.com/aman-cerp/agentmem/internal/embedding"
	"github.com/aman-cerp/agentmem/internal/rerank"
	"github.com/aman-cerp/agentmem/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.SQLiteStore) {
	t.Helper()

	rs, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rs.Close() })

	content, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedding.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = content.Close() })

	name, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(embedding.StaticDimensions))
	require.NoError(t, err)
	t.Cleanup(func() { _ = name.Close() })

	ft, err := store.NewBleveFullTextIndex("", store.DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ft.Close() })

	return &Pipeline{
		Embedder:    embedding.NewStaticEmbedder(),
		Relational:  rs,
		Content:     content,
		Name:        name,
		FullText:    ft,
		Cache:       cache.New(rs, cache.Options{}),
		Reranker:    rerank.NoOpReranker{},
		Weights:     DefaultWeights(),
		RRFConstant: 60,
		CacheTTL:    time.Minute,
		FusionMode:  FusionRRF,
	}, rs
}

func seedEntity(t *testing.T, p *Pipeline, rs *store.SQLiteStore, id, name, kind, text string, asOf time.Time) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, rs.SaveEntity(ctx, &store.Entity{
		ID: id, Name: name, Category: "note", Kind: kind,
		Validity: store.Validity{AssertedAt: asOf, Assertive: true},
	}))
	require.NoError(t, rs.SaveObservation(ctx, &store.Observation{
		ID: id + "-obs1", EntityID: id, Text: text,
		Validity: store.Validity{AssertedAt: asOf, Assertive: true},
	}))

	ix := &Indexer{Embedder: p.Embedder, Relational: rs, Content: p.Content, Name: p.Name, FullText: p.FullText}
	require.NoError(t, ix.Reindex(ctx, id))
}

func TestPipeline_Search_ReturnsMatchingEntity(t *testing.T) {
	p, rs := newTestPipeline(t)
	now := time.Now()

	seedEntity(t, p, rs, "e1", "Alice Johnson", "person", "Alice prefers dark roast coffee in the morning", now)
	seedEntity(t, p, rs, "e2", "Bob Smith", "person", "Bob likes tea and long walks", now)

	results, err := p.Search(context.Background(), Options{Query: "coffee preferences", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "e1", results[0].EntityID)
}

func TestPipeline_Search_KindFilterExcludesNonMatching(t *testing.T) {
	p, rs := newTestPipeline(t)
	now := time.Now()

	seedEntity(t, p, rs, "e1", "Alice Johnson", "person", "Alice prefers dark roast coffee", now)
	seedEntity(t, p, rs, "e2", "Roast Project", "project", "coffee roasting automation project", now)

	results, err := p.Search(context.Background(), Options{Query: "coffee", Limit: 5, Kinds: []string{"project"}})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "e2", r.EntityID)
	}
}

func TestPipeline_Search_CachesSecondCall(t *testing.T) {
	p, rs := newTestPipeline(t)
	now := time.Now()
	seedEntity(t, p, rs, "e1", "Alice Johnson", "person", "Alice prefers dark roast coffee", now)

	ctx := context.Background()
	first, err := p.Search(ctx, Options{Query: "coffee", Limit: 5})
	require.NoError(t, err)

	key := cacheKeyFor(Options{Query: "coffee", Limit: 5})
	entry, ok, err := p.Cache.Lookup(ctx, key, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, entry.Results)

	second, err := p.Search(ctx, Options{Query: "coffee", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPipeline_Search_ContextBoostPrefersMatchingSession(t *testing.T) {
	p, rs := newTestPipeline(t)
	p.Cache = nil // session/task are excluded from the cache fingerprint; disable to compare boosted vs unboosted directly
	now := time.Now()
	ctx := context.Background()

	require.NoError(t, rs.SaveEntity(ctx, &store.Entity{
		ID: "e1", Name: "Deploy Notes", Category: "note", Kind: "note",
		Validity: store.Validity{AssertedAt: now, Assertive: true},
	}))
	require.NoError(t, rs.SaveObservation(ctx, &store.Observation{
		ID: "e1-obs1", EntityID: "e1", Text: "deployment runbook for the payments service",
		SessionID: "sess-1",
		Validity:  store.Validity{AssertedAt: now, Assertive: true},
	}))
	ix := &Indexer{Embedder: p.Embedder, Relational: rs, Content: p.Content, Name: p.Name, FullText: p.FullText}
	require.NoError(t, ix.Reindex(ctx, "e1"))

	withoutBoost, err := p.Search(ctx, Options{Query: "deployment runbook", Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, withoutBoost)

	withBoost, err := p.Search(ctx, Options{Query: "deployment runbook", Limit: 5, SessionID: "sess-1"})
	require.NoError(t, err)
	require.NotEmpty(t, withBoost)

	assert.GreaterOrEqual(t, withBoost[0].Score, withoutBoost[0].Score)
}

func TestIsShortQuery(t *testing.T) {
	assert.True(t, isShortQuery("coffee"))
	assert.True(t, isShortQuery("dark roast coffee"))
	assert.False(t, isShortQuery("what does Alice prefer to drink in the morning"))
}
