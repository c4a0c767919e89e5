package facade

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/agentmem/internal/adaptive"
	"github.com/aman-cerp/agentmem/internal/cache"
	"github.com/aman-cerp/agentmem/internal/embedding"
	"github.com/aman-cerp/agentmem/internal/rerank"
	"github.com/aman-cerp/agentmem/internal/search"
	"github.com/aman-cerp/agentmem/internal/store"
)

func newTestFacade(t *testing.T) *Facade {
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

	emb := embedding.NewStaticEmbedder()
	p := &search.Pipeline{
		Embedder:    emb,
		Relational:  rs,
		Content:     content,
		Name:        name,
		FullText:    ft,
		Reranker:    rerank.NoOpReranker{},
		Weights:     search.DefaultWeights(),
		RRFConstant: 60,
		FusionMode:  search.FusionRRF,
	}
	ix := &search.Indexer{Embedder: emb, Relational: rs, Content: content, Name: name, FullText: ft}
	sel := adaptive.NewSelector(rs, adaptive.DefaultExplorationRate)

	f := New(rs, cache.New(rs, cache.Options{}), emb, p, ix, sel)
	f.NewID = counterIDs()
	return f
}

func counterIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestCreateEntity_ThenSearchFindsIt(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	res := f.Dispatch(ctx, "mutate_memory", "create_entity", Args{
		"name": "Alice Johnson", "category": "person", "kind": "employee",
	})
	require.False(t, res.IsError, res.Message)
	entityID, _ := res.Data["entity_id"].(string)
	require.NotEmpty(t, entityID)

	obsRes := f.Dispatch(ctx, "mutate_memory", "add_observation", Args{
		"entity_id": entityID, "text": "works on the payments platform",
	})
	require.False(t, obsRes.IsError, obsRes.Message)

	searchRes := f.Dispatch(ctx, "query_memory", "search", Args{"query": "Alice Johnson"})
	require.False(t, searchRes.IsError, searchRes.Message)
	results, _ := searchRes.Data["results"].([]map[string]any)
	require.NotEmpty(t, results)
	assert.Equal(t, entityID, results[0]["entity_id"])
}

func TestCreateEntity_RejectsEmptyName(t *testing.T) {
	f := newTestFacade(t)
	res := f.Dispatch(context.Background(), "mutate_memory", "create_entity", Args{})
	assert.True(t, res.IsError)
	assert.Equal(t, "validation", res.Kind)
}

func TestEntityDetails_UnknownEntityIsNotFound(t *testing.T) {
	f := newTestFacade(t)
	res := f.Dispatch(context.Background(), "query_memory", "entity_details", Args{"entity_id": "missing"})
	assert.True(t, res.IsError)
	assert.Equal(t, "not-found", res.Kind)
}

func TestCreateRelation_RejectsSelfLoop(t *testing.T) {
	f := newTestFacade(t)
	res := f.Dispatch(context.Background(), "mutate_memory", "create_relation", Args{
		"from_id": "e1", "to_id": "e1",
	})
	assert.True(t, res.IsError)
	assert.Equal(t, "validation", res.Kind)
}

func TestPagerank_RanksConnectedEntityHigherThanIsolated(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	a := f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "Hub"}).Data["entity_id"].(string)
	b := f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "Leaf"}).Data["entity_id"].(string)
	f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "Isolated"})

	relRes := f.Dispatch(ctx, "mutate_memory", "create_relation", Args{
		"from_id": b, "to_id": a, "relation_type": "reports_to",
	})
	require.False(t, relRes.IsError, relRes.Message)

	res := f.Dispatch(ctx, "analyze_graph", "pagerank", Args{})
	require.False(t, res.IsError, res.Message)
	ranks, _ := res.Data["ranks"].([]map[string]any)
	require.Len(t, ranks, 3)
	assert.Equal(t, a, ranks[0]["entity_id"])
}

func TestShortestPath_FindsDirectHop(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	a := f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "A"}).Data["entity_id"].(string)
	b := f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "B"}).Data["entity_id"].(string)
	f.Dispatch(ctx, "mutate_memory", "create_relation", Args{"from_id": a, "to_id": b, "relation_type": "knows"})

	res := f.Dispatch(ctx, "analyze_graph", "shortest_path", Args{"from_id": a, "to_id": b})
	require.False(t, res.IsError, res.Message)
	assert.Equal(t, 1, res.Data["hops"])
}

func TestClearMemory_RequiresConfirm(t *testing.T) {
	f := newTestFacade(t)
	res := f.Dispatch(context.Background(), "manage_system", "clear_memory", Args{})
	assert.True(t, res.IsError)
}

func TestExportThenImport_RoundTripsEntityCount(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "Alice"})
	f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "Bob"})

	exportRes := f.Dispatch(ctx, "manage_system", "export", Args{})
	require.False(t, exportRes.IsError, exportRes.Message)
	assert.Equal(t, 2, exportRes.Data["entity_count"])

	snap, _ := exportRes.Data["snapshot"].(string)
	require.NotEmpty(t, snap)

	g := newTestFacade(t)
	importRes := g.Dispatch(ctx, "manage_system", "import", Args{"snapshot": snap})
	require.False(t, importRes.IsError, importRes.Message)
	assert.Equal(t, 2, importRes.Data["entity_count"])
}

func TestDispatch_UnknownVerbIsValidationError(t *testing.T) {
	f := newTestFacade(t)
	res := f.Dispatch(context.Background(), "not_a_verb", "noop", Args{})
	assert.True(t, res.IsError)
	assert.Equal(t, "validation", res.Kind)
}

func TestCreateRelation_RejectsMissingEndpoint(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	a := f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "A"}).Data["entity_id"].(string)

	res := f.Dispatch(ctx, "mutate_memory", "create_relation", Args{
		"from_id": a, "to_id": "missing", "relation_type": "knows",
	})
	assert.True(t, res.IsError)
	assert.Equal(t, "not-found", res.Kind)
}

func TestDeleteEntity_CascadesToObservationsAndRelationships(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	alice := f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "Alice"}).Data["entity_id"].(string)
	bob := f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "Bob"}).Data["entity_id"].(string)

	obsRes := f.Dispatch(ctx, "mutate_memory", "add_observation", Args{"entity_id": alice, "text": "likes tea"})
	require.False(t, obsRes.IsError, obsRes.Message)
	obsID := obsRes.Data["observation_id"].(string)

	relRes := f.Dispatch(ctx, "mutate_memory", "create_relation", Args{"from_id": alice, "to_id": bob, "relation_type": "knows"})
	require.False(t, relRes.IsError, relRes.Message)
	relID := relRes.Data["relationship_id"].(string)

	delRes := f.Dispatch(ctx, "mutate_memory", "delete_entity", Args{"entity_id": alice})
	require.False(t, delRes.IsError, delRes.Message)

	asOf := time.Now()
	e, err := f.Relational.GetEntity(ctx, alice, asOf)
	require.NoError(t, err)
	assert.Nil(t, e, "retracted entity must not resolve as current")

	obs, err := f.Relational.GetObservationsByEntity(ctx, alice, asOf)
	require.NoError(t, err)
	for _, o := range obs {
		assert.NotEqual(t, obsID, o.ID, "cascade must retract the entity's observations")
	}

	rel, err := f.Relational.GetRelationship(ctx, relID)
	require.NoError(t, err)
	assert.False(t, rel.Validity.RetractedAt.IsZero(), "cascade must retract incident relationships")
}

func TestRunTransaction_RollsBackOnFailingOp(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	res := f.Dispatch(ctx, "mutate_memory", "run_transaction", Args{
		"ops": []any{
			map[string]any{"kind": "create_entity", "name": "Carol"},
			map[string]any{"kind": "create_relation", "from_id": "id-1", "to_id": "id-1", "relation_type": "self"},
		},
	})
	assert.True(t, res.IsError)
	assert.Equal(t, "validation", res.Kind)

	exportRes := f.Dispatch(ctx, "manage_system", "export", Args{})
	require.False(t, exportRes.IsError, exportRes.Message)
	assert.Equal(t, 0, exportRes.Data["entity_count"], "a failed op must roll back every write in the batch")
}

func TestRunTransaction_BatchCreatesEntityThenReferencesItInSameBatch(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	res := f.Dispatch(ctx, "mutate_memory", "run_transaction", Args{
		"ops": []any{
			map[string]any{"kind": "create_entity", "name": "Dave"},
			map[string]any{"kind": "add_observation", "entity_id": "id-1", "text": "joined the team"},
		},
	})
	require.False(t, res.IsError, res.Message)
	results, _ := res.Data["results"].([]map[string]any)
	require.Len(t, results, 2)
	assert.NotEmpty(t, results[0]["entity_id"])
	assert.NotEmpty(t, results[1]["observation_id"])
}

func TestAgenticRetrieve_RecordsStrategyOutcome(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()
	f.Dispatch(ctx, "mutate_memory", "create_entity", Args{"name": "Quarterly Report", "kind": "document"})

	res := f.Dispatch(ctx, "query_memory", "agentic_retrieve", Args{"query": "Quarterly Report"})
	require.False(t, res.IsError, res.Message)
	assert.NotEmpty(t, res.Data["strategy"])

	stats, err := f.Relational.LoadStrategyStats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats, 1)
}
