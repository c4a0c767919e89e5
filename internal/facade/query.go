package facade

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aman-cerp/agentmem/internal/adaptive"
	amerrors "github.com/aman-cerp/agentmem/internal/errors"
	"github.com/aman-cerp/agentmem/internal/search"
)

func (f *Facade) queryMemory(ctx context.Context, action string, args Args) Result {
	switch action {
	case "search":
		return f.search(ctx, args)
	case "advanced_search":
		return f.search(ctx, args)
	case "graph_rag":
		return f.graphRAG(ctx, args)
	case "multi_hop":
		return f.multiHop(ctx, args)
	case "entity_details":
		return f.entityDetails(ctx, args)
	case "agentic_retrieve":
		return f.agenticRetrieve(ctx, args)
	default:
		return errResult(errUnknownAction("query_memory", action))
	}
}

// optionsFromArgs translates the façade's runtime option map into the
// pipeline's typed Options struct (spec §9 design note), covering both
// the plain and the "advanced" option groups from spec.md §6.
func optionsFromArgs(args Args) search.Options {
	var graphConstraints map[string]any
	if gc, ok := args["graph_constraints"].(map[string]any); ok {
		graphConstraints = gc
	}
	var vectorParams map[string]any
	if vp, ok := args["vector_params"].(map[string]any); ok {
		vectorParams = vp
	}

	opts := search.Options{
		Query:          args.str("query"),
		Limit:          args.intVal("limit"),
		Kinds:          args.strSlice("kinds"),
		Metadata:       args.strMap("metadata"),
		TimeRangeHours: args.intVal("time_range_hours"),
		Rerank:         args.boolVal("rerank"),
		SessionID:      args.str("session_id"),
		TaskID:         args.str("task_id"),
	}
	if vectorParams != nil {
		vp := Args(vectorParams)
		opts.Vector = search.VectorParams{EfSearch: vp.intVal("ef_search"), Radius: vp.floatVal("radius")}
	}
	if graphConstraints != nil {
		gc := Args(graphConstraints)
		opts.Graph = search.GraphConstraints{
			MaxDepth:          gc.intVal("max_depth"),
			RequiredRelations: gc.strSlice("required_relations"),
			TargetIDs:         gc.strSlice("target_ids"),
		}
	}
	return opts
}

func resultsToData(results []search.Result) map[string]any {
	out := make([]map[string]any, len(results))
	for i, r := range results {
		out[i] = map[string]any{
			"entity_id":   r.EntityID,
			"score":       r.Score,
			"explanation": r.Explanation,
		}
	}
	return map[string]any{"results": out}
}

func (f *Facade) search(ctx context.Context, args Args) Result {
	if args.str("query") == "" {
		return errResult(amerrors.Validation("search requires a query"))
	}
	results, err := f.Pipeline.Search(ctx, optionsFromArgs(args))
	if err != nil {
		return errResult(amerrors.Internal("search failed", err))
	}
	return ok(resultsToData(results))
}

func (f *Facade) graphRAG(ctx context.Context, args Args) Result {
	if args.str("query") == "" {
		return errResult(amerrors.Validation("graph_rag requires a query"))
	}
	results, err := f.Pipeline.GraphRAG(ctx, optionsFromArgs(args))
	if err != nil {
		return errResult(amerrors.Internal("graph_rag failed", err))
	}
	return ok(resultsToData(results))
}

func (f *Facade) multiHop(ctx context.Context, args Args) Result {
	query := args.str("query")
	if query == "" {
		return errResult(amerrors.Validation("multi_hop requires a query"))
	}
	maxHops := args.intVal("max_hops")
	limit := args.intVal("limit")
	result, err := f.Pipeline.MultiHop(ctx, query, maxHops, limit)
	if err != nil {
		return errResult(amerrors.Internal("multi_hop failed", err))
	}

	paths := make([]map[string]any, len(result.Paths))
	for i, p := range result.Paths {
		paths[i] = map[string]any{"nodes": p.Nodes, "confidence": p.Confidence, "helpfulness": p.Helpfulness}
	}
	aggregated := make([]map[string]any, len(result.Aggregated))
	for i, a := range result.Aggregated {
		aggregated[i] = map[string]any{
			"entity_id":   a.EntityID,
			"occurrences": a.Occurrences,
			"max_score":   a.MaxScore,
			"mean_score":  a.MeanScore,
			"min_depth":   a.MinDepth,
		}
	}
	return ok(map[string]any{"pivots": result.Pivots, "paths": paths, "aggregated": aggregated})
}

func (f *Facade) entityDetails(ctx context.Context, args Args) Result {
	id := args.str("entity_id")
	if id == "" {
		return errResult(amerrors.Validation("entity_details requires entity_id"))
	}
	asOf := now()
	e, err := f.Relational.GetEntity(ctx, id, asOf)
	if err != nil {
		return errResult(amerrors.Storage("load entity", err))
	}
	if e == nil {
		return errResult(amerrors.NotFound("entity " + id + " not found"))
	}

	obs, err := f.Relational.GetObservationsByEntity(ctx, id, asOf)
	if err != nil {
		return errResult(amerrors.Storage("load observations", err))
	}
	from, err := f.Relational.GetRelationshipsFrom(ctx, id, asOf)
	if err != nil {
		return errResult(amerrors.Storage("load outgoing relationships", err))
	}
	to, err := f.Relational.GetRelationshipsTo(ctx, id, asOf)
	if err != nil {
		return errResult(amerrors.Storage("load incoming relationships", err))
	}
	rank, err := f.Relational.GetEntityRank(ctx, id)
	if err != nil {
		rank = 0
	}

	observations := make([]map[string]any, len(obs))
	for i, o := range obs {
		observations[i] = map[string]any{"id": o.ID, "text": o.Text, "asserted_at": o.Validity.AssertedAt}
	}
	relationships := make([]map[string]any, 0, len(from)+len(to))
	for _, r := range from {
		relationships = append(relationships, map[string]any{
			"id": r.ID, "from_id": r.FromID, "to_id": r.ToID, "relation_type": r.RelationType,
			"strength": r.Strength, "confidence": r.Confidence, "direction": "outgoing",
		})
	}
	for _, r := range to {
		relationships = append(relationships, map[string]any{
			"id": r.ID, "from_id": r.FromID, "to_id": r.ToID, "relation_type": r.RelationType,
			"strength": r.Strength, "confidence": r.Confidence, "direction": "incoming",
		})
	}

	return ok(map[string]any{
		"entity": map[string]any{
			"id": e.ID, "name": e.Name, "category": e.Category, "kind": e.Kind,
			"metadata": e.Metadata, "asserted_at": e.Validity.AssertedAt, "rank": rank,
		},
		"observations":  observations,
		"relationships": relationships,
	})
}

// agenticRetrieve lets the adaptive selector (spec §4.8) choose and
// execute a retrieval strategy for query, then records the outcome.
func (f *Facade) agenticRetrieve(ctx context.Context, args Args) Result {
	query := args.str("query")
	if query == "" {
		return errResult(amerrors.Validation("agentic_retrieve requires a query"))
	}
	start := time.Now()
	strategy, complexity := f.Selector.Select(query, start)
	if f.Metrics != nil {
		f.Metrics.StrategySelections.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", string(strategy))))
	}

	opts := optionsFromArgs(args)
	opts.Query = query

	var results []search.Result
	var err error
	switch strategy {
	case adaptive.VectorOnly:
		results, err = f.vectorOnly(ctx, opts)
	case adaptive.GraphWalk:
		results, err = f.Pipeline.GraphRAG(ctx, opts)
	case adaptive.CommunityExpansion:
		opts.Graph.MaxDepth = search.MaxGraphDepth
		results, err = f.Pipeline.GraphRAG(ctx, opts)
	case adaptive.SemanticWalk:
		var mh *search.MultiHopResult
		mh, err = f.Pipeline.MultiHop(ctx, query, 0, opts.LimitOrDefault())
		if err == nil {
			results = aggregatedToResults(mh)
		}
	default: // HYBRID_FUSION and any unknown strategy
		results, err = f.Pipeline.Search(ctx, opts)
	}
	if err != nil {
		return errResult(amerrors.Internal("agentic_retrieve failed", err))
	}

	cost := time.Since(start).Seconds()
	reward := adaptive.ProgressiveRetrievalAttenuation(1, adaptive.DefaultDecayFactor)
	if len(results) == 0 {
		reward = 0
	}
	_ = f.Selector.Record(ctx, strategy, reward, cost, time.Now())

	data := resultsToData(results)
	data["strategy"] = string(strategy)
	data["complexity"] = string(complexity)
	return ok(data)
}

func (f *Facade) vectorOnly(ctx context.Context, opts search.Options) ([]search.Result, error) {
	queryEmbedding, err := f.Embedder.Embed(ctx, opts.Query)
	if err != nil {
		return nil, err
	}
	limit := opts.LimitOrDefault()
	hits, err := f.Pipeline.Content.Search(ctx, queryEmbedding, limit)
	if err != nil {
		return nil, err
	}
	results := make([]search.Result, 0, len(hits))
	for _, h := range hits {
		e, err := f.Relational.GetEntity(ctx, h.ID, now())
		if err != nil || e == nil {
			continue
		}
		results = append(results, search.Result{EntityID: e.ID, Score: float64(h.Score), Explanation: []string{"vector_only"}})
	}
	return results, nil
}

func aggregatedToResults(mh *search.MultiHopResult) []search.Result {
	out := make([]search.Result, len(mh.Aggregated))
	for i, a := range mh.Aggregated {
		out[i] = search.Result{EntityID: a.EntityID, Score: a.MaxScore, Explanation: []string{"semantic_walk"}}
	}
	return out
}
