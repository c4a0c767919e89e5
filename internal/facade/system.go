package facade

import (
	"context"
	"encoding/json"

	amerrors "github.com/aman-cerp/agentmem/internal/errors"
	"github.com/aman-cerp/agentmem/internal/store"
)

func (f *Facade) manageSystem(ctx context.Context, action string, args Args) Result {
	switch action {
	case "health":
		return f.health(ctx)
	case "metrics":
		return f.metrics(ctx)
	case "export":
		return f.export(ctx, args)
	case "import":
		return f.importSnapshot(ctx, args)
	case "clear_memory":
		return f.clearMemory(ctx, args)
	case "janitor_cleanup":
		return f.janitorCleanup(ctx)
	default:
		return errResult(errUnknownAction("manage_system", action))
	}
}

// health reports whether the embedding and reranker backends (the two
// external model dependencies, spec §6) are reachable.
func (f *Facade) health(ctx context.Context) Result {
	embedderUp := f.Embedder.Available(ctx)
	rerankerUp := true
	if f.Pipeline.Reranker != nil {
		rerankerUp = f.Pipeline.Reranker.Available(ctx)
	}
	status := "healthy"
	if !embedderUp {
		status = "degraded"
	}
	return ok(map[string]any{
		"status":         status,
		"embedder":       embedderUp,
		"embedder_model": f.Embedder.ModelName(),
		"reranker":       rerankerUp,
	})
}

// metrics reports a lightweight operational snapshot: document counts per
// index and the adaptive selector's per-strategy running statistics. The
// OpenTelemetry instruments in internal/metrics (latencies, cache hits,
// strategy selections, tool calls) are separate; this action does not
// read them.
func (f *Facade) metrics(ctx context.Context) Result {
	data := map[string]any{}
	if f.Pipeline.FullText != nil {
		data["fulltext_documents"] = f.Pipeline.FullText.Stats().DocumentCount
	}
	data["content_vectors"] = f.Pipeline.Content.Count()
	data["name_vectors"] = f.Pipeline.Name.Count()

	stats, err := f.Relational.LoadStrategyStats(ctx)
	if err != nil {
		return errResult(amerrors.Storage("load strategy stats", err))
	}
	strategies := make(map[string]any, len(stats))
	for name, s := range stats {
		strategies[name] = map[string]any{
			"attempts":    s.Attempts,
			"reward_mean": s.RewardMean,
			"cost_total":  s.CostTotal,
		}
	}
	data["strategies"] = strategies
	return ok(data)
}

// snapshot is the export/import wire format: every current entity with
// its observations and outgoing relationships, serialised as one JSON
// document per spec §6's "results are structured maps serialised as a
// single text blob" contract.
type snapshot struct {
	Entities      []*store.Entity       `json:"entities"`
	Observations  []*store.Observation  `json:"observations"`
	Relationships []*store.Relationship `json:"relationships"`
}

func (f *Facade) export(ctx context.Context, args Args) Result {
	asOf := now()
	entities, err := f.Relational.ListEntities(ctx, asOf, 0)
	if err != nil {
		return errResult(amerrors.Storage("list entities", err))
	}

	snap := snapshot{Entities: entities}
	seenRel := make(map[string]bool)
	for _, e := range entities {
		obs, err := f.Relational.GetObservationsByEntity(ctx, e.ID, asOf)
		if err != nil {
			return errResult(amerrors.Storage("list observations for "+e.ID, err))
		}
		snap.Observations = append(snap.Observations, obs...)

		rels, err := f.Relational.GetRelationshipsFrom(ctx, e.ID, asOf)
		if err != nil {
			return errResult(amerrors.Storage("list relationships from "+e.ID, err))
		}
		for _, r := range rels {
			if !seenRel[r.ID] {
				seenRel[r.ID] = true
				snap.Relationships = append(snap.Relationships, r)
			}
		}
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return errResult(amerrors.Internal("marshal snapshot", err))
	}
	return ok(map[string]any{
		"entity_count":       len(snap.Entities),
		"observation_count":  len(snap.Observations),
		"relationship_count": len(snap.Relationships),
		"snapshot":           string(payload),
	})
}

func (f *Facade) importSnapshot(ctx context.Context, args Args) Result {
	raw := args.str("snapshot")
	if raw == "" {
		return errResult(amerrors.Validation("import requires a snapshot string"))
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return errResult(amerrors.Validation("invalid snapshot payload: " + err.Error()))
	}

	for _, e := range snap.Entities {
		if err := f.Relational.SaveEntity(ctx, e); err != nil {
			return errResult(amerrors.Storage("import entity "+e.ID, err))
		}
	}
	for _, o := range snap.Observations {
		if err := f.Relational.SaveObservation(ctx, o); err != nil {
			return errResult(amerrors.Storage("import observation "+o.ID, err))
		}
	}
	for _, r := range snap.Relationships {
		if err := f.Relational.SaveRelationship(ctx, r); err != nil {
			return errResult(amerrors.Storage("import relationship "+r.ID, err))
		}
	}
	for _, e := range snap.Entities {
		if err := f.Indexer.Reindex(ctx, e.ID); err != nil {
			return errResult(amerrors.Embedding("reindex imported entity "+e.ID, err))
		}
	}

	return ok(map[string]any{
		"entity_count":       len(snap.Entities),
		"observation_count":  len(snap.Observations),
		"relationship_count": len(snap.Relationships),
	})
}

// clearMemory retracts every current entity (and, transitively, the
// indexes that mirror it). It requires an explicit confirm=true argument
// since this is the one destructive, irreversible action in the façade.
func (f *Facade) clearMemory(ctx context.Context, args Args) Result {
	if !args.boolVal("confirm") {
		return errResult(amerrors.Validation("clear_memory requires confirm=true"))
	}
	asOf := now()
	entities, err := f.Relational.ListEntities(ctx, asOf, 0)
	if err != nil {
		return errResult(amerrors.Storage("list entities", err))
	}
	for _, e := range entities {
		if err := f.Relational.RetractEntity(ctx, e.ID, asOf); err != nil {
			return errResult(amerrors.Storage("retract entity "+e.ID, err))
		}
		if err := f.Indexer.Remove(ctx, e.ID); err != nil {
			return errResult(amerrors.Embedding("remove entity "+e.ID+" from indexes", err))
		}
	}
	return ok(map[string]any{"cleared": len(entities)})
}

// janitorCleanup evicts expired retrieval-cache rows (§4.4's second tier).
func (f *Facade) janitorCleanup(ctx context.Context) Result {
	if f.Cache == nil {
		return ok(map[string]any{"evicted": 0})
	}
	evicted, err := f.Cache.EvictExpired(ctx, now())
	if err != nil {
		return errResult(amerrors.Storage("evict expired cache entries", err))
	}
	return ok(map[string]any{"evicted": evicted})
}
