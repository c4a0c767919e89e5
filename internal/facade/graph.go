package facade

import (
	"context"
	"fmt"
	"sort"

	amerrors "github.com/aman-cerp/agentmem/internal/errors"
	"github.com/aman-cerp/agentmem/internal/logical"
	"github.com/aman-cerp/agentmem/internal/store"
)

func (f *Facade) analyzeGraph(ctx context.Context, action string, args Args) Result {
	switch action {
	case "pagerank":
		return f.pagerank(ctx, args)
	case "communities":
		return f.communities(ctx, args)
	case "semantic_walk":
		return f.multiHop(ctx, args)
	case "shortest_path":
		return f.shortestPath(ctx, args)
	default:
		return errResult(errUnknownAction("analyze_graph", action))
	}
}

// pagerankIterations and pagerankDamping are the teacher-style fixed
// defaults for the power-iteration importance computation; no per-call
// override is exposed (spec §6 only names the action, not its tuning).
const (
	pagerankIterations = 20
	pagerankDamping    = 0.85
)

// pagerank computes a damped power-iteration importance score over the
// current relationship graph and persists it through SaveEntityRank, the
// same store surface multi-hop's neighbour scoring reads from
// (GetEntityRank).
func (f *Facade) pagerank(ctx context.Context, args Args) Result {
	asOf := now()
	entities, err := f.Relational.ListEntities(ctx, asOf, 0)
	if err != nil {
		return errResult(amerrors.Storage("list entities", err))
	}
	if len(entities) == 0 {
		return ok(map[string]any{"ranks": []any{}})
	}

	outEdges := make(map[string][]string, len(entities))
	inDegree := make(map[string]int, len(entities))
	rank := make(map[string]float64, len(entities))
	for _, e := range entities {
		rank[e.ID] = 1.0 / float64(len(entities))
		rels, err := f.Relational.GetRelationshipsFrom(ctx, e.ID, asOf)
		if err != nil {
			return errResult(amerrors.Storage("load relationships from "+e.ID, err))
		}
		for _, r := range rels {
			outEdges[e.ID] = append(outEdges[e.ID], r.ToID)
		}
	}
	for _, targets := range outEdges {
		for _, t := range targets {
			inDegree[t]++
		}
	}

	n := float64(len(entities))
	for iter := 0; iter < pagerankIterations; iter++ {
		next := make(map[string]float64, len(entities))
		base := (1 - pagerankDamping) / n
		for _, e := range entities {
			next[e.ID] = base
		}
		for id, targets := range outEdges {
			if len(targets) == 0 {
				continue
			}
			share := pagerankDamping * rank[id] / float64(len(targets))
			for _, t := range targets {
				next[t] += share
			}
		}
		rank = next
	}

	ranks := make([]*store.EntityRank, 0, len(entities))
	for id, score := range rank {
		ranks = append(ranks, &store.EntityRank{EntityID: id, Score: score, UpdatedAt: asOf})
	}
	if err := f.Relational.SaveEntityRank(ctx, ranks); err != nil {
		return errResult(amerrors.Storage("save entity ranks", err))
	}

	sort.Slice(ranks, func(i, j int) bool { return ranks[i].Score > ranks[j].Score })
	out := make([]map[string]any, len(ranks))
	for i, r := range ranks {
		out[i] = map[string]any{"entity_id": r.EntityID, "score": r.Score}
	}
	return ok(map[string]any{"ranks": out})
}

// communities finds connected components of the current relationship
// graph via union-find, the graph-theoretic stand-in for §4.9's "same
// category/kind/domain" groupings when driven purely by explicit edges.
func (f *Facade) communities(ctx context.Context, args Args) Result {
	asOf := now()
	entities, err := f.Relational.ListEntities(ctx, asOf, 0)
	if err != nil {
		return errResult(amerrors.Storage("list entities", err))
	}

	parent := make(map[string]string, len(entities))
	for _, e := range entities {
		parent[e.ID] = e.ID
	}
	var find func(string) string
	find = func(id string) string {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, e := range entities {
		rels, err := f.Relational.GetRelationshipsFrom(ctx, e.ID, asOf)
		if err != nil {
			return errResult(amerrors.Storage("load relationships from "+e.ID, err))
		}
		for _, r := range rels {
			if _, ok := parent[r.ToID]; ok {
				union(r.FromID, r.ToID)
			}
		}
	}

	groups := make(map[string][]string)
	for _, e := range entities {
		root := find(e.ID)
		groups[root] = append(groups[root], e.ID)
	}

	minSize := args.intVal("min_size")
	out := make([]map[string]any, 0, len(groups))
	for _, members := range groups {
		if len(members) < minSize {
			continue
		}
		out = append(out, map[string]any{"members": members, "size": len(members)})
	}
	return ok(map[string]any{"communities": out})
}

// shortestPath breadth-first searches the current relationship graph,
// ignoring strength/confidence (every edge has unit cost), which matches
// the graph being sparse enough that hop count is the meaningful metric.
func (f *Facade) shortestPath(ctx context.Context, args Args) Result {
	fromID, toID := args.str("from_id"), args.str("to_id")
	if fromID == "" || toID == "" {
		return errResult(amerrors.Validation("shortest_path requires from_id and to_id"))
	}
	asOf := now()

	type frame struct {
		id   string
		path []string
	}
	visited := map[string]bool{fromID: true}
	queue := []frame{{id: fromID, path: []string{fromID}}}

	maxDepth := args.intVal("max_depth")
	if maxDepth <= 0 {
		maxDepth = 10
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.id == toID {
			return ok(map[string]any{"path": cur.path, "hops": len(cur.path) - 1})
		}
		if len(cur.path) > maxDepth {
			continue
		}

		neighbors, err := logical.Neighbors(ctx, f.Relational, cur.id, asOf)
		if err != nil {
			return errResult(amerrors.Storage("load neighbors of "+cur.id, err))
		}
		for _, n := range neighbors {
			if visited[n] {
				continue
			}
			visited[n] = true
			queue = append(queue, frame{id: n, path: append(append([]string{}, cur.path...), n)})
		}
	}

	return ok(map[string]any{"path": []string{}, "message": fmt.Sprintf("no path found from %s to %s within %d hops", fromID, toID, maxDepth)})
}
