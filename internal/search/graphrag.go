package search

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// MaxGraphDepth is the hard cap on graph-RAG traversal depth regardless of
// what a caller requests.
const MaxGraphDepth = 4

// DefaultGraphDepth is used when Options.Graph.MaxDepth is unset.
const DefaultGraphDepth = 2

// GraphRAG implements spec §4.6: a vector-seeded graph traversal whose
// score attenuates with hop distance, `(1 - 0.2*depth)`, clamped at zero
// for depth >= 5 (Open Question (b)) even though MaxGraphDepth already
// prevents reaching that far by default.
func (p *Pipeline) GraphRAG(ctx context.Context, opts Options) ([]Result, error) {
	start := time.Now()
	now := start
	limit := opts.limitOrDefault()

	if p.Metrics != nil {
		defer func() {
			p.Metrics.GraphRAGDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	maxDepth := opts.Graph.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultGraphDepth
	}
	if maxDepth > MaxGraphDepth {
		maxDepth = MaxGraphDepth
	}

	queryEmbedding, err := p.Embedder.Embed(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	seeds, err := p.Content.Search(ctx, queryEmbedding, limit*2)
	if err != nil {
		return nil, fmt.Errorf("vector seed search: %w", err)
	}

	required := toSet(opts.Graph.RequiredRelations)
	targets := toSet(opts.Graph.TargetIDs)

	best := make(map[string]float64, len(seeds))
	for _, seed := range seeds {
		p.expandFromSeed(ctx, seed.ID, float64(seed.Score), maxDepth, required, best)
	}

	candidates := make([]candidate, 0, len(best))
	for id, score := range best {
		if len(targets) > 0 && !targets[id] {
			continue
		}
		e, err := p.Relational.GetEntity(ctx, id, now)
		if err != nil || e == nil {
			continue
		}
		if !opts.matchesKind(e) || !opts.matchesMetadata(e) {
			continue
		}
		if opts.TimeRangeHours > 0 && now.Sub(e.Validity.AssertedAt) > time.Duration(opts.TimeRangeHours)*time.Hour {
			continue
		}

		decayed := timeDecay(score, e.Validity.AssertedAt, now)
		candidates = append(candidates, candidate{
			entity:      e,
			score:       decayed,
			explanation: []string{fmt.Sprintf("graph-rag attenuated score %.3f", score)},
		})
	}

	if opts.Rerank && len(candidates) > 0 {
		candidates = p.applyRerank(ctx, opts.Query, candidates)
	}

	sortCandidatesDesc(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{EntityID: c.entity.ID, Score: c.score, Explanation: c.explanation}
	}
	return results, nil
}

// expandFromSeed performs a breadth-first traversal from one seed entity,
// updating best[id] with max(current, seedScore*attenuation(depth)) for
// every entity reached within maxDepth hops.
func (p *Pipeline) expandFromSeed(ctx context.Context, seedID string, seedScore float64, maxDepth int, required map[string]bool, best map[string]float64) {
	if v, ok := best[seedID]; !ok || seedScore > v {
		best[seedID] = seedScore
	}

	visited := map[string]bool{seedID: true}
	frontier := []string{seedID}
	now := time.Now()

	for depth := 1; depth <= maxDepth; depth++ {
		var next []string
		attenuation := 1.0 - 0.2*float64(depth)
		if attenuation < 0 {
			attenuation = 0
		}

		for _, id := range frontier {
			neighbors := p.neighbors(ctx, id, now, required)
			for _, n := range neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				next = append(next, n)

				value := seedScore * attenuation
				if v, ok := best[n]; !ok || value > v {
					best[n] = value
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
}

// neighbors returns the entity IDs reachable from id via one relationship
// hop in either direction, optionally restricted to required relation
// types.
func (p *Pipeline) neighbors(ctx context.Context, id string, asOf time.Time, required map[string]bool) []string {
	var out []string
	from, err := p.Relational.GetRelationshipsFrom(ctx, id, asOf)
	if err == nil {
		for _, r := range from {
			if len(required) > 0 && !required[r.RelationType] {
				continue
			}
			out = append(out, r.ToID)
		}
	}
	to, err := p.Relational.GetRelationshipsTo(ctx, id, asOf)
	if err == nil {
		for _, r := range to {
			if len(required) > 0 && !required[r.RelationType] {
				continue
			}
			out = append(out, r.FromID)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func sortCandidatesDesc(c []candidate) {
	sort.Slice(c, func(i, j int) bool { return c[i].score > c[j].score })
}
