package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Retrieve-Reason-Prune constants (spec §4.7).
const (
	BranchingFactor       = 5
	MaxPivotDepth         = 3
	MaxNodesExplored      = 100
	HopConfidenceDecay    = 0.9
	ConfidenceThreshold   = 0.5
	NeighborCosineWeight  = 0.4
	NeighborStrengthWeight = 0.3
	NeighborRankWeight     = 0.3
)

// Path is one traversal from a pivot, with its running confidence.
type Path struct {
	Nodes       []string
	Confidence  float64
	Helpfulness float64
}

// AggregatedEntity folds one entity's appearances across every surviving
// path into occurrence/score/depth statistics.
type AggregatedEntity struct {
	EntityID     string
	Occurrences  int
	MaxScore     float64
	MeanScore    float64
	MinDepth     int
}

// MultiHopResult is the §4.7 contract: the seed pivots, every surviving
// path, and the entities those paths touched, folded and ranked.
type MultiHopResult struct {
	Pivots     []string
	Paths      []Path
	Aggregated []AggregatedEntity
}

type pathState struct {
	nodes       []string
	confidences []float64 // confidences[i] is the running confidence after reaching nodes[i]
}

// MultiHop implements spec §4.7's Retrieve-Reason-Prune strategy: seed from
// top BranchingFactor vector pivots, breadth-first expand with per-hop
// confidence decay and pruning, then fold surviving paths into a
// per-entity aggregate.
func (p *Pipeline) MultiHop(ctx context.Context, query string, maxHops, limit int) (*MultiHopResult, error) {
	if p.Metrics != nil {
		start := time.Now()
		defer func() {
			p.Metrics.MultiHopDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}
	if maxHops > MaxPivotDepth {
		maxHops = MaxPivotDepth
	}
	if maxHops <= 0 {
		maxHops = MaxPivotDepth
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	now := time.Now()
	queryEmbedding, err := p.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	pivotHits, err := p.Content.Search(ctx, queryEmbedding, BranchingFactor)
	if err != nil {
		return nil, fmt.Errorf("vector pivot search: %w", err)
	}

	pivots := make([]string, len(pivotHits))
	for i, h := range pivotHits {
		pivots[i] = h.ID
	}

	explored := 0
	var allPaths []pathState
	for _, pivot := range pivotHits {
		if explored >= MaxNodesExplored {
			break
		}
		allPaths = append(allPaths, pathState{nodes: []string{pivot.ID}, confidences: []float64{1.0}})
		// allPaths doubles as this pivot's FIFO queue: reason appends each
		// accepted child state, which this loop then expands in turn.
		for i := len(allPaths) - 1; i < len(allPaths); i++ {
			p.reason(ctx, allPaths[i], queryEmbedding, maxHops, now, &explored, &allPaths)
		}
	}

	paths := make([]Path, 0, len(allPaths))
	var survivingStates []pathState
	for _, ps := range allPaths {
		conf := ps.confidences[len(ps.confidences)-1]
		lengthPenalty := 1.0 / (1.0 + 0.1*float64(len(ps.nodes)))
		helpfulness := 0.6*conf + 0.4*lengthPenalty*conf
		if helpfulness < ConfidenceThreshold {
			continue
		}
		paths = append(paths, Path{Nodes: append([]string(nil), ps.nodes...), Confidence: conf, Helpfulness: helpfulness})
		survivingStates = append(survivingStates, ps)
	}

	aggregated := aggregate(survivingStates, paths)
	if len(aggregated) > limit {
		aggregated = aggregated[:limit]
	}

	return &MultiHopResult{Pivots: pivots, Paths: paths, Aggregated: aggregated}, nil
}

// reason expands one path state by a single hop, appending every accepted
// child state to out and respecting the global explored-node cap. MultiHop
// drives it over out as a FIFO queue, so expansion is breadth-first.
func (p *Pipeline) reason(ctx context.Context, state pathState, queryEmbedding []float32, maxHops int, now time.Time, explored *int, out *[]pathState) {
	depth := len(state.nodes) - 1
	if depth >= maxHops {
		return
	}

	last := state.nodes[len(state.nodes)-1]
	visited := make(map[string]bool, len(state.nodes))
	for _, n := range state.nodes {
		visited[n] = true
	}

	for _, rel := range p.outgoingRelationships(ctx, last, now) {
		if *explored >= MaxNodesExplored {
			return
		}
		if visited[rel.neighborID] {
			continue
		}
		*explored++

		neighborScore := p.neighborScore(ctx, rel, queryEmbedding, now)
		confidence := state.confidences[len(state.confidences)-1] * HopConfidenceDecay * neighborScore
		if confidence < ConfidenceThreshold {
			continue
		}

		next := pathState{
			nodes:       append(append([]string(nil), state.nodes...), rel.neighborID),
			confidences: append(append([]float64(nil), state.confidences...), confidence),
		}
		*out = append(*out, next)
	}
}

type relEdge struct {
	neighborID string
	strength   float64
}

func (p *Pipeline) outgoingRelationships(ctx context.Context, entityID string, asOf time.Time) []relEdge {
	var out []relEdge
	if from, err := p.Relational.GetRelationshipsFrom(ctx, entityID, asOf); err == nil {
		for _, r := range from {
			out = append(out, relEdge{neighborID: r.ToID, strength: r.Strength})
		}
	}
	if to, err := p.Relational.GetRelationshipsTo(ctx, entityID, asOf); err == nil {
		for _, r := range to {
			out = append(out, relEdge{neighborID: r.FromID, strength: r.Strength})
		}
	}
	return out
}

// neighborScore combines cosine similarity to the query, relationship
// strength, and (capped) pagerank, per spec §4.7.
func (p *Pipeline) neighborScore(ctx context.Context, rel relEdge, queryEmbedding []float32, now time.Time) float64 {
	var cosine float64
	if vec, ok := p.Content.Get(rel.neighborID); ok {
		cosine = cosineSimilarity(queryEmbedding, vec)
	}

	rank, err := p.Relational.GetEntityRank(ctx, rel.neighborID)
	if err != nil {
		rank = 0
	}
	if rank > 1.0 {
		rank = 1.0
	}

	return NeighborCosineWeight*cosine + NeighborStrengthWeight*rel.strength + NeighborRankWeight*rank
}

// cosineSimilarity assumes neither vector is necessarily pre-normalised
// (the query embedding in particular is the embedder's raw output), so it
// normalises by magnitude rather than relying on unit-length inputs.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// aggregate folds surviving-path nodes into a per-entity summary, sorted
// by (occurrences desc, mean score desc, min depth asc).
func aggregate(allStates []pathState, survivingPaths []Path) []AggregatedEntity {
	surviving := make(map[string]bool, len(survivingPaths))
	for _, p := range survivingPaths {
		for _, n := range p.Nodes {
			surviving[n] = true
		}
	}

	type acc struct {
		occurrences int
		maxScore    float64
		sumScore    float64
		minDepth    int
	}
	byID := make(map[string]*acc)

	for _, state := range allStates {
		for depth, id := range state.nodes {
			if !surviving[id] {
				continue
			}
			score := state.confidences[depth]
			a, ok := byID[id]
			if !ok {
				a = &acc{minDepth: depth, maxScore: score}
				byID[id] = a
			}
			a.occurrences++
			a.sumScore += score
			if score > a.maxScore {
				a.maxScore = score
			}
			if depth < a.minDepth {
				a.minDepth = depth
			}
		}
	}

	out := make([]AggregatedEntity, 0, len(byID))
	for id, a := range byID {
		out = append(out, AggregatedEntity{
			EntityID:    id,
			Occurrences: a.occurrences,
			MaxScore:    a.maxScore,
			MeanScore:   a.sumScore / float64(a.occurrences),
			MinDepth:    a.minDepth,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		if out[i].MeanScore != out[j].MeanScore {
			return out[i].MeanScore > out[j].MeanScore
		}
		return out[i].MinDepth < out[j].MinDepth
	})
	return out
}
