package search

import "sort"

// DefaultRRFConstant is the standard RRF smoothing parameter (k=60, the
// value used by Azure AI Search, OpenSearch, and elsewhere).
const DefaultRRFConstant = 60

// scored is one signal's contribution to a candidate before fusion.
type scored struct {
	id    string
	score float64 // vector: 1-cosine_distance/2; bm25: raw BM25 score
	rank  int      // 1-indexed position in that signal's ranked list
}

// fused accumulates one candidate's per-signal contributions.
type fused struct {
	id          string
	rrfScore    float64
	bm25Score   float64
	bm25Rank    int
	vecScore    float64
	vecRank     int
	inBothLists bool
}

// rrfFuse combines full-text and vector result lists with Reciprocal Rank
// Fusion: RRF(d) = Σ weight_i / (k + rank_i), using missing_rank =
// max(len(a), len(b)) + 1 for a signal a document didn't appear in.
func rrfFuse(bm25, vec []scored, weights Weights, k int) []fused {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(bm25) == 0 && len(vec) == 0 {
		return nil
	}

	byID := make(map[string]*fused, len(bm25)+len(vec))
	get := func(id string) *fused {
		if f, ok := byID[id]; ok {
			return f
		}
		f := &fused{id: id}
		byID[id] = f
		return f
	}

	for _, r := range bm25 {
		f := get(r.id)
		f.bm25Score = r.score
		f.bm25Rank = r.rank
		f.rrfScore += weights.BM25 / float64(k+r.rank)
	}
	for _, r := range vec {
		f := get(r.id)
		f.vecScore = r.score
		f.vecRank = r.rank
		f.rrfScore += weights.Semantic / float64(k+r.rank)
		if f.bm25Rank > 0 {
			f.inBothLists = true
		}
	}

	missingRank := len(bm25)
	if len(vec) > missingRank {
		missingRank = len(vec)
	}
	missingRank++
	for _, f := range byID {
		if f.bm25Rank == 0 && f.vecRank > 0 {
			f.rrfScore += weights.BM25 / float64(k+missingRank)
		}
		if f.vecRank == 0 && f.bm25Rank > 0 {
			f.rrfScore += weights.Semantic / float64(k+missingRank)
		}
	}

	results := make([]fused, 0, len(byID))
	for _, f := range byID {
		results = append(results, *f)
	}
	sort.Slice(results, func(i, j int) bool { return compareFused(results[i], results[j]) })
	normalizeFused(results)
	return results
}

// compareFused sorts by RRF score desc, then both-lists membership, then
// BM25 score desc, then ID asc for determinism.
func compareFused(a, b fused) bool {
	if a.rrfScore != b.rrfScore {
		return a.rrfScore > b.rrfScore
	}
	if a.inBothLists != b.inBothLists {
		return a.inBothLists
	}
	if a.bm25Score != b.bm25Score {
		return a.bm25Score > b.bm25Score
	}
	return a.id < b.id
}

func normalizeFused(results []fused) {
	if len(results) == 0 || results[0].rrfScore == 0 {
		return
	}
	max := results[0].rrfScore
	for i := range results {
		results[i].rrfScore /= max
	}
}

// weightedFuse linearly combines per-signal scores by weight (the vector
// score is in 0-1; the BM25 score is used raw, not normalised), for callers
// that prefer score-based over rank-based fusion.
func weightedFuse(bm25, vec []scored, weights Weights) []fused {
	byID := make(map[string]*fused, len(bm25)+len(vec))
	get := func(id string) *fused {
		if f, ok := byID[id]; ok {
			return f
		}
		f := &fused{id: id}
		byID[id] = f
		return f
	}
	for _, r := range bm25 {
		f := get(r.id)
		f.bm25Score = r.score
		f.bm25Rank = r.rank
		f.rrfScore += weights.BM25 * r.score
	}
	for _, r := range vec {
		f := get(r.id)
		f.vecScore = r.score
		f.vecRank = r.rank
		f.rrfScore += weights.Semantic * r.score
		if f.bm25Rank > 0 {
			f.inBothLists = true
		}
	}
	results := make([]fused, 0, len(byID))
	for _, f := range byID {
		results = append(results, *f)
	}
	sort.Slice(results, func(i, j int) bool { return compareFused(results[i], results[j]) })
	return results
}

// maxFuse takes, per candidate, the single highest weighted signal rather
// than summing them — useful when one signal strongly dominating should
// win outright instead of being diluted by a weak second signal.
func maxFuse(bm25, vec []scored, weights Weights) []fused {
	byID := make(map[string]*fused, len(bm25)+len(vec))
	get := func(id string) *fused {
		if f, ok := byID[id]; ok {
			return f
		}
		f := &fused{id: id}
		byID[id] = f
		return f
	}
	for _, r := range bm25 {
		f := get(r.id)
		f.bm25Score = r.score
		f.bm25Rank = r.rank
		if w := weights.BM25 * r.score; w > f.rrfScore {
			f.rrfScore = w
		}
	}
	for _, r := range vec {
		f := get(r.id)
		f.vecScore = r.score
		f.vecRank = r.rank
		if f.bm25Rank > 0 {
			f.inBothLists = true
		}
		if w := weights.Semantic * r.score; w > f.rrfScore {
			f.rrfScore = w
		}
	}
	results := make([]fused, 0, len(byID))
	for _, f := range byID {
		results = append(results, *f)
	}
	sort.Slice(results, func(i, j int) bool { return compareFused(results[i], results[j]) })
	return results
}

// FusionMode selects how bm25/vector signals combine before decay/boost.
type FusionMode string

const (
	FusionRRF      FusionMode = "rrf"
	FusionWeighted FusionMode = "weighted"
	FusionMax      FusionMode = "max"
)

func fuse(mode FusionMode, bm25, vec []scored, weights Weights, rrfK int) []fused {
	switch mode {
	case FusionWeighted:
		return weightedFuse(bm25, vec, weights)
	case FusionMax:
		return maxFuse(bm25, vec, weights)
	default:
		return rrfFuse(bm25, vec, weights, rrfK)
	}
}
