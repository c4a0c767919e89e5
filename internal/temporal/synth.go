// Package temporal synthesises a time-aware embedding for an entity at a
// chosen point in time, fusing its static content with a sinusoidal age
// encoding, its recent observation history, and its neighbourhood (spec
// §4.10).
package temporal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aman-cerp/agentmem/internal/embedding"
	"github.com/aman-cerp/agentmem/internal/store"
)

// Fusion weights (spec §4.10); must sum to 1.0.
const (
	ContentWeight       = 0.4
	TimeWeight          = 0.2
	HistoryWeight       = 0.2
	NeighbourhoodWeight = 0.2
)

// TimeVectorFrequencies is the number of sin/cos frequency pairs in the
// time2vec-style encoding; the encoding is 2*TimeVectorFrequencies wide.
const TimeVectorFrequencies = 32

// TimeVectorDimensions is the raw width of the time component before it is
// padded or truncated to the target embedding dimension.
const TimeVectorDimensions = 2 * TimeVectorFrequencies

// MaxAge clamps how far back the age encoding distinguishes; anything
// older is treated as exactly this old.
const MaxAge = 10 * 365 * 24 * time.Hour

// historyWindow bounds how many of an entity's most recent observations
// feed the history component.
const historyWindow = 50

// decayWindowDays is the e-folding window (in days) of the exp(-age/window)
// recency weighting used by both the history and neighbourhood components.
const decayWindowDays = 30.0

// DescriptionMetadataKey is the metadata field, if present, appended to an
// entity's name for the content component — entities carry no dedicated
// description field.
const DescriptionMetadataKey = "description"

// Synthesize builds entityID's time-aware embedding as of atTime, fusing
// content, temporal, history, and neighbourhood components.
func Synthesize(ctx context.Context, embedder embedding.Embedder, rs store.RelationalStore, entityID string, atTime time.Time) ([]float32, float64, error) {
	e, err := rs.GetEntity(ctx, entityID, atTime)
	if err != nil {
		return nil, 0, fmt.Errorf("load entity %s: %w", entityID, err)
	}
	if e == nil {
		return nil, 0, fmt.Errorf("entity %s not found as of %s", entityID, atTime)
	}

	dims := embedder.Dimensions()

	content, err := contentComponent(ctx, embedder, e)
	if err != nil {
		return nil, 0, err
	}

	timeVec := padOrTruncate(timeComponent(atTime.Sub(e.Validity.AssertedAt)), dims)

	obs, err := rs.GetObservationsByEntity(ctx, entityID, atTime)
	if err != nil {
		return nil, 0, fmt.Errorf("load observations for %s: %w", entityID, err)
	}
	// The relational store does not persist observation embeddings, so
	// embed the text of any observation that arrives without one.
	for _, o := range obs {
		if len(o.Embedding) == 0 {
			if v, err := embedder.Embed(ctx, o.Text); err == nil {
				o.Embedding = v
			}
		}
	}
	history := historyComponent(obs, atTime, dims)

	neighbours, err := neighbourEntities(ctx, rs, entityID, atTime)
	if err != nil {
		return nil, 0, err
	}
	neighbourhood, err := neighbourhoodComponent(ctx, embedder, neighbours, atTime, dims)
	if err != nil {
		return nil, 0, err
	}

	fused := make([]float32, dims)
	for i := 0; i < dims; i++ {
		fused[i] = float32(
			ContentWeight*float64(content[i]) +
				TimeWeight*float64(timeVec[i]) +
				HistoryWeight*float64(history[i]) +
				NeighbourhoodWeight*float64(neighbourhood[i]),
		)
	}

	confidence := Confidence(atTime.Sub(e.Validity.AssertedAt), len(obs), len(neighbours))
	return l2Normalize(fused), confidence, nil
}

func contentComponent(ctx context.Context, embedder embedding.Embedder, e *store.Entity) ([]float32, error) {
	text := e.Name
	if desc := e.Metadata[DescriptionMetadataKey]; desc != "" {
		text = text + " " + desc
	}
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed content component: %w", err)
	}
	return vec, nil
}

// timeComponent produces the Dt=64-wide time2vec-style sinusoidal
// encoding of age, clamped to MaxAge.
func timeComponent(age time.Duration) []float32 {
	if age < 0 {
		age = 0
	}
	if age > MaxAge {
		age = MaxAge
	}
	ageSeconds := age.Seconds()

	vec := make([]float32, TimeVectorDimensions)
	for i := 0; i < TimeVectorFrequencies; i++ {
		freq := 1.0 / math.Pow(10000, float64(2*i)/float64(TimeVectorDimensions))
		vec[2*i] = float32(math.Sin(ageSeconds * freq))
		vec[2*i+1] = float32(math.Cos(ageSeconds * freq))
	}
	return vec
}

// historyComponent is the weighted mean of the most recent historyWindow
// observation embeddings, weighted by exp(-age/30 days).
func historyComponent(obs []*store.Observation, atTime time.Time, dims int) []float32 {
	sorted := make([]*store.Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Validity.AssertedAt.After(sorted[j].Validity.AssertedAt)
	})
	if len(sorted) > historyWindow {
		sorted = sorted[:historyWindow]
	}

	out := make([]float32, dims)
	var totalWeight float64
	for _, o := range sorted {
		if len(o.Embedding) != dims {
			continue
		}
		age := atTime.Sub(o.Validity.AssertedAt)
		weight := math.Exp(-ageInDays(age) / decayWindowDays)
		totalWeight += weight
		for i := 0; i < dims; i++ {
			out[i] += float32(weight) * o.Embedding[i]
		}
	}
	if totalWeight > 0 {
		for i := range out {
			out[i] = float32(float64(out[i]) / totalWeight)
		}
	}
	return out
}

type neighbour struct {
	entity   *store.Entity
	strength float64
	assertedAt time.Time
}

func neighbourEntities(ctx context.Context, rs store.RelationalStore, entityID string, asOf time.Time) ([]neighbour, error) {
	var out []neighbour

	from, err := rs.GetRelationshipsFrom(ctx, entityID, asOf)
	if err != nil {
		return nil, fmt.Errorf("relationships from %s: %w", entityID, err)
	}
	for _, r := range from {
		if n, err := rs.GetEntity(ctx, r.ToID, asOf); err == nil && n != nil {
			out = append(out, neighbour{entity: n, strength: r.Strength, assertedAt: r.Validity.AssertedAt})
		}
	}

	to, err := rs.GetRelationshipsTo(ctx, entityID, asOf)
	if err != nil {
		return nil, fmt.Errorf("relationships to %s: %w", entityID, err)
	}
	for _, r := range to {
		if n, err := rs.GetEntity(ctx, r.FromID, asOf); err == nil && n != nil {
			out = append(out, neighbour{entity: n, strength: r.Strength, assertedAt: r.Validity.AssertedAt})
		}
	}

	return out, nil
}

// neighbourhoodComponent is the weighted mean of neighbour name embeddings,
// weighted by relationship strength * exp(-age/30 days).
func neighbourhoodComponent(ctx context.Context, embedder embedding.Embedder, neighbours []neighbour, atTime time.Time, dims int) ([]float32, error) {
	out := make([]float32, dims)
	var totalWeight float64

	for _, n := range neighbours {
		vec, err := embedder.Embed(ctx, n.entity.Name)
		if err != nil {
			return nil, fmt.Errorf("embed neighbour name %s: %w", n.entity.ID, err)
		}
		if len(vec) != dims {
			continue
		}
		age := atTime.Sub(n.assertedAt)
		weight := n.strength * math.Exp(-ageInDays(age)/decayWindowDays)
		totalWeight += weight
		for i := 0; i < dims; i++ {
			out[i] += float32(weight) * vec[i]
		}
	}
	if totalWeight > 0 {
		for i := range out {
			out[i] = float32(float64(out[i]) / totalWeight)
		}
	}
	return out, nil
}

func ageInDays(age time.Duration) float64 {
	if age < 0 {
		return 0
	}
	return age.Hours() / 24.0
}

func padOrTruncate(v []float32, dims int) []float32 {
	out := make([]float32, dims)
	n := len(v)
	if n > dims {
		n = dims
	}
	copy(out, v[:n])
	return out
}

func l2Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / magnitude)
	}
	return out
}
