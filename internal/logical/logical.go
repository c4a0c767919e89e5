// Package logical derives candidate relationships that aren't explicitly
// asserted but follow from an entity's category, kind, metadata, and
// existing edges (spec §4.9).
package logical

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-cerp/agentmem/internal/store"
)

// Fixed confidences for each derivation pattern.
const (
	ConfidenceSameCategory   = 0.8
	ConfidenceSameKind       = 0.7
	ConfidenceHierarchical   = 0.9
	ConfidenceSameDomain     = 0.75
	ConfidenceTransitiveCat  = 0.6
	ConfidenceTransitiveKind = 0.55
)

// Relation type tags used by derived (as opposed to explicitly asserted)
// edges.
const (
	RelationSameCategory   = "same_category"
	RelationSameKind       = "same_kind"
	RelationParentOf       = "parent_of"
	RelationChildOf        = "child_of"
	RelationSameDomain     = "same_domain"
	RelationTransitiveCat  = "transitive_category"
	RelationTransitiveKind = "transitive_kind"
)

// ParentIDMetadataKey is the metadata field a hierarchical derivation
// reads to find an entity's declared parent.
const ParentIDMetadataKey = "parent_id"

// DomainMetadataKey is the metadata field a same-domain-contextual
// derivation compares between entities.
const DomainMetadataKey = "domain"

// maxCandidatePool bounds how many entities DeriveCandidates scans when
// looking for category/kind/domain matches.
const maxCandidatePool = 10000

// Candidate is one derived, not-yet-asserted relationship.
type Candidate struct {
	FromID       string
	ToID         string
	RelationType string
	Confidence   float64
}

type key struct {
	from, to, relType string
}

// DeriveCandidates finds every candidate relationship the five patterns
// produce for entityID, deduplicated by (from, to, relation_type) keeping
// the highest-confidence entry per triple.
func DeriveCandidates(ctx context.Context, rs store.RelationalStore, entityID string, asOf time.Time) ([]Candidate, error) {
	self, err := rs.GetEntity(ctx, entityID, asOf)
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", entityID, err)
	}
	if self == nil {
		return nil, nil
	}

	others, err := rs.ListEntities(ctx, asOf, maxCandidatePool)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	byID := make(map[string]*store.Entity, len(others))
	for _, o := range others {
		if o.ID != entityID {
			byID[o.ID] = o
		}
	}

	found := make(map[key]float64)
	add := func(toID, relType string, confidence float64) {
		k := key{from: entityID, to: toID, relType: relType}
		if cur, ok := found[k]; !ok || confidence > cur {
			found[k] = confidence
		}
	}

	for _, other := range byID {
		if other.Category != "" && other.Category == self.Category {
			add(other.ID, RelationSameCategory, ConfidenceSameCategory)
		}
		if other.Kind != "" && other.Kind == self.Kind {
			add(other.ID, RelationSameKind, ConfidenceSameKind)
		}
		if domain, ok := self.Metadata[DomainMetadataKey]; ok && domain != "" {
			if other.Metadata[DomainMetadataKey] == domain {
				add(other.ID, RelationSameDomain, ConfidenceSameDomain)
			}
		}
		if parent, ok := other.Metadata[ParentIDMetadataKey]; ok && parent == entityID {
			add(other.ID, RelationParentOf, ConfidenceHierarchical)
		}
		if parent, ok := self.Metadata[ParentIDMetadataKey]; ok && parent == other.ID {
			add(other.ID, RelationChildOf, ConfidenceHierarchical)
		}
	}

	neighbors, err := Neighbors(ctx, rs, entityID, asOf)
	if err != nil {
		return nil, err
	}

	for _, neighborID := range neighbors {
		neighbor, ok := byID[neighborID]
		if !ok {
			continue
		}
		for _, other := range byID {
			if other.ID == neighborID || other.ID == entityID {
				continue
			}
			if other.Category != "" && other.Category == neighbor.Category {
				add(other.ID, RelationTransitiveCat, ConfidenceTransitiveCat)
			}
			if other.Kind != "" && other.Kind == neighbor.Kind {
				add(other.ID, RelationTransitiveKind, ConfidenceTransitiveKind)
			}
		}
	}

	candidates := make([]Candidate, 0, len(found))
	for k, confidence := range found {
		candidates = append(candidates, Candidate{FromID: k.from, ToID: k.to, RelationType: k.relType, Confidence: confidence})
	}
	return candidates, nil
}

// Neighbors returns the distinct entity IDs reachable from entityID via a
// single explicit relationship edge, in either direction. Exported so
// other components (the façade's shortest_path, in particular) can reuse
// the one-hop lookup without duplicating it.
func Neighbors(ctx context.Context, rs store.RelationalStore, entityID string, asOf time.Time) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	from, err := rs.GetRelationshipsFrom(ctx, entityID, asOf)
	if err != nil {
		return nil, fmt.Errorf("relationships from %s: %w", entityID, err)
	}
	for _, r := range from {
		if !seen[r.ToID] {
			seen[r.ToID] = true
			out = append(out, r.ToID)
		}
	}

	to, err := rs.GetRelationshipsTo(ctx, entityID, asOf)
	if err != nil {
		return nil, fmt.Errorf("relationships to %s: %w", entityID, err)
	}
	for _, r := range to {
		if !seen[r.FromID] {
			seen[r.FromID] = true
			out = append(out, r.FromID)
		}
	}

	return out, nil
}

// Materialize persists candidates as real relationships. It is idempotent:
// a candidate matching an already-current (from, to, relation_type) edge
// is skipped rather than duplicated.
func Materialize(ctx context.Context, rs store.RelationalStore, candidates []Candidate, asOf time.Time, newID func() string) (int, error) {
	existing, err := existingEdgeSet(ctx, rs, candidates, asOf)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, c := range candidates {
		k := key{from: c.FromID, to: c.ToID, relType: c.RelationType}
		if existing[k] {
			continue
		}
		rel := &store.Relationship{
			ID:           newID(),
			FromID:       c.FromID,
			ToID:         c.ToID,
			RelationType: c.RelationType,
			Strength:     c.Confidence,
			Confidence:   c.Confidence,
			Validity:     store.Validity{AssertedAt: asOf, Assertive: true},
		}
		if err := rs.SaveRelationship(ctx, rel); err != nil {
			return created, fmt.Errorf("materialize %s->%s (%s): %w", c.FromID, c.ToID, c.RelationType, err)
		}
		existing[k] = true
		created++
	}
	return created, nil
}

func existingEdgeSet(ctx context.Context, rs store.RelationalStore, candidates []Candidate, asOf time.Time) (map[key]bool, error) {
	seen := make(map[string]bool)
	existing := make(map[key]bool)
	for _, c := range candidates {
		if seen[c.FromID] {
			continue
		}
		seen[c.FromID] = true
		rels, err := rs.GetRelationshipsFrom(ctx, c.FromID, asOf)
		if err != nil {
			return nil, fmt.Errorf("relationships from %s: %w", c.FromID, err)
		}
		for _, r := range rels {
			existing[key{from: r.FromID, to: r.ToID, relType: r.RelationType}] = true
		}
	}
	return existing, nil
}
