package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aman-cerp/agentmem/internal/embedding"
	"github.com/aman-cerp/agentmem/internal/store"
)

// Indexer keeps the content/name vector indexes and the full-text index in
// sync with entity and observation mutations. The facade calls Reindex
// after every mutation that could change what an entity's content or name
// embeddings should be.
type Indexer struct {
	Embedder   embedding.Embedder
	Relational store.RelationalStore
	Content    store.VectorStore
	Name       store.VectorStore
	FullText   store.FullTextIndex
}

// Reindex recomputes and re-stores entity's name and content embeddings
// plus its full-text document, from its current observations.
func (ix *Indexer) Reindex(ctx context.Context, entityID string) error {
	now := time.Now()
	e, err := ix.Relational.GetEntity(ctx, entityID, now)
	if err != nil {
		return fmt.Errorf("load entity %s: %w", entityID, err)
	}
	if e == nil {
		return ix.Remove(ctx, entityID)
	}

	obs, err := ix.Relational.GetObservationsByEntity(ctx, entityID, now)
	if err != nil {
		return fmt.Errorf("load observations for %s: %w", entityID, err)
	}

	content := contentText(e, obs)

	nameVec, err := ix.Embedder.Embed(ctx, e.Name)
	if err != nil {
		return fmt.Errorf("embed entity name: %w", err)
	}
	contentVec, err := ix.Embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed entity content: %w", err)
	}

	if err := ix.Name.Add(ctx, []string{entityID}, [][]float32{nameVec}); err != nil {
		return fmt.Errorf("index name vector: %w", err)
	}
	if err := ix.Content.Add(ctx, []string{entityID}, [][]float32{contentVec}); err != nil {
		return fmt.Errorf("index content vector: %w", err)
	}
	if err := ix.FullText.Index(ctx, []*store.Document{{ID: entityID, Content: content}}); err != nil {
		return fmt.Errorf("index full text: %w", err)
	}
	return nil
}

// Remove drops entityID from every index. Retraction doesn't hard-delete
// the entity row, but a retracted entity should no longer surface in
// search results.
func (ix *Indexer) Remove(ctx context.Context, entityID string) error {
	if err := ix.Content.Delete(ctx, []string{entityID}); err != nil {
		return err
	}
	if err := ix.Name.Delete(ctx, []string{entityID}); err != nil {
		return err
	}
	return ix.FullText.Delete(ctx, []string{entityID})
}

func contentText(e *store.Entity, obs []*store.Observation) string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteString(" ")
	b.WriteString(e.Kind)
	for _, o := range obs {
		b.WriteString("\n")
		b.WriteString(o.Text)
	}
	return b.String()
}
