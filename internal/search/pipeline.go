package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aman-cerp/agentmem/internal/cache"
	"github.com/aman-cerp/agentmem/internal/embedding"
	"github.com/aman-cerp/agentmem/internal/metrics"
	"github.com/aman-cerp/agentmem/internal/rerank"
	"github.com/aman-cerp/agentmem/internal/store"
)

// Pipeline executes hybrid search, graph-RAG, and multi-hop retrieval
// against the storage and embedding layers, per spec §4.5-§4.7.
type Pipeline struct {
	Embedder    embedding.Embedder
	Relational  store.RelationalStore
	Content     store.VectorStore // keyed by entity ID, embeds name+observations
	Name        store.VectorStore // keyed by entity ID, embeds name only
	FullText    store.FullTextIndex
	Cache       *cache.Cache
	Reranker    rerank.Reranker
	Weights     Weights
	RRFConstant int
	CacheTTL    time.Duration
	FusionMode  FusionMode

	// Metrics is optional; when nil, instrumentation is skipped.
	Metrics *metrics.Metrics
}

// candidatePoolFactor multiplies Limit to decide how many raw hits to pull
// from each signal before fusion and filtering narrow the pool down.
const candidatePoolFactor = 3

// Search implements spec §4.5: embed, cache lookup, hybrid retrieval,
// filter, decay, boost, optional rerank, cache store.
func (p *Pipeline) Search(ctx context.Context, opts Options) ([]Result, error) {
	start := time.Now()
	now := start
	limit := opts.limitOrDefault()

	if p.Metrics != nil {
		defer func() {
			p.Metrics.SearchDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	queryEmbedding, err := p.Embedder.Embed(ctx, opts.Query)
	if err != nil {
		if p.Metrics != nil {
			p.Metrics.EmbeddingErrors.Add(ctx, 1)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}

	key := cacheKeyFor(opts)
	if p.Cache != nil {
		if entry, ok, err := p.Cache.Lookup(ctx, key, queryEmbedding); err == nil && ok {
			var results []Result
			if err := json.Unmarshal(entry.Results, &results); err == nil {
				if p.Metrics != nil {
					p.Metrics.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", "memory")))
				}
				return results, nil
			}
		}
		if p.Metrics != nil {
			p.Metrics.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", "memory")))
		}
	}

	vectorIndex := p.Content
	if isShortQuery(opts.Query) && len(opts.Kinds) == 0 {
		vectorIndex = p.Name
	}

	poolSize := limit * candidatePoolFactor

	var vec, bm25 []scored
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecHits, err := vectorIndex.Search(gctx, queryEmbedding, poolSize)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		vec = make([]scored, len(vecHits))
		for i, h := range vecHits {
			vec[i] = scored{id: h.ID, score: float64(h.Score), rank: i + 1}
		}
		return nil
	})
	g.Go(func() error {
		bm25Hits, err := p.FullText.Search(gctx, opts.Query, poolSize)
		if err != nil {
			slog.Warn("fulltext_search_degraded", slog.String("error", err.Error()))
			return nil
		}
		bm25 = make([]scored, len(bm25Hits))
		for i, h := range bm25Hits {
			bm25[i] = scored{id: h.DocID, score: h.Score, rank: i + 1}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fusedResults := fuse(p.FusionMode, bm25, vec, p.Weights, p.RRFConstant)

	candidates := p.materialize(ctx, fusedResults, opts, now)

	if opts.Rerank && len(candidates) > 0 {
		candidates = p.applyRerank(ctx, opts.Query, candidates)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{EntityID: c.entity.ID, Score: c.score, Explanation: c.explanation}
	}

	if p.Cache != nil {
		if payload, err := json.Marshal(results); err == nil {
			ttl := p.CacheTTL
			if ttl <= 0 {
				ttl = cache.DefaultMemoryTTL
			}
			_ = p.Cache.Store(ctx, key, cache.Entry{Results: payload, QueryEmbedding: queryEmbedding}, ttl)
		}
	}

	return results, nil
}

// materialize resolves fused IDs to current entities, applies kind/
// metadata/time-range filters, time decay, and context boost.
func (p *Pipeline) materialize(ctx context.Context, fusedResults []fused, opts Options, now time.Time) []candidate {
	var candidates []candidate
	for _, f := range fusedResults {
		e, err := p.Relational.GetEntity(ctx, f.id, now)
		if err != nil || e == nil {
			continue
		}
		if !opts.matchesKind(e) || !opts.matchesMetadata(e) {
			continue
		}
		if opts.TimeRangeHours > 0 && now.Sub(e.Validity.AssertedAt) > time.Duration(opts.TimeRangeHours)*time.Hour {
			continue
		}

		score := f.rrfScore
		explanation := []string{fmt.Sprintf("fused score %.3f (bm25_rank=%d vec_rank=%d)", f.rrfScore, f.bm25Rank, f.vecRank)}

		score = timeDecay(score, e.Validity.AssertedAt, now)

		sessionID, taskID := p.latestContext(ctx, e.ID, now)
		boosted, boostReasons := contextBoost(score, sessionID, taskID, opts.SessionID, opts.TaskID)
		if len(boostReasons) > 0 {
			score = boosted
			explanation = append(explanation, boostReasons...)
		}

		candidates = append(candidates, candidate{entity: e, score: score, explanation: explanation})
	}
	return candidates
}

// latestContext returns the session/task of an entity's most recently
// asserted current observation, used as the entity's representative
// context for the boost step.
func (p *Pipeline) latestContext(ctx context.Context, entityID string, now time.Time) (string, string) {
	obs, err := p.Relational.GetObservationsByEntity(ctx, entityID, now)
	if err != nil || len(obs) == 0 {
		return "", ""
	}
	latest := obs[0]
	for _, o := range obs[1:] {
		if o.Validity.AssertedAt.After(latest.Validity.AssertedAt) {
			latest = o
		}
	}
	return latest.SessionID, latest.TaskID
}

// applyRerank concatenates "name | kind | text | metadata" per candidate
// and submits the batch to the cross-encoder, replacing the fused score
// with the reranker's (normalised) score (spec §4.5 step 7).
func (p *Pipeline) applyRerank(ctx context.Context, query string, candidates []candidate) []candidate {
	docs := make([]string, len(candidates))
	now := time.Now()
	for i, c := range candidates {
		var texts []string
		if obs, err := p.Relational.GetObservationsByEntity(ctx, c.entity.ID, now); err == nil {
			for _, o := range obs {
				texts = append(texts, o.Text)
			}
		}
		docs[i] = rerankDocument(c.entity, texts)
	}

	results, err := p.Reranker.Rerank(ctx, query, docs)
	if err != nil || len(results) != len(candidates) {
		return candidates
	}

	out := make([]candidate, len(candidates))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		c := candidates[r.Index]
		c.score = r.Score
		c.explanation = append(c.explanation, "reranked")
		out[r.Index] = c
	}
	return out
}

func rerankDocument(e *store.Entity, texts []string) string {
	metadata := make([]string, 0, len(e.Metadata))
	for k, v := range e.Metadata {
		metadata = append(metadata, k+"="+v)
	}
	sort.Strings(metadata)
	return fmt.Sprintf("%s | %s | %s | %s", e.Name, e.Kind, strings.Join(texts, " "), strings.Join(metadata, ","))
}

func isShortQuery(query string) bool {
	return len(strings.Fields(query)) <= 3
}

func cacheKeyFor(opts Options) cache.Key {
	return cache.Key{
		Query:            opts.Query,
		Limit:            opts.limitOrDefault(),
		Kinds:            opts.Kinds,
		Metadata:         opts.Metadata,
		TimeRangeHours:   opts.TimeRangeHours,
		Rerank:           opts.Rerank,
		EfSearch:         opts.Vector.EfSearch,
		Radius:           opts.Vector.Radius,
		MaxDepth:         opts.Graph.MaxDepth,
		RequiredRelation: opts.Graph.RequiredRelations,
		TargetIDs:        opts.Graph.TargetIDs,
	}
}
