// Package cache implements the two-tier retrieval cache: an in-memory,
// TTL-bounded tier backed by an expirable LRU, and a persisted tier backed
// by the store's search_cache table. A cache hit returns the frozen ranked
// list computed for an earlier, fingerprint-identical search.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aman-cerp/agentmem/internal/store"
)

// DefaultMemoryTTL is the in-memory tier's entry lifetime (spec: 5 min).
const DefaultMemoryTTL = 5 * time.Minute

// DefaultMemorySize bounds how many fingerprints the in-memory tier holds.
const DefaultMemorySize = 512

// DefaultNearHitThreshold is the cosine similarity above which an
// unrelated-by-fingerprint query is still considered a cache hit, when
// semantic near-hit matching is enabled.
const DefaultNearHitThreshold = 0.95

// Entry is a single cached retrieval: the caller's opaque serialised ranked
// list plus the query embedding it was computed from, so a later,
// differently-worded query can still be matched by semantic near-hit.
type Entry struct {
	Results        []byte
	QueryEmbedding []float32
	CreatedAt      time.Time
}

// Cache is the retrieval cache described by spec §4.4.
type Cache struct {
	store            store.RelationalStore
	mem              *lru.LRU[string, Entry]
	enableNearHit    bool
	nearHitThreshold float64
}

// Options configures Cache.
type Options struct {
	MemoryTTL        time.Duration
	MemorySize       int
	EnableNearHit    bool
	NearHitThreshold float64
}

// New builds a Cache backed by rs for its persisted tier.
func New(rs store.RelationalStore, opts Options) *Cache {
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = DefaultMemoryTTL
	}
	if opts.MemorySize <= 0 {
		opts.MemorySize = DefaultMemorySize
	}
	if opts.NearHitThreshold <= 0 {
		opts.NearHitThreshold = DefaultNearHitThreshold
	}
	return &Cache{
		store:            rs,
		mem:              lru.NewLRU[string, Entry](opts.MemorySize, nil, opts.MemoryTTL),
		enableNearHit:    opts.EnableNearHit,
		nearHitThreshold: opts.NearHitThreshold,
	}
}

// Lookup checks the in-memory tier, then the persisted tier, then
// (if enabled) a semantic near-hit scan of the in-memory tier's surviving
// entries. queryEmbedding may be nil, which disables the near-hit path for
// this call regardless of configuration.
func (c *Cache) Lookup(ctx context.Context, key Key, queryEmbedding []float32) (Entry, bool, error) {
	fp := key.Fingerprint()

	if entry, ok := c.mem.Get(fp); ok {
		return entry, true, nil
	}

	payload, ok, err := c.store.GetCachedResult(ctx, fp)
	if err != nil {
		return Entry{}, false, err
	}
	if ok {
		entry, err := decodeEntry(payload)
		if err != nil {
			return Entry{}, false, err
		}
		c.mem.Add(fp, entry)
		return entry, true, nil
	}

	if c.enableNearHit && queryEmbedding != nil {
		if entry, ok := c.nearHitScan(queryEmbedding); ok {
			return entry, true, nil
		}
	}

	return Entry{}, false, nil
}

// nearHitScan looks for an in-memory entry whose query embedding is within
// nearHitThreshold cosine similarity of queryEmbedding. Only the in-memory
// tier is scanned: the persisted tier can hold far more rows than it is
// worth a full-table scan to check on every miss, and recently-served
// queries are the ones most likely to recur under a slightly different
// phrasing.
func (c *Cache) nearHitScan(queryEmbedding []float32) (Entry, bool) {
	var best Entry
	bestScore := -2.0
	for _, entry := range c.mem.Values() {
		if len(entry.QueryEmbedding) != len(queryEmbedding) {
			continue
		}
		score := cosineSimilarity(entry.QueryEmbedding, queryEmbedding)
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}
	if bestScore >= c.nearHitThreshold {
		return best, true
	}
	return Entry{}, false
}

// Store writes a new entry to both tiers, expiring it from the persisted
// tier after ttl.
func (c *Cache) Store(ctx context.Context, key Key, entry Entry, ttl time.Duration) error {
	fp := key.Fingerprint()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	c.mem.Add(fp, entry)

	payload, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return c.store.PutCachedResult(ctx, fp, payload, entry.CreatedAt.Add(ttl))
}

// Invalidate removes a single fingerprint from the in-memory tier. The
// persisted tier expires on its own TTL; mutations don't target specific
// fingerprints since entity/relationship edits can affect cache rows they
// never directly reference.
func (c *Cache) Invalidate(key Key) {
	c.mem.Remove(key.Fingerprint())
}

// EvictExpired removes persisted rows whose TTL has passed asOf.
func (c *Cache) EvictExpired(ctx context.Context, asOf time.Time) (int, error) {
	return c.store.EvictExpiredCacheEntries(ctx, asOf)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
