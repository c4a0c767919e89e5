package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestDocs(n int) []*Document {
	docs := make([]*Document, n)
	for i := 0; i < n; i++ {
		docs[i] = &Document{
			ID:      fmt.Sprintf("doc-%d", i),
			Content: fmt.Sprintf("entity number %d handles user authentication and session management", i),
		}
	}
	return docs
}

// TS01: basic index and search round trip.
func TestBleveFullTextIndex_IndexAndSearch_Basic(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	docs := []*Document{
		{ID: "e1", Content: "Alice works on the billing service"},
		{ID: "e2", Content: "Bob maintains the authentication module"},
	}
	require.NoError(t, idx.Index(ctx, docs))

	results, err := idx.Search(ctx, "billing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].DocID)
}

// TS02: camelCase identifiers are split into matchable component words.
func TestBleveFullTextIndex_Search_FindsCamelCase(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	docs := []*Document{{ID: "e1", Content: "the getUserById handler fetches a profile"}}
	require.NoError(t, idx.Index(ctx, docs))

	results, err := idx.Search(ctx, "user", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

// TS03: snake_case identifiers are split the same way.
func TestBleveFullTextIndex_Search_FindsSnakeCase(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	docs := []*Document{{ID: "e1", Content: "set max_retries before calling the client"}}
	require.NoError(t, idx.Index(ctx, docs))

	results, err := idx.Search(ctx, "retries", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

// TS04: documents matching more query terms rank above partial matches.
func TestBleveFullTextIndex_Search_MultiTermRanking(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	docs := []*Document{
		{ID: "full", Content: "authentication session token refresh"},
		{ID: "partial", Content: "authentication only"},
	}
	require.NoError(t, idx.Index(ctx, docs))

	results, err := idx.Search(ctx, "authentication session token", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "full", results[0].DocID)
}

// TS05: rarer terms contribute more to the score than common ones.
func TestBleveFullTextIndex_Search_IDFAffectsRanking(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	docs := []*Document{
		{ID: "common1", Content: "entity one"},
		{ID: "common2", Content: "entity two"},
		{ID: "common3", Content: "entity three"},
		{ID: "rare", Content: "quetzalcoatl sighting"},
	}
	require.NoError(t, idx.Index(ctx, docs))

	// Each document matches exactly one query term; only the term's rarity
	// separates "rare" from the others.
	results, err := idx.Search(ctx, "entity quetzalcoatl", 10)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "rare", results[0].DocID)
}

// TS06: deleted documents stop matching.
func TestBleveFullTextIndex_Delete_RemovesDocument(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "e1", Content: "billing service owner"}}))

	results, err := idx.Search(ctx, "billing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NoError(t, idx.Delete(ctx, []string{"e1"}))

	results, err = idx.Search(ctx, "billing", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TS07: a fresh disk-backed index reopens the same documents without a
// separate Save call, since Bleve persists its segments as it writes.
func TestBleveFullTextIndex_Persistence_RoundTrip(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "fulltext")

	idx, err := NewBleveFullTextIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "e1", Content: "billing service owner"}}))
	require.NoError(t, idx.Close())

	reopened, err := NewBleveFullTextIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, "billing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "e1", results[0].DocID)
}

// TS08: an empty or whitespace-only query returns no results, not an error.
func TestBleveFullTextIndex_Search_EmptyQuery(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "e1", Content: "billing service owner"}}))

	results, err := idx.Search(ctx, "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TS09: Stats reports an accurate document count.
func TestBleveFullTextIndex_Stats_Accuracy(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, generateTestDocs(5)))
	assert.Equal(t, 5, idx.Stats().DocumentCount)
}

func TestBleveFullTextIndex_Index_EmptyDocs(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(context.Background(), []*Document{}))
	assert.Equal(t, 0, idx.Stats().DocumentCount)
}

func TestBleveFullTextIndex_Index_NilDocs(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(context.Background(), nil))
}

func TestBleveFullTextIndex_Close_Idempotent(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
}

func TestBleveFullTextIndex_Search_AfterClose(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Search(context.Background(), "billing", 10)
	assert.Error(t, err)
}

func TestBleveFullTextIndex_Search_MatchedTerms(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "e1", Content: "billing service authentication"}}))

	results, err := idx.Search(ctx, "billing authentication", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].MatchedTerms)
}

func TestBleveFullTextIndex_Delete_NonExistent(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Delete(context.Background(), []string{"does-not-exist"}))
}

func TestBleveFullTextIndex_PersistentPath_CreatesDirectory(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "nested", "dir", "fulltext")

	idx, err := NewBleveFullTextIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	_, err = os.Stat(filepath.Dir(indexPath))
	require.NoError(t, err)
}

// Regression test for a historical race between concurrent searches while
// documents are still being indexed (BUG-003). Unlike the teacher's
// original, this index has no hot-reload path, so the race surface here is
// concurrent Search/Index rather than Search racing a Load.
func TestBleveFullTextIndex_ConcurrentIndexAndSearch(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, generateTestDocs(20)))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.Search(ctx, "entity", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func BenchmarkBleveFullTextIndex_Index_1K(b *testing.B) {
	docs := generateTestDocs(1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx, _ := NewBleveFullTextIndex("", DefaultBM25Config())
		_ = idx.Index(context.Background(), docs)
		idx.Close()
	}
}

func BenchmarkBleveFullTextIndex_Index_10K(b *testing.B) {
	docs := generateTestDocs(10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx, _ := NewBleveFullTextIndex("", DefaultBM25Config())
		_ = idx.Index(context.Background(), docs)
		idx.Close()
	}
}

func BenchmarkBleveFullTextIndex_Search(b *testing.B) {
	idx, _ := NewBleveFullTextIndex("", DefaultBM25Config())
	defer idx.Close()
	_ = idx.Index(context.Background(), generateTestDocs(1000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(context.Background(), "entity authentication", 10)
	}
}

func writeIndexMeta(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), content, 0o644))
}

func TestBleveFullTextIndex_CorruptedEmptyMetaJSON(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "fulltext")
	writeIndexMeta(t, indexPath, []byte{})

	idx, err := NewBleveFullTextIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, 0, idx.Stats().DocumentCount)
}

func TestBleveFullTextIndex_CorruptedInvalidJSON(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "fulltext")
	writeIndexMeta(t, indexPath, []byte("not json"))

	idx, err := NewBleveFullTextIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, 0, idx.Stats().DocumentCount)
}

func TestBleveFullTextIndex_MissingMetaJSON(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "fulltext")
	require.NoError(t, os.MkdirAll(indexPath, 0o755))

	idx, err := NewBleveFullTextIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, 0, idx.Stats().DocumentCount)
}

func TestBleveFullTextIndex_ValidIndexNotCleared(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "fulltext")

	idx, err := NewBleveFullTextIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "e1", Content: "billing service owner"}}))
	require.NoError(t, idx.Close())

	reopened, err := NewBleveFullTextIndex(indexPath, DefaultBM25Config())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Stats().DocumentCount)
}

func TestValidateIndexIntegrity(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(dir string)
		wantError bool
	}{
		{"missing directory", func(dir string) {}, false},
		{"missing meta file", func(dir string) { require.NoError(t, os.MkdirAll(dir, 0o755)) }, true},
		{"empty meta file", func(dir string) { writeIndexMeta(t, dir, []byte{}) }, true},
		{"invalid json", func(dir string) { writeIndexMeta(t, dir, []byte("nope")) }, true},
		{"valid json", func(dir string) { writeIndexMeta(t, dir, []byte(`{"storage":"scorch"}`)) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "idx")
			tt.setup(dir)
			err := validateIndexIntegrity(dir)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsCorruptionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unexpected eof", fmt.Errorf("unexpected end of JSON input"), true},
		{"mapping parse", fmt.Errorf("error parsing mapping JSON"), true},
		{"segment load", fmt.Errorf("failed to load segment 3"), true},
		{"bolt open", fmt.Errorf("error opening bolt database"), true},
		{"not found", fmt.Errorf("no such file or directory"), true},
		{"unrelated", fmt.Errorf("permission denied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCorruptionError(tt.err))
		})
	}
}

func TestBleveFullTextIndex_AllIDs_Empty(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBleveFullTextIndex_AllIDs_WithDocuments(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(context.Background(), generateTestDocs(3)))
	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestBleveFullTextIndex_AllIDs_AfterDelete(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, generateTestDocs(3)))
	require.NoError(t, idx.Delete(ctx, []string{"doc-0"}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestBleveFullTextIndex_AllIDs_ClosedIndex(t *testing.T) {
	idx, err := NewBleveFullTextIndex("", DefaultBM25Config())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.AllIDs()
	assert.Error(t, err)
}
