package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/agentmem/internal/config"
)

func TestNoOpReranker_Rerank_PreservesOrder(t *testing.T) {
	r := NoOpReranker{}
	results, err := r.Rerank(context.Background(), "query", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 0, results[0].Index)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, 1, results[1].Index)
	assert.InDelta(t, 0.99, results[1].Score, 1e-9)
}

func TestNeutralOrder_ClampsAtZeroBeyondAHundredCandidates(t *testing.T) {
	results := neutralOrder(150)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	assert.Equal(t, 0.0, results[149].Score)
}

func TestNoOpReranker_Rerank_EmptyDocuments(t *testing.T) {
	r := NoOpReranker{}
	results, err := r.Rerank(context.Background(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// failingReranker always errors, to exercise FailSoft's degrade path.
type failingReranker struct{ closed bool }

func (f *failingReranker) Rerank(_ context.Context, _ string, documents []string) ([]Result, error) {
	return nil, fmt.Errorf("cross-encoder unreachable")
}
func (f *failingReranker) Available(_ context.Context) bool { return false }
func (f *failingReranker) Close() error                     { f.closed = true; return nil }

func TestFailSoft_Rerank_DegradesToInputOrderOnError(t *testing.T) {
	inner := &failingReranker{}
	r := Wrap(inner)

	results, err := r.Rerank(context.Background(), "query", []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
	assert.Greater(t, results[0].Score, results[1].Score)
}

// slowReranker records concurrent-call high-water-mark so SerialQueue's
// mutual exclusion can be verified.
type slowReranker struct {
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (s *slowReranker) Rerank(ctx context.Context, _ string, documents []string) ([]Result, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		max := atomic.LoadInt32(&s.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&s.maxSeen, max, n) {
			break
		}
	}
	time.Sleep(s.delay)
	atomic.AddInt32(&s.inFlight, -1)
	return neutralOrder(len(documents)), nil
}
func (s *slowReranker) Available(_ context.Context) bool { return true }
func (s *slowReranker) Close() error                     { return nil }

func TestSerialQueue_Rerank_SerializesConcurrentCalls(t *testing.T) {
	inner := &slowReranker{delay: 20 * time.Millisecond}
	q := NewSerialQueue(inner)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Rerank(context.Background(), "q", []string{"a"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.maxSeen))
}

func TestSerialQueue_Rerank_CancelledContextStopsWaiting(t *testing.T) {
	inner := &slowReranker{delay: 50 * time.Millisecond}
	q := NewSerialQueue(inner)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := q.Rerank(ctx, "q", []string{"a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPReranker_Rerank_NormalizesRawLogitsIntoUnitRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_ = json.NewEncoder(w).Encode(rerankResponse{Results: []struct {
			Index int     `json:"index"`
			Score float64 `json:"score"`
		}{
			{Index: 0, Score: 3.5},
			{Index: 1, Score: -2.0},
		}})
	}))
	defer srv.Close()

	r, err := NewHTTPReranker(context.Background(), HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
	}
	assert.Greater(t, results[0].Score, results[1].Score, "a higher raw logit must still normalize to a higher score")
}

func TestNew_NoEndpoint_ReturnsNoOp(t *testing.T) {
	r, err := New(context.Background(), config.RerankerConfig{})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
