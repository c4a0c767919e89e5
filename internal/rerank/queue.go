package rerank

import (
	"context"
	"sync"
)

// SerialQueue ensures exactly one cross-encoder inference runs at a time,
// mirroring the dedicated work-queue the embedding pipeline uses for its
// own model. A cancelled outer request stops waiting but does not abort
// the in-flight inference.
type SerialQueue struct {
	inner Reranker
	mu    sync.Mutex
}

// NewSerialQueue wraps inner so all Rerank calls are serialised.
func NewSerialQueue(inner Reranker) *SerialQueue {
	return &SerialQueue{inner: inner}
}

type rerankJob struct {
	results []Result
	err     error
}

func (q *SerialQueue) Rerank(ctx context.Context, query string, documents []string) ([]Result, error) {
	done := make(chan rerankJob, 1)
	go func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		results, err := q.inner.Rerank(context.WithoutCancel(ctx), query, documents)
		done <- rerankJob{results: results, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-done:
		return job.results, job.err
	}
}

func (q *SerialQueue) Available(ctx context.Context) bool { return q.inner.Available(ctx) }
func (q *SerialQueue) Close() error                       { return q.inner.Close() }

var _ Reranker = (*SerialQueue)(nil)
