package embedding

import (
	"context"
	"sync"
)

// SerialQueue ensures exactly one inference runs at a time against the
// wrapped embedder, FIFO per caller. A cancelled outer request stops
// waiting for its result but does not abort the in-flight inference; the
// computed vector is still cached by whatever CachedEmbedder sits below,
// so a retry benefits.
type SerialQueue struct {
	inner Embedder
	mu    sync.Mutex // held for the duration of one inference call
}

// NewSerialQueue wraps inner so all Embed/EmbedBatch calls are serialised.
func NewSerialQueue(inner Embedder) *SerialQueue {
	return &SerialQueue{inner: inner}
}

type embedJob struct {
	vec  []float32
	vecs [][]float32
	err  error
}

// Embed queues a single-text embedding request.
func (q *SerialQueue) Embed(ctx context.Context, text string) ([]float32, error) {
	done := make(chan embedJob, 1)
	go func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		vec, err := q.inner.Embed(context.WithoutCancel(ctx), text)
		done <- embedJob{vec: vec, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-done:
		return job.vec, job.err
	}
}

// EmbedBatch queues a batch embedding request.
func (q *SerialQueue) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	done := make(chan embedJob, 1)
	go func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		vecs, err := q.inner.EmbedBatch(context.WithoutCancel(ctx), texts)
		done <- embedJob{vecs: vecs, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case job := <-done:
		return job.vecs, job.err
	}
}

func (q *SerialQueue) Dimensions() int                    { return q.inner.Dimensions() }
func (q *SerialQueue) ModelName() string                  { return q.inner.ModelName() }
func (q *SerialQueue) Available(ctx context.Context) bool { return q.inner.Available(ctx) }
func (q *SerialQueue) Close() error                       { return q.inner.Close() }

var _ Embedder = (*SerialQueue)(nil)
