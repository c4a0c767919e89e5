package rerank

import (
	"context"
	"log/slog"
)

// FailSoft wraps a Reranker so a failed or unavailable cross-encoder never
// propagates to the caller: it degrades to the pre-rerank candidate order
// with neutral scores, as required of the reranker error kind.
type FailSoft struct {
	inner Reranker
}

// Wrap returns a Reranker that never returns an error from Rerank.
func Wrap(inner Reranker) *FailSoft {
	return &FailSoft{inner: inner}
}

func (f *FailSoft) Rerank(ctx context.Context, query string, documents []string) ([]Result, error) {
	results, err := f.inner.Rerank(ctx, query, documents)
	if err != nil {
		slog.Warn("reranker_degraded", slog.String("error", err.Error()), slog.Int("documents", len(documents)))
		return neutralOrder(len(documents)), nil
	}
	return results, nil
}

func (f *FailSoft) Available(ctx context.Context) bool { return f.inner.Available(ctx) }
func (f *FailSoft) Close() error                       { return f.inner.Close() }

var _ Reranker = (*FailSoft)(nil)
