package rerank

import "context"

// NoOpReranker leaves documents in their original order. Used when no
// reranker endpoint is configured.
type NoOpReranker struct{}

func (NoOpReranker) Rerank(_ context.Context, _ string, documents []string) ([]Result, error) {
	return neutralOrder(len(documents)), nil
}

func (NoOpReranker) Available(_ context.Context) bool { return true }
func (NoOpReranker) Close() error                     { return nil }

var _ Reranker = NoOpReranker{}
