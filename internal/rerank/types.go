// Package rerank scores (query, document) pairs with a cross-encoder and
// reorders candidates by relevance. Reranking is the last, most expensive
// step of a search request and is opt-in per call.
package rerank

import (
	"context"
	"math"
)

// Result is a single reranked candidate.
type Result struct {
	// Index is the candidate's position in the input documents slice.
	Index int
	// Score is the cross-encoder relevance score, normalised into [0, 1].
	Score float64
}

// Reranker scores and reorders documents by relevance to a query.
// Implementations must return a slice the same length as documents, sorted
// by Score descending, and must never return an error that the caller is
// required to propagate: callers wrap a Reranker in FailSoft to guarantee
// degradation to input order.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]Result, error)
	Available(ctx context.Context) bool
	Close() error
}

// neutralOrder assigns strictly decreasing scores that preserve input order.
// Used both by NoOpReranker and by FailSoft's failure path. Scores are
// clamped at 0 so a batch larger than 100 candidates still satisfies the
// [0, 1] contract on Result.Score.
func neutralOrder(n int) []Result {
	results := make([]Result, n)
	for i := range results {
		score := 1.0 - float64(i)*0.01
		if score < 0 {
			score = 0
		}
		results[i] = Result{Index: i, Score: score}
	}
	return results
}

// normalizeScore maps an unbounded cross-encoder logit onto [0, 1] with a
// standard logistic sigmoid, so a Reranker backend that returns raw logits
// still honours Result.Score's [0, 1] contract.
func normalizeScore(raw float64) float64 {
	return 1.0 / (1.0 + math.Exp(-raw))
}
