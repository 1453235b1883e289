// Package retriever implements the hybrid internal/web Passage retrieval
// pipeline: query embedding and vector search against the DART corpus,
// entity-aware reranking, source tagging, and fusion with an optional web
// backend.
package retriever

import (
	"context"

	"github.com/dart-insight/storm-report/internal/model"
)

// Retriever is the public operation every stage of the pipeline drives:
// deterministic given the store snapshot, never raising on a backend
// failure — an empty result is always a valid outcome.
type Retriever interface {
	// Retrieve runs queries (one or more), concatenates results, and
	// dedupes by URL preferring the higher score, returning at most k
	// passages.
	Retrieve(ctx context.Context, queries []string, excludeURLs map[string]bool, k int) ([]model.Passage, error)
}

// mergeByURL concatenates batches and dedupes by URL, keeping the
// higher-scoring passage on conflict.
func mergeByURL(batches ...[]model.Passage) []model.Passage {
	best := make(map[string]model.Passage)
	order := make([]string, 0)
	for _, batch := range batches {
		for _, p := range batch {
			existing, ok := best[p.URL]
			if !ok {
				order = append(order, p.URL)
				best[p.URL] = p
				continue
			}
			if p.Score > existing.Score {
				best[p.URL] = p
			}
		}
	}
	out := make([]model.Passage, 0, len(order))
	for _, url := range order {
		out = append(out, best[url])
	}
	return out
}

// topK sorts passages by descending score and truncates to k. Sort is
// stable so ties preserve first-sighting order, keeping output
// deterministic given identical input ordering.
func topK(passages []model.Passage, k int) []model.Passage {
	sorted := stableSortByScoreDesc(passages)
	if k >= 0 && k < len(sorted) {
		sorted = sorted[:k]
	}
	return sorted
}

func stableSortByScoreDesc(passages []model.Passage) []model.Passage {
	out := make([]model.Passage, len(passages))
	copy(out, passages)
	// insertion sort: stable, fine at the small batch sizes retrieval
	// operates on (tens of passages, not thousands).
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
