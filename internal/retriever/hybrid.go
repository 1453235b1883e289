package retriever

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dart-insight/storm-report/internal/model"
)

// defaultInternalScoreThreshold is the internal top-score floor below
// which web results are admitted into the fused result set.
const defaultInternalScoreThreshold = 0.6

// HybridRetriever fuses InternalRetriever and an optional WebRetriever.
// Both backends run concurrently; a failure in either is tolerated as
// long as the other produces results, matching the "never raise to the
// caller" contract every Retriever implementation shares.
type HybridRetriever struct {
	internal  Retriever
	web       WebRetriever
	threshold float64
}

// HybridRetrieverConfig configures score-threshold behavior. Zero Threshold
// falls back to the spec default of 0.6.
type HybridRetrieverConfig struct {
	Threshold float64
}

// NewHybridRetriever constructs a HybridRetriever. web may be nil, in
// which case Retrieve behaves exactly like the internal retriever alone.
func NewHybridRetriever(internal Retriever, web WebRetriever, cfg HybridRetrieverConfig) *HybridRetriever {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = defaultInternalScoreThreshold
	}
	return &HybridRetriever{internal: internal, web: web, threshold: threshold}
}

func (h *HybridRetriever) Retrieve(ctx context.Context, queries []string, excludeURLs map[string]bool, k int) ([]model.Passage, error) {
	var internalResults []model.Passage
	var webResults []model.Passage

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := h.internal.Retrieve(gctx, queries, excludeURLs, k)
		if err != nil {
			zap.L().Warn("hybrid retriever: internal backend failed", zap.Error(err))
			return nil
		}
		internalResults = res
		return nil
	})

	if h.web != nil {
		g.Go(func() error {
			var batches [][]model.Passage
			for _, q := range queries {
				res, err := h.web.RetrieveWeb(gctx, q, k)
				if err != nil {
					zap.L().Warn("hybrid retriever: web backend failed", zap.Error(err))
					continue
				}
				batches = append(batches, res)
			}
			webResults = mergeByURL(batches...)
			return nil
		})
	}

	// errgroup's functions never return a non-nil error above — both
	// backend failures are absorbed and logged rather than propagated,
	// per the "both failing yields an empty list" contract.
	_ = g.Wait()

	if len(internalResults) == 0 || internalResults[0].Score >= h.threshold {
		webResults = nil
	}

	merged := mergePreferFirst(internalResults, webResults)
	return topK(merged, k), nil
}

// mergePreferFirst concatenates batches and dedupes by URL, keeping
// whichever passage was seen first on conflict — batches must be passed
// with the preferred source first. Internal and web URLs use disjoint
// prefixes so conflicts are not expected in practice; this still honors
// "internal wins" as a documented tie-break.
func mergePreferFirst(batches ...[]model.Passage) []model.Passage {
	seen := make(map[string]model.Passage)
	order := make([]string, 0)
	for _, batch := range batches {
		for _, p := range batch {
			if _, ok := seen[p.URL]; ok {
				continue
			}
			seen[p.URL] = p
			order = append(order, p.URL)
		}
	}
	out := make([]model.Passage, 0, len(order))
	for _, url := range order {
		out = append(out, seen[url])
	}
	return out
}
