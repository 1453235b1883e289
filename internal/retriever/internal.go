package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dart-insight/storm-report/internal/embed"
	"github.com/dart-insight/storm-report/internal/model"
	"github.com/dart-insight/storm-report/internal/store"
)

// InternalRetriever implements Retriever against the DART KnowledgeStore:
// embed, vector search, sliding-window context assembly around table
// chunks, entity-aware reranking, then source tagging.
type InternalRetriever struct {
	store             store.KnowledgeStore
	embedder          embed.Embedder
	reranker          *EntityAwareReranker
	tagger            *SourceTagger
	windowExpandFactor int
	window            int
}

// InternalRetrieverConfig configures an InternalRetriever. Zero values
// fall back to the spec's recommended defaults.
type InternalRetrieverConfig struct {
	WindowExpandFactor int // default 3
	Window             int // default 1
}

// NewInternalRetriever constructs an InternalRetriever, asserting at
// startup that the embedder's output dimension matches the store's
// stored vector dimension — a mismatch is a ConfigurationError, not a
// runtime condition to recover from.
func NewInternalRetriever(ctx context.Context, s store.KnowledgeStore, embedder embed.Embedder, reranker *EntityAwareReranker, tagger *SourceTagger, cfg InternalRetrieverConfig) (*InternalRetriever, error) {
	storeDim, err := s.Dimension(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "internal retriever: probe store dimension")
	}
	if storeDim > 0 && storeDim != embedder.Dimension() {
		return nil, eris.New(fmt.Sprintf(
			"internal retriever: embedding dimension mismatch: embedder=%d store=%d",
			embedder.Dimension(), storeDim))
	}

	if cfg.WindowExpandFactor <= 0 {
		cfg.WindowExpandFactor = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 1
	}

	return &InternalRetriever{
		store:              s,
		embedder:           embedder,
		reranker:           reranker,
		tagger:             tagger,
		windowExpandFactor: cfg.WindowExpandFactor,
		window:             cfg.Window,
	}, nil
}

func (r *InternalRetriever) Retrieve(ctx context.Context, queries []string, excludeURLs map[string]bool, k int) ([]model.Passage, error) {
	var batches [][]model.Passage
	for _, q := range queries {
		passages, err := r.retrieveOne(ctx, q, excludeURLs, k)
		if err != nil {
			// A single malformed query should not fail the whole
			// multi-query call; skip it and continue with the rest.
			continue
		}
		batches = append(batches, passages)
	}
	merged := mergeByURL(batches...)
	return topK(merged, k), nil
}

func (r *InternalRetriever) retrieveOne(ctx context.Context, query string, excludeURLs map[string]bool, k int) ([]model.Passage, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "internal retriever: embed query")
	}

	kPrime := k * r.windowExpandFactor
	rows, err := r.store.VectorSearch(ctx, embedding, kPrime, excludeURLs)
	if err != nil {
		return nil, eris.Wrap(err, "internal retriever: vector search")
	}

	passages := make([]model.Passage, 0, len(rows))
	for _, row := range rows {
		content := row.RawContent
		if row.ChunkType == model.ChunkTypeTable {
			content = r.assembleWindow(ctx, row)
		}
		passages = append(passages, model.Passage{
			URL:           model.InternalPassageURL(row.ReportID, row.ChunkID),
			Title:         row.SectionPath,
			Snippets:      []string{content},
			Score:         row.Similarity,
			SourceTag:     row.CompanyName,
			ChunkID:       row.ChunkID,
			ReportID:      row.ReportID,
			CompanyName:   row.CompanyName,
			ChunkType:     row.ChunkType,
			SequenceOrder: row.SequenceOrder,
			HasMergedMeta: row.HasMergedMeta(),
		})
	}

	if r.reranker != nil {
		passages = r.reranker.Rerank(query, passages)
	}
	if r.tagger != nil {
		passages = r.tagger.Tag(passages)
	}

	return topK(passages, k), nil
}

// assembleWindow composes "[Previous context] ... [Table] ... [Next
// context] ..." around a table row, fetching the adjacent rows at
// sequence_order ± window. Missing adjacent rows are rendered as empty
// context rather than failing the retrieval.
func (r *InternalRetriever) assembleWindow(ctx context.Context, row store.Row) string {
	adjacent, err := r.store.FetchAdjacent(ctx, row.ReportID, row.SequenceOrder, r.window)
	if err != nil {
		adjacent = nil
	}

	var prev, next string
	for _, a := range adjacent {
		switch {
		case a.SequenceOrder == row.SequenceOrder-r.window:
			prev = a.RawContent
		case a.SequenceOrder == row.SequenceOrder+r.window:
			next = a.RawContent
		}
	}

	var b strings.Builder
	if row.HasMergedMeta() {
		b.WriteString("[Note: merged meta info — consult adjacent context for units/base-dates.]\n")
	}
	fmt.Fprintf(&b, "[Previous context] %s [Table] %s [Next context] %s", prev, row.RawContent, next)
	return b.String()
}
