// Package store provides the read-only KnowledgeStore external interface
// and its implementations: a Postgres/pgvector-backed store against the
// DART ingestion corpus, and an in-memory fake for tests.
package store

import (
	"context"

	"github.com/dart-insight/storm-report/internal/model"
)

// Row is a single chunk surfaced by the KnowledgeStore, already joined
// against AnalysisReports and Companies.
type Row struct {
	ID            string
	ReportID      string
	ChunkID       string
	SequenceOrder int
	ChunkType     model.ChunkType
	SectionPath   string
	RawContent    string
	Metadata      map[string]any
	CompanyName   string
	Similarity    float64
}

// HasMergedMeta reports whether this row's metadata flags it as needing
// adjacent context to recover units/base-dates.
func (r Row) HasMergedMeta() bool {
	v, ok := r.Metadata["has_merged_meta"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// KnowledgeStore is the read-only external interface the InternalRetriever
// queries. It is owned and populated by the (out-of-scope) ingestion
// pipeline; this package only reads from it.
type KnowledgeStore interface {
	// Dimension returns the fixed vector dimension of the stored
	// embeddings. The caller MUST assert this matches the embedder's
	// output dimension at startup and refuse to run on mismatch.
	Dimension(ctx context.Context) (int, error)

	// VectorSearch joins SourceMaterials -> AnalysisReports -> Companies,
	// excludes noise_merged and excludeURLs rows, and returns the top k
	// rows by cosine similarity against embedding.
	VectorSearch(ctx context.Context, embedding []float32, k int, excludeURLs map[string]bool) ([]Row, error)

	// FetchAdjacent returns rows from the same report at
	// sequenceOrder-window and sequenceOrder+window, for sliding-window
	// context assembly around table chunks.
	FetchAdjacent(ctx context.Context, reportID string, sequenceOrder, window int) ([]Row, error)

	// CompanyAliases returns the canonical-name -> alias-set registry
	// used by the EntityAwareReranker for query-intent target extraction.
	CompanyAliases(ctx context.Context) (model.AliasRegistry, error)
}
