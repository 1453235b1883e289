package store

import (
	"context"
	"math"
	"sort"

	"github.com/dart-insight/storm-report/internal/model"
)

// MemoryStore is an in-memory KnowledgeStore fake for unit tests and for
// local dry runs without a Postgres instance. It performs brute-force
// cosine similarity, which is fine at test scale.
type MemoryStore struct {
	Rows    []Row
	Vectors map[string][]float32 // row.ID -> embedding
	Aliases model.AliasRegistry
	dim     int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Vectors: make(map[string][]float32),
		Aliases: make(model.AliasRegistry),
	}
}

// Put registers a row with its embedding.
func (m *MemoryStore) Put(row Row, embedding []float32) {
	m.Rows = append(m.Rows, row)
	m.Vectors[row.ID] = embedding
	if m.dim == 0 {
		m.dim = len(embedding)
	}
}

func (m *MemoryStore) Dimension(ctx context.Context) (int, error) {
	return m.dim, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *MemoryStore) VectorSearch(ctx context.Context, embedding []float32, k int, excludeURLs map[string]bool) ([]Row, error) {
	type scored struct {
		row Row
		sim float64
	}
	var candidates []scored
	for _, row := range m.Rows {
		if row.ChunkType == model.ChunkTypeNoiseMerged {
			continue
		}
		if excludeURLs[model.InternalPassageURL(row.ReportID, row.ChunkID)] {
			continue
		}
		candidates = append(candidates, scored{row, cosineSimilarity(embedding, m.Vectors[row.ID])})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Row, k)
	for i := 0; i < k; i++ {
		r := candidates[i].row
		r.Similarity = candidates[i].sim
		out[i] = r
	}
	return out, nil
}

func (m *MemoryStore) FetchAdjacent(ctx context.Context, reportID string, sequenceOrder, window int) ([]Row, error) {
	var out []Row
	for _, row := range m.Rows {
		if row.ReportID != reportID {
			continue
		}
		if row.SequenceOrder == sequenceOrder-window || row.SequenceOrder == sequenceOrder+window {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MemoryStore) CompanyAliases(ctx context.Context) (model.AliasRegistry, error) {
	return m.Aliases, nil
}
