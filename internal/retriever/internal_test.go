package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dart-insight/storm-report/internal/embed"
	"github.com/dart-insight/storm-report/internal/model"
	"github.com/dart-insight/storm-report/internal/store"
)

func seedStore(t *testing.T, s *store.MemoryStore, emb *embed.Stub) {
	t.Helper()

	vec := func(name string) []float32 {
		v, err := emb.Embed(context.Background(), name)
		require.NoError(t, err)
		return v
	}

	s.Put(store.Row{
		ID: "r1:c1", ReportID: "r1", ChunkID: "c1", SequenceOrder: 3,
		ChunkType: model.ChunkTypeTable, SectionPath: "3.1 매출", RawContent: "매출 1,234",
		CompanyName: "삼성전자", Metadata: map[string]any{"has_merged_meta": true},
	}, vec("query"))
	s.Put(store.Row{
		ID: "r1:c0", ReportID: "r1", ChunkID: "c0", SequenceOrder: 2,
		ChunkType: model.ChunkTypeText, SectionPath: "3.1 매출", RawContent: "이전 문단",
		CompanyName: "삼성전자",
	}, vec("prev"))
	s.Put(store.Row{
		ID: "r1:c2", ReportID: "r1", ChunkID: "c2", SequenceOrder: 4,
		ChunkType: model.ChunkTypeText, SectionPath: "3.1 매출", RawContent: "다음 문단",
		CompanyName: "삼성전자",
	}, vec("next"))
}

func TestInternalRetriever_WindowAssemblyAndSourceTag(t *testing.T) {
	emb := embed.NewStub(8)
	s := store.NewMemoryStore()
	seedStore(t, s, emb)

	tagger := NewSourceTagger()
	r, err := NewInternalRetriever(context.Background(), s, emb, nil, tagger, InternalRetrieverConfig{})
	require.NoError(t, err)

	out, err := r.Retrieve(context.Background(), []string{"query"}, nil, 1)
	require.NoError(t, err)
	require.Len(t, out, 1)

	snippet := out[0].Snippets[0]
	assert.Contains(t, snippet, "[[Source: 삼성전자 business report (Report ID: r1)]]")
	assert.Contains(t, snippet, "[Previous context] 이전 문단")
	assert.Contains(t, snippet, "[Table] 매출 1,234")
	assert.Contains(t, snippet, "[Next context] 다음 문단")
	assert.Contains(t, snippet, "[Note: merged meta info")
}

func TestInternalRetriever_ExcludesNoiseMergedViaStore(t *testing.T) {
	emb := embed.NewStub(4)
	s := store.NewMemoryStore()
	s.Put(store.Row{ID: "a", ReportID: "r1", ChunkID: "a", ChunkType: model.ChunkTypeNoiseMerged, CompanyName: "삼성전자"}, []float32{1, 0, 0, 0})

	r, err := NewInternalRetriever(context.Background(), s, emb, nil, nil, InternalRetrieverConfig{})
	require.NoError(t, err)

	out, err := r.Retrieve(context.Background(), []string{"query"}, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInternalRetriever_DimensionMismatchFailsFast(t *testing.T) {
	emb := embed.NewStub(4)
	s := store.NewMemoryStore()
	s.Put(store.Row{ID: "a", ReportID: "r1", ChunkID: "a", ChunkType: model.ChunkTypeText, CompanyName: "x"}, make([]float32, 768))

	_, err := NewInternalRetriever(context.Background(), s, emb, nil, nil, InternalRetrieverConfig{})
	require.Error(t, err)
}

func TestInternalRetriever_MultiQueryDedup(t *testing.T) {
	emb := embed.NewStub(8)
	s := store.NewMemoryStore()
	seedStore(t, s, emb)

	r, err := NewInternalRetriever(context.Background(), s, emb, nil, nil, InternalRetrieverConfig{})
	require.NoError(t, err)

	out, err := r.Retrieve(context.Background(), []string{"query", "query"}, nil, 5)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, p := range out {
		assert.False(t, seen[p.URL], "duplicate URL %s", p.URL)
		seen[p.URL] = true
	}
}
