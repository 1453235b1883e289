package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dart-insight/storm-report/internal/model"
)

type stubRetriever struct {
	out []model.Passage
	err error
}

func (s *stubRetriever) Retrieve(ctx context.Context, queries []string, excludeURLs map[string]bool, k int) ([]model.Passage, error) {
	return s.out, s.err
}

type stubWebRetriever struct {
	out []model.Passage
	err error
}

func (s *stubWebRetriever) RetrieveWeb(ctx context.Context, query string, k int) ([]model.Passage, error) {
	return s.out, s.err
}

func TestHybridRetriever_AdmitsWebBelowThreshold(t *testing.T) {
	internal := &stubRetriever{out: []model.Passage{{URL: "i1", Score: 0.3}}}
	web := &stubWebRetriever{out: []model.Passage{{URL: "w1", Score: 0.9}}}

	h := NewHybridRetriever(internal, web, HybridRetrieverConfig{})
	out, err := h.Retrieve(context.Background(), []string{"q"}, nil, 5)
	require.NoError(t, err)

	var urls []string
	for _, p := range out {
		urls = append(urls, p.URL)
	}
	assert.Contains(t, urls, "w1")
}

func TestHybridRetriever_PrefersInternalAboveThreshold(t *testing.T) {
	internal := &stubRetriever{out: []model.Passage{{URL: "i1", Score: 0.95}}}
	web := &stubWebRetriever{out: []model.Passage{{URL: "w1", Score: 0.99}}}

	h := NewHybridRetriever(internal, web, HybridRetrieverConfig{})
	out, err := h.Retrieve(context.Background(), []string{"q"}, nil, 5)
	require.NoError(t, err)

	var urls []string
	for _, p := range out {
		urls = append(urls, p.URL)
	}
	assert.NotContains(t, urls, "w1")
}

func TestHybridRetriever_BothBackendsFailYieldsEmpty(t *testing.T) {
	internal := &stubRetriever{err: assertErr("internal down")}
	web := &stubWebRetriever{err: assertErr("web down")}

	h := NewHybridRetriever(internal, web, HybridRetrieverConfig{})
	out, err := h.Retrieve(context.Background(), []string{"q"}, nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestHybridRetriever_NilWebBehavesLikeInternalOnly(t *testing.T) {
	internal := &stubRetriever{out: []model.Passage{{URL: "i1", Score: 0.1}}}
	h := NewHybridRetriever(internal, nil, HybridRetrieverConfig{})
	out, err := h.Retrieve(context.Background(), []string{"q"}, nil, 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "i1", out[0].URL)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
