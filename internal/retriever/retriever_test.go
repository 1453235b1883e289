package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dart-insight/storm-report/internal/model"
)

func TestMergeByURL_PrefersHigherScore(t *testing.T) {
	a := []model.Passage{{URL: "u1", Score: 0.4}}
	b := []model.Passage{{URL: "u1", Score: 0.9}, {URL: "u2", Score: 0.2}}
	merged := mergeByURL(a, b)
	assert.Len(t, merged, 2)
	for _, p := range merged {
		if p.URL == "u1" {
			assert.Equal(t, 0.9, p.Score)
		}
	}
}

func TestTopK_Truncates(t *testing.T) {
	passages := []model.Passage{{URL: "a", Score: 0.1}, {URL: "b", Score: 0.9}, {URL: "c", Score: 0.5}}
	out := topK(passages, 2)
	assert.Len(t, out, 2)
	assert.Equal(t, "b", out[0].URL)
	assert.Equal(t, "c", out[1].URL)
}

func TestMergePreferFirst_InternalWinsOnConflict(t *testing.T) {
	internal := []model.Passage{{URL: "dart_report_r1_chunk_c1", Score: 0.3, SourceTag: "internal"}}
	web := []model.Passage{{URL: "dart_report_r1_chunk_c1", Score: 0.99, SourceTag: "web"}}
	merged := mergePreferFirst(internal, web)
	assert.Len(t, merged, 1)
	assert.Equal(t, "internal", merged[0].SourceTag)
}
