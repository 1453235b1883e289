package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dart-insight/storm-report/internal/model"
)

func aliasesFor(canonical string, aliases ...string) model.AliasRegistry {
	set := make(map[string]struct{})
	for _, a := range aliases {
		set[a] = struct{}{}
	}
	return model.AliasRegistry{canonical: set}
}

func TestClassifyIntent(t *testing.T) {
	assert.Equal(t, intentAnalytical, classifyIntent("삼성전자와 SK하이닉스 경쟁 분석"))
	assert.Equal(t, intentFactoid, classifyIntent("삼성전자 본사 주소"))
	assert.Equal(t, intentAnalytical, classifyIntent("아무 키워드도 없는 질문"))
}

func TestRerank_NoTargetReturnsUnchanged(t *testing.T) {
	r := NewEntityAwareReranker(aliasesFor("삼성전자", "삼전"))
	passages := []model.Passage{{URL: "a", Title: "LG전자 보고서", Score: 0.5}}
	out := r.Rerank("아무 관련 없는 질문", passages)
	assert.Equal(t, passages, out)
}

func TestRerank_FactoidDropsUnmatched(t *testing.T) {
	r := NewEntityAwareReranker(aliasesFor("삼성전자", "삼전"))
	passages := []model.Passage{
		{URL: "a", Title: "삼성전자 본사", Score: 0.5, ChunkType: model.ChunkTypeText},
		{URL: "b", Title: "LG전자 본사", Score: 0.9, ChunkType: model.ChunkTypeText},
	}
	out := r.Rerank("삼성전자 본사 주소", passages)
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].URL)
}

func TestRerank_AnalyticalDropsUnmatchedTableKeepsUnmatchedTextPenalized(t *testing.T) {
	r := NewEntityAwareReranker(aliasesFor("삼성전자", "삼전"))
	passages := []model.Passage{
		{URL: "table", Title: "LG전자 재무제표", Score: 0.8, ChunkType: model.ChunkTypeTable},
		{URL: "text", Title: "LG전자 개요", Score: 0.8, ChunkType: model.ChunkTypeText},
		{URL: "matched", Title: "삼성전자 개요", Score: 0.5, ChunkType: model.ChunkTypeText},
	}
	out := r.Rerank("삼성전자 경쟁사 분석", passages)

	var urls []string
	for _, p := range out {
		urls = append(urls, p.URL)
	}
	assert.NotContains(t, urls, "table")
	assert.Contains(t, urls, "text")
	assert.Contains(t, urls, "matched")

	for _, p := range out {
		if p.URL == "text" {
			assert.InDelta(t, 0.4, p.Score, 1e-9)
		}
		if p.URL == "matched" {
			assert.InDelta(t, 0.65, p.Score, 1e-9)
		}
	}
}

func TestRerank_ResortsByAdjustedScore(t *testing.T) {
	r := NewEntityAwareReranker(aliasesFor("삼성전자", "삼전"))
	passages := []model.Passage{
		{URL: "unmatched", Title: "LG전자 개요", Score: 0.9, ChunkType: model.ChunkTypeText},
		{URL: "matched", Title: "삼성전자 개요", Score: 0.5, ChunkType: model.ChunkTypeText},
	}
	out := r.Rerank("삼성전자 경쟁사 분석", passages)
	assert.Equal(t, "matched", out[0].URL)
}
