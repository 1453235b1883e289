package article

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dart-insight/storm-report/internal/embed"
	"github.com/dart-insight/storm-report/internal/llm"
	"github.com/dart-insight/storm-report/internal/model"
)

func buildTable(t *testing.T) *model.InformationTable {
	t.Helper()
	table := model.NewInformationTable()
	table.AddConversation(model.Conversation{
		Persona: model.BasicFactWriter,
		Turns: []model.DialogueTurn{
			{
				Question: "반도체 매출 비중은?",
				Answer:   "반도체는 전체 매출의 60%를 차지한다 [1]",
				RetrievedPassages: []model.Passage{
					{URL: "dart_report_r1_chunk_1", Snippets: []string{"반도체 매출 비중 60%"}},
				},
			},
		},
	})
	table.AssignUnifiedIndices()
	return table
}

func TestSelectSections_SkipsIntroductionConclusionSummary(t *testing.T) {
	o := &model.Outline{Root: []*model.OutlineNode{
		{Heading: "Introduction", Level: 1},
		{Heading: "Business Overview", Level: 1},
		{Heading: "Conclusion", Level: 1},
	}}
	sections := selectSections(o)
	require.Len(t, sections, 1)
	assert.Equal(t, "Business Overview", sections[0].Heading)
}

func TestGenerate_DraftsSectionsWithRemappedCitations(t *testing.T) {
	table := buildTable(t)
	emb := embed.NewStub(8)
	lm := llm.NewStub("매출 증가 추세가 이어지고 있다 [1]")
	outline := &model.Outline{Root: []*model.OutlineNode{
		{Heading: "사업 개요", Level: 1},
	}}

	g := NewGenerator(lm, emb, Config{RetrieveTopK: 3, MaxThreadNum: 2})
	article, err := g.Generate(context.Background(), "삼성전자", outline, table)
	require.NoError(t, err)
	require.Len(t, article.Sections, 1)
	assert.Contains(t, article.Sections[0].Body, "[1]")
}

func TestGenerate_EmptyEvidenceProducesHeadingOnlySection(t *testing.T) {
	table := model.NewInformationTable()
	emb := embed.NewStub(8)
	lm := llm.NewStub("should not be called")
	outline := &model.Outline{Root: []*model.OutlineNode{
		{Heading: "빈 섹션", Level: 1},
	}}

	g := NewGenerator(lm, emb, Config{})
	article, err := g.Generate(context.Background(), "topic", outline, table)
	require.NoError(t, err)
	require.Len(t, article.Sections, 1)
	assert.Equal(t, "# 빈 섹션", article.Sections[0].Body)
}

func TestRemapCitations_StripsOutOfRange(t *testing.T) {
	table := model.NewInformationTable()
	p := model.Passage{URL: "u1"}
	table.AddConversation(model.Conversation{Turns: []model.DialogueTurn{{RetrievedPassages: []model.Passage{p}}}})
	table.AssignUnifiedIndices()

	evidence := []scoredPassage{{passage: p}}
	out := remapCitations("claim one [1] and claim two [5]", evidence, table)
	assert.Equal(t, "claim one [1] and claim two ", out)
}

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}
