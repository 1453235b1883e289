package curator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dart-insight/storm-report/internal/llm"
	"github.com/dart-insight/storm-report/internal/model"
)

type stubRetriever struct {
	out []model.Passage
	err error
}

func (s *stubRetriever) Retrieve(ctx context.Context, queries []string, excludeURLs map[string]bool, k int) ([]model.Passage, error) {
	return s.out, s.err
}

func TestCurate_SinglePersonaTerminatesOnPhrase(t *testing.T) {
	asker := llm.NewStub(terminationPhrase)
	sim := llm.NewStub()
	r := &stubRetriever{}

	c := NewCurator(asker, sim, r, Config{MaxConvTurn: 3, MaxSearchQueriesPerTurn: 3, SearchTopK: 3, MaxThreadNum: 2})
	table, err := c.Curate(context.Background(), "topic", []model.Persona{model.BasicFactWriter})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Size())
}

func TestCurate_RunsTurnsUntilMaxConvTurn(t *testing.T) {
	asker := llm.NewStub("질문 1", "질문 2", "질문 3")
	sim := llm.NewStub(
		"- 쿼리 1",
		"회사는 1969년 설립되었다 [1]",
		"- 쿼리 2",
		"매출은 100조원이다 [1]",
		"- 쿼리 3",
		"시장 점유율은 20%다 [1]",
	)
	r := &stubRetriever{out: []model.Passage{{URL: "dart_report_r1_chunk_1", Snippets: []string{"매출 데이터"}}}}

	c := NewCurator(asker, sim, r, Config{MaxConvTurn: 3, MaxSearchQueriesPerTurn: 3, SearchTopK: 3, MaxThreadNum: 2})
	table, err := c.Curate(context.Background(), "topic", []model.Persona{model.BasicFactWriter})
	require.NoError(t, err)

	require.Len(t, table.Conversations, 1)
	assert.Len(t, table.Conversations[0].Turns, 3)
	assert.Equal(t, 1, table.Size())
}

func TestCurate_EmptyAnswerEndsDialogue(t *testing.T) {
	asker := llm.NewStub("질문 1")
	sim := llm.NewStub("- 쿼리 1", "")
	r := &stubRetriever{out: []model.Passage{{URL: "u1", Snippets: []string{"s"}}}}

	c := NewCurator(asker, sim, r, Config{MaxConvTurn: 3, MaxSearchQueriesPerTurn: 3, SearchTopK: 3, MaxThreadNum: 1})
	table, err := c.Curate(context.Background(), "topic", []model.Persona{model.BasicFactWriter})
	require.NoError(t, err)
	assert.Empty(t, table.Conversations[0].Turns)
}

func TestCurate_MultiplePersonasPreserveOrder(t *testing.T) {
	asker := llm.NewStub(terminationPhrase)
	sim := llm.NewStub()
	r := &stubRetriever{}

	personas := []model.Persona{
		model.BasicFactWriter,
		{Name: "Financial analyst", Description: "focuses on financial statements"},
	}

	c := NewCurator(asker, sim, r, Config{MaxConvTurn: 1, MaxThreadNum: 2})
	table, err := c.Curate(context.Background(), "topic", personas)
	require.NoError(t, err)
	require.Len(t, table.Conversations, 2)
	assert.Equal(t, model.BasicFactWriter, table.Conversations[0].Persona)
	assert.Equal(t, "Financial analyst", table.Conversations[1].Persona.Name)
}

func TestHistoryWindow_EmptyTurns(t *testing.T) {
	assert.Equal(t, "(no prior turns)", historyWindow(nil))
}

func TestHistoryWindow_OlderTurnsReplacedWithPlaceholder(t *testing.T) {
	turns := make([]model.DialogueTurn, 6)
	for i := range turns {
		turns[i] = model.DialogueTurn{Question: "q", Answer: "a"}
	}
	window := historyWindow(turns)
	assert.Contains(t, window, omittedTurnPlaceholder)
	assert.Contains(t, window, "Writer: q\nExpert: a")
}

func TestParseBulletList_StripsMarkers(t *testing.T) {
	out := parseBulletList("- first\n* second\nthird\n")
	assert.Equal(t, []string{"first", "second", "third"}, out)
}

func TestDedupeByURL(t *testing.T) {
	in := []model.Passage{{URL: "a"}, {URL: "b"}, {URL: "a"}}
	out := dedupeByURL(in)
	assert.Len(t, out, 2)
}
