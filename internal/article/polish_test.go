package article

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dart-insight/storm-report/internal/llm"
)

const sampleDraft = "# 사업 개요\n\n삼성전자는 반도체 사업을 영위한다 [1].\n\n# 재무 현황\n\n매출은 300조원이다 [2]."

func TestPolish_PrependsLeadAndKeepsDedupResult(t *testing.T) {
	lm := llm.NewStub(
		"삼성전자는 반도체와 전자 제품을 생산하는 기업이다 [1].",
		leadHeading+"\n\n삼성전자는 반도체와 전자 제품을 생산하는 기업이다 [1].\n\n# 사업 개요\n\n삼성전자는 반도체 사업을 영위한다 [1].\n\n# 재무 현황\n\n매출은 300조원이다 [2].",
	)

	p := NewPolisher(lm)
	out := p.Polish(context.Background(), "삼성전자", sampleDraft)
	assert.Contains(t, out, leadHeading)
	assert.Contains(t, out, "[1]")
	assert.Contains(t, out, "[2]")
}

func TestPolish_RevertsToPreDedupWhenDedupEmpty(t *testing.T) {
	lm := llm.NewStub("리드 문단입니다 [1].", "")
	p := NewPolisher(lm)

	out := p.Polish(context.Background(), "topic", sampleDraft)
	assert.Contains(t, out, leadHeading)
	assert.Contains(t, out, "재무 현황")
}

func TestPolish_RevertsWhenDedupDropsCitationMarker(t *testing.T) {
	lm := llm.NewStub(
		"리드 문단입니다 [1].",
		leadHeading+"\n\n리드 문단입니다 [1].\n\n# 사업 개요\n\n삼성전자는 반도체 사업을 영위한다.\n\n# 재무 현황\n\n매출은 300조원이다 [2].",
	)
	p := NewPolisher(lm)

	out := p.Polish(context.Background(), "topic", sampleDraft)
	assert.Contains(t, out, "[1]", "should revert to pre-dedup article that still has [1] from the draft body")
}

func TestPolish_SkipsLeadWhenSynthesisFails(t *testing.T) {
	lm := llm.NewStub("", sampleDraft)
	p := NewPolisher(lm)

	out := p.Polish(context.Background(), "topic", sampleDraft)
	assert.NotContains(t, out, leadHeading)
}

func TestPreservesStructure_DetectsHeadingLoss(t *testing.T) {
	before := "# A\n\ntext [1]\n\n# B\n\nmore [2]"
	after := "# A\n\ntext [1] [2]"
	assert.False(t, preservesStructure(before, after))
}

func TestPreservesStructure_AllowsShrunkNonRepeatedText(t *testing.T) {
	before := "# A\n\ntext text [1]\n\n# B\n\nmore [2]"
	after := "# A\n\ntext [1]\n\n# B\n\nmore [2]"
	assert.True(t, preservesStructure(before, after))
}

func TestPreservesStructure_DetectsMergedParagraphs(t *testing.T) {
	before := "# A\n\ntext [1]\n\nmore text [2]"
	after := "# A\n\ntext [1] more text [2]"
	assert.False(t, preservesStructure(before, after))
}
