package article

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dart-insight/storm-report/internal/llm"
)

const leadHeading = "# summary"

const leadPrompt = `Topic: %s

Full drafted article:
%s

Write a self-contained overview of at most 4 paragraphs summarizing the article above, with inline [k] citations copied from the claims they support. Respond with only the paragraphs, no heading.`

const dedupPrompt = `Article:
%s

Remove any literally-repeated information from this article. You MUST preserve every [k] citation marker, every '#'/'##'/... heading and its text, and every paragraph boundary. Do not delete any non-repeated content. Respond with the full revised article.`

// Polisher runs Stage 4b: lead synthesis then deduplication, both with
// the article_polish_lm role.
type Polisher struct {
	polishLM llm.LanguageModel
}

// NewPolisher constructs a Polisher. polishLM must be the
// RoleArticlePolish language model.
func NewPolisher(polishLM llm.LanguageModel) *Polisher {
	return &Polisher{polishLM: polishLM}
}

// Polish runs both polish calls over draft (already rendered Markdown) and
// returns the polished article. On EmptyStageOutput conditions — an empty
// LM response, or a dedup result missing citation markers the draft had —
// it returns the text the dedup call was given: the draft, with the
// synthesized lead prepended when lead synthesis succeeded.
func (p *Polisher) Polish(ctx context.Context, topic, draft string) string {
	lead, err := p.polishLM.Complete(ctx, fmt.Sprintf(leadPrompt, topic, draft))
	if err != nil || strings.TrimSpace(lead) == "" {
		zap.L().Warn("article: lead synthesis failed, skipping lead", zap.Error(err))
		lead = ""
	}

	withLead := draft
	if lead != "" {
		withLead = leadHeading + "\n\n" + strings.TrimSpace(lead) + "\n\n" + draft
	}

	deduped, err := p.polishLM.Complete(ctx, fmt.Sprintf(dedupPrompt, withLead))
	if err != nil || strings.TrimSpace(deduped) == "" {
		zap.L().Warn("article: dedup polish produced no output, reverting to pre-dedup text", zap.Error(err))
		return withLead
	}

	if !preservesStructure(withLead, deduped) {
		zap.L().Warn("article: dedup polish degraded article structure, reverting to pre-dedup text")
		return withLead
	}

	return strings.TrimSpace(deduped)
}

// preservesStructure checks the structural invariants the dedup step must
// hold: the same citation markers with the same counts (order not
// checked), the same heading lines in the same order, and the same number
// of paragraphs; content may otherwise shrink.
func preservesStructure(before, after string) bool {
	beforeCitations := citationMarkerPattern.FindAllString(before, -1)
	afterCitations := citationMarkerPattern.FindAllString(after, -1)
	if !sameMultiset(beforeCitations, afterCitations) {
		return false
	}

	beforeHeadings := headingLinePattern.FindAllString(before, -1)
	afterHeadings := headingLinePattern.FindAllString(after, -1)
	if len(beforeHeadings) != len(afterHeadings) {
		return false
	}
	for i := range beforeHeadings {
		if strings.TrimSpace(beforeHeadings[i]) != strings.TrimSpace(afterHeadings[i]) {
			return false
		}
	}

	if len(splitParagraphs(before)) != len(splitParagraphs(after)) {
		return false
	}

	return true
}

var headingLinePattern = regexp.MustCompile(`(?m)^#{1,4} .+$`)
var blankLinePattern = regexp.MustCompile(`\n\s*\n`)

// splitParagraphs returns text's blank-line-delimited blocks (headings and
// body paragraphs alike), skipping any block left empty after trimming.
func splitParagraphs(text string) []string {
	blocks := blankLinePattern.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if strings.TrimSpace(b) != "" {
			out = append(out, b)
		}
	}
	return out
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}
