// Package outline implements Stage 3 (OutlineGenerator): a draft outline
// from the topic alone, then a dialogue-grounded refinement pass, both
// driven by the outline_gen_lm role.
package outline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dart-insight/storm-report/internal/llm"
	"github.com/dart-insight/storm-report/internal/model"
	"github.com/dart-insight/storm-report/internal/textutil"
)

const maxDialogueHistoryWords = 5000

const draftPrompt = `Write a Wikipedia-style outline for a report about %s. Use only '#', '##', '###', and '####' Markdown headings, one per line. Do not include a top-level title line for the topic itself, and do not add commentary.`

const refinePrompt = `Topic: %s

Draft outline:
%s

Research notes gathered so far:
%s

Revise the draft outline above using everything useful in the research notes. Use only '#', '##', '###', and '####' Markdown headings, one per line, with no commentary.`

// Generator drives the two outline_gen_lm calls.
type Generator struct {
	outlineGen llm.LanguageModel
}

// NewGenerator constructs a Generator. outlineGen must be the
// RoleOutlineGen language model.
func NewGenerator(outlineGen llm.LanguageModel) *Generator {
	return &Generator{outlineGen: outlineGen}
}

// Result carries both outline versions; Draft is kept for the
// orchestrator's draft_outline artifact, Refined is canonical.
type Result struct {
	Draft   *model.Outline
	Refined *model.Outline
}

// Generate runs the draft then refinement call for topic, using table's
// dialogues as the refinement pass's grounding material.
func (g *Generator) Generate(ctx context.Context, topic string, table *model.InformationTable) (*Result, error) {
	draftText, err := g.outlineGen.Complete(ctx, fmt.Sprintf(draftPrompt, topic))
	if err != nil {
		return nil, err
	}
	draft := Parse(draftText)

	history := textutil.TruncateWordsTail(flattenDialogues(table), maxDialogueHistoryWords)
	refinePromptText := fmt.Sprintf(refinePrompt, topic, draft.Render(), history)

	refinedText, err := g.outlineGen.Complete(ctx, refinePromptText)
	if err != nil {
		return nil, err
	}
	refined := Parse(refinedText)
	if len(refined.Root) == 0 {
		refined = draft
	}

	return &Result{Draft: draft, Refined: refined}, nil
}

// flattenDialogues interleaves every persona's turns, in persona then
// turn order, as "Writer: ...\nExpert: ..." blocks.
func flattenDialogues(table *model.InformationTable) string {
	if table == nil {
		return ""
	}
	var b strings.Builder
	for _, conv := range table.Conversations {
		for _, turn := range conv.Turns {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "Writer: %s\nExpert: %s", turn.Question, turn.Answer)
		}
	}
	return b.String()
}

// Parse builds an Outline tree from Markdown by counting each line's
// leading '#' run; non-heading lines are discarded.
func Parse(text string) *model.Outline {
	outline := &model.Outline{}

	var stack []*model.OutlineNode // stack[i] is the current open node at level i+1

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimLeft(line, "#")
		level := len(line) - len(trimmed)
		if level == 0 || level > 4 {
			continue
		}
		heading := strings.TrimSpace(trimmed)
		if heading == "" {
			continue
		}

		node := &model.OutlineNode{Heading: heading, Level: level}

		if level == 1 {
			outline.Root = append(outline.Root, node)
			stack = []*model.OutlineNode{node}
			continue
		}

		for len(stack) >= level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			// A sub-heading with no preceding top-level heading: treat it
			// as its own root rather than discarding it.
			outline.Root = append(outline.Root, node)
			stack = []*model.OutlineNode{node}
			continue
		}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, node)
		stack = append(stack, node)
	}

	return outline
}
