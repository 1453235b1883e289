// Package curator implements Stage 2 (KnowledgeCurator): per-persona
// simulated writer/expert dialogues against the Retriever, merged into a
// single InformationTable once every dialogue completes.
package curator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dart-insight/storm-report/internal/llm"
	"github.com/dart-insight/storm-report/internal/model"
	"github.com/dart-insight/storm-report/internal/retriever"
	"github.com/dart-insight/storm-report/internal/textutil"
)

// terminationPhrase ends a dialogue the moment the writer's question
// contains it literally, signaling the persona is satisfied.
const terminationPhrase = "Thank you so much for your help!"

const omittedTurnPlaceholder = "Expert: Omit the answer here due to space limit."

const maxHistoryWords = 2500

const askPrompt = `You are a Wikipedia writer with the following persona, researching a report about %s.

Persona: %s: %s

Conversation so far:
%s

Ask the single most useful next question to deepen the report. If you have nothing further to ask, respond with exactly: "%s" Respond with only the question.`

const expandPrompt = `Convert the following question into up to %d focused search queries. Respond as a bullet list ("- query"), one query per line, no commentary.

Question: %s`

const answerPrompt = `Answer the following question using only the evidence below. Cite every factual claim with its [N] marker matching the evidence list. When a table is cited, state its unit and base date explicitly. If the evidence is inadequate, respond with exactly: "I cannot answer this question based on the available information."

Question: %s

Evidence:
%s`

// Config bounds dialogue length and concurrency.
type Config struct {
	// MaxConvTurn caps turns per dialogue.
	MaxConvTurn int
	// MaxSearchQueriesPerTurn caps queries derived from one question.
	MaxSearchQueriesPerTurn int
	// SearchTopK is passed to the Retriever for each turn's retrieval.
	SearchTopK int
	// MaxThreadNum caps concurrent dialogues.
	MaxThreadNum int
}

// Curator runs Stage 2 over an ordered persona list.
type Curator struct {
	questionAsker llm.LanguageModel
	convSimulator llm.LanguageModel
	retriever     retriever.Retriever
	cfg           Config
}

// NewCurator constructs a Curator. questionAsker drives writer questions
// and persona-facing prompts; convSimulator drives query expansion and
// expert answers, per spec role assignment.
func NewCurator(questionAsker, convSimulator llm.LanguageModel, r retriever.Retriever, cfg Config) *Curator {
	return &Curator{questionAsker: questionAsker, convSimulator: convSimulator, retriever: r, cfg: cfg}
}

// Curate runs one dialogue per persona (bounded concurrency), then merges
// every dialogue's retrieved passages into a freshly assigned
// InformationTable. Dialogues are independent; merge order follows the
// original persona order regardless of completion order.
func (c *Curator) Curate(ctx context.Context, topic string, personas []model.Persona) (*model.InformationTable, error) {
	conversations := make([]model.Conversation, len(personas))

	limit := c.cfg.MaxThreadNum
	if limit <= 0 || limit > len(personas) {
		limit = len(personas)
	}
	if limit <= 0 {
		limit = 1
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, persona := range personas {
		g.Go(func() error {
			conv := c.simulateDialogue(gCtx, topic, persona)
			conversations[i] = conv
			return nil
		})
	}
	_ = g.Wait()

	table := model.NewInformationTable()
	for _, conv := range conversations {
		table.AddConversation(conv)
	}
	table.AssignUnifiedIndices()

	return table, nil
}

func (c *Curator) simulateDialogue(ctx context.Context, topic string, persona model.Persona) model.Conversation {
	conv := model.Conversation{Persona: persona}

	askedQuestions := make(map[string]bool)
	citedURLs := make(map[string]bool)

	maxTurns := c.cfg.MaxConvTurn
	for turn := 0; turn < maxTurns; turn++ {
		question := c.askQuestion(ctx, topic, persona, conv.Turns, askedQuestions)
		if question == "" {
			break
		}
		if strings.Contains(question, terminationPhrase) {
			break
		}
		askedQuestions[question] = true

		queries := c.expandQuestion(ctx, question)
		if len(queries) == 0 {
			break
		}

		passages := c.retrievePassages(ctx, queries, citedURLs)
		for _, p := range passages {
			citedURLs[p.URL] = true
		}

		answer := c.answerQuestion(ctx, question, passages)
		if answer == "" {
			break
		}

		conv.Turns = append(conv.Turns, model.DialogueTurn{
			Question:          question,
			Queries:           queriesFromStrings(queries),
			RetrievedPassages: passages,
			Answer:            answer,
		})
	}

	return conv
}

// askQuestion drives S0, re-prompting once with an anti-duplication
// instruction if the writer repeats a question verbatim.
func (c *Curator) askQuestion(ctx context.Context, topic string, persona model.Persona, turns []model.DialogueTurn, asked map[string]bool) string {
	prompt := fmt.Sprintf(askPrompt, topic, persona.Name, persona.Description, historyWindow(turns), terminationPhrase)

	question, err := c.questionAsker.Complete(ctx, prompt)
	if err != nil {
		zap.L().Warn("curator: ask question failed", zap.String("persona", persona.Name), zap.Error(err))
		return ""
	}
	question = strings.TrimSpace(question)

	if question != "" && asked[question] {
		dedupPrompt := prompt + "\n\nYou already asked that exact question earlier. Ask a different one."
		retried, err := c.questionAsker.Complete(ctx, dedupPrompt)
		if err == nil && strings.TrimSpace(retried) != "" {
			question = strings.TrimSpace(retried)
		}
	}

	return question
}

func (c *Curator) expandQuestion(ctx context.Context, question string) []string {
	maxQueries := c.cfg.MaxSearchQueriesPerTurn
	if maxQueries <= 0 {
		maxQueries = 3
	}

	resp, err := c.convSimulator.Complete(ctx, fmt.Sprintf(expandPrompt, maxQueries, question))
	if err != nil || resp == "" {
		return nil
	}

	queries := parseBulletList(resp)
	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries
}

func (c *Curator) retrievePassages(ctx context.Context, queries []string, excludeURLs map[string]bool) []model.Passage {
	k := c.cfg.SearchTopK
	if k <= 0 {
		k = 3
	}

	passages, err := c.retriever.Retrieve(ctx, queries, excludeURLs, k)
	if err != nil {
		zap.L().Warn("curator: retrieval failed", zap.Error(err))
		return nil
	}
	return dedupeByURL(passages)
}

func (c *Curator) answerQuestion(ctx context.Context, question string, passages []model.Passage) string {
	evidence := joinEvidence(passages)
	resp, err := c.convSimulator.Complete(ctx, fmt.Sprintf(answerPrompt, question, evidence))
	if err != nil {
		zap.L().Warn("curator: answer failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(resp)
}

// historyWindow renders the last 4 turns in full, replaces earlier turns
// with a fixed placeholder, then bounds the whole thing to ~2500 words,
// favoring the most recent content.
func historyWindow(turns []model.DialogueTurn) string {
	if len(turns) == 0 {
		return "(no prior turns)"
	}

	const fullWindow = 4
	cutoff := len(turns) - fullWindow
	if cutoff < 0 {
		cutoff = 0
	}

	var parts []string
	for i, t := range turns {
		if i < cutoff {
			parts = append(parts, omittedTurnPlaceholder)
			continue
		}
		parts = append(parts, fmt.Sprintf("Writer: %s\nExpert: %s", t.Question, t.Answer))
	}

	return textutil.TruncateWordsTail(strings.Join(parts, "\n\n"), maxHistoryWords)
}

func parseBulletList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func queriesFromStrings(texts []string) []model.Query {
	out := make([]model.Query, len(texts))
	for i, t := range texts {
		out[i] = model.Query{Text: t}
	}
	return out
}

func dedupeByURL(passages []model.Passage) []model.Passage {
	seen := make(map[string]bool, len(passages))
	out := make([]model.Passage, 0, len(passages))
	for _, p := range passages {
		if seen[p.URL] {
			continue
		}
		seen[p.URL] = true
		out = append(out, p)
	}
	return out
}

func joinEvidence(passages []model.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, strings.Join(p.Snippets, "\n"))
	}
	return b.String()
}
