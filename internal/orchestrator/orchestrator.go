// Package orchestrator drives the four-stage STORM pipeline end to end:
// persona generation, knowledge curation, outline generation, and
// article generation/polishing, publishing JobStatus progress after each
// stage and writing the completed artifacts to a ReportSink. Grounded on
// the teacher's internal/pipeline.Pipeline.Run phase-sequencing pattern
// (setStatus closure, run-ID creation, fatal-error short-circuit).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dart-insight/storm-report/internal/article"
	"github.com/dart-insight/storm-report/internal/curator"
	"github.com/dart-insight/storm-report/internal/jobstatus"
	"github.com/dart-insight/storm-report/internal/llm"
	"github.com/dart-insight/storm-report/internal/model"
	"github.com/dart-insight/storm-report/internal/outline"
	"github.com/dart-insight/storm-report/internal/persona"
	"github.com/dart-insight/storm-report/internal/sink"
)

// Result is what a successful Run returns: the job ID every artifact was
// filed under, and the two article renditions an orchestrator caller
// most often wants in hand without re-reading them from the sink.
type Result struct {
	JobID           string
	PolishedArticle string
	DraftArticle    string
}

// Orchestrator wires the five pipeline stages together with the
// JobStatus/ReportSink external interfaces.
type Orchestrator struct {
	persona  *persona.Generator
	curator  *curator.Curator
	outline  *outline.Generator
	article  *article.Generator
	polisher *article.Polisher

	roles llm.RoleSet

	status jobstatus.Publisher
	sink   sink.ReportSink
}

// New constructs an Orchestrator from its five already-configured stage
// components plus the external interfaces it drives. roles is used only
// to assemble the per-role usage snapshot in the run_config artifact;
// the stages themselves already hold their own LanguageModel references.
// The llm_call_history artifact is written incrementally by each
// LanguageModel's own llm.History as calls happen, not assembled here.
func New(
	personaGen *persona.Generator,
	curate *curator.Curator,
	outlineGen *outline.Generator,
	articleGen *article.Generator,
	polisher *article.Polisher,
	roles llm.RoleSet,
	status jobstatus.Publisher,
	reportSink sink.ReportSink,
) *Orchestrator {
	return &Orchestrator{
		persona:  personaGen,
		curator:  curate,
		outline:  outlineGen,
		article:  articleGen,
		polisher: polisher,
		roles:    roles,
		status:   status,
		sink:     reportSink,
	}
}

// formatTopic folds the target company into the topic text handed to
// every stage, since every stage component accepts a single topic
// string. If company is already present in topic (case-insensitive),
// topic is used unchanged to avoid a redundant "(company)" suffix.
func formatTopic(topic, company string) string {
	if company == "" {
		return topic
	}
	if strings.Contains(strings.ToLower(topic), strings.ToLower(company)) {
		return topic
	}
	return fmt.Sprintf("%s (%s)", topic, company)
}

// Run executes Stages 1 through 4b in sequence for (topic, company),
// publishing progress after each stage boundary and writing the
// ReportSink artifacts named in spec §4.10 on success. On any stage's
// fatal error (after the stage's own internal LM-call retries are
// exhausted), Run publishes a failed status and returns the error
// without writing any artifact — partial output is never persisted.
func (o *Orchestrator) Run(ctx context.Context, topic, company string) (*Result, error) {
	jobID := uuid.New().String()
	effectiveTopic := formatTopic(topic, company)
	log := zap.L().With(zap.String("job_id", jobID), zap.String("topic", effectiveTopic))

	fail := func(stage string, err error) (*Result, error) {
		log.Error("orchestrator: stage failed", zap.String("stage", stage), zap.Error(err))
		o.publish(ctx, jobID, jobstatus.StatusUpdate{
			Status:  jobstatus.StatusFailed,
			Message: fmt.Sprintf("%s failed", stage),
			Error:   err.Error(),
		})
		return nil, eris.Wrapf(err, "orchestrator: %s", stage)
	}

	// Stage 1: PersonaGenerator.
	personas, err := o.persona.Generate(ctx, effectiveTopic)
	if err != nil {
		return fail("persona generation", err)
	}
	o.publish(ctx, jobID, jobstatus.StatusUpdate{Status: jobstatus.StatusProcessing, ProgressPercent: 20, Message: "personas generated"})

	if err := ctx.Err(); err != nil {
		return fail("persona generation", err)
	}

	// Stage 2: KnowledgeCurator.
	table, err := o.curator.Curate(ctx, effectiveTopic, personas)
	if err != nil {
		return fail("knowledge curation", err)
	}
	o.publish(ctx, jobID, jobstatus.StatusUpdate{Status: jobstatus.StatusProcessing, ProgressPercent: 45, Message: "knowledge curated"})

	if err := ctx.Err(); err != nil {
		return fail("knowledge curation", err)
	}

	// Stage 3: OutlineGenerator.
	outlines, err := o.outline.Generate(ctx, effectiveTopic, table)
	if err != nil {
		return fail("outline generation", err)
	}
	o.publish(ctx, jobID, jobstatus.StatusUpdate{Status: jobstatus.StatusProcessing, ProgressPercent: 65, Message: "outline generated"})

	if err := ctx.Err(); err != nil {
		return fail("outline generation", err)
	}

	// Stage 4a: ArticleGenerator.
	draft, err := o.article.Generate(ctx, effectiveTopic, outlines.Refined, table)
	if err != nil {
		return fail("article generation", err)
	}
	draftMarkdown := draft.Render()
	o.publish(ctx, jobID, jobstatus.StatusUpdate{Status: jobstatus.StatusProcessing, ProgressPercent: 85, Message: "article drafted"})

	if err := ctx.Err(); err != nil {
		return fail("article generation", err)
	}

	// Stage 4b: ArticlePolisher.
	polished := o.polisher.Polish(ctx, effectiveTopic, draftMarkdown)
	if polished == "" {
		polished = draftMarkdown
	}

	artifacts := sink.Artifacts{
		PolishedArticle: polished,
		DraftArticle:    draftMarkdown,
		Outline:         outlines.Refined.Render(),
		DraftOutline:    outlines.Draft.Render(),
		ConversationLog: conversationLog(table),
		URLToInfo:       urlToInfoArtifact(table),
		RunConfig: o.runConfig(effectiveTopic, company),
		// LLMCallHistory is left empty here: call records are appended
		// as calls happen by the llm.History the language models were
		// built with, not collected into this bundle.
		LLMCallHistory: nil,
	}

	if err := o.sink.Write(ctx, jobID, artifacts); err != nil {
		return fail("report sink write", err)
	}

	o.publish(ctx, jobID, jobstatus.StatusUpdate{Status: jobstatus.StatusComplete, ProgressPercent: 100, Message: "report complete"})

	return &Result{JobID: jobID, PolishedArticle: polished, DraftArticle: draftMarkdown}, nil
}

// publish forwards to o.status, logging but not failing the run on a
// publisher error — JobStatus is a progress signal, not load-bearing
// state the pipeline depends on to continue.
func (o *Orchestrator) publish(ctx context.Context, jobID string, update jobstatus.StatusUpdate) {
	if o.status == nil {
		return
	}
	if err := o.status.Publish(ctx, jobID, update); err != nil {
		zap.L().Warn("orchestrator: failed to publish job status", zap.String("job_id", jobID), zap.Error(err))
	}
}

// runConfig is a minimal, secret-free snapshot of the parameters this run
// used, for the run_config artifact: topic, company, generation time and
// per-role token usage. The resolved config.Config is not included; the
// stage components are opaque to this package.
func (o *Orchestrator) runConfig(effectiveTopic, company string) map[string]any {
	usage := make(map[string]any, len(o.roles))
	for role, lm := range o.roles {
		u := lm.Usage()
		usage[string(role)] = map[string]any{
			"prompt_tokens":     u.InputTokens,
			"completion_tokens": u.OutputTokens,
		}
	}
	return map[string]any{
		"topic":        effectiveTopic,
		"company":      company,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"lm_usage":     usage,
	}
}

// conversationLog converts table's dialogues into the JSON-shaped
// conversation_log artifact.
func conversationLog(table *model.InformationTable) []sink.ConversationLogEntry {
	entries := make([]sink.ConversationLogEntry, 0, len(table.Conversations))
	for _, conv := range table.Conversations {
		turns := make([]sink.ConversationDlgTurn, 0, len(conv.Turns))
		for _, t := range conv.Turns {
			queries := make([]string, 0, len(t.Queries))
			for _, q := range t.Queries {
				queries = append(queries, q.Text)
			}
			results := make([]any, 0, len(t.RetrievedPassages))
			for _, p := range t.RetrievedPassages {
				results = append(results, p)
			}
			turns = append(turns, sink.ConversationDlgTurn{
				UserUtterance:  t.Question,
				AgentUtterance: t.Answer,
				Queries:        queries,
				SearchResults:  results,
			})
		}
		entries = append(entries, sink.ConversationLogEntry{
			Perspective: sink.ConversationPersona{Name: conv.Persona.Name, Description: conv.Persona.Description},
			DlgTurns:    turns,
		})
	}
	return entries
}

// urlToInfoArtifact converts table's merged passage map into the
// JSON-shaped url_to_info artifact.
func urlToInfoArtifact(table *model.InformationTable) sink.URLToInfoArtifact {
	info := make(map[string]sink.URLInfo, len(table.URLToInfo))
	for url, p := range table.URLToInfo {
		info[url] = sink.URLInfo{Title: p.Title, Snippets: p.Snippets, Description: p.Description}
	}
	index := make(map[string]int, len(table.URLToUnifiedIndex))
	for url, k := range table.URLToUnifiedIndex {
		index[url] = k
	}
	return sink.URLToInfoArtifact{URLToInfo: info, URLToUnifiedIndex: index}
}
