// Package sink provides the write-only ReportSink external interface and
// its implementations: a filesystem layout (Markdown + JSON/JSONL per
// run directory) for single-process deployments, and a Postgres
// implementation (JSONB columns) for deployments that already persist
// run state in Postgres.
package sink

import (
	"context"
)

// ConversationLogEntry is one persona's full dialogue, matching the
// conversation_log artifact shape: [{perspective, dlg_turns: [...]}].
type ConversationLogEntry struct {
	Perspective ConversationPersona   `json:"perspective"`
	DlgTurns    []ConversationDlgTurn `json:"dlg_turns"`
}

// ConversationPersona mirrors model.Persona's JSON shape without this
// package importing internal/model, keeping ReportSink a narrow,
// dependency-free artifact contract.
type ConversationPersona struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ConversationDlgTurn mirrors model.DialogueTurn's JSON shape.
type ConversationDlgTurn struct {
	UserUtterance  string   `json:"user_utterance"`
	AgentUtterance string   `json:"agent_utterance"`
	Queries        []string `json:"queries"`
	SearchResults  []any    `json:"search_results"`
}

// URLInfo is one entry of the url_to_info artifact.
type URLInfo struct {
	Title       string   `json:"title"`
	Snippets    []string `json:"snippets"`
	Description string   `json:"description"`
}

// URLToInfoArtifact is the url_to_info artifact: the merged passage map
// plus the unified citation index assigned after Stage 2.
type URLToInfoArtifact struct {
	URLToInfo         map[string]URLInfo `json:"url_to_info"`
	URLToUnifiedIndex map[string]int     `json:"url_to_unified_index"`
}

// Artifacts bundles every named artifact the Orchestrator writes on a
// successful run, per spec §4.10.
type Artifacts struct {
	PolishedArticle string                 `json:"-"` // Markdown
	DraftArticle    string                 `json:"-"` // Markdown
	Outline         string                 `json:"-"` // Markdown (refined)
	DraftOutline    string                 `json:"-"` // Markdown
	ConversationLog []ConversationLogEntry `json:"-"` // JSON
	URLToInfo       URLToInfoArtifact      `json:"-"` // JSON
	RunConfig       map[string]any         `json:"-"` // JSON, secrets redacted
	LLMCallHistory  []LLMCallRecord        `json:"-"` // JSONL
}

// LLMCallRecord mirrors llm.CallRecord's JSON shape for the
// llm_call_history artifact, without this package importing internal/llm.
type LLMCallRecord struct {
	Timestamp string `json:"timestamp"`
	Role      string `json:"role"`
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	ErrText   string `json:"error,omitempty"`
}

// ReportSink is the write-only external interface the Orchestrator
// writes completed-run artifacts to.
type ReportSink interface {
	Write(ctx context.Context, jobID string, artifacts Artifacts) error
}
