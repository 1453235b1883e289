package sink

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// execer is the subset of pgxpool.Pool this package needs; satisfied by
// *pgxpool.Pool in production and by pgxmock.PgxPoolIface in tests.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink writes a run's artifacts as JSONB columns on a single
// reports row, mirroring the teacher's runs.result JSONB column pattern
// in internal/store/postgres.go's UpdateRunResult.
type PostgresSink struct {
	pool execer
}

// NewPostgresSink wraps an existing pool; the caller is responsible for
// running Migrate once at startup.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// newPostgresSinkWithExecer is used by tests to inject a pgxmock pool.
func newPostgresSinkWithExecer(e execer) *PostgresSink {
	return &PostgresSink{pool: e}
}

const reportsMigration = `
CREATE TABLE IF NOT EXISTS reports (
	job_id            TEXT PRIMARY KEY,
	polished_article  TEXT NOT NULL,
	draft_article     TEXT NOT NULL,
	outline           TEXT NOT NULL,
	draft_outline     TEXT NOT NULL,
	conversation_log  JSONB NOT NULL,
	url_to_info       JSONB NOT NULL,
	run_config        JSONB NOT NULL,
	llm_call_history  JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the reports table if absent.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, reportsMigration)
	return eris.Wrap(err, "sink: migrate")
}

// Write upserts a reports row with every artifact field, marshaling the
// structured fields to JSONB.
func (s *PostgresSink) Write(ctx context.Context, jobID string, artifacts Artifacts) error {
	convLog, err := json.Marshal(artifacts.ConversationLog)
	if err != nil {
		return eris.Wrap(err, "sink: marshal conversation_log")
	}
	urlToInfo, err := json.Marshal(artifacts.URLToInfo)
	if err != nil {
		return eris.Wrap(err, "sink: marshal url_to_info")
	}
	runConfig, err := json.Marshal(artifacts.RunConfig)
	if err != nil {
		return eris.Wrap(err, "sink: marshal run_config")
	}
	callHistory, err := json.Marshal(artifacts.LLMCallHistory)
	if err != nil {
		return eris.Wrap(err, "sink: marshal llm_call_history")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reports (job_id, polished_article, draft_article, outline, draft_outline,
			conversation_log, url_to_info, run_config, llm_call_history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
			polished_article = EXCLUDED.polished_article,
			draft_article = EXCLUDED.draft_article,
			outline = EXCLUDED.outline,
			draft_outline = EXCLUDED.draft_outline,
			conversation_log = EXCLUDED.conversation_log,
			url_to_info = EXCLUDED.url_to_info,
			run_config = EXCLUDED.run_config,
			llm_call_history = EXCLUDED.llm_call_history
	`, jobID, artifacts.PolishedArticle, artifacts.DraftArticle, artifacts.Outline, artifacts.DraftOutline,
		convLog, urlToInfo, runConfig, callHistory)
	return eris.Wrapf(err, "sink: write %s", jobID)
}
