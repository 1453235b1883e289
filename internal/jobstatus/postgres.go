package jobstatus

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// execer is the subset of pgxpool.Pool this package needs; satisfied by
// *pgxpool.Pool in production and by pgxmock.PgxPoolIface in tests.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresPublisher writes job status as rows in a jobs table, for
// deployments where a separate process (an HTTP handler, an admin
// dashboard) polls run state rather than sharing the Orchestrator's
// process. Mirrors the teacher's runs/run_phases status-column pattern.
type PostgresPublisher struct {
	pool execer
}

// NewPostgresPublisher wraps an existing pool; the caller is responsible
// for running Migrate once at startup.
func NewPostgresPublisher(pool *pgxpool.Pool) *PostgresPublisher {
	return &PostgresPublisher{pool: pool}
}

// newPostgresPublisherWithExecer is used by tests to inject a pgxmock pool.
func newPostgresPublisherWithExecer(e execer) *PostgresPublisher {
	return &PostgresPublisher{pool: e}
}

const jobsMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	progress_percent INTEGER NOT NULL DEFAULT 0,
	message          TEXT NOT NULL DEFAULT '',
	error            TEXT,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// Migrate creates the jobs table if absent.
func (p *PostgresPublisher) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, jobsMigration)
	return eris.Wrap(err, "jobstatus: migrate")
}

// Publish upserts the jobID row with update's fields.
func (p *PostgresPublisher) Publish(ctx context.Context, jobID string, update StatusUpdate) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO jobs (id, status, progress_percent, message, error, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress_percent = EXCLUDED.progress_percent,
			message = EXCLUDED.message,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at
	`, jobID, string(update.Status), update.ProgressPercent, update.Message, update.Error, time.Now().UTC())
	return eris.Wrapf(err, "jobstatus: publish %s", jobID)
}
