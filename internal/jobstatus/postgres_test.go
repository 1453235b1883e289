package jobstatus

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresPublisher(t *testing.T) (*PostgresPublisher, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresPublisherWithExecer(mock), mock
}

func TestPostgresPublisher_Migrate(t *testing.T) {
	p, mock := newMockPostgresPublisher(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS jobs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, p.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPublisher_Publish(t *testing.T) {
	p, mock := newMockPostgresPublisher(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs("job-1", "processing", 40, "outline generation", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := p.Publish(context.Background(), "job-1", StatusUpdate{
		Status:          StatusProcessing,
		ProgressPercent: 40,
		Message:         "outline generation",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPublisher_Publish_WithError(t *testing.T) {
	p, mock := newMockPostgresPublisher(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs("job-2", "failed", 0, "stage 2 failed", "retrieval backend down", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := p.Publish(context.Background(), "job-2", StatusUpdate{
		Status:  StatusFailed,
		Message: "stage 2 failed",
		Error:   "retrieval backend down",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
