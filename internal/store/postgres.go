package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/dart-insight/storm-report/internal/model"
)

// querier is the subset of pgxpool.Pool this package needs; satisfied by
// *pgxpool.Pool in production and by pgxmock.PgxPoolIface in tests.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements KnowledgeStore against a Postgres database with
// the pgvector extension enabled. Rows live in source_materials, joined
// against analysis_reports (report_id) and companies (company_id) to
// resolve the company name at query time rather than trusting chunk
// metadata, which may be absent for bulk-ingested data.
type PostgresStore struct {
	pool querier
	dim  int
}

// NewPostgres opens a connection pool against connString and pings it.
// Does not assert the embedding dimension; NewInternalRetriever compares
// Dimension against the embedder's once the embedder is configured.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "store: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// newPostgresWithQuerier is used by tests to inject a pgxmock pool.
func newPostgresWithQuerier(q querier) *PostgresStore {
	return &PostgresStore{pool: q}
}

const migration = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS companies (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	aliases       JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS analysis_reports (
	id           TEXT PRIMARY KEY,
	company_id   TEXT NOT NULL REFERENCES companies(id)
);

CREATE TABLE IF NOT EXISTS source_materials (
	id             TEXT PRIMARY KEY,
	report_id      TEXT NOT NULL REFERENCES analysis_reports(id),
	chunk_id       TEXT NOT NULL,
	sequence_order INT NOT NULL,
	chunk_type     TEXT NOT NULL,
	section_path   TEXT NOT NULL,
	raw_content    TEXT NOT NULL,
	metadata       JSONB NOT NULL DEFAULT '{}',
	embedding      vector NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_source_materials_report ON source_materials(report_id, sequence_order);
`

// Migrate creates the schema if it does not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	p, ok := s.pool.(*pgxpool.Pool)
	if !ok {
		return eris.New("store: migrate requires a live connection pool")
	}
	_, err := p.Exec(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() {
	if p, ok := s.pool.(*pgxpool.Pool); ok {
		p.Close()
	}
}

// Dimension returns the vector dimension of the embedding column, probing
// a single row. Returns 0 with no error if the store is empty.
func (s *PostgresStore) Dimension(ctx context.Context) (int, error) {
	if s.dim > 0 {
		return s.dim, nil
	}
	row := s.pool.QueryRow(ctx, `SELECT vector_dims(embedding) FROM source_materials LIMIT 1`)
	var dim int
	if err := row.Scan(&dim); err != nil {
		if err.Error() == "no rows in result set" {
			return 0, nil
		}
		return 0, eris.Wrap(err, "store: probe embedding dimension")
	}
	s.dim = dim
	return dim, nil
}

// vectorLiteral renders a float32 embedding as a pgvector input literal,
// e.g. "[0.1,0.2,0.3]".
func vectorLiteral(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

const vectorSearchQuery = `
SELECT
	sm.id, sm.report_id, sm.chunk_id, sm.sequence_order, sm.chunk_type,
	sm.section_path, sm.raw_content, sm.metadata, c.name,
	1 - (sm.embedding <=> $1::vector) AS similarity
FROM source_materials sm
JOIN analysis_reports ar ON ar.id = sm.report_id
JOIN companies c ON c.id = ar.company_id
WHERE sm.chunk_type != 'noise_merged'
  AND NOT (sm.id = ANY($2::text[]))
ORDER BY sm.embedding <=> $1::vector
LIMIT $3
`

// VectorSearch implements KnowledgeStore.VectorSearch. excludeURLs is
// translated to excluded source_materials.id values via the same
// "dart_report_{report_id}_chunk_{chunk_id}" scheme InternalRetriever
// uses, so the caller may pass URLs directly.
func (s *PostgresStore) VectorSearch(ctx context.Context, embedding []float32, k int, excludeURLs map[string]bool) ([]Row, error) {
	excludeIDs := excludeIDsFromURLs(excludeURLs)

	rows, err := s.pool.Query(ctx, vectorSearchQuery, vectorLiteral(embedding), excludeIDs, k)
	if err != nil {
		return nil, eris.Wrap(err, "store: vector search")
	}
	defer rows.Close()

	return scanRows(rows)
}

const fetchAdjacentQuery = `
SELECT
	sm.id, sm.report_id, sm.chunk_id, sm.sequence_order, sm.chunk_type,
	sm.section_path, sm.raw_content, sm.metadata, c.name, 0
FROM source_materials sm
JOIN analysis_reports ar ON ar.id = sm.report_id
JOIN companies c ON c.id = ar.company_id
WHERE sm.report_id = $1 AND sm.sequence_order = ANY($2::int[])
`

// FetchAdjacent implements KnowledgeStore.FetchAdjacent.
func (s *PostgresStore) FetchAdjacent(ctx context.Context, reportID string, sequenceOrder, window int) ([]Row, error) {
	targets := []int{sequenceOrder - window, sequenceOrder + window}

	rows, err := s.pool.Query(ctx, fetchAdjacentQuery, reportID, targets)
	if err != nil {
		return nil, eris.Wrapf(err, "store: fetch adjacent report=%s seq=%d", reportID, sequenceOrder)
	}
	defer rows.Close()

	return scanRows(rows)
}

const companyAliasesQuery = `SELECT name, aliases FROM companies`

// CompanyAliases implements KnowledgeStore.CompanyAliases.
func (s *PostgresStore) CompanyAliases(ctx context.Context) (model.AliasRegistry, error) {
	rows, err := s.pool.Query(ctx, companyAliasesQuery)
	if err != nil {
		return nil, eris.Wrap(err, "store: company aliases")
	}
	defer rows.Close()

	reg := make(model.AliasRegistry)
	for rows.Next() {
		var name string
		var aliasJSON []byte
		if err := rows.Scan(&name, &aliasJSON); err != nil {
			return nil, eris.Wrap(err, "store: scan company alias row")
		}
		var aliases []string
		if len(aliasJSON) > 0 {
			if err := json.Unmarshal(aliasJSON, &aliases); err != nil {
				return nil, eris.Wrap(err, "store: unmarshal aliases")
			}
		}
		set := make(map[string]struct{}, len(aliases))
		for _, a := range aliases {
			set[a] = struct{}{}
		}
		reg[name] = set
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate company alias rows")
	}
	return reg, nil
}

func scanRows(rows pgx.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var r Row
		var chunkType string
		var metaJSON []byte
		if err := rows.Scan(&r.ID, &r.ReportID, &r.ChunkID, &r.SequenceOrder, &chunkType,
			&r.SectionPath, &r.RawContent, &metaJSON, &r.CompanyName, &r.Similarity); err != nil {
			return nil, eris.Wrap(err, "store: scan row")
		}
		r.ChunkType = model.ChunkType(chunkType)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &r.Metadata); err != nil {
				return nil, eris.Wrap(err, "store: unmarshal metadata")
			}
		} else {
			r.Metadata = map[string]any{}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate rows")
	}
	return out, nil
}

// excludeIDsFromURLs extracts source_materials.id values from
// "dart_report_{report_id}_chunk_{chunk_id}" URLs. Non-matching (e.g.
// web) URLs are ignored since they cannot appear in this table anyway.
func excludeIDsFromURLs(excludeURLs map[string]bool) []string {
	ids := make([]string, 0, len(excludeURLs))
	for url := range excludeURLs {
		reportID, chunkID, ok := parseInternalURL(url)
		if !ok {
			continue
		}
		ids = append(ids, fmt.Sprintf("%s:%s", reportID, chunkID))
	}
	return ids
}

func parseInternalURL(url string) (reportID, chunkID string, ok bool) {
	const prefix = "dart_report_"
	const mid = "_chunk_"
	if !strings.HasPrefix(url, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(url, prefix)
	idx := strings.LastIndex(rest, mid)
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+len(mid):], true
}
