// Package postgres persists archive decisions: one row per processed part,
// recording where it came from, its verified digest, and where it was
// filed. Recent decisions feed the classifier's history context.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/docmind/internal/core/domain"
)

type Journal struct {
	db *sql.DB
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (j *Journal) EnsureSchema(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026052301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS archive_decisions (
	id TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	backup_path TEXT NOT NULL,
	source_hash TEXT NOT NULL,
	summary TEXT,
	filename TEXT NOT NULL,
	category TEXT NOT NULL,
	final_path TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_archive_decisions_category ON archive_decisions(category);
CREATE INDEX IF NOT EXISTS idx_archive_decisions_created_at ON archive_decisions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (j *Journal) Record(ctx context.Context, decision domain.ArchiveDecision) error {
	_, err := j.db.ExecContext(ctx, `
INSERT INTO archive_decisions (
	id, source_path, backup_path, source_hash, summary, filename, category, final_path, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		decision.ID, decision.SourcePath, decision.BackupPath, decision.SourceHash,
		decision.Summary, decision.Filename, decision.Category, decision.FinalPath,
		decision.Status, decision.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert archive decision: %w", err)
	}
	return nil
}

// Recent returns the newest decisions, optionally filtered to one category.
func (j *Journal) Recent(ctx context.Context, area string, limit int) ([]domain.ArchiveDecision, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT id, source_path, backup_path, source_hash, summary, filename, category, final_path, status, created_at
FROM archive_decisions
WHERE ($1 = '' OR category = $1)
ORDER BY created_at DESC
LIMIT $2
`, area, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent decisions: %w", err)
	}
	defer rows.Close()

	var out []domain.ArchiveDecision
	for rows.Next() {
		var d domain.ArchiveDecision
		if err := rows.Scan(
			&d.ID, &d.SourcePath, &d.BackupPath, &d.SourceHash, &d.Summary,
			&d.Filename, &d.Category, &d.FinalPath, &d.Status, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}
