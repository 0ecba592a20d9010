package temporal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no CGO
)

// Ledger is the append-only record of which commits have already been
// indexed, so an incremental Walk never re-ingests a commit.
// Backed by SQLite in WAL mode for safe concurrent reads
// alongside the writer.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if absent) the commit ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("temporal: create ledger directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("temporal: open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("temporal: set pragma: %w", err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS indexed_commits (
	branch     TEXT NOT NULL,
	hash       TEXT NOT NULL,
	indexed_at INTEGER NOT NULL,
	PRIMARY KEY (branch, hash)
);
CREATE INDEX IF NOT EXISTS idx_indexed_commits_branch_time
	ON indexed_commits (branch, indexed_at);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("temporal: create ledger schema: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the ledger's underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// LastIndexed returns the most recently recorded commit hash for branch,
// or "" if nothing has been indexed on it yet.
func (l *Ledger) LastIndexed(ctx context.Context, branch string) (string, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT hash FROM indexed_commits
		WHERE branch = ?
		ORDER BY indexed_at DESC, rowid DESC
		LIMIT 1`, branch)

	var hash string
	if err := row.Scan(&hash); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("temporal: query last indexed commit: %w", err)
	}
	return hash, nil
}

// Record appends hashes as newly indexed on branch. Commits are append-only:
// once recorded, Walk's afterHash exclusion keeps them from being re-ingested.
func (l *Ledger) Record(ctx context.Context, branch string, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("temporal: begin ledger transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO indexed_commits (branch, hash, indexed_at)
		VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("temporal: prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, h := range hashes {
		if _, err := stmt.ExecContext(ctx, branch, h, now); err != nil {
			return fmt.Errorf("temporal: record commit %s: %w", h, err)
		}
	}
	return tx.Commit()
}
