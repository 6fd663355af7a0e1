package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is stored in PRAGMA user_version.
const currentSchemaVersion = 1

// ErrSchemaTooNew is returned by Open for a ledger written by a newer build.
var ErrSchemaTooNew = errors.New("ledger schema is newer than supported")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Ledger records removal runs.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// RunInfo describes a run at start.
type RunInfo struct {
	Mode        string
	DryRun      bool
	Identifiers int
	Files       int
}

// FileEntry is one file result for one identifier ordinal.
type FileEntry struct {
	Ordinal   int
	Path      string
	Scanned   int
	Removed   int
	Rewritten bool
}

// RunRow is a stored run.
type RunRow struct {
	ID           string
	Mode         string
	DryRun       bool
	Identifiers  int
	Files        int
	Status       string
	TotalRemoved int
	Error        string
	StartedAt    string
	FinishedAt   string // empty while running
}

// Open creates or opens the ledger at path.
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// BeginRun inserts a new running run and returns its id.
func (l *Ledger) BeginRun(ctx context.Context, info RunInfo) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, mode, dry_run, identifiers, files, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		id.String(),
		l.timestamp(),
		info.Mode,
		info.DryRun,
		info.Identifiers,
		info.Files,
		StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id.String(), nil
}

// RecordFile stores one file result. Re-recording the same (run, ordinal,
// path) replaces the earlier row.
func (l *Ledger) RecordFile(ctx context.Context, runID string, e FileEntry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO file_results (run_id, ordinal, path, scanned, removed, rewritten)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, ordinal, path) DO UPDATE SET
			scanned = excluded.scanned,
			removed = excluded.removed,
			rewritten = excluded.rewritten
	`,
		runID,
		e.Ordinal,
		e.Path,
		e.Scanned,
		e.Removed,
		e.Rewritten,
	)
	if err != nil {
		return fmt.Errorf("record file %s: %w", e.Path, err)
	}
	return nil
}

// FinishRun marks a run completed, or failed when runErr is non-nil.
func (l *Ledger) FinishRun(ctx context.Context, runID string, totalRemoved int, runErr error) error {
	status := StatusCompleted
	var errText sql.NullString
	if runErr != nil {
		status = StatusFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, total_removed = ?, error = ?
		WHERE id = ?
	`,
		l.timestamp(),
		status,
		totalRemoved,
		errText,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// Run reads one run back.
func (l *Ledger) Run(ctx context.Context, runID string) (RunRow, error) {
	var (
		row      RunRow
		errText  sql.NullString
		finished sql.NullString
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT id, mode, dry_run, identifiers, files, status, total_removed, error,
		       started_at, finished_at
		FROM runs WHERE id = ?
	`, runID).Scan(
		&row.ID, &row.Mode, &row.DryRun, &row.Identifiers, &row.Files,
		&row.Status, &row.TotalRemoved, &errText,
		&row.StartedAt, &finished,
	)
	if err != nil {
		return RunRow{}, fmt.Errorf("read run %s: %w", runID, err)
	}
	row.Error = errText.String
	row.FinishedAt = finished.String
	return row, nil
}

// Files returns the file results of a run ordered by ordinal and path.
func (l *Ledger) Files(ctx context.Context, runID string) ([]FileEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT ordinal, path, scanned, removed, rewritten
		FROM file_results WHERE run_id = ?
		ORDER BY ordinal ASC, path ASC COLLATE BINARY
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read files of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []FileEntry
	for rows.Next() {
		var e FileEntry
		if err := rows.Scan(&e.Ordinal, &e.Path, &e.Scanned, &e.Removed, &e.Rewritten); err != nil {
			return nil, fmt.Errorf("scan file result: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *Ledger) timestamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and stamps the schema
// version. A ledger from a newer schema is left untouched.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: version %d, want at most %d", ErrSchemaTooNew, version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}
