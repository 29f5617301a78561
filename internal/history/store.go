// Package history persists per-file sweep outcomes in SQLite.
//
// A record is a permanent marker: files with one are never re-probed,
// re-downloaded, or re-encoded until the history is cleared by hand. Every
// mutation commits before returning, so a crash loses at most the outcome
// being computed, never a committed one.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status classifies the outcome recorded for a file.
type Status string

const (
	StatusConverted             Status = "converted"
	StatusKeptOriginal          Status = "kept-original"
	StatusSkippedLowBitrate     Status = "skipped-low-bitrate"
	StatusSkippedLowSavings     Status = "skipped-low-savings"
	StatusSkippedTrialLowSaving Status = "skipped-test-low-savings"
)

// Statuses lists every valid record status.
func Statuses() []Status {
	return []Status{
		StatusConverted,
		StatusKeptOriginal,
		StatusSkippedLowBitrate,
		StatusSkippedLowSavings,
		StatusSkippedTrialLowSaving,
	}
}

// Record is one persisted outcome keyed by root-relative path.
type Record struct {
	Key        string
	Status     Status
	BytesSaved int64
	RecordedAt time.Time
}

// Store manages history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database and applies
// migrations. A corrupt database is renamed aside and replaced with a fresh
// one rather than failing the run.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history directory: %w", err)
		}
	}

	store, err := open(path)
	if err == nil {
		return store, nil
	}

	// Unreadable or failing schema: move the file aside and start empty.
	aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().UTC().Format("20060102T150405"))
	if renameErr := os.Rename(path, aside); renameErr != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	store, retryErr := open(path)
	if retryErr != nil {
		return nil, fmt.Errorf("reopen history db after setting aside %s: %w", aside, retryErr)
	}
	return store, nil
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) applyMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS history (
            key TEXT PRIMARY KEY,
            status TEXT NOT NULL,
            bytes_saved INTEGER NOT NULL DEFAULT 0,
            recorded_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS totals (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            bytes_saved INTEGER NOT NULL DEFAULT 0
        )`,
		`INSERT OR IGNORE INTO totals (id, bytes_saved) VALUES (1, 0)`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Key derives the stable record key for a file: its path relative to the
// swept root, slash-normalized, leading separators trimmed. The key survives
// drive letter and mount point changes across runs.
func Key(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimLeft(rel, "/")
}

// Has reports whether a record exists for the key.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM history WHERE key = ?`, key)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query history: %w", err)
	}
	return true, nil
}

// Get fetches a record by key, or nil when absent.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, status, bytes_saved, recorded_at FROM history WHERE key = ?`, key)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// RecordOutcome upserts the record for key and recomputes the cumulative
// savings counter in the same transaction. The transaction is committed
// before RecordOutcome returns, so the outcome is durable once the pipeline
// moves on.
func (s *Store) RecordOutcome(ctx context.Context, key string, status Status, bytesSaved int64) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("record key is empty")
	}
	if bytesSaved < 0 {
		return fmt.Errorf("bytes saved must not be negative, got %d", bytesSaved)
	}
	if status != StatusConverted && bytesSaved != 0 {
		return fmt.Errorf("status %s cannot carry savings", status)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO history (key, status, bytes_saved, recorded_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET status = excluded.status,
             bytes_saved = excluded.bytes_saved, recorded_at = excluded.recorded_at`,
		key,
		status,
		bytesSaved,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert record: %w", err)
	}

	// The counter is defined as the sum over converted records; recomputing
	// keeps the invariant regardless of re-records.
	_, err = tx.ExecContext(
		ctx,
		`UPDATE totals SET bytes_saved =
            (SELECT COALESCE(SUM(bytes_saved), 0) FROM history WHERE status = ?)
         WHERE id = 1`,
		StatusConverted,
	)
	if err != nil {
		return fmt.Errorf("update totals: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

// TotalSaved returns the cumulative bytes saved across all converted records.
func (s *Store) TotalSaved(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT bytes_saved FROM totals WHERE id = 1`)
	var total int64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("query totals: %w", err)
	}
	return total, nil
}

// List returns records filtered by status set (or all records when no status
// is provided), ordered by key.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]Record, error) {
	baseQuery := `SELECT key, status, bytes_saved, recorded_at FROM history`
	orderClause := ` ORDER BY key`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM history GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Remove deletes a record by key, reconciling the cumulative counter.
func (s *Store) Remove(ctx context.Context, key string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM history WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	_, err = tx.ExecContext(
		ctx,
		`UPDATE totals SET bytes_saved =
            (SELECT COALESCE(SUM(bytes_saved), 0) FROM history WHERE status = ?)
         WHERE id = 1`,
		StatusConverted,
	)
	if err != nil {
		return false, fmt.Errorf("update totals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return affected > 0, nil
}

// Clear removes all records and resets the cumulative counter.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE totals SET bytes_saved = 0 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("reset totals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit clear: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		key        string
		statusStr  string
		bytesSaved int64
		recordedAt string
	)
	if err := scanner.Scan(&key, &statusStr, &bytesSaved, &recordedAt); err != nil {
		return nil, err
	}
	record := &Record{Key: key, Status: Status(statusStr), BytesSaved: bytesSaved}
	if parsed, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
		record.RecordedAt = parsed
	}
	return record, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
