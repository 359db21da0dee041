// Package journal records the outcome of every processed run in a small
// SQLite file inside the log directory. It is append-only: rows are written
// once per run per batch and only read back for status reports.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older journals must be
// deleted; they hold nothing that cannot be regenerated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the journal was created by a different schema version.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is one recorded run outcome.
type Entry struct {
	ID           int64
	BatchID      string
	Serial       string
	Run          int
	Dimension    string
	Folder       string
	State        string
	RawPath      string
	Destination  string
	Elapsed      time.Duration
	ErrorKind    string
	ErrorMessage string
	RecordedAt   time.Time
}

// BatchSummary aggregates the entries of one batch.
type BatchSummary struct {
	BatchID   string
	Started   time.Time
	Finished  time.Time
	Serials   []string
	Placed    int
	Skipped   int
	Failed    int
	Converted time.Duration
}

// Journal is the SQLite-backed outcome log.
type Journal struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or opens the journal at path.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	j := &Journal{db: db, path: path, now: time.Now}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database file location.
func (j *Journal) Path() string { return j.path }

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) initSchema(ctx context.Context) error {
	var tableExists int
	if err := j.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return j.createSchema(ctx)
	}
	var version int
	if err := j.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: journal has version %d, expected %d (delete %s)", ErrSchemaMismatch, version, schemaVersion, j.path)
	}
	return nil
}

func (j *Journal) createSchema(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record appends entry. RecordedAt defaults to now.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	if entry.BatchID == "" || entry.Serial == "" || entry.State == "" {
		return errors.New("journal entry requires batch id, serial, and state")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = j.now()
	}
	return retryOnBusy(ctx, func() error {
		_, err := j.db.ExecContext(ctx,
			`INSERT INTO outcomes (
                batch_id, serial, run, dimension, folder, state, raw_path, destination,
                elapsed_ms, error_kind, error_message, recorded_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.BatchID,
			entry.Serial,
			entry.Run,
			nullableString(entry.Dimension),
			nullableString(entry.Folder),
			entry.State,
			nullableString(entry.RawPath),
			nullableString(entry.Destination),
			entry.Elapsed.Milliseconds(),
			nullableString(entry.ErrorKind),
			nullableString(entry.ErrorMessage),
			entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert outcome: %w", err)
		}
		return nil
	})
}

const entryColumns = `id, batch_id, serial, run, dimension, folder, state, raw_path, destination,
    elapsed_ms, error_kind, error_message, recorded_at`

// Recent returns up to limit entries, newest first. A limit <= 0 returns all.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM outcomes ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return j.query(ctx, query, args...)
}

// ForRun returns every entry recorded for serial's run, oldest first.
func (j *Journal) ForRun(ctx context.Context, serial string, run int) ([]Entry, error) {
	return j.query(ctx, `SELECT `+entryColumns+` FROM outcomes WHERE serial = ? AND run = ? ORDER BY id`, serial, run)
}

// Batches summarizes the most recent batches, newest first.
func (j *Journal) Batches(ctx context.Context, limit int) ([]BatchSummary, error) {
	query := `SELECT batch_id, MIN(recorded_at), MAX(recorded_at), GROUP_CONCAT(DISTINCT serial),
            SUM(CASE WHEN state = 'placed' THEN 1 ELSE 0 END),
            SUM(CASE WHEN state = 'skipped' THEN 1 ELSE 0 END),
            SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END),
            SUM(elapsed_ms)
        FROM outcomes GROUP BY batch_id ORDER BY MAX(id) DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []BatchSummary
	for rows.Next() {
		var (
			summary        BatchSummary
			started, ended string
			serials        sql.NullString
			elapsedMillis  int64
		)
		if err := rows.Scan(&summary.BatchID, &started, &ended, &serials,
			&summary.Placed, &summary.Skipped, &summary.Failed, &elapsedMillis); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		summary.Started = parseTime(started)
		summary.Finished = parseTime(ended)
		if serials.Valid && serials.String != "" {
			summary.Serials = strings.Split(serials.String, ",")
		}
		summary.Converted = time.Duration(elapsedMillis) * time.Millisecond
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry                                       Entry
			dimension, folder, rawPath, dest, kind, msg sql.NullString
			elapsedMillis                               int64
			recorded                                    string
		)
		if err := rows.Scan(&entry.ID, &entry.BatchID, &entry.Serial, &entry.Run, &dimension, &folder,
			&entry.State, &rawPath, &dest, &elapsedMillis, &kind, &msg, &recorded); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		entry.Dimension = dimension.String
		entry.Folder = folder.String
		entry.RawPath = rawPath.String
		entry.Destination = dest.String
		entry.Elapsed = time.Duration(elapsedMillis) * time.Millisecond
		entry.ErrorKind = kind.String
		entry.ErrorMessage = msg.String
		entry.RecordedAt = parseTime(recorded)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
