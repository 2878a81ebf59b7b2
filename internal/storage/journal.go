// Package storage keeps the sync journal: a SQLite outbox recording ledger
// changes that still have to reach the remote document.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Operation is the ledger change that produced a journal entry.
type Operation string

const (
	OpInsert Operation = "insert"
	OpDelete Operation = "delete"
	OpPush   Operation = "push"
)

// Status tracks an entry through the drain cycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var ErrUnknownOperation = errors.New("unknown journal operation")

// Entry is one row of the journal.
type Entry struct {
	ID          int64
	EntryID     string
	Operation   Operation
	Serial      string
	Status      Status
	Attempts    int
	LastError   string
	NextAttempt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stats summarises the journal by status.
type Stats struct {
	Pending       int64     `json:"pending"`
	Processing    int64     `json:"processing"`
	Completed     int64     `json:"completed"`
	Failed        int64     `json:"failed"`
	LastCompleted time.Time `json:"last_completed"`
}

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file if needed and applies migrations.
func Open(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite would otherwise report SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateJournal(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Sync journal ready", "path", dbPath, "schema_version", version)

	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Enqueue records a change that must be pushed.
func (j *Journal) Enqueue(ctx context.Context, op Operation, serial string) (Entry, error) {
	switch op {
	case OpInsert, OpDelete, OpPush:
	default:
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}

	now := j.now()
	e := Entry{
		EntryID:     uuid.NewString(),
		Operation:   op,
		Serial:      serial,
		Status:      StatusPending,
		NextAttempt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO sync_journal (entry_id, operation, serial_number, status, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, string(op), serial, string(StatusPending), toMillis(now), toMillis(now), toMillis(now))
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue %s %s: %w", op, serial, err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return Entry{}, fmt.Errorf("enqueue id: %w", err)
	}

	slog.DebugContext(ctx, "Journal entry enqueued",
		"entry_id", e.EntryID,
		"operation", op,
		"serial_number", serial)
	return e, nil
}

// DequeueBatch claims up to limit due pending entries, oldest first, and
// marks them processing in the same transaction.
func (j *Journal) DequeueBatch(ctx context.Context, limit int) ([]Entry, error) {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(j.now())
	rows, err := tx.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM sync_journal
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY id
		LIMIT ?`,
		string(StatusPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
		entries[i].Status = StatusProcessing
	}
	query, args := inClause(`UPDATE sync_journal SET status = ?, updated_at = ? WHERE id IN `, ids,
		string(StatusProcessing), now)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}
	return entries, nil
}

// MarkComplete finishes the given entries.
func (j *Journal) MarkComplete(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`UPDATE sync_journal SET status = ?, last_error = '', updated_at = ? WHERE id IN `, ids,
		string(StatusCompleted), toMillis(j.now()))
	if _, err := j.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	return nil
}

// IncrementAttempt returns an entry to pending, due again after backoff.
func (j *Journal) IncrementAttempt(ctx context.Context, id int64, errMsg string, backoff time.Duration) error {
	now := j.now()
	_, err := j.db.ExecContext(ctx, `
		UPDATE sync_journal
		SET status = ?, attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ?`,
		string(StatusPending), errMsg, toMillis(now.Add(backoff)), toMillis(now), id)
	if err != nil {
		return fmt.Errorf("increment attempt %d: %w", id, err)
	}
	return nil
}

// MarkFailed parks an entry until RetryFailed is called.
func (j *Journal) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE sync_journal
		SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?`,
		string(StatusFailed), errMsg, toMillis(j.now()), id)
	if err != nil {
		return fmt.Errorf("mark failed %d: %w", id, err)
	}
	return nil
}

// ResetStaleProcessing returns entries left processing by a crashed drain.
func (j *Journal) ResetStaleProcessing(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`UPDATE sync_journal SET status = ?, updated_at = ? WHERE status = ?`,
		string(StatusPending), toMillis(j.now()), string(StatusProcessing))
	if err != nil {
		return 0, fmt.Errorf("reset stale processing: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale journal entries", "count", n)
	}
	return n, nil
}

// CleanupCompleted deletes completed entries last updated before cutoff.
func (j *Journal) CleanupCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM sync_journal WHERE status = ? AND updated_at < ?`,
		string(StatusCompleted), toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cleanup completed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RetryFailed makes every failed entry pending again with a fresh attempt count.
func (j *Journal) RetryFailed(ctx context.Context) (int64, error) {
	now := toMillis(j.now())
	res, err := j.db.ExecContext(ctx, `
		UPDATE sync_journal
		SET status = ?, attempts = 0, next_attempt_at = ?, updated_at = ?
		WHERE status = ?`,
		string(StatusPending), now, now, string(StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("retry failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (j *Journal) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	rows, err := j.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_journal GROUP BY status`)
	if err != nil {
		return s, fmt.Errorf("journal stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return s, fmt.Errorf("scan stats: %w", err)
		}
		switch Status(status) {
		case StatusPending:
			s.Pending = n
		case StatusProcessing:
			s.Processing = n
		case StatusCompleted:
			s.Completed = n
		case StatusFailed:
			s.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("iterate stats: %w", err)
	}

	var last sql.NullInt64
	err = j.db.QueryRowContext(ctx,
		`SELECT MAX(updated_at) FROM sync_journal WHERE status = ?`, string(StatusCompleted)).Scan(&last)
	if err != nil {
		return s, fmt.Errorf("last completed: %w", err)
	}
	if last.Valid {
		s.LastCompleted = fromMillis(last.Int64)
	}
	return s, nil
}

// Get returns one entry by row id.
func (j *Journal) Get(ctx context.Context, id int64) (Entry, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM sync_journal WHERE id = ?`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("get entry %d: %w", id, sql.ErrNoRows)
	}
	return entries[0], nil
}

const entryColumns = `id, entry_id, operation, serial_number, status, attempts, last_error, next_attempt_at, created_at, updated_at`

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			op, status         string
			next, created, upd int64
		)
		if err := rows.Scan(&e.ID, &e.EntryID, &op, &e.Serial, &status, &e.Attempts, &e.LastError, &next, &created, &upd); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Operation = Operation(op)
		e.Status = Status(status)
		e.NextAttempt = fromMillis(next)
		e.CreatedAt = fromMillis(created)
		e.UpdatedAt = fromMillis(upd)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// inClause appends "(?, ?, ...)" for ids to prefix; lead args come first.
func inClause(prefix string, ids []int64, lead ...any) (string, []any) {
	args := append([]any{}, lead...)
	marks := make([]string, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args = append(args, id)
	}
	return prefix + "(" + strings.Join(marks, ", ") + ")", args
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }
