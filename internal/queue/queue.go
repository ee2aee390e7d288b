// Package queue provides a WAL-mode SQLite-backed durable FIFO of pending
// ActivityEvents, with at-least-once redelivery semantics: a row is removed
// only after the caller confirms upstream acceptance via MarkSent. If the
// process crashes between DequeueBatch and MarkSent, the next DequeueBatch
// after restart returns the same rows again.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sentrywatch/endpointagent/internal/event"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

const maxErrorLen = 500

// Queue is a WAL-mode SQLite-backed offline queue. It is safe for
// concurrent use by multiple goroutines within a single process; it is not
// safe for concurrent use by multiple processes against the same file.
type Queue struct {
	db    *sql.DB
	depth atomic.Int64
}

const ddl = `
CREATE TABLE IF NOT EXISTS activity_queue (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	payload    TEXT    NOT NULL,
	created_at TEXT    NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	last_error TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_activity_queue_order ON activity_queue (id);
`

// Open opens (or creates) the SQLite database at path, enables WAL journal
// mode, and applies the schema. path may be ":memory:" for tests.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open %q: %w", path, err)
	}

	// SQLite allows one writer at a time; a single connection serializes
	// concurrent Enqueue/MarkSent/MarkFailed calls through this pool rather
	// than surfacing "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: set synchronous=NORMAL: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: apply schema: %w", err)
	}

	q := &Queue{db: db}

	var count int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM activity_queue`).Scan(&count); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: count rows: %w", err)
	}
	q.depth.Store(count)

	return q, nil
}

// Row is a dequeued, still-present queue entry.
type Row struct {
	ID    int64
	Event *event.ActivityEvent
}

// EnqueueMany appends events to the queue as a single atomic transaction:
// either every event is persisted or none is. It returns the number of rows
// appended.
func (q *Queue) EnqueueMany(ctx context.Context, events []*event.ActivityEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("queue: begin enqueue tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO activity_queue (payload, created_at, attempts, last_error) VALUES (?, ?, 0, '')`)
	if err != nil {
		return 0, fmt.Errorf("queue: prepare insert: %w", err)
	}
	defer stmt.Close()

	createdAt := event.NowISO()
	for _, e := range events {
		payload, err := e.ToJSON()
		if err != nil {
			return 0, fmt.Errorf("queue: marshal event: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, payload, createdAt); err != nil {
			return 0, fmt.Errorf("queue: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("queue: commit enqueue tx: %w", err)
	}

	q.depth.Add(int64(len(events)))
	return len(events), nil
}

// DequeueBatch returns up to limit still-present rows in ascending id
// order. It is a peek: rows are not removed. Call MarkSent with the
// returned IDs once delivery is confirmed, or MarkFailed on failure.
func (q *Queue) DequeueBatch(ctx context.Context, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, payload FROM activity_queue ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var id int64
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("queue: dequeue scan: %w", err)
		}
		e, err := event.FromJSON(payload)
		if err != nil {
			// A corrupted row must not block the rest of the batch; skip it.
			continue
		}
		out = append(out, Row{ID: id, Event: e})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: dequeue rows: %w", err)
	}
	return out, nil
}

// MarkSent deletes the rows identified by ids. It is a no-op for an empty
// slice.
func (q *Queue) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders, args := placeholdersFor(ids)
	result, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM activity_queue WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("queue: mark sent: %w", err)
	}

	n, _ := result.RowsAffected()
	q.depth.Add(-n)
	return nil
}

// MarkFailed increments the attempts counter and stores errMsg (truncated
// to 500 characters) for each row in ids. It is a no-op for an empty slice.
func (q *Queue) MarkFailed(ctx context.Context, ids []int64, errMsg string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}

	placeholders, args := placeholdersFor(ids)
	args = append([]any{errMsg}, args...)
	_, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE activity_queue SET attempts = attempts + 1, last_error = ? WHERE id IN (%s)`, placeholders),
		args...)
	if err != nil {
		return fmt.Errorf("queue: mark failed: %w", err)
	}
	return nil
}

// Size returns the exact number of rows currently present.
func (q *Queue) Size(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("queue: size: %w", err)
	}
	return count, nil
}

// Depth returns the last-known row count from an in-memory counter updated
// by EnqueueMany and MarkSent; it never blocks on the database.
func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

// Close closes the underlying database connection.
func (q *Queue) Close() error {
	return q.db.Close()
}

func placeholdersFor(ids []int64) (string, []any) {
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}
