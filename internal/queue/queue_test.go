package queue

import (
	"context"
	"strings"
	"testing"

	"github.com/sentrywatch/endpointagent/internal/event"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func sampleEvents(n int) []*event.ActivityEvent {
	events := make([]*event.ActivityEvent, n)
	for i := range events {
		events[i] = event.New(1, event.ProcessSnapshot)
	}
	return events
}

func TestEnqueueDequeueOrderAndSize(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	n, err := q.EnqueueMany(ctx, sampleEvents(3))
	if err != nil {
		t.Fatalf("EnqueueMany: %v", err)
	}
	if n != 3 {
		t.Errorf("EnqueueMany returned %d, want 3", n)
	}

	size, err := q.Size(ctx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 3 {
		t.Errorf("Size = %d, want 3", size)
	}
	if got := q.Depth(); got != 3 {
		t.Errorf("Depth = %d, want 3", got)
	}

	rows, err := q.DequeueBatch(ctx, 2)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("DequeueBatch returned %d rows, want 2", len(rows))
	}
	if rows[0].ID >= rows[1].ID {
		t.Errorf("rows not in ascending id order: %d, %d", rows[0].ID, rows[1].ID)
	}

	// Peek: size is unaffected by DequeueBatch.
	size, err = q.Size(ctx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 3 {
		t.Errorf("Size after peek = %d, want 3 (dequeue must not remove rows)", size)
	}
}

func TestMarkSentRemovesRows(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	if _, err := q.EnqueueMany(ctx, sampleEvents(2)); err != nil {
		t.Fatalf("EnqueueMany: %v", err)
	}
	rows, err := q.DequeueBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if err := q.MarkSent(ctx, ids); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	size, err := q.Size(ctx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 0 {
		t.Errorf("Size after MarkSent = %d, want 0", size)
	}
	if got := q.Depth(); got != 0 {
		t.Errorf("Depth after MarkSent = %d, want 0", got)
	}
}

func TestMarkFailedIncrementsAttemptsAndTruncatesError(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	if _, err := q.EnqueueMany(ctx, sampleEvents(1)); err != nil {
		t.Fatalf("EnqueueMany: %v", err)
	}
	rows, err := q.DequeueBatch(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}

	longErr := strings.Repeat("x", 1000)
	if err := q.MarkFailed(ctx, []int64{rows[0].ID}, longErr); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	var attempts int
	var lastErr string
	if err := q.db.QueryRowContext(ctx, `SELECT attempts, last_error FROM activity_queue WHERE id = ?`, rows[0].ID).
		Scan(&attempts, &lastErr); err != nil {
		t.Fatalf("query after MarkFailed: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if len(lastErr) != 500 {
		t.Errorf("last_error length = %d, want 500 (truncated)", len(lastErr))
	}

	// Row must still be present; MarkFailed never deletes.
	size, err := q.Size(ctx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 1 {
		t.Errorf("Size after MarkFailed = %d, want 1", size)
	}
}

func TestMarkSentAndMarkFailedNoOpOnEmpty(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	if err := q.MarkSent(ctx, nil); err != nil {
		t.Errorf("MarkSent(nil) = %v, want nil", err)
	}
	if err := q.MarkFailed(ctx, nil, "whatever"); err != nil {
		t.Errorf("MarkFailed(nil) = %v, want nil", err)
	}
}

func TestCrashBetweenDequeueAndMarkSentRedelivers(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	if _, err := q.EnqueueMany(ctx, sampleEvents(1)); err != nil {
		t.Fatalf("EnqueueMany: %v", err)
	}

	first, err := q.DequeueBatch(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 row, got %d", len(first))
	}

	// Simulate a crash: no MarkSent call happens. The next dequeue (as if
	// after a restart) must return the same row again.
	second, err := q.DequeueBatch(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueBatch (redelivery): %v", err)
	}
	if len(second) != 1 || second[0].ID != first[0].ID {
		t.Fatalf("redelivery mismatch: first=%+v second=%+v", first, second)
	}
}
