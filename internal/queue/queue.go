package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Queue is a FIFO of undelivered payloads for one Name. The in-memory slice
// is authoritative for ordering while the process runs; SQLite makes it
// survive restarts.
type Queue struct {
	name  Name
	store *Store

	mu    sync.Mutex
	items []Item
}

// Name returns the queue name.
func (q *Queue) Name() Name {
	return q.name
}

func (q *Queue) load(ctx context.Context) error {
	rows, err := q.store.db.QueryContext(ctx,
		"SELECT id, event_id, payload, created_at FROM pending_events WHERE queue = ? ORDER BY id",
		string(q.name),
	)
	if err != nil {
		return fmt.Errorf("%w: load %s queue: %w", ErrPersistenceDegraded, q.name, err)
	}
	defer rows.Close()

	var (
		loaded  []Item
		corrupt int
	)
	for rows.Next() {
		item, payload, err := scanPendingRow(rows)
		if err != nil {
			corrupt++
			continue
		}
		if !json.Valid([]byte(payload)) {
			corrupt++
			continue
		}
		item.Queue = q.name
		item.Payload = json.RawMessage(payload)
		loaded = append(loaded, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: read %s queue: %w", ErrPersistenceDegraded, q.name, err)
	}
	rows.Close()

	if corrupt == 0 {
		q.items = loaded
		return nil
	}

	// Every row is set aside, readable or not; the live queue starts empty.
	corruptErr := fmt.Errorf("%w: %d unreadable row(s) in %s queue; %d row(s) quarantined",
		ErrStorageCorrupt, corrupt, q.name, corrupt+len(loaded))
	if err := q.quarantineAll(ctx, "unparseable payload"); err != nil {
		return errors.Join(corruptErr, fmt.Errorf("%w: quarantine rows: %w", ErrPersistenceDegraded, err))
	}
	return corruptErr
}

func (q *Queue) quarantineAll(ctx context.Context, reason string) error {
	now := formatTime(time.Now())
	return q.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO quarantined_events
			(queue, event_id, payload, created_at, reason, quarantined_at)
			SELECT queue, event_id, payload, created_at, ?, ? FROM pending_events WHERE queue = ? ORDER BY id`,
			reason, now, string(q.name),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM pending_events WHERE queue = ?", string(q.name))
		return err
	})
}

// Enqueue appends payload to the tail and persists it before returning. When
// the write fails the item is still queued in memory and the returned error
// wraps ErrPersistenceDegraded.
func (q *Queue) Enqueue(ctx context.Context, eventID string, payload []byte) (Item, error) {
	ctx = ensureContext(ctx)
	if !json.Valid(payload) {
		return Item{}, ErrInvalidPayload
	}

	item := Item{
		EventID:   eventID,
		Queue:     q.name,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	res, err := q.store.execWithRetry(ctx,
		"INSERT INTO pending_events (queue, event_id, payload, created_at) VALUES (?, ?, ?, ?)",
		string(q.name), eventID, string(payload), formatTime(item.CreatedAt),
	)
	var writeErr error
	if err == nil {
		item.ID, err = res.LastInsertId()
	}
	if err != nil {
		item.ID = 0
		writeErr = fmt.Errorf("%w: persist %s event %s: %w", ErrPersistenceDegraded, q.name, eventID, err)
	}
	q.items = append(q.items, item)
	return item, writeErr
}

// PeekFront returns the oldest item without removing it.
func (q *Queue) PeekFront() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// PopFront removes and returns the oldest item. A failed delete still removes
// the item from memory and wraps ErrPersistenceDegraded; the row then
// reappears after a restart and is delivered again.
func (q *Queue) PopFront(ctx context.Context) (Item, error) {
	ctx = ensureContext(ctx)
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, ErrEmpty
	}
	item := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]

	if !item.Durable() {
		return item, nil
	}
	if _, err := q.store.execWithRetry(ctx, "DELETE FROM pending_events WHERE id = ?", item.ID); err != nil {
		return item, fmt.Errorf("%w: delete %s event %s: %w", ErrPersistenceDegraded, q.name, item.EventID, err)
	}
	return item, nil
}

// Size returns the number of pending items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of pending items, oldest first.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Reset discards every pending item and returns how many were dropped. It is
// destructive: callers must obtain operator confirmation first. Storage is
// cleared before memory so a failed reset loses nothing.
func (q *Queue) Reset(ctx context.Context) (int, error) {
	return q.ResetWithSlots(ctx, nil)
}

// ResetWithSlots clears the queue and writes slots in one transaction, so
// related station state (such as the scan counter) changes atomically with
// the queue.
func (q *Queue) ResetWithSlots(ctx context.Context, slots map[string]string) (int, error) {
	ctx = ensureContext(ctx)
	q.mu.Lock()
	defer q.mu.Unlock()

	now := formatTime(time.Now())
	err := q.store.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM pending_events WHERE queue = ?", string(q.name)); err != nil {
			return err
		}
		return upsertSlots(ctx, tx, slots, now)
	})
	if err != nil {
		return 0, fmt.Errorf("reset %s queue: %w", q.name, err)
	}

	dropped := len(q.items)
	q.items = nil
	return dropped, nil
}
