package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// GetSlot reads a named station value. The boolean is false when the slot
// has never been written.
func (s *Store) GetSlot(ctx context.Context, key string) (string, bool, error) {
	ctx = ensureContext(ctx)
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM slots WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return value, true, nil
}

// SetSlot writes a single named value.
func (s *Store) SetSlot(ctx context.Context, key, value string) error {
	return s.SetSlots(ctx, map[string]string{key: value})
}

// SetSlots writes several values in one transaction.
func (s *Store) SetSlots(ctx context.Context, slots map[string]string) error {
	if len(slots) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())
	if err := s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertSlots(ctx, tx, slots, now)
	}); err != nil {
		return fmt.Errorf("write slots: %w", err)
	}
	return nil
}

// DeleteSlots removes the given keys. Missing keys are ignored.
func (s *Store) DeleteSlots(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	if err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, "DELETE FROM slots WHERE key = ?", key); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("delete slots: %w", err)
	}
	return nil
}

func upsertSlots(ctx context.Context, tx *sql.Tx, slots map[string]string, now string) error {
	keys := make([]string, 0, len(slots))
	for key := range slots {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO slots (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, slots[key], now,
		); err != nil {
			return fmt.Errorf("upsert slot %s: %w", key, err)
		}
	}
	return nil
}
