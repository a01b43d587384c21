package queue

import (
	"database/sql"
	"errors"
	"time"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanPendingRow reads one pending_events row. The payload is returned raw so
// the caller decides how to treat rows that fail to parse.
func scanPendingRow(scanner rowScanner) (Item, string, error) {
	var (
		id         int64
		eventID    sql.NullString
		payload    sql.NullString
		createdRaw sql.NullString
	)
	if err := scanner.Scan(&id, &eventID, &payload, &createdRaw); err != nil {
		return Item{}, "", err
	}
	item := Item{ID: id, EventID: eventID.String}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	return item, payload.String, nil
}
