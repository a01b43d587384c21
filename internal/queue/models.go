package queue

import (
	"encoding/json"
	"time"
)

// Name identifies an independent pending queue.
type Name string

const (
	NameScan    Name = "scan"
	NameSession Name = "session"
)

// Names lists every queue the station drains.
func Names() []Name {
	return []Name{NameScan, NameSession}
}

// Item is one undelivered event payload.
type Item struct {
	// ID is the SQLite row id, or 0 when the item only lives in memory.
	ID        int64
	EventID   string
	Queue     Name
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Durable reports whether the item was written to disk.
func (i Item) Durable() bool {
	return i.ID != 0
}

// Slot keys for the small fixed set of persisted station values.
const (
	SlotVerifiedExhibitorID   = "verified_exhibitor_id"
	SlotVerifiedExhibitorName = "verified_exhibitor_name"
	SlotScanTotal             = "scan_total"
	SlotLastResetDate         = "last_reset_date"
	SlotLastExhibitorID       = "last_exhibitor_id"
)
