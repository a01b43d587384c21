package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names the delivery route and pending queue an event belongs to.
type Kind string

const (
	KindScan    Kind = "scan"
	KindSession Kind = "session"
)

// TimestampLayout renders UTC instants with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	MinRating = 0
	MaxRating = 5
)

var (
	ErrMissingTicket      = errors.New("ticket id is required")
	ErrMissingExhibitor   = errors.New("exhibitor id is required")
	ErrRatingOutOfRange   = errors.New("rating must be between 0 and 5")
	ErrMissingSessionName = errors.New("session name is required")
	ErrNegativeCount      = errors.New("counts must not be negative")
)

// Event is anything the submission pipeline can deliver.
type Event interface {
	ID() string
	Kind() Kind
	Payload(source string) ([]byte, error)
}

// FormatTime renders t the way every payload and export expects.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

func newEventID() string {
	return uuid.NewString()
}

// ScanInput carries the operator's choices at the moment consent is given.
type ScanInput struct {
	TicketID    string
	ExhibitorID string
	Consent     bool
	Rating      int
	Notes       string
	// ScannedAt defaults to the time NewScanEvent runs.
	ScannedAt time.Time
}

// ScanEvent is one consent decision for one ticket. It cannot be changed
// after construction.
type ScanEvent struct {
	id          string
	ticketID    string
	exhibitorID string
	consent     bool
	rating      int
	notes       string
	scannedAt   time.Time
}

// NewScanEvent validates input and returns a stamped ScanEvent.
func NewScanEvent(in ScanInput) (ScanEvent, error) {
	ticket := NormalizeTicket(in.TicketID)
	if ticket == "" {
		return ScanEvent{}, ErrMissingTicket
	}
	exhibitor := strings.TrimSpace(in.ExhibitorID)
	if exhibitor == "" {
		return ScanEvent{}, ErrMissingExhibitor
	}
	if in.Rating < MinRating || in.Rating > MaxRating {
		return ScanEvent{}, fmt.Errorf("%w: got %d", ErrRatingOutOfRange, in.Rating)
	}
	scannedAt := in.ScannedAt
	if scannedAt.IsZero() {
		scannedAt = time.Now()
	}
	return ScanEvent{
		id:          newEventID(),
		ticketID:    ticket,
		exhibitorID: exhibitor,
		consent:     in.Consent,
		rating:      in.Rating,
		notes:       NormalizeNotes(in.Notes),
		scannedAt:   scannedAt.UTC(),
	}, nil
}

func (e ScanEvent) ID() string           { return e.id }
func (e ScanEvent) Kind() Kind           { return KindScan }
func (e ScanEvent) TicketID() string     { return e.ticketID }
func (e ScanEvent) ExhibitorID() string  { return e.exhibitorID }
func (e ScanEvent) Consent() bool        { return e.consent }
func (e ScanEvent) Rating() int          { return e.rating }
func (e ScanEvent) Notes() string        { return e.notes }
func (e ScanEvent) ScannedAt() time.Time { return e.scannedAt }

// ScanPayload is the JSON body posted to /api/scan. It is also the stored
// form of a pending scan, so the export reads it back.
type ScanPayload struct {
	EventID     string `json:"event_id,omitempty"`
	TicketID    string `json:"ticket_id"`
	ExhibitorID string `json:"exhibitor_id"`
	Consent     bool   `json:"consent"`
	Rating      int    `json:"rating"`
	Notes       string `json:"notes"`
	ScannedAt   string `json:"scanned_at,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Payload renders the relay body, tagged with source.
func (e ScanEvent) Payload(source string) ([]byte, error) {
	return json.Marshal(ScanPayload{
		EventID:     e.id,
		TicketID:    e.ticketID,
		ExhibitorID: e.exhibitorID,
		Consent:     e.consent,
		Rating:      e.rating,
		Notes:       e.notes,
		ScannedAt:   FormatTime(e.scannedAt),
		Source:      source,
	})
}

// DecodeScanPayload parses a stored scan body.
func DecodeScanPayload(raw []byte) (ScanPayload, error) {
	var p ScanPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ScanPayload{}, fmt.Errorf("decode scan payload: %w", err)
	}
	return p, nil
}
