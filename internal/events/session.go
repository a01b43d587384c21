package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionTypeReport tags session bodies for the workflow engine.
const SessionTypeReport = "session_report"

// UnknownExhibitor is sent when a session has no exhibitor attached.
const UnknownExhibitor = "N/A"

// SessionInput describes a finished counting session.
type SessionInput struct {
	SessionName string
	ExhibitorID string
	QRCount     int
	ManualCount int
	StartedAt   time.Time
	CompletedAt time.Time
	Barcodes    []string
}

// SessionReport is a sealed attendance tally. The total is derived on
// encoding and cannot be set.
type SessionReport struct {
	id          string
	sessionName string
	exhibitorID string
	qrCount     int
	manualCount int
	startedAt   time.Time
	completedAt time.Time
	barcodes    []string
}

// NewSessionReport validates in and returns a stamped report.
func NewSessionReport(in SessionInput) (SessionReport, error) {
	name := strings.TrimSpace(in.SessionName)
	if name == "" {
		return SessionReport{}, ErrMissingSessionName
	}
	if in.QRCount < 0 || in.ManualCount < 0 {
		return SessionReport{}, fmt.Errorf("%w: qr=%d manual=%d", ErrNegativeCount, in.QRCount, in.ManualCount)
	}
	exhibitor := strings.TrimSpace(in.ExhibitorID)
	if exhibitor == "" {
		exhibitor = UnknownExhibitor
	}
	completed := in.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	started := in.StartedAt
	if started.IsZero() {
		started = completed
	}
	return SessionReport{
		id:          newEventID(),
		sessionName: name,
		exhibitorID: exhibitor,
		qrCount:     in.QRCount,
		manualCount: in.ManualCount,
		startedAt:   started.UTC(),
		completedAt: completed.UTC(),
		barcodes:    append([]string(nil), in.Barcodes...),
	}, nil
}

func (r SessionReport) ID() string             { return r.id }
func (r SessionReport) Kind() Kind             { return KindSession }
func (r SessionReport) SessionName() string    { return r.sessionName }
func (r SessionReport) ExhibitorID() string    { return r.exhibitorID }
func (r SessionReport) QRCount() int           { return r.qrCount }
func (r SessionReport) ManualCount() int       { return r.manualCount }
func (r SessionReport) TotalCount() int        { return r.qrCount + r.manualCount }
func (r SessionReport) StartedAt() time.Time   { return r.startedAt }
func (r SessionReport) CompletedAt() time.Time { return r.completedAt }

// Barcodes returns the accepted codes in acceptance order.
func (r SessionReport) Barcodes() []string {
	return append([]string(nil), r.barcodes...)
}

// SessionPayload is the JSON body posted to /api/session.
type SessionPayload struct {
	EventID     string   `json:"event_id,omitempty"`
	SessionName string   `json:"session_name"`
	ExhibitorID string   `json:"exhibitor_id"`
	QRCount     int      `json:"qr_count"`
	ManualCount int      `json:"manual_count"`
	TotalCount  int      `json:"total_count"`
	StartedAt   string   `json:"started_at"`
	CompletedAt string   `json:"completed_at"`
	Barcodes    []string `json:"barcodes"`
	Type        string   `json:"type"`
	Source      string   `json:"source,omitempty"`
}

// Payload renders the relay body, tagged with source.
func (r SessionReport) Payload(source string) ([]byte, error) {
	barcodes := r.barcodes
	if barcodes == nil {
		barcodes = []string{}
	}
	return json.Marshal(SessionPayload{
		EventID:     r.id,
		SessionName: r.sessionName,
		ExhibitorID: r.exhibitorID,
		QRCount:     r.qrCount,
		ManualCount: r.manualCount,
		TotalCount:  r.TotalCount(),
		StartedAt:   FormatTime(r.startedAt),
		CompletedAt: FormatTime(r.completedAt),
		Barcodes:    barcodes,
		Type:        SessionTypeReport,
		Source:      source,
	})
}
