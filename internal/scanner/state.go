package scanner

import (
	"context"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/submit"
)

// State is a step in the scan flow.
type State int

const (
	Idle State = iota
	CameraStarting
	Scanning
	Locked
	AwaitingConsent
	Submitting
	Result
	ManualEntry
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CameraStarting:
		return "camera_starting"
	case Scanning:
		return "scanning"
	case Locked:
		return "locked"
	case AwaitingConsent:
		return "awaiting_consent"
	case Submitting:
		return "submitting"
	case Result:
		return "result"
	case ManualEntry:
		return "manual_entry"
	default:
		return "unknown"
	}
}

// Operator-facing result messages.
const (
	MessageConsentRecorded = "Consent recorded. Thank you."
	MessageConsentDeclined = "Consent declined."
	MessageSavedOffline    = "Saved offline. Thank you."
	MessageDeclinedOffline = "Declined (saved offline)."
	MessageSavedAfterError = "Saved offline."
	MessageNotSaved        = "Not saved. Note the ticket and try again."
)

// ResultMessage maps a submission outcome to what the operator sees.
func ResultMessage(outcome submit.Outcome, consent bool) string {
	switch outcome {
	case submit.Delivered:
		if consent {
			return MessageConsentRecorded
		}
		return MessageConsentDeclined
	case submit.QueuedOffline:
		if consent {
			return MessageSavedOffline
		}
		return MessageDeclinedOffline
	case submit.NotQueued:
		return MessageNotSaved
	default:
		return MessageSavedAfterError
	}
}

// Submitter is the slice of the submission pipeline the machine needs.
type Submitter interface {
	Submit(ctx context.Context, ev events.Event) (submit.Outcome, error)
}

// Identity supplies the exhibitor consent is recorded for. ok is false when
// no exhibitor is logged in.
type Identity interface {
	ExhibitorID(ctx context.Context) (id string, ok bool)
}

// Counter tallies consent submissions for the day.
type Counter interface {
	Increment(ctx context.Context) (int, error)
}

// Haptics acknowledges a successful lock or manual confirmation.
type Haptics interface {
	Pulse()
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock provides time and deferred callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Snapshot is a read-only view of the machine for rendering.
type Snapshot struct {
	State     State
	TicketID  string
	Rating    int
	Notes     string
	TorchOn   bool
	Message   string
	Outcome   submit.Outcome
	LastError string
}
