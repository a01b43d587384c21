package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/camera"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/scanner"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/submit"
)

const (
	defaultDebounce    = time.Second
	defaultResultDelay = 3 * time.Second
)

// Operator-facing result messages.
const (
	MessageSubmitted       = "Session submitted successfully!"
	MessageSavedOffline    = "Saved offline. Thank you."
	MessageSavedAfterError = "Saved offline."
	MessageNotSaved        = "Session not saved. Note the counts and try again."
)

// ResultMessage maps a submission outcome to what the operator sees.
func ResultMessage(outcome submit.Outcome) string {
	switch outcome {
	case submit.Delivered:
		return MessageSubmitted
	case submit.QueuedOffline:
		return MessageSavedOffline
	case submit.NotQueued:
		return MessageNotSaved
	default:
		return MessageSavedAfterError
	}
}

var (
	ErrNotCounting  = errors.New("no session in progress")
	ErrAlreadyBegun = errors.New("session already in progress")
)

// Phase is where the aggregator is in a session's life.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCounting
	PhaseSubmitting
	PhaseResult
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseCounting:
		return "counting"
	case PhaseSubmitting:
		return "submitting"
	case PhaseResult:
		return "result"
	default:
		return "unknown"
	}
}

// Decision explains what happened to a decode.
type Decision int

const (
	Accepted Decision = iota
	Debounced
	Duplicate
	Inactive
)

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Debounced:
		return "debounced"
	case Duplicate:
		return "duplicate"
	default:
		return "inactive"
	}
}

// Tally is the running count.
type Tally struct {
	QR     int
	Manual int
}

// Total is always QR plus Manual.
func (t Tally) Total() int {
	return t.QR + t.Manual
}

// Snapshot is a read-only view for rendering.
type Snapshot struct {
	Phase       Phase
	SessionName string
	Tally       Tally
	Message     string
	LastError   string
}

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithClock(c scanner.Clock) Option {
	return func(a *Aggregator) {
		if c != nil {
			a.clock = c
		}
	}
}

func WithHaptics(h scanner.Haptics) Option {
	return func(a *Aggregator) {
		if h != nil {
			a.haptics = h
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logging.NewComponentLogger(logger, "session")
	}
}

// WithDebounce sets the quiet window after an accepted decode.
func WithDebounce(d time.Duration) Option {
	return func(a *Aggregator) {
		if d >= 0 {
			a.debounce = d
		}
	}
}

// WithResultDelay sets how long Result lasts before the automatic reset.
func WithResultDelay(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.resultDelay = d
		}
	}
}

// OnChange registers fn to receive a snapshot after every change.
func OnChange(fn func(Snapshot)) Option {
	return func(a *Aggregator) {
		a.onChange = fn
	}
}

// Aggregator counts one session at a time.
type Aggregator struct {
	cam         camera.Camera
	submitter   scanner.Submitter
	clock       scanner.Clock
	haptics     scanner.Haptics
	logger      *slog.Logger
	debounce    time.Duration
	resultDelay time.Duration
	onChange    func(Snapshot)

	mu           sync.Mutex
	phase        Phase
	name         string
	exhibitorID  string
	startedAt    time.Time
	tally        Tally
	seen         map[string]struct{}
	barcodes     []string
	lastAccepted time.Time
	stream       camera.Stream
	message      string
	lastErr      string
	timer        scanner.Timer
	generation   uint64
}

// New builds an idle aggregator. A nil camera allows manual-only sessions.
func New(cam camera.Camera, submitter scanner.Submitter, opts ...Option) *Aggregator {
	a := &Aggregator{
		cam:         cam,
		submitter:   submitter,
		clock:       scanner.SystemClock{},
		haptics:     scanner.BellHaptics{},
		logger:      logging.NewComponentLogger(nil, "session"),
		debounce:    defaultDebounce,
		resultDelay: defaultResultDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Begin opens a session and starts the camera when one is configured. A
// camera failure leaves the aggregator idle and is returned unchanged.
func (a *Aggregator) Begin(ctx context.Context, sessionName, exhibitorID string) error {
	if sessionName == "" {
		return events.ErrMissingSessionName
	}
	a.mu.Lock()
	if a.phase != PhaseIdle {
		a.mu.Unlock()
		return ErrAlreadyBegun
	}
	a.name = sessionName
	a.exhibitorID = exhibitorID
	a.startedAt = a.clock.Now()
	a.tally = Tally{}
	a.seen = make(map[string]struct{})
	a.barcodes = nil
	a.lastAccepted = time.Time{}
	a.message = ""
	a.lastErr = ""
	a.phase = PhaseCounting
	a.mu.Unlock()

	if a.cam != nil {
		stream, err := a.cam.Start(ctx, camera.Constraints{})
		if err != nil {
			a.mu.Lock()
			a.phase = PhaseIdle
			a.lastErr = err.Error()
			snap := a.snapshotLocked()
			a.mu.Unlock()
			logging.WarnWithContext(a.logger, "camera unavailable for session", "camera_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "session not started"),
				logging.String(logging.FieldErrorHint, "check the camera connection or count manually"),
			)
			a.publish(snap)
			return err
		}
		a.mu.Lock()
		a.stream = stream
		a.mu.Unlock()
		go a.pump(stream)
	}

	a.logger.Info("session started",
		logging.String(logging.FieldEventType, "session_started"),
		logging.String("session_name", sessionName),
	)
	a.publish(a.Snapshot())
	return nil
}

func (a *Aggregator) pump(stream camera.Stream) {
	for text := range stream.Decodes() {
		a.HandleDecode(text)
	}
}

// HandleDecode counts text when it is new and outside the debounce window.
func (a *Aggregator) HandleDecode(text string) Decision {
	ticket := events.NormalizeTicket(text)
	now := a.clock.Now()

	a.mu.Lock()
	if a.phase != PhaseCounting || ticket == "" {
		a.mu.Unlock()
		return Inactive
	}
	if !a.lastAccepted.IsZero() && now.Sub(a.lastAccepted) < a.debounce {
		a.mu.Unlock()
		return Debounced
	}
	if _, dup := a.seen[ticket]; dup {
		a.message = "Duplicate scan ignored"
		snap := a.snapshotLocked()
		a.mu.Unlock()
		a.publish(snap)
		return Duplicate
	}
	a.seen[ticket] = struct{}{}
	a.barcodes = append(a.barcodes, ticket)
	a.tally.QR++
	a.lastAccepted = now
	a.message = ""
	snap := a.snapshotLocked()
	a.mu.Unlock()

	a.haptics.Pulse()
	a.publish(snap)
	return Accepted
}

// IncrementManual adds one uncounted attendee.
func (a *Aggregator) IncrementManual() (Tally, error) {
	return a.adjustManual(1)
}

// DecrementManual removes one manual attendee, never going below zero.
func (a *Aggregator) DecrementManual() (Tally, error) {
	return a.adjustManual(-1)
}

func (a *Aggregator) adjustManual(delta int) (Tally, error) {
	a.mu.Lock()
	if a.phase != PhaseCounting {
		a.mu.Unlock()
		return Tally{}, ErrNotCounting
	}
	a.tally.Manual += delta
	if a.tally.Manual < 0 {
		a.tally.Manual = 0
	}
	tally := a.tally
	snap := a.snapshotLocked()
	a.mu.Unlock()
	a.publish(snap)
	return tally, nil
}

// Tally returns the running count.
func (a *Aggregator) Tally() Tally {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tally
}

// Result reports a completed session.
type Result struct {
	EventID string
	Outcome submit.Outcome
	Message string
	Tally   Tally
}

// Complete seals the session and submits it. Delivery problems are absorbed;
// the aggregator reaches Result and resets after the result delay unless
// Reset ran during the attempt. An error with a result means the report was
// neither delivered nor queued.
func (a *Aggregator) Complete(ctx context.Context) (Result, error) {
	a.mu.Lock()
	if a.phase != PhaseCounting {
		a.mu.Unlock()
		return Result{}, ErrNotCounting
	}
	report, err := events.NewSessionReport(events.SessionInput{
		SessionName: a.name,
		ExhibitorID: a.exhibitorID,
		QRCount:     a.tally.QR,
		ManualCount: a.tally.Manual,
		StartedAt:   a.startedAt,
		CompletedAt: a.clock.Now(),
		Barcodes:    a.barcodes,
	})
	if err != nil {
		a.mu.Unlock()
		return Result{}, fmt.Errorf("seal session: %w", err)
	}
	tally := a.tally
	stream := a.stream
	a.stream = nil
	a.phase = PhaseSubmitting
	a.message = "Submitting..."
	snap := a.snapshotLocked()
	a.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			a.logger.Warn("camera stop failed", logging.Error(err))
		}
	}
	a.publish(snap)

	ctx = services.WithEventID(services.WithQueue(ctx, string(queue.NameSession)), report.ID())
	logger := logging.WithContext(ctx, a.logger)
	outcome, submitErr := a.submitter.Submit(ctx, report)
	if submitErr != nil {
		logger.Warn("session submission completed with warnings", logging.Error(submitErr))
	}
	message := ResultMessage(outcome)
	result := Result{EventID: report.ID(), Outcome: outcome, Message: message, Tally: tally}
	var resultErr error
	if outcome == submit.NotQueued {
		resultErr = submitErr
	}

	a.mu.Lock()
	if a.phase != PhaseSubmitting {
		a.mu.Unlock()
		logger.Info("session submitted after reset",
			logging.String(logging.FieldEventType, "session_"+outcome.String()),
		)
		return result, resultErr
	}
	a.phase = PhaseResult
	a.message = message
	a.generation++
	gen := a.generation
	a.timer = a.clock.AfterFunc(a.resultDelay, func() { a.autoReset(gen) })
	snap = a.snapshotLocked()
	a.mu.Unlock()

	logger.Info("session completed",
		logging.String(logging.FieldEventType, "session_"+outcome.String()),
		logging.Int("qr_count", tally.QR),
		logging.Int("manual_count", tally.Manual),
		logging.Int("total_count", tally.Total()),
	)
	a.publish(snap)
	return result, resultErr
}

func (a *Aggregator) autoReset(gen uint64) {
	a.mu.Lock()
	if a.phase != PhaseResult || a.generation != gen {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	a.Reset()
}

// Reset abandons any session and returns to idle.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	stream := a.stream
	a.stream = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.generation++
	a.phase = PhaseIdle
	a.name = ""
	a.exhibitorID = ""
	a.tally = Tally{}
	a.seen = nil
	a.barcodes = nil
	a.lastAccepted = time.Time{}
	a.message = ""
	a.lastErr = ""
	snap := a.snapshotLocked()
	a.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
	}
	a.publish(snap)
}

// Snapshot returns the current view.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:       a.phase,
		SessionName: a.name,
		Tally:       a.tally,
		Message:     a.message,
		LastError:   a.lastErr,
	}
}

func (a *Aggregator) publish(s Snapshot) {
	if a.onChange != nil {
		a.onChange(s)
	}
}
