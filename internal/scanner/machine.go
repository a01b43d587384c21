package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/camera"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/logging"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/services"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/submit"
)

const defaultResultDelay = 2 * time.Second

var (
	// ErrInvalidTransition rejects an operation the current state does not allow.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotAuthenticated blocks consent until an exhibitor is logged in.
	ErrNotAuthenticated = errors.New("no exhibitor logged in")
)

// Option configures a Machine.
type Option func(*Machine)

func WithClock(c Clock) Option {
	return func(m *Machine) {
		if c != nil {
			m.clock = c
		}
	}
}

func WithHaptics(h Haptics) Option {
	return func(m *Machine) {
		if h != nil {
			m.haptics = h
		}
	}
}

func WithCounter(c Counter) Option {
	return func(m *Machine) {
		m.counter = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logging.NewComponentLogger(logger, "scanner")
	}
}

// WithResultDelay sets how long Result lasts before the automatic reset.
func WithResultDelay(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.resultDelay = d
		}
	}
}

// OnChange registers fn to receive a snapshot after every transition.
func OnChange(fn func(Snapshot)) Option {
	return func(m *Machine) {
		m.onChange = fn
	}
}

// Machine is the single canonical scan state machine.
type Machine struct {
	cam         camera.Camera
	submitter   Submitter
	identity    Identity
	counter     Counter
	haptics     Haptics
	clock       Clock
	logger      *slog.Logger
	resultDelay time.Duration
	onChange    func(Snapshot)

	mu         sync.Mutex
	state      State
	scanLocked bool
	stream     camera.Stream
	ticketID   string
	rating     int
	notes      string
	torchOn    bool
	message    string
	outcome    submit.Outcome
	lastErr    string
	timer      Timer
	generation uint64
}

// New builds a Machine in Idle.
func New(cam camera.Camera, submitter Submitter, identity Identity, opts ...Option) *Machine {
	m := &Machine{
		cam:         cam,
		submitter:   submitter,
		identity:    identity,
		haptics:     BellHaptics{},
		clock:       SystemClock{},
		logger:      logging.NewComponentLogger(nil, "scanner"),
		resultDelay: defaultResultDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns the current view.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:     m.state,
		TicketID:  m.ticketID,
		Rating:    m.rating,
		Notes:     m.notes,
		TorchOn:   m.torchOn,
		Message:   m.message,
		Outcome:   m.outcome,
		LastError: m.lastErr,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// setLocked moves to next and returns the snapshot to publish once the lock
// is released.
func (m *Machine) setLocked(next State) Snapshot {
	m.state = next
	return m.snapshotLocked()
}

func (m *Machine) publish(s Snapshot) {
	if m.onChange != nil {
		m.onChange(s)
	}
}

func invalid(op string, from State) error {
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, from)
}

// Start acquires the camera and begins scanning. A camera failure returns
// the machine to Idle and is returned unchanged for the operator.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Idle {
		from := m.state
		m.mu.Unlock()
		return invalid("start", from)
	}
	m.lastErr = ""
	m.message = ""
	snap := m.setLocked(CameraStarting)
	m.mu.Unlock()
	m.publish(snap)

	if m.cam == nil {
		return m.cameraFailed(fmt.Errorf("%w: no camera configured", camera.ErrUnavailable))
	}
	stream, err := m.cam.Start(ctx, camera.Constraints{})
	if err != nil {
		return m.cameraFailed(err)
	}

	m.mu.Lock()
	if m.state != CameraStarting {
		// Reset won the race; release the stream we no longer own.
		m.mu.Unlock()
		_ = stream.Stop()
		return invalid("start", Idle)
	}
	m.stream = stream
	m.torchOn = false
	snap = m.setLocked(Scanning)
	m.mu.Unlock()

	m.logger.Info("camera started", logging.String(logging.FieldEventType, "camera_started"))
	go m.pump(stream)
	m.publish(snap)
	return nil
}

func (m *Machine) cameraFailed(err error) error {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.message = "Camera failed"
	snap := m.setLocked(Idle)
	m.mu.Unlock()

	logging.WarnWithContext(m.logger, "camera unavailable", "camera_unavailable",
		logging.Error(err),
		logging.String(logging.FieldImpact, "scanning cannot start"),
		logging.String(logging.FieldErrorHint, "check the camera connection or use manual entry"),
	)
	m.publish(snap)
	return err
}

func (m *Machine) pump(stream camera.Stream) {
	for text := range stream.Decodes() {
		m.HandleDecode(text)
	}
}

// HandleDecode offers decoded text to the machine. Only the first decode
// while Scanning is accepted; it takes the lock, stops the camera, and moves
// to AwaitingConsent. It reports whether the decode was accepted.
func (m *Machine) HandleDecode(text string) bool {
	ticket := events.NormalizeTicket(text)

	m.mu.Lock()
	if m.scanLocked || m.state != Scanning || ticket == "" {
		m.mu.Unlock()
		return false
	}
	m.scanLocked = true
	m.ticketID = ticket
	stream := m.stream
	m.stream = nil
	snap := m.setLocked(Locked)
	m.mu.Unlock()

	m.haptics.Pulse()
	m.logger.Info("ticket scanned",
		logging.String(logging.FieldEventType, "ticket_locked"),
		logging.String("ticket_id", ticket),
	)
	m.publish(snap)

	m.stopStream(stream)

	m.mu.Lock()
	if m.state != Locked {
		m.mu.Unlock()
		return true
	}
	m.torchOn = false
	snap = m.setLocked(AwaitingConsent)
	m.mu.Unlock()
	m.publish(snap)
	return true
}

func (m *Machine) stopStream(stream camera.Stream) {
	if stream == nil {
		return
	}
	if err := stream.Stop(); err != nil {
		m.logger.Warn("camera stop failed", logging.Error(err))
	}
}

// BeginManualEntry switches from Idle or Scanning to typed entry.
func (m *Machine) BeginManualEntry() error {
	m.mu.Lock()
	if m.state != Idle && m.state != Scanning {
		from := m.state
		m.mu.Unlock()
		return invalid("manual entry", from)
	}
	stream := m.stream
	m.stream = nil
	m.torchOn = false
	snap := m.setLocked(ManualEntry)
	m.mu.Unlock()

	m.stopStream(stream)
	m.publish(snap)
	return nil
}

// ConfirmManualEntry accepts a typed ticket id and moves to AwaitingConsent.
func (m *Machine) ConfirmManualEntry(ticketID string) error {
	ticket := events.NormalizeTicket(ticketID)
	if ticket == "" {
		return events.ErrMissingTicket
	}
	m.mu.Lock()
	if m.state != ManualEntry {
		from := m.state
		m.mu.Unlock()
		return invalid("confirm manual entry", from)
	}
	m.scanLocked = true
	m.ticketID = ticket
	snap := m.setLocked(AwaitingConsent)
	m.mu.Unlock()

	m.haptics.Pulse()
	m.logger.Info("ticket entered manually",
		logging.String(logging.FieldEventType, "ticket_manual"),
		logging.String("ticket_id", ticket),
	)
	m.publish(snap)
	return nil
}

// SetRating records a 0-5 rating while awaiting consent.
func (m *Machine) SetRating(rating int) error {
	if rating < events.MinRating || rating > events.MaxRating {
		return fmt.Errorf("%w: got %d", events.ErrRatingOutOfRange, rating)
	}
	m.mu.Lock()
	if m.state != AwaitingConsent {
		from := m.state
		m.mu.Unlock()
		return invalid("rate", from)
	}
	m.rating = rating
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap)
	return nil
}

// SetNotes records free-text notes while awaiting consent.
func (m *Machine) SetNotes(notes string) error {
	m.mu.Lock()
	if m.state != AwaitingConsent {
		from := m.state
		m.mu.Unlock()
		return invalid("note", from)
	}
	m.notes = notes
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap)
	return nil
}

// Outcome is what Consent reports back to the caller.
type Outcome struct {
	EventID string
	Outcome submit.Outcome
	Message string
}

// Consent records the decision for the locked ticket. Rating, notes, and the
// timestamp are captured now. Delivery problems never surface as errors; the
// machine always reaches Result unless Reset ran during the attempt. An error
// with a result means the event was neither delivered nor queued.
func (m *Machine) Consent(ctx context.Context, yes bool) (Outcome, error) {
	exhibitorID, ok := "", false
	if m.identity != nil {
		exhibitorID, ok = m.identity.ExhibitorID(ctx)
	}
	if !ok {
		return Outcome{}, ErrNotAuthenticated
	}

	m.mu.Lock()
	if m.state != AwaitingConsent {
		from := m.state
		m.mu.Unlock()
		return Outcome{}, invalid("consent", from)
	}
	ev, err := events.NewScanEvent(events.ScanInput{
		TicketID:    m.ticketID,
		ExhibitorID: exhibitorID,
		Consent:     yes,
		Rating:      m.rating,
		Notes:       m.notes,
		ScannedAt:   m.clock.Now(),
	})
	if err != nil {
		m.mu.Unlock()
		return Outcome{}, err
	}
	m.message = "Processing..."
	snap := m.setLocked(Submitting)
	m.mu.Unlock()
	m.publish(snap)

	ctx = services.WithEventID(services.WithQueue(ctx, string(queue.NameScan)), ev.ID())
	logger := logging.WithContext(ctx, m.logger)

	if m.counter != nil {
		if _, err := m.counter.Increment(ctx); err != nil {
			logger.Warn("scan counter not persisted", logging.Error(err))
		}
	}

	outcome, submitErr := m.submitter.Submit(ctx, ev)
	if submitErr != nil {
		logger.Warn("submission completed with warnings", logging.Error(submitErr))
	}
	message := ResultMessage(outcome, yes)
	result := Outcome{EventID: ev.ID(), Outcome: outcome, Message: message}
	var resultErr error
	if outcome == submit.NotQueued {
		resultErr = submitErr
	}

	m.mu.Lock()
	if m.state != Submitting {
		// Reset while the attempt ran; the operator has moved on.
		m.mu.Unlock()
		logger.Info("consent submitted after reset",
			logging.String(logging.FieldEventType, "consent_"+outcome.String()),
		)
		return result, resultErr
	}
	m.outcome = outcome
	m.message = message
	m.generation++
	gen := m.generation
	m.timer = m.clock.AfterFunc(m.resultDelay, func() { m.autoReset(gen) })
	snap = m.setLocked(Result)
	m.mu.Unlock()

	logger.Info("consent submitted",
		logging.String(logging.FieldEventType, "consent_"+outcome.String()),
		logging.Bool("consent", yes),
	)
	m.publish(snap)
	return result, resultErr
}

func (m *Machine) autoReset(gen uint64) {
	m.mu.Lock()
	if m.state != Result || m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.Reset()
}

// Reset returns to Idle from any state, releasing the camera and clearing
// every per-scan field.
func (m *Machine) Reset() {
	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
	m.scanLocked = false
	m.ticketID = ""
	m.rating = 0
	m.notes = ""
	m.torchOn = false
	m.message = ""
	m.outcome = submit.Delivered
	m.lastErr = ""
	snap := m.setLocked(Idle)
	m.mu.Unlock()

	m.stopStream(stream)
	m.publish(snap)
}

// ToggleTorch flips the torch on the active stream. It fails soft: any
// problem is logged and reported as false with the state untouched.
func (m *Machine) ToggleTorch() bool {
	m.mu.Lock()
	stream := m.stream
	next := !m.torchOn
	active := m.state == Scanning && stream != nil
	m.mu.Unlock()

	if !active {
		m.logger.Debug("torch toggle ignored; no active stream")
		return false
	}
	if err := stream.SetTorch(next); err != nil {
		m.logger.Warn("torch toggle failed", logging.Error(err))
		return false
	}

	m.mu.Lock()
	if m.stream != stream {
		m.mu.Unlock()
		return false
	}
	m.torchOn = next
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap)
	return true
}

// CameraRemoved handles a hot-unplugged video device. A machine still
// scanning drops back to Idle so the operator can restart or type entries.
func (m *Machine) CameraRemoved(device string) {
	m.mu.Lock()
	if m.state != Scanning && m.state != CameraStarting {
		m.mu.Unlock()
		return
	}
	stream := m.stream
	m.stream = nil
	m.torchOn = false
	m.lastErr = strings.TrimSpace("camera disconnected " + device)
	m.message = "Camera failed"
	snap := m.setLocked(Idle)
	m.mu.Unlock()

	m.stopStream(stream)
	logging.WarnWithContext(m.logger, "camera disconnected while scanning", "camera_removed",
		logging.String("device", device),
		logging.String(logging.FieldImpact, "scanning stopped"),
		logging.String(logging.FieldErrorHint, "reconnect the camera and start again"),
	)
	m.publish(snap)
}
