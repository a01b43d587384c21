package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/camera"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/scanner"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/session"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/submit"
)

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []func()
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type nopTimer struct{}

func (nopTimer) Stop() bool { return true }

func (c *manualClock) AfterFunc(_ time.Duration, f func()) scanner.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, f)
	return nopTimer{}
}

func (c *manualClock) fire() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, f := range timers {
		f()
	}
}

type quietHaptics struct{}

func (quietHaptics) Pulse() {}

type recordingSubmitter struct {
	outcome submit.Outcome
	err     error
	got     []events.Event
	during  func()
}

func (r *recordingSubmitter) Submit(_ context.Context, ev events.Event) (submit.Outcome, error) {
	r.got = append(r.got, ev)
	if r.during != nil {
		r.during()
	}
	return r.outcome, r.err
}

func newAggregator(sub *recordingSubmitter, clock *manualClock) *session.Aggregator {
	return session.New(nil, sub,
		session.WithClock(clock),
		session.WithHaptics(quietHaptics{}),
		session.WithDebounce(time.Second),
	)
}

func TestDecodeDedupAndDebounce(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)}
	agg := newAggregator(&recordingSubmitter{}, clock)

	if got := agg.HandleDecode("A"); got != session.Inactive {
		t.Fatalf("expected Inactive before Begin, got %s", got)
	}
	if err := agg.Begin(context.Background(), "Keynote", "EX1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	steps := []struct {
		advance time.Duration
		code    string
		want    session.Decision
	}{
		{0, "A", session.Accepted},
		{500 * time.Millisecond, "B", session.Debounced},
		{600 * time.Millisecond, "A", session.Duplicate},
		{0, "B", session.Accepted},
		{999 * time.Millisecond, "C", session.Debounced},
		{time.Millisecond, "C", session.Accepted},
		{2 * time.Second, " ", session.Inactive},
	}
	for i, step := range steps {
		clock.advance(step.advance)
		if got := agg.HandleDecode(step.code); got != step.want {
			t.Fatalf("step %d (%q): got %s want %s", i, step.code, got, step.want)
		}
	}
	if tally := agg.Tally(); tally.QR != 3 {
		t.Fatalf("expected 3 QR, got %+v", tally)
	}
}

func TestManualCountFloorsAtZero(t *testing.T) {
	clock := &manualClock{now: time.Now()}
	agg := newAggregator(&recordingSubmitter{}, clock)
	if _, err := agg.IncrementManual(); !errors.Is(err, session.ErrNotCounting) {
		t.Fatalf("expected ErrNotCounting, got %v", err)
	}
	if err := agg.Begin(context.Background(), "Workshop", ""); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tally, _ := agg.DecrementManual()
	if tally.Manual != 0 {
		t.Fatalf("manual must not go negative, got %d", tally.Manual)
	}
	agg.IncrementManual()
	agg.IncrementManual()
	tally, _ = agg.DecrementManual()
	if tally.Manual != 1 || tally.Total() != tally.QR+tally.Manual {
		t.Fatalf("unexpected tally %+v", tally)
	}
}

func TestCompleteSubmitsReportAndResets(t *testing.T) {
	tests := []struct {
		outcome submit.Outcome
		want    string
	}{
		{submit.Delivered, "Session submitted successfully!"},
		{submit.QueuedOffline, "Saved offline. Thank you."},
		{submit.QueuedAfterFailure, "Saved offline."},
	}
	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			start := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
			clock := &manualClock{now: start}
			sub := &recordingSubmitter{outcome: tt.outcome}
			agg := newAggregator(sub, clock)
			if err := agg.Begin(context.Background(), "Keynote", ""); err != nil {
				t.Fatalf("Begin: %v", err)
			}
			agg.HandleDecode("T1")
			clock.advance(2 * time.Second)
			agg.HandleDecode("T2")
			agg.IncrementManual()
			clock.advance(time.Minute)

			res, err := agg.Complete(context.Background())
			if err != nil {
				t.Fatalf("Complete: %v", err)
			}
			if res.Message != tt.want {
				t.Fatalf("message = %q, want %q", res.Message, tt.want)
			}
			if res.Tally.Total() != 3 {
				t.Fatalf("expected total 3, got %+v", res.Tally)
			}

			raw, err := sub.got[0].Payload("src")
			if err != nil {
				t.Fatalf("Payload: %v", err)
			}
			var body events.SessionPayload
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.QRCount != 2 || body.ManualCount != 1 || body.TotalCount != 3 {
				t.Fatalf("unexpected counts %+v", body)
			}
			if body.ExhibitorID != events.UnknownExhibitor {
				t.Fatalf("expected N/A exhibitor, got %q", body.ExhibitorID)
			}
			if len(body.Barcodes) != 2 || body.Barcodes[0] != "T1" || body.Barcodes[1] != "T2" {
				t.Fatalf("barcodes out of order: %v", body.Barcodes)
			}
			if body.StartedAt != events.FormatTime(start) {
				t.Fatalf("unexpected started_at %s", body.StartedAt)
			}

			if agg.Snapshot().Phase != session.PhaseResult {
				t.Fatalf("expected Result phase, got %s", agg.Snapshot().Phase)
			}
			clock.fire()
			snap := agg.Snapshot()
			if snap.Phase != session.PhaseIdle || snap.Tally.Total() != 0 {
				t.Fatalf("expected reset, got %+v", snap)
			}
		})
	}
}

type failingCamera struct{ err error }

func (f failingCamera) Start(context.Context, camera.Constraints) (camera.Stream, error) {
	return nil, f.err
}

func TestBeginCameraFailureStaysIdle(t *testing.T) {
	camErr := errors.Join(camera.ErrUnavailable, errors.New("no such device"))
	agg := session.New(failingCamera{err: camErr}, &recordingSubmitter{}, session.WithHaptics(quietHaptics{}))
	err := agg.Begin(context.Background(), "Keynote", "")
	if !errors.Is(err, camera.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if agg.Snapshot().Phase != session.PhaseIdle {
		t.Fatalf("expected idle after camera failure, got %s", agg.Snapshot().Phase)
	}
	if err := agg.Begin(context.Background(), "", ""); !errors.Is(err, events.ErrMissingSessionName) {
		t.Fatalf("expected ErrMissingSessionName, got %v", err)
	}
}

func TestCompleteNotQueuedSurfacesError(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)}
	encodeErr := errors.New("encode session")
	agg := newAggregator(&recordingSubmitter{outcome: submit.NotQueued, err: encodeErr}, clock)
	if err := agg.Begin(context.Background(), "Keynote", "EX1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	agg.IncrementManual()

	res, err := agg.Complete(context.Background())
	if !errors.Is(err, encodeErr) {
		t.Fatalf("expected the encode error, got %v", err)
	}
	if res.Message != session.MessageNotSaved || res.Tally.Manual != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResetDuringCompleteStaysIdle(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)}
	sub := &recordingSubmitter{outcome: submit.Delivered}
	agg := newAggregator(sub, clock)
	sub.during = agg.Reset
	if err := agg.Begin(context.Background(), "Keynote", "EX1"); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := agg.Complete(context.Background()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if phase := agg.Snapshot().Phase; phase != session.PhaseIdle {
		t.Fatalf("reset must win over the late result, got %s", phase)
	}
	clock.mu.Lock()
	pending := len(clock.timers)
	clock.mu.Unlock()
	if pending != 0 {
		t.Fatalf("no auto-reset should be scheduled, got %d", pending)
	}
}
