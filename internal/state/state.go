// Package state holds the station's persisted application state: who is
// logged in and how many consent submissions the station has made today.
package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/auth"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
)

const dateLayout = "2006-01-02"

// ErrResetNotConfirmed guards the destructive queue reset.
var ErrResetNotConfirmed = errors.New("queue reset requires explicit confirmation")

// Slots is the slot storage the state persists through.
type Slots interface {
	GetSlot(ctx context.Context, key string) (string, bool, error)
	SetSlots(ctx context.Context, slots map[string]string) error
}

// Resetter clears a queue and writes slots in one transaction.
type Resetter interface {
	Size() int
	ResetWithSlots(ctx context.Context, slots map[string]string) (int, error)
}

// Snapshot is a read-only copy of the state.
type Snapshot struct {
	Identity        auth.Identity
	LoggedIn        bool
	ScanTotal       int
	LastResetDate   string
	LastExhibitorID string
}

// State is safe for concurrent use.
type State struct {
	slots Slots
	scans Resetter

	mu        sync.Mutex
	identity  *auth.Identity
	total     int
	resetDate string
	exhibitor string
}

// Load reads persisted values. scans is the queue ProceedWithReset clears.
func Load(ctx context.Context, slots Slots, scans Resetter) (*State, error) {
	s := &State{slots: slots, scans: scans}
	raw, _, err := slots.GetSlot(ctx, queue.SlotScanTotal)
	if err != nil {
		return nil, err
	}
	if raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n >= 0 {
			s.total = n
		}
	}
	if s.resetDate, _, err = slots.GetSlot(ctx, queue.SlotLastResetDate); err != nil {
		return nil, err
	}
	if s.exhibitor, _, err = slots.GetSlot(ctx, queue.SlotLastExhibitorID); err != nil {
		return nil, err
	}
	return s, nil
}

// SetIdentity records the logged-in exhibitor, or clears it when id is nil.
func (s *State) SetIdentity(id *auth.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == nil {
		s.identity = nil
		return
	}
	copied := *id
	s.identity = &copied
}

// EnsureDaily zeroes the counter when the date of now or the exhibitor
// differs from the last reset. It reports whether a reset happened.
func (s *State) EnsureDaily(ctx context.Context, now time.Time, exhibitorID string) (bool, error) {
	today := now.Format(dateLayout)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetDate == today && s.exhibitor == exhibitorID {
		return false, nil
	}
	if err := s.slots.SetSlots(ctx, map[string]string{
		queue.SlotScanTotal:       "0",
		queue.SlotLastResetDate:   today,
		queue.SlotLastExhibitorID: exhibitorID,
	}); err != nil {
		return false, fmt.Errorf("reset daily counter: %w", err)
	}
	s.total = 0
	s.resetDate = today
	s.exhibitor = exhibitorID
	return true, nil
}

// Increment bumps and persists the daily counter.
func (s *State) Increment(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.total + 1
	if err := s.slots.SetSlots(ctx, map[string]string{queue.SlotScanTotal: strconv.Itoa(next)}); err != nil {
		return s.total, fmt.Errorf("persist scan total: %w", err)
	}
	s.total = next
	return next, nil
}

// PendingScans reports how many scans a reset would discard.
func (s *State) PendingScans() int {
	return s.scans.Size()
}

// ProceedWithReset discards every pending scan and zeroes the counter in one
// transaction. It refuses unless confirmed is true.
func (s *State) ProceedWithReset(ctx context.Context, confirmed bool) (int, error) {
	if !confirmed {
		return 0, ErrResetNotConfirmed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped, err := s.scans.ResetWithSlots(ctx, map[string]string{queue.SlotScanTotal: "0"})
	if err != nil {
		return 0, err
	}
	s.total = 0
	return dropped, nil
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ScanTotal:       s.total,
		LastResetDate:   s.resetDate,
		LastExhibitorID: s.exhibitor,
	}
	if s.identity != nil {
		snap.Identity = *s.identity
		snap.LoggedIn = true
	}
	return snap
}
