package state_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/auth"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/state"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/testsupport"
)

func setup(t *testing.T) (*state.State, *queue.Store, *queue.Queue) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scans := testsupport.MustQueue(t, store, queue.NameScan)
	st, err := state.Load(context.Background(), store, scans)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st, store, scans
}

func TestProceedWithResetRequiresConfirmation(t *testing.T) {
	st, store, scans := setup(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := scans.Enqueue(ctx, id, []byte(`{"event_id":"`+id+`"}`)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if _, err := st.Increment(ctx); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}

	if _, err := st.ProceedWithReset(ctx, false); !errors.Is(err, state.ErrResetNotConfirmed) {
		t.Fatalf("unconfirmed err = %v", err)
	}
	if scans.Size() != 3 || st.Snapshot().ScanTotal != 3 {
		t.Fatalf("unconfirmed reset changed state: size=%d total=%d", scans.Size(), st.Snapshot().ScanTotal)
	}

	dropped, err := st.ProceedWithReset(ctx, true)
	if err != nil {
		t.Fatalf("ProceedWithReset: %v", err)
	}
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
	if scans.Size() != 0 || st.Snapshot().ScanTotal != 0 {
		t.Fatalf("after reset: size=%d total=%d", scans.Size(), st.Snapshot().ScanTotal)
	}
	total, _, err := store.GetSlot(ctx, queue.SlotScanTotal)
	if err != nil || total != "0" {
		t.Fatalf("persisted total = %q, %v", total, err)
	}
}

func TestResetFailureLeavesCounter(t *testing.T) {
	st, store, scans := setup(t)
	ctx := context.Background()

	if _, err := scans.Enqueue(ctx, "a", []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := st.Increment(ctx); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	store.Close()

	if _, err := st.ProceedWithReset(ctx, true); err == nil {
		t.Fatal("expected reset to fail on a closed store")
	}
	if scans.Size() != 1 || st.Snapshot().ScanTotal != 1 {
		t.Fatalf("failed reset changed state: size=%d total=%d", scans.Size(), st.Snapshot().ScanTotal)
	}
}

func TestEnsureDaily(t *testing.T) {
	st, _, _ := setup(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		now       time.Time
		exhibitor string
		wantReset bool
	}{
		{"first run", day1, "EX-1", true},
		{"same day and exhibitor", day1.Add(6 * time.Hour), "EX-1", false},
		{"exhibitor changed", day1.Add(7 * time.Hour), "EX-2", true},
		{"next day", day1.Add(24 * time.Hour), "EX-2", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := st.Increment(ctx); err != nil {
				t.Fatalf("Increment: %v", err)
			}
			reset, err := st.EnsureDaily(ctx, tc.now, tc.exhibitor)
			if err != nil {
				t.Fatalf("EnsureDaily: %v", err)
			}
			if reset != tc.wantReset {
				t.Fatalf("reset = %v, want %v", reset, tc.wantReset)
			}
			if tc.wantReset && st.Snapshot().ScanTotal != 0 {
				t.Fatalf("total = %d after reset", st.Snapshot().ScanTotal)
			}
			if !tc.wantReset && st.Snapshot().ScanTotal == 0 {
				t.Fatal("counter cleared without a reset")
			}
		})
	}
}

func TestLoadRestoresCounter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scans := testsupport.MustQueue(t, store, queue.NameScan)
	ctx := context.Background()

	if err := store.SetSlots(ctx, map[string]string{
		queue.SlotScanTotal:       "7",
		queue.SlotLastResetDate:   "2026-03-10",
		queue.SlotLastExhibitorID: "EX-1",
	}); err != nil {
		t.Fatalf("SetSlots: %v", err)
	}
	st, err := state.Load(ctx, store, scans)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st.SetIdentity(&auth.Identity{ExhibitorID: "EX-1", ExhibitorName: "Acme"})
	snap := st.Snapshot()
	if snap.ScanTotal != 7 || snap.LastResetDate != "2026-03-10" || snap.LastExhibitorID != "EX-1" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.LoggedIn || snap.Identity.DisplayName() != "Acme" {
		t.Fatalf("identity = %+v", snap.Identity)
	}
}
