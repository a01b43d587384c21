package main

import (
	"errors"
	"testing"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
)

func TestRunRecordsConsentOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLogin(t, env.cfg, "EX-TEST", "Acme Ltd")

	out, _, err := runCLI(t, env, "T1\nr 4\nnote keen on postgrad\ny\nq\n", "run")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Logged in as Acme Ltd")
	requireContains(t, out, "Ticket T1")
	requireContains(t, out, "Rating set to 4.")
	requireContains(t, out, "Saved offline. Thank you.")
	requireContains(t, out, "Scans today: 1")

	items := queueItems(t, env.cfg, queue.NameScan)
	if len(items) != 1 {
		t.Fatalf("scan queue size = %d, want 1", len(items))
	}
	scan, err := events.DecodeScanPayload(items[0].Payload)
	if err != nil {
		t.Fatalf("DecodeScanPayload: %v", err)
	}
	if scan.TicketID != "T1" || !scan.Consent || scan.Rating != 4 || scan.Notes != "keen on postgrad" {
		t.Fatalf("unexpected payload %+v", scan)
	}
	if scan.ExhibitorID != "EX-TEST" {
		t.Fatalf("exhibitor = %q", scan.ExhibitorID)
	}
}

func TestRunManualEntryDecline(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLogin(t, env.cfg, "EX-TEST", "")

	out, _, err := runCLI(t, env, "M-77\nn\n", "run", "--manual")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	requireContains(t, out, "Type the ticket ID:")
	requireContains(t, out, "Declined (saved offline).")

	items := queueItems(t, env.cfg, queue.NameScan)
	if len(items) != 1 {
		t.Fatalf("scan queue size = %d, want 1", len(items))
	}
	scan, err := events.DecodeScanPayload(items[0].Payload)
	if err != nil {
		t.Fatalf("DecodeScanPayload: %v", err)
	}
	if scan.Consent {
		t.Fatalf("expected declined consent, got %+v", scan)
	}
}

func TestRunRejectsCommandsOutOfTurn(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLogin(t, env.cfg, "EX-TEST", "")

	out, _, err := runCLI(t, env, "y\nr 9\nq\n", "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "[ERROR]")
	if items := queueItems(t, env.cfg, queue.NameScan); len(items) != 0 {
		t.Fatalf("expected nothing queued, got %d", len(items))
	}
}

func TestRunRequiresLogin(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "", "run")
	if !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("run err = %v, want errNotLoggedIn", err)
	}
}
