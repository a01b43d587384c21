package main

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
)

func TestSessionRunSubmitsReport(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLogin(t, env.cfg, "EX-TEST", "Acme Ltd")

	out, _, err := runCLI(t, env, "A1\n+\n+\n-\ndone\n", "session", "run", "--name", "Keynote")
	if err != nil {
		t.Fatalf("session run: %v\n%s", err, out)
	}
	requireContains(t, out, `Counting "Keynote"`)
	requireContains(t, out, "Saved offline. Thank you.")
	requireContains(t, out, "count: 1 scanned + 1 manual = 2")

	items := queueItems(t, env.cfg, queue.NameSession)
	if len(items) != 1 {
		t.Fatalf("session queue size = %d, want 1", len(items))
	}
	var report events.SessionPayload
	if err := json.Unmarshal(items[0].Payload, &report); err != nil {
		t.Fatalf("decode session payload: %v", err)
	}
	if report.SessionName != "Keynote" || report.TotalCount != 2 || report.QRCount != 1 || report.ManualCount != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.Barcodes) != 1 || report.Barcodes[0] != "A1" {
		t.Fatalf("barcodes = %v", report.Barcodes)
	}
}

func TestSessionRunAbandon(t *testing.T) {
	env := setupCLITestEnv(t)
	seedLogin(t, env.cfg, "EX-TEST", "")

	_, _, err := runCLI(t, env, "+\nq\n", "session", "run", "--name", "Workshop")
	if !errors.Is(err, errSessionAborted) {
		t.Fatalf("err = %v, want errSessionAborted", err)
	}
	if items := queueItems(t, env.cfg, queue.NameSession); len(items) != 0 {
		t.Fatalf("expected nothing queued, got %d", len(items))
	}
}

func TestSessionRunRequiresName(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "", "session", "run")
	if err == nil {
		t.Fatal("expected error without --name")
	}
	requireContains(t, err.Error(), "--name")
}
