package events_test

import (
	"strings"
	"testing"
	"time"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/events"
)

func TestWriteCSVQuotesEveryField(t *testing.T) {
	scans := []events.ScanPayload{
		{
			TicketID:    "T-1",
			ExhibitorID: "EX1",
			Consent:     true,
			Rating:      4,
			Notes:       `He said "hi"`,
			ScannedAt:   "2024-03-01T10:00:00.000Z",
		},
	}
	var buf strings.Builder
	if err := events.WriteCSV(&buf, scans, time.Now()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(buf.String(), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines: %q", len(lines), buf.String())
	}
	wantHeader := `"Ticket ID","Exhibitor ID","Consent","Rating","Notes","Scanned At"`
	if lines[0] != wantHeader {
		t.Fatalf("header mismatch:\n got %s\nwant %s", lines[0], wantHeader)
	}
	wantRow := `"T-1","EX1","true","4","He said ""hi""","2024-03-01T10:00:00.000Z"`
	if lines[1] != wantRow {
		t.Fatalf("row mismatch:\n got %s\nwant %s", lines[1], wantRow)
	}
	if !strings.Contains(lines[1], `"He said ""hi"""`) {
		t.Fatalf("notes field not escaped: %s", lines[1])
	}
}

func TestWriteCSVDefaults(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	var buf strings.Builder
	if err := events.WriteCSV(&buf, []events.ScanPayload{{TicketID: "T", ExhibitorID: "E"}}, now); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := `"T","E","false","0","","2024-05-06T07:08:09.000Z"`
	if got := strings.Split(buf.String(), "\n")[1]; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf strings.Builder
	if err := events.WriteCSV(&buf, nil, time.Now()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if strings.Contains(buf.String(), "\n") {
		t.Fatalf("expected header only, got %q", buf.String())
	}
}
