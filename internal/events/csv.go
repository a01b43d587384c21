package events

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// CSVHeader is the first line of every export.
var CSVHeader = []string{"Ticket ID", "Exhibitor ID", "Consent", "Rating", "Notes", "Scanned At"}

// WriteCSV renders pending scans as a backup spreadsheet. Every field is
// quoted and embedded quotes are doubled. Scans without a timestamp are
// stamped with now.
func WriteCSV(w io.Writer, scans []ScanPayload, now time.Time) error {
	bw := bufio.NewWriter(w)
	writeRecord(bw, CSVHeader)
	exportedAt := FormatTime(now)
	for _, scan := range scans {
		scannedAt := scan.ScannedAt
		if strings.TrimSpace(scannedAt) == "" {
			scannedAt = exportedAt
		}
		bw.WriteByte('\n')
		writeRecord(bw, []string{
			scan.TicketID,
			scan.ExhibitorID,
			strconv.FormatBool(scan.Consent),
			strconv.Itoa(scan.Rating),
			scan.Notes,
			scannedAt,
		})
	}
	return bw.Flush()
}

func writeRecord(bw *bufio.Writer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			bw.WriteByte(',')
		}
		bw.WriteByte('"')
		bw.WriteString(strings.ReplaceAll(field, `"`, `""`))
		bw.WriteByte('"')
	}
}
