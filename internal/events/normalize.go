package events

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeTicket folds a decoded or typed ticket id into its canonical form.
// Scanners and keyboard wedges sometimes emit full-width digits or stray
// whitespace; NFKC maps those onto the plain forms the backend stores.
func NormalizeTicket(raw string) string {
	return strings.TrimSpace(norm.NFKC.String(raw))
}

// NormalizeNotes trims operator notes and composes them into NFC.
func NormalizeNotes(raw string) string {
	return strings.TrimSpace(norm.NFC.String(raw))
}
