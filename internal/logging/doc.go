// Package logging assembles structured slog loggers and formatting helpers used
// by the scan station and the relay.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so submission code can tag log
// lines with event IDs, queue names, and request correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits the same field names.
package logging
