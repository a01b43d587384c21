// Package events defines the immutable records a station produces: consent
// scans and attendance session reports.
//
// Events are built through constructors that validate and normalize input,
// stamp an event id, and fix the capture time. Payload renders the JSON body
// the relay expects; WriteCSV renders the operator backup export.
package events
