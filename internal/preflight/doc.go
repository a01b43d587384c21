// Package preflight provides readiness checks for the filesystem, camera
// tooling and relay that a scan station depends on.
//
// "uukscan doctor" runs RunAll and renders the results; "uukscan run" runs
// the same checks at startup and logs failures without refusing to start,
// since a station must keep capturing consent offline.
package preflight
