// Package services defines shared error markers and context helpers used by
// the station's collaborators: the relay transport, the camera, and the
// local queue.
//
// Key responsibilities:
//   - Context helpers that stamp event IDs, queue names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is regardless of which layer produced them.
package services
