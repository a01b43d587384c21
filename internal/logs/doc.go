// Package logs reads the station's JSON log file for `uukscan logs`.
//
// Tail returns the last lines of the file, optionally narrowed to records
// whose fields match (event_id, queue, event_type). Follow keeps polling from
// the returned offset and survives the file being truncated underneath it.
package logs
