// Package submit delivers station events to the relay and falls back to the
// offline queue.
//
// Submit makes exactly one attempt per event when the station is online and
// enqueues on any failure, so a recorded consent is never dropped. Drain
// replays a queue oldest first, stops at the first failure, and never runs
// twice at once for the same queue.
package submit
