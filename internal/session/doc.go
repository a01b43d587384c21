// Package session implements bulk attendance counting.
//
// An Aggregator counts distinct decoded tickets plus a manual tally for
// walk-ins without a badge. Repeat tickets are rejected, as is any decode
// that arrives within the debounce window of the last accepted one, so a
// badge held in front of the camera counts once. Complete seals the counts
// into a SessionReport and routes it through the submission pipeline.
package session
