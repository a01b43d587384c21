package queue

import "errors"

var (
	// ErrEmpty is returned by PopFront on an empty queue.
	ErrEmpty = errors.New("queue is empty")
	// ErrPersistenceDegraded reports that a mutation was applied in memory
	// but could not be written to SQLite. It is a warning, not a failure.
	ErrPersistenceDegraded = errors.New("queue persistence degraded")
	// ErrStorageCorrupt reports that stored rows failed to parse and were
	// quarantined. The queue is usable and empty.
	ErrStorageCorrupt = errors.New("queue storage corrupt")
	// ErrInvalidPayload rejects payloads that are not JSON documents.
	ErrInvalidPayload = errors.New("payload is not valid JSON")
)

// IsWarning reports whether err only signals degraded durability, meaning the
// operation itself took effect.
func IsWarning(err error) bool {
	return errors.Is(err, ErrPersistenceDegraded) || errors.Is(err, ErrStorageCorrupt)
}
