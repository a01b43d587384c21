// Package queue persists pending scan and session events in SQLite and keeps
// the small set of named station slots (verified exhibitor, daily counter).
//
// The Store manages the database connection, schema initialization, and
// SQLITE_BUSY retries. Each named Queue keeps an in-memory mirror of its
// rows and writes through to SQLite on every mutation. When a write fails the
// mirror still changes and the caller receives an error wrapping
// ErrPersistenceDegraded: capture must keep working even if durability is
// lost. Rows that no longer parse are moved to quarantined_events on load and
// the live queue starts empty (ErrStorageCorrupt).
//
// The database holds only undelivered events. Schema changes bump the version
// in schema.go; operators clear the database to adopt the new schema after
// syncing or exporting what is pending.
package queue
