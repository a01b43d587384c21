package testsupport

import (
	"context"
	"testing"

	"github.com/UUKEvents/uuk-exhibitor-scan/internal/config"
	"github.com/UUKEvents/uuk-exhibitor-scan/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustQueue returns the named queue, failing the test on any load warning.
func MustQueue(t testing.TB, store *queue.Store, name queue.Name) *queue.Queue {
	t.Helper()

	q, err := store.Queue(context.Background(), name)
	if err != nil {
		t.Fatalf("store.Queue(%s): %v", name, err)
	}
	return q
}
