package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/aprskalo1/UMS/internal/config"
	"github.com/aprskalo1/UMS/internal/queue"
)

// MustOpenQueue opens the SQLite queue for tests and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.OpenSQLite(context.Background(), cfg.Queue.SQLitePath)
	if err != nil {
		t.Fatalf("queue.OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// EnqueueJob inserts a pending job whose collection time is offset from a
// fixed base so ordering is deterministic.
func EnqueueJob(t testing.TB, store queue.Backend, sourceURL string, offset time.Duration) queue.Job {
	t.Helper()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	job, err := store.Enqueue(context.Background(), queue.NewJob{
		SourceURL:   sourceURL,
		CollectedAt: base.Add(offset),
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
