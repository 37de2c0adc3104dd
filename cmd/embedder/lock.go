package main

import (
	"fmt"

	"github.com/gofrs/flock"

	"github.com/aprskalo1/UMS/internal/config"
)

// acquireWorkerLock takes the per-index worker lock when exclusive_index is
// set. The returned release func is safe to call when no lock was taken.
func acquireWorkerLock(cfg *config.Config) (func(), error) {
	if !cfg.Workflow.ExclusiveIndex {
		return func() {}, nil
	}
	path := cfg.Paths.IndexPath + ".worker.lock"
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire worker lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another worker already owns %s (lock %s); set workflow.exclusive_index = false to share the index", cfg.Paths.IndexPath, path)
	}
	return func() { _ = lock.Unlock() }, nil
}
