// Package lock provides the dataset-root advisory file lock described in
// spec.md §5: writers of the canonical tables take an exclusive lock for
// the duration of a write, readers take a shared lock. It is the only
// process-wide state the engine carries (spec.md §9).
package lock

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the advisory lock file created under the dataset root.
const FileName = ".nipoppy.lock"

// DatasetLock wraps a single advisory lock file for a dataset root.
type DatasetLock struct {
	fl *flock.Flock
}

// New returns a DatasetLock over root/.nipoppy.lock. The file is created
// on first lock attempt if absent.
func New(root string) *DatasetLock {
	return &DatasetLock{fl: flock.New(filepath.Join(root, FileName))}
}

// Exclusive blocks until it acquires the exclusive lock (for writers),
// or ctx is done, and returns an unlock function.
func (d *DatasetLock) Exclusive(ctx context.Context) (func() error, error) {
	if ok, err := d.fl.TryLockContext(ctx, defaultRetry); err != nil || !ok {
		return nil, fmt.Errorf("lock: acquire exclusive lock: %w", err)
	}
	return d.fl.Unlock, nil
}

// Shared blocks until it acquires the shared lock (for readers), or ctx
// is done, and returns an unlock function.
func (d *DatasetLock) Shared(ctx context.Context) (func() error, error) {
	if ok, err := d.fl.TryRLockContext(ctx, defaultRetry); err != nil || !ok {
		return nil, fmt.Errorf("lock: acquire shared lock: %w", err)
	}
	return d.fl.Unlock, nil
}
