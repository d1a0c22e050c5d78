// Package storage provides model artifact storage and the writer lock that
// serializes artifact updates.
//
// Artifacts are opaque byte blobs addressed by a slash-separated path.
// Available backends:
//   - FileStore: local or mounted filesystem, atomic write-then-rename
//   - RedisStore: shared Redis key per artifact
//   - MinIOStore: S3-compatible object storage
//   - MemoryStore: in-process map, for tests and single-process demos
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Get when no artifact exists at the path.
	ErrNotFound = errors.New("artifact not found")

	// ErrLocked is returned by Locker.Acquire when another writer holds the lock.
	ErrLocked = errors.New("artifact lock held by another writer")
)

// Store reads and writes artifacts by path.
//
// Put creates any intermediate structure the backend needs and replaces an
// existing artifact so that concurrent readers see either the old or the new
// bytes, never a partial write. Get reports absence with ErrNotFound,
// distinct from any other failure.
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
}

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker provides single-writer discipline for artifact updates.
//
// Acquire does not block: it returns ErrLocked immediately if the lock is
// held. The ttl bounds how long a crashed holder can keep the lock; backends
// that cannot outlive the process may ignore it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// cleanPath normalizes an artifact path and rejects paths that are empty or
// escape the store root.
func cleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("artifact path cannot be empty")
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid artifact path %q: must not contain '..'", p)
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" {
		return "", fmt.Errorf("invalid artifact path %q", p)
	}
	return cleaned, nil
}
