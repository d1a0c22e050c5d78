package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-memory artifact store.
// It is safe for concurrent use by multiple goroutines.
//
// Stored bytes are copied on Put and Get, so callers may reuse their buffers.
// Artifacts live only as long as the process; use FileStore, RedisStore or
// MinIOStore when training and prediction run in different processes.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
}

// NewMemoryStore creates an empty in-memory artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string][]byte),
	}
}

// Put stores a copy of data at path, replacing any existing artifact.
func (s *MemoryStore) Put(ctx context.Context, path string, data []byte) error {
	key, err := cleanPath(path)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.artifacts[key] = buf
	return nil
}

// Get returns a copy of the artifact at path, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	key, err := cleanPath(path)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, found := s.artifacts[key]
	if !found {
		return nil, ErrNotFound
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

// Len returns the number of artifacts currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}

// Delete removes the artifact at path.
// Returns true if an artifact was deleted, false if none existed.
func (s *MemoryStore) Delete(path string) bool {
	key, err := cleanPath(path)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.artifacts[key]
	delete(s.artifacts, key)
	return existed
}

// MemoryLocker is a process-local Locker.
// The ttl passed to Acquire is ignored: locks die with the process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]uint64
	next uint64
}

// NewMemoryLocker creates a process-local Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]uint64)}
}

// Acquire takes the lock for key, or returns ErrLocked if it is held.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, _ time.Duration) (Unlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.held[key]; held {
		return nil, ErrLocked
	}
	l.next++
	token := l.next
	l.held[key] = token

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key] == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
