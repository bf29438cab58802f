// Package history persists the outcome of each analyzed video so operators
// can review past risk assessments.
package history

import (
	"context"
	"sync"
	"time"
)

// Entry is one recorded analysis outcome.
type Entry struct {
	ID                string    `json:"id"`
	Filename          string    `json:"filename"`
	Locator           string    `json:"locator"`
	AlarmNeeded       bool      `json:"alarm_needed"`
	Severity          string    `json:"severity"`
	Situation         string    `json:"situation"`
	RecommendedAction string    `json:"recommended_action"`
	CreatedAt         time.Time `json:"created_at"`
}

// Store records and retrieves analysis history.
type Store interface {
	// Record persists one analysis outcome.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing connection pool.
	Close()
}

// MemStore is an in-memory [Store] used when no database is configured and
// in tests. It keeps at most maxEntries entries, newest first.
type MemStore struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// defaultMaxEntries bounds MemStore growth for long-running processes.
const defaultMaxEntries = 1000

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{maxEntries: defaultMaxEntries}
}

// Record prepends e, evicting the oldest entry when the cap is reached.
func (s *MemStore) Record(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]Entry{e}, s.entries...)
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[:s.maxEntries]
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *MemStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, limit)
	copy(out, s.entries[:limit])
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemStore) Close() {}
