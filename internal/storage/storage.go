package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound  = errors.New("key not found")
	ErrInvalidID = errors.New("invalid record id")
)

// Store represents a keyed registry of encoded proofs.
// Implementations must be safe for concurrent writers.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	// PutIfAbsent stores value unless key already holds a live value.
	// It reports whether value was stored.
	PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore represents a process-local store
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates a new memory store. A zero ttl disables eviction.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores value under key
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[key] = entry
	return nil
}

// PutIfAbsent stores value under key unless key is already present
func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.entries[key]; ok && !s.expired(current) {
		return false, nil
	}
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[key] = entry
	return true, nil
}

// Get returns the value stored under key
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(entry) {
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && s.expired(current) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Has reports whether key is present
func (s *MemoryStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Clear removes every key
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Len returns the number of live keys
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, key)
		}
	}
	return len(s.entries), nil
}

func (s *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)
}
