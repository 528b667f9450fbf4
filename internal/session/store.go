package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"radar/internal/models"
)

// ErrNotFound is returned by Store.Get when no record exists for the session.
var ErrNotFound = errors.New("session not found")

// Record is the durable state of one session: the bearer token and the
// resolved user snapshot. The token is the only credential ever persisted.
type Record struct {
	Token string       `json:"token"`
	User  *models.User `json:"user,omitempty"`
}

// Store is the durable backing for session records and per-session action
// locks. Implementations: in-memory (dev, tests) and Redis.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Put(ctx context.Context, id string, rec *Record, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	TryLock(ctx context.Context, id, action string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, id, action string) error
}

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Sessions do not survive a
// restart, which is acceptable for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		delete(s.entries, id)
		return nil, ErrNotFound
	}
	rec := entry.rec
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, id string, rec *Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{rec: *rec}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) TryLock(_ context.Context, id, action string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id + ":" + action
	if until, ok := s.locks[key]; ok && s.now().Before(until) {
		return false, nil
	}
	s.locks[key] = s.now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) Unlock(_ context.Context, id, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, id+":"+action)
	return nil
}
