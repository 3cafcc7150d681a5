package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// PendingStore holds prepared-but-unconfirmed transaction state under opaque
// server-generated keys. Entries expire after the TTL; expired entries read
// as absent and are swept opportunistically on each insert. There is no
// client-facing cancel, abandonment simply lets the entry expire.
type PendingStore[T any] struct {
	mu      sync.Mutex
	entries map[string]pendingEntry[T]
	ttl     time.Duration
	clock   clockwork.Clock
}

type pendingEntry[T any] struct {
	state    T
	storedAt time.Time
}

func NewPendingStore[T any](ttl time.Duration, clock clockwork.Clock) *PendingStore[T] {
	return &PendingStore[T]{
		entries: make(map[string]pendingEntry[T]),
		ttl:     ttl,
		clock:   clock,
	}
}

// Put stores state under a fresh random key and returns the key.
func (s *PendingStore[T]) Put(state T) string {
	now := s.clock.Now()
	key := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if now.Sub(e.storedAt) > s.ttl {
			delete(s.entries, k)
		}
	}
	s.entries[key] = pendingEntry[T]{state: state, storedAt: now}
	return key
}

// Get returns the state for key. An expired entry reads as absent.
func (s *PendingStore[T]) Get(key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || s.clock.Now().Sub(entry.storedAt) > s.ttl {
		var zero T
		return zero, false
	}
	return entry.state, true
}

func (s *PendingStore[T]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}
