package services

import "sync"

// LockTable is the in-process mutual-exclusion table used by every settlement
// flow. Entries exist only while a key is held or contended; nothing is
// persisted, which is acceptable because the process holding a lock is also
// the only writer of the resources it protects.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

type lockState struct {
	waiters []chan struct{}
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*lockState)}
}

// Acquire blocks until the key's lock is free. Waiters are queued and the
// lock is handed off in FIFO order, so a released lock goes to the oldest
// waiter rather than whichever goroutine wakes first.
func (t *LockTable) Acquire(key string) {
	t.mu.Lock()
	state, held := t.locks[key]
	if !held {
		t.locks[key] = &lockState{}
		t.mu.Unlock()
		return
	}
	wait := make(chan struct{})
	state.waiters = append(state.waiters, wait)
	t.mu.Unlock()

	// Ownership is handed off by Release; no retry loop needed.
	<-wait
}

// Release hands the lock to the next waiter, or deletes the entry when the
// queue is empty. Callers release via defer in every exit path.
func (t *LockTable) Release(key string) {
	t.mu.Lock()
	state, held := t.locks[key]
	if !held {
		t.mu.Unlock()
		return
	}
	if len(state.waiters) == 0 {
		delete(t.locks, key)
		t.mu.Unlock()
		return
	}
	next := state.waiters[0]
	state.waiters = state.waiters[1:]
	t.mu.Unlock()
	close(next)
}
