package sync

import (
	"sync"
)

// KeyLock manages named mutexes for granular locking. The webhook worker
// uses it to enforce at most one active pipeline run per pull request.
type KeyLock struct {
	locks sync.Map
}

// NewKeyLock creates a new KeyLock instance
func NewKeyLock() *KeyLock {
	return &KeyLock{}
}

// Lock acquires a lock for the specific key
func (l *KeyLock) Lock(key string) {
	val, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := val.(*sync.Mutex)
	mu.Lock()
}

// Unlock releases the lock for the specific key
func (l *KeyLock) Unlock(key string) {
	val, ok := l.locks.Load(key)
	if !ok {
		return
	}
	mu := val.(*sync.Mutex)
	mu.Unlock()

	// Entries are kept for the process lifetime. PR keys are finite in
	// practice; strict cleanup would need ref counting.
}

// TryLock attempts to acquire the lock, returning true if successful
func (l *KeyLock) TryLock(key string) bool {
	val, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := val.(*sync.Mutex)
	return mu.TryLock()
}
