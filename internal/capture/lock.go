package capture

import "sync/atomic"

// Lock is a single-slot, non-blocking lock. At most one holder at a time;
// callers that lose the race get false and must not wait.
type Lock struct {
	held atomic.Bool
}

// TryAcquire takes the slot if it is free.
func (l *Lock) TryAcquire() bool {
	return l.held.CompareAndSwap(false, true)
}

// Release frees the slot. Releasing a free lock is a no-op.
func (l *Lock) Release() {
	l.held.Store(false)
}

// Held reports whether the slot is taken.
func (l *Lock) Held() bool {
	return l.held.Load()
}
