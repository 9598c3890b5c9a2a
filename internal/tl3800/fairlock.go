package tl3800

import (
	"container/list"
	"context"
	"sync"
)

// FairLock is a mutex granted in arrival order. Unlock hands ownership
// directly to the oldest waiter so a newcomer can never overtake the queue.
// The zero value is unlocked.
type FairLock struct {
	mu      sync.Mutex
	locked  bool
	waiters list.List // of chan struct{}
}

// Lock blocks until the lock is held or ctx is done. A caller whose ctx ends
// while queued leaves the queue without acquiring.
func (l *FairLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if !l.locked && l.waiters.Len() == 0 {
		l.locked = true
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	elem := l.waiters.PushBack(ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	select {
	case <-ready:
		// handed over while giving up; pass it on
		l.mu.Unlock()
		l.Unlock()
	default:
		l.waiters.Remove(elem)
		l.mu.Unlock()
	}
	return ctx.Err()
}

func (l *FairLock) Unlock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.locked {
		panic("tl3800: unlock of unlocked FairLock")
	}
	if front := l.waiters.Front(); front != nil {
		l.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	l.locked = false
}

// Waiting returns the number of queued callers.
func (l *FairLock) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waiters.Len()
}
