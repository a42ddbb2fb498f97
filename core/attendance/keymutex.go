package attendance

import (
	"sync"
	"time"
)

type keyLock struct {
	ch   chan struct{} // capacity 1; holding the token = holding the lock
	refs int
}

// keyMutex provides mutual exclusion per dedup Key with a bounded wait.
// Requests on different keys never contend; requests on the same key
// queue on the key's channel and give up after the timeout.
type keyMutex struct {
	mu    sync.Mutex
	locks map[Key]*keyLock
}

func newKeyMutex() *keyMutex {
	return &keyMutex{locks: make(map[Key]*keyLock)}
}

// Acquire blocks until the key's lock is held or the timeout elapses,
// in which case it returns ErrLockTimeout.
func (km *keyMutex) Acquire(key Key, timeout time.Duration) error {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return nil
	case <-timer.C:
		km.release(key, false)
		return ErrLockTimeout
	}
}

// Release releases a held key lock.
func (km *keyMutex) Release(key Key) {
	km.release(key, true)
}

func (km *keyMutex) release(key Key, held bool) {
	km.mu.Lock()
	defer km.mu.Unlock()

	l, ok := km.locks[key]
	if !ok {
		return
	}
	if held {
		<-l.ch
	}
	if l.refs--; l.refs == 0 {
		delete(km.locks, key)
	}
}
