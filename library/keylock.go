package library

import (
	"context"
	"sync"
)

type keyLockEntry struct {
	sem  chan struct{}
	refs int
}

// keyLock is a mutex per key, acquiring it honours the caller's context
type keyLock struct {
	lock  sync.Mutex
	locks map[string]*keyLockEntry
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyLockEntry)}
}

func (k *keyLock) acquire(ctx context.Context, key string) (release func(), err error) {
	k.lock.Lock()
	e, found := k.locks[key]
	if !found {
		e = &keyLockEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.lock.Unlock()

	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				k.unref(key, e)
			})
		}, nil
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}
}

func (k *keyLock) unref(key string, e *keyLockEntry) {
	k.lock.Lock()
	defer k.lock.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}
