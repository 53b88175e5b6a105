package blob

import (
	"sync"
)

// keyedLocks hands out one RWMutex per key, dropping it when no holder remains.
// Keys are storage locations, so repositories sharing a table never collide.
type keyedLocks struct {
	m     sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.RWMutex

	holders int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

func (kl *keyedLocks) lock(key string, exclusive bool) func() {
	kl.m.Lock()

	l, ok := kl.locks[key]
	if !ok {
		//nolint:exhaustruct
		l = &keyedLock{}
		kl.locks[key] = l
	}

	l.holders++
	kl.m.Unlock()

	if exclusive {
		l.Lock()
	} else {
		l.RLock()
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			if exclusive {
				l.Unlock()
			} else {
				l.RUnlock()
			}

			kl.m.Lock()
			defer kl.m.Unlock()

			if l.holders--; l.holders == 0 {
				delete(kl.locks, key)
			}
		})
	}
}

func (kl *keyedLocks) len() int {
	kl.m.Lock()
	defer kl.m.Unlock()

	return len(kl.locks)
}
