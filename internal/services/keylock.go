package services

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// keyLock hands out one mutex per key and forgets it once nobody holds it.
type keyLock[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*lockEntry
}

func newKeyLock[K comparable]() *keyLock[K] {
	return &keyLock[K]{entries: make(map[K]*lockEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (l *keyLock[K]) Lock(key K) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

func (l *keyLock[K]) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
