package service

import "sync"

// dealLockEntry is a mutex shared by all callers working on one deal
type dealLockEntry struct {
	mu   sync.Mutex
	refs int
}

// dealLocks serialises in-process mutations per deal id. Entries are dropped
// once nobody holds or waits for them.
type dealLocks struct {
	mu      sync.Mutex
	entries map[int64]*dealLockEntry
}

func newDealLocks() *dealLocks {
	return &dealLocks{entries: make(map[int64]*dealLockEntry)}
}

// lock blocks until the deal is free and returns the matching unlock
func (l *dealLocks) lock(dealID int64) func() {
	l.mu.Lock()
	entry, ok := l.entries[dealID]
	if !ok {
		entry = &dealLockEntry{}
		l.entries[dealID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, dealID)
		}
		l.mu.Unlock()
	}
}

func (l *dealLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
