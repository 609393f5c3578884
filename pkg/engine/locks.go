package engine

import "sync"

// subjectLocks serialises work per subject. Entries exist only while some
// goroutine holds or waits for them.
type subjectLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSubjectLocks() *subjectLocks {
	return &subjectLocks{entries: make(map[string]*lockEntry)}
}

// lock blocks until the subject is free and returns its release func.
func (l *subjectLocks) lock(subjectID string) func() {
	l.mu.Lock()
	e, ok := l.entries[subjectID]
	if !ok {
		e = &lockEntry{}
		l.entries[subjectID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, subjectID)
		}
		l.mu.Unlock()
	}
}

func (l *subjectLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
