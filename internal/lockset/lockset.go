// Package lockset provides mutual exclusion scoped to a single entity id.
//
// Two callers working on different ids never wait on each other; callers on
// the same id are serialized. Entries are reference counted and removed once
// no caller holds or waits for them.
package lockset

import "sync"

// Set is a collection of per-key mutexes. The zero value is ready to use.
type Set struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the mutex for key and returns the function that releases it.
func (s *Set) Lock(key int64) (unlock func()) {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[int64]*entry)
	}
	e, ok := s.locks[key]
	if !ok {
		e = &entry{}
		s.locks[key] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// Len reports how many keys are currently held or awaited.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
