package offline

import "sync"

// Snapshot is a read-only copy of the download progress state handed to
// observers. Observers never see (or mutate) the live value.
type Snapshot struct {
	OfflineReady bool
	Caching      bool
	Progress     int // 0-100
	CachedItems  int
	TotalItems   int
}

// progressState is owned by one Workflow and mutated only from within its
// call chain. Listeners are keyed by a stable id so removal is exact and
// calling an unsubscribe func twice is harmless.
type progressState struct {
	mu        sync.Mutex
	snap      Snapshot
	listeners map[int]func(Snapshot)
	nextID    int
}

func newProgressState() *progressState {
	return &progressState{listeners: make(map[int]func(Snapshot))}
}

func (s *progressState) subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *progressState) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// update applies fn to the state and synchronously notifies every listener
// with the resulting snapshot. Callbacks run outside the lock so a listener
// may subscribe or unsubscribe without deadlocking.
func (s *progressState) update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	snap := s.snap
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l)
	}
	s.mu.Unlock()

	for _, l := range fns {
		l(snap)
	}
}
