package bridge

import (
	"sync"

	"github.com/fidulabs/chatlab/internal/shared/types"
)

// Store is the observable AuthStatus store projected from the session
// coordinator. It is write-only from the coordinator's perspective:
// consumers read the current value or watch for changes, and nothing
// flows back upstream.
type Store struct {
	mu       sync.RWMutex
	status   types.AuthStatus
	watchers map[uint64]chan types.AuthStatus
	nextID   uint64
}

// New creates an empty bridge store.
func New() *Store {
	return &Store{
		watchers: make(map[uint64]chan types.AuthStatus),
	}
}

// SetAuthStatus updates the projected value and fans it out to
// watchers. Implements the coordinator's Bridge interface. A slow
// watcher drops intermediate values rather than blocking the
// coordinator.
func (s *Store) SetAuthStatus(status types.AuthStatus) {
	s.mu.Lock()
	s.status = status
	for _, ch := range s.watchers {
		select {
		case ch <- status:
		default:
		}
	}
	s.mu.Unlock()
}

// AuthStatus returns the current projected value.
func (s *Store) AuthStatus() types.AuthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Watch registers a change listener. The returned cancel func must be
// called to release it.
func (s *Store) Watch() (<-chan types.AuthStatus, func()) {
	ch := make(chan types.AuthStatus, 8)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
	return ch, cancel
}
