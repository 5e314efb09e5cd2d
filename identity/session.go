package identity

import (
	"sync"

	"colist-api/domain"
)

// State is the identity context published to subscribers: the signed-in user
// or none, plus a loading flag while the initial resolution is in flight.
type State struct {
	User    *domain.User
	Loading bool
}

// Session holds the current identity and fans out change notifications.
// It starts in the loading state until the first Set or Clear resolves it.
type Session struct {
	mu    sync.Mutex
	state State
	subs  map[chan State]struct{}
}

// NewSession returns a session awaiting its initial resolution.
func NewSession() *Session {
	return &Session{
		state: State{Loading: true},
		subs:  make(map[chan State]struct{}),
	}
}

// State returns the current identity state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set records a sign-in and notifies subscribers.
func (s *Session) Set(u domain.User) {
	s.update(State{User: &u})
}

// Clear records a sign-out (or a resolved "no user") and notifies subscribers.
func (s *Session) Clear() {
	s.update(State{})
}

func (s *Session) update(st State) {
	s.mu.Lock()
	s.state = st
	for ch := range s.subs {
		deliver(ch, st)
	}
	s.mu.Unlock()
}

// Subscribe registers for identity changes. The current state is delivered
// immediately; later states supersede undelivered ones. The returned cancel
// func releases the subscription.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	deliver(ch, s.state)
	s.mu.Unlock()
	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// deliver replaces any undelivered state so slow subscribers only ever see
// the latest identity.
func deliver(ch chan State, st State) {
	for {
		select {
		case ch <- st:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
