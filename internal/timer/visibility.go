package timer

import (
	"sync"
	"time"
)

// VisibilityEvent reports that the host moved to the background (Hidden) or
// back to the foreground, stamped with the wall-clock time of the change.
type VisibilityEvent struct {
	Hidden bool
	At     time.Time
}

// VisibilitySource delivers host visibility transitions.
type VisibilitySource interface {
	Subscribe(fn func(VisibilityEvent)) (unsubscribe func())
}

// Signal is a VisibilitySource driven by explicit SetHidden calls. It only
// emits on transitions, so repeated reports of the same state are dropped.
type Signal struct {
	mu     sync.Mutex
	hidden bool
	next   int
	subs   map[int]func(VisibilityEvent)
}

func NewSignal() *Signal {
	return &Signal{subs: make(map[int]func(VisibilityEvent))}
}

func (s *Signal) Subscribe(fn func(VisibilityEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// SetHidden records a visibility change at the given time. It returns false
// when the state did not change and nothing was emitted.
func (s *Signal) SetHidden(hidden bool, at time.Time) bool {
	s.mu.Lock()
	if s.hidden == hidden {
		s.mu.Unlock()
		return false
	}
	s.hidden = hidden
	subs := make([]func(VisibilityEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	ev := VisibilityEvent{Hidden: hidden, At: at}
	for _, fn := range subs {
		fn(ev)
	}
	return true
}

// Hidden reports the last known state.
func (s *Signal) Hidden() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hidden
}

// Subscribers reports the number of attached listeners.
func (s *Signal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
