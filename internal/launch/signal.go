// Package launch holds the two one-shot signals that release the splash
// screen and the main window.
package launch

import "sync"

// Signal fires at most once per process. It holds a single listener at a
// time: registering again replaces the previous one.
type Signal struct {
	name string

	mu       sync.Mutex
	listener func()
	fired    bool
}

// NewSignal returns an unfired signal.
func NewSignal(name string) *Signal {
	return &Signal{name: name}
}

// Name returns the signal name.
func (s *Signal) Name() string {
	return s.name
}

// Once registers fn as the listener, replacing any previous one.
func (s *Signal) Once(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// Remove drops the current listener. A later Fire still consumes the signal
// but calls nothing.
func (s *Signal) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = nil
}

// Fire calls the listener the first time it is invoked and reports whether
// this call fired the signal. The listener runs without the lock held.
func (s *Signal) Fire() bool {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return false
	}
	s.fired = true
	fn := s.listener
	s.listener = nil
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true
}

// Fired reports whether the signal has been consumed.
func (s *Signal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// HasListener reports whether a listener is registered.
func (s *Signal) HasListener() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}
