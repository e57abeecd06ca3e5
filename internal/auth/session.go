package auth

import (
	"context"
	"sync"
)

// Session tracks the signed-in principal of an interactive client.
type Session struct {
	mu        sync.Mutex
	principal string
	watchers  map[chan string]struct{}
}

// NewSession starts a session signed in as principal, or signed out when
// principal is empty.
func NewSession(principal string) *Session {
	return &Session{principal: principal, watchers: make(map[chan string]struct{})}
}

// Current returns the signed-in principal.
func (s *Session) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal, s.principal != ""
}

func (s *Session) SignIn(principal string) {
	s.set(principal)
}

func (s *Session) SignOut() {
	s.set("")
}

func (s *Session) set(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == principal {
		return
	}
	s.principal = principal
	for ch := range s.watchers {
		offerState(ch, principal)
	}
}

// Watch delivers the current principal, then every change, until ctx is
// done. An empty string means signed out. A slow reader only sees the most
// recent state.
func (s *Session) Watch(ctx context.Context) <-chan string {
	ch := make(chan string, 1)

	s.mu.Lock()
	ch <- s.principal
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// offerState is only called with s.mu held, so it is the sole sender.
func offerState(ch chan string, v string) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}
