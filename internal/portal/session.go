package portal

import (
	"strings"
	"sync"
)

// Session holds the bearer token for the current user. It is cleared when the
// backend rejects the token so later calls fail fast instead of retrying it.
type Session struct {
	mu      sync.Mutex
	token   string
	onClear []func()
}

func NewSession(token string) *Session {
	return &Session{token: strings.TrimSpace(token)}
}

func (s *Session) Token() (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}

// OnClear registers fn to run after the session is cleared.
func (s *Session) OnClear(fn func()) {
	s.mu.Lock()
	s.onClear = append(s.onClear, fn)
	s.mu.Unlock()
}

func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	had := s.token != ""
	s.token = ""
	hooks := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	if !had {
		return
	}
	for _, fn := range hooks {
		fn()
	}
}
