package verdict

import (
	"fmt"
	"strings"
	"sync"
)

// SessionRefPrefix prefixes the short references handed out by a Session.
const SessionRefPrefix = "D"

// Session tracks outcomes surfaced during a single process so feedback can
// name them by short reference (D1, D2, ...).
type Session struct {
	mu       sync.Mutex
	outcomes map[string]string // session ref (D1, D2) -> outcome ID
	reverse  map[string]string // outcome ID -> session ref
	counter  int
}

// NewSession creates a new session tracker.
func NewSession() *Session {
	return &Session{
		outcomes: make(map[string]string),
		reverse:  make(map[string]string),
	}
}

// Track adds an outcome to the session and returns its session reference.
// Tracking the same outcome twice returns the original reference.
func (s *Session) Track(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.reverse[id]; ok {
		return ref
	}

	s.counter++
	ref := fmt.Sprintf("%s%d", SessionRefPrefix, s.counter)
	s.outcomes[ref] = id
	s.reverse[id] = ref
	return ref
}

// Resolve converts a session reference to an outcome ID.
// References are matched case-insensitively.
func (s *Session) Resolve(ref string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.outcomes[strings.ToUpper(strings.TrimSpace(ref))]
	return id, ok
}

// ResolveByID gets the session reference for an outcome ID.
func (s *Session) ResolveByID(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.reverse[id]
	return ref, ok
}

// Lookup accepts either a session reference or a tracked outcome ID and
// returns the outcome ID.
func (s *Session) Lookup(ref string) (string, bool) {
	if id, ok := s.Resolve(ref); ok {
		return id, true
	}
	if _, ok := s.ResolveByID(ref); ok {
		return ref, true
	}
	return "", false
}

// All returns all tracked session outcomes.
func (s *Session) All() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[string]string, len(s.outcomes))
	for ref, id := range s.outcomes {
		result[ref] = id
	}
	return result
}

// Count returns the number of outcomes tracked this session.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outcomes)
}

// Clear resets the session tracking.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = make(map[string]string)
	s.reverse = make(map[string]string)
	s.counter = 0
}

// IsSessionRef reports whether ref has the shape of a session reference.
func IsSessionRef(ref string) bool {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if len(ref) < 2 || !strings.HasPrefix(ref, SessionRefPrefix) {
		return false
	}
	for _, r := range ref[len(SessionRefPrefix):] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
