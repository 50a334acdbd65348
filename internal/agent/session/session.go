// Package session holds the per-conversation state machine the intake agent
// drives: which service was identified, which required field comes next,
// how many validation attempts each field has consumed, and the values
// collected so far.
package session

import (
	"sync"
	"time"

	"github.com/civicdesk/server/internal/agent/model"
)

// State is the conversation phase of a session.
type State string

const (
	StateInitial    State = "initial"
	StateCollecting State = "collecting_info"
	StateCompleted  State = "completed"
)

// MaxAttempts is the validation retry budget per field. Reaching it
// abandons the session; only a fresh session id resets the counters.
const MaxAttempts = 3

// Session is one conversation's mutable state. All fields below the mutex
// must only be touched while holding it; the agent locks the session for
// the duration of a turn, so turns for the same session id serialize while
// distinct sessions proceed concurrently.
type Session struct {
	mu sync.Mutex

	ID        string
	Namespace string

	state     State
	service   *model.ServiceDescriptor
	fields    []string
	values    map[string]string
	index     int
	attempts  map[string]int
	abandoned bool

	CreatedAt    time.Time
	LastActivity time.Time
	MessageCount int
}

func newSession(id, namespace string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Namespace:    namespace,
		state:        StateInitial,
		values:       make(map[string]string),
		attempts:     make(map[string]int),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Lock acquires exclusive access for one turn.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the turn lock.
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch records turn activity. Caller must hold the lock.
func (s *Session) Touch() {
	s.LastActivity = time.Now()
	s.MessageCount++
}

// State returns the current phase. Caller must hold the lock.
func (s *Session) State() State { return s.state }

// Service returns the identified descriptor, nil before identification.
func (s *Session) Service() *model.ServiceDescriptor { return s.service }

// SetService installs the identification result exactly once and moves the
// session to collecting_info, or straight to completed when the descriptor
// requires no fields.
func (s *Session) SetService(desc *model.ServiceDescriptor) {
	s.service = desc
	s.fields = append([]string(nil), desc.RequiredFields...)
	if len(s.fields) == 0 {
		s.state = StateCompleted
		return
	}
	s.state = StateCollecting
}

// CurrentField returns the field awaiting collection, empty when none.
func (s *Session) CurrentField() string {
	if s.index >= len(s.fields) {
		return ""
	}
	return s.fields[s.index]
}

// RecordValue stores the validated value for the current field and
// advances the index. It returns the next field to ask for, or empty when
// collection just finished (the session then transitions to completed).
func (s *Session) RecordValue(value string) (next string, done bool) {
	field := s.CurrentField()
	if field == "" {
		return "", true
	}
	s.values[field] = value
	s.index++
	if s.index >= len(s.fields) {
		s.state = StateCompleted
		return "", true
	}
	return s.fields[s.index], false
}

// FailAttempt increments the retry counter for the current field and
// returns the new count. At MaxAttempts the session is abandoned.
func (s *Session) FailAttempt() int {
	field := s.CurrentField()
	s.attempts[field]++
	if s.attempts[field] >= MaxAttempts {
		s.abandoned = true
	}
	return s.attempts[field]
}

// Abandoned reports whether the retry budget was exhausted for any field.
func (s *Session) Abandoned() bool { return s.abandoned }

// Collected returns the field→value mapping gathered so far. Key order is
// recoverable from RequiredFields up to the current index.
func (s *Session) Collected() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// CollectedOrder returns the collected field names in collection order,
// always an in-order prefix of the required fields list.
func (s *Session) CollectedOrder() []string {
	return append([]string(nil), s.fields[:s.index]...)
}

// Progress returns collected and total required field counts.
func (s *Session) Progress() (collected, total int) {
	return s.index, len(s.fields)
}
