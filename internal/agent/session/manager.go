package session

import (
	"sync"
	"time"

	"github.com/civicdesk/server/internal/agent/model"
)

// Manager owns the process-wide session map. Sessions live only for the
// process lifetime; completed sessions are removed by the caller once the
// final response has been produced.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it on first use.
// The second return reports whether the session was created now.
func (m *Manager) GetOrCreate(id, namespace string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false
	}
	s := newSession(id, namespace)
	m.sessions[id] = s
	return s, true
}

// Get returns the session for id when present.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove discards the session for id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Snapshot is a read-only view of one session for introspection endpoints.
type Snapshot struct {
	SessionID           string                   `json:"session_id"`
	Namespace           string                   `json:"namespace"`
	State               State                    `json:"state"`
	ServiceInfo         *model.ServiceDescriptor `json:"service_info,omitempty"`
	CollectedFields     int                      `json:"collected_fields"`
	TotalRequiredFields int                      `json:"total_required_fields"`
	Abandoned           bool                     `json:"abandoned"`
	CreatedAt           time.Time                `json:"created_at"`
	LastActivity        time.Time                `json:"last_activity"`
	MessageCount        int                      `json:"message_count"`
}

// Snapshots returns a point-in-time view of every active session.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		s.Lock()
		collected, total := s.Progress()
		out = append(out, Snapshot{
			SessionID:           s.ID,
			Namespace:           s.Namespace,
			State:               s.State(),
			ServiceInfo:         s.Service(),
			CollectedFields:     collected,
			TotalRequiredFields: total,
			Abandoned:           s.Abandoned(),
			CreatedAt:           s.CreatedAt,
			LastActivity:        s.LastActivity,
			MessageCount:        s.MessageCount,
		})
		s.Unlock()
	}
	return out
}
