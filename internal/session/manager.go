// Package session mirrors realtime voice sessions for the HTTP surface and
// expires sessions that stay idle past the inactivity timeout.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session is a snapshot of one realtime connection as seen by the registry.
type Session struct {
	ID                string    `json:"session_id"`
	Status            Status    `json:"status"`
	Connection        string    `json:"connection"`
	Voice             string    `json:"voice"`
	Configured        bool      `json:"configured"`
	ThreadID          string    `json:"thread_id,omitempty"`
	ResponseID        string    `json:"response_id,omitempty"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// State carries the live fields a client reports on every change.
type State struct {
	Connection string
	Voice      string
	Configured bool
	ThreadID   string
	ResponseID string
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	onChange          func(active int)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 5 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook registers fn to run, outside the lock, for each session the
// janitor ends.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetActiveHook registers fn to receive the active session count after every
// create or end.
func (m *Manager) SetActiveHook(hook func(active int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = hook
}

func (m *Manager) Create(state State) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	s.apply(state)

	m.mu.Lock()
	m.sessions[s.ID] = s
	out := clone(s)
	hook, active := m.onChange, m.activeLocked()
	m.mu.Unlock()

	if hook != nil {
		hook(active)
	}
	return out
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// List returns all sessions, newest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, clone(s))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Update replaces the live fields of an active session and counts as activity.
func (m *Manager) Update(sessionID string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.apply(state)
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) Interrupt(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.InterruptionCount++
	s.ResponseID = ""
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.ResponseID = ""
	s.LastActivityAt = time.Now().UTC()
	out := clone(s)
	hook, active := m.onChange, m.activeLocked()
	m.mu.Unlock()

	if hook != nil {
		hook(active)
	}
	return out, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

func (m *Manager) activeLocked() int {
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.Status != StatusActive {
			// Ended sessions are kept for one more timeout so the HTTP surface
			// can still report them.
			if now.Sub(s.LastActivityAt) >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.ResponseID = ""
		s.LastActivityAt = now
		expired = append(expired, clone(s))
	}
	hook, change, active := m.onExpire, m.onChange, m.activeLocked()
	m.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
	if change != nil {
		change(active)
	}
}

func (s *Session) apply(state State) {
	s.Connection = state.Connection
	s.Voice = state.Voice
	s.Configured = state.Configured
	s.ThreadID = state.ThreadID
	s.ResponseID = state.ResponseID
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
