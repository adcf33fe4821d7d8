package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Wainainajnr/ngongtownbot/internal/i18n"
)

// DefaultSweepInterval is how often the TTL worker looks for idle sessions.
const DefaultSweepInterval = time.Minute

// Manager owns the live sessions of all visitors.
type Manager struct {
	deps Deps

	mu     sync.RWMutex
	active map[string]map[string]*Session
}

// NewManager creates a manager whose sessions share deps.
func NewManager(deps Deps) *Manager {
	deps.defaults()
	return &Manager{
		deps:   deps,
		active: make(map[string]map[string]*Session),
	}
}

// Get returns the session for visitorID/sessionID, or nil.
func (m *Manager) Get(visitorID, sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessions, ok := m.active[visitorID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// GetOrCreate returns the existing session or registers a new one. The
// boolean reports whether it was created.
func (m *Manager) GetOrCreate(visitorID, sessionID string, lang i18n.Language) (*Session, bool) {
	if s := m.Get(visitorID, sessionID); s != nil {
		return s, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[visitorID]; !exists {
		m.active[visitorID] = make(map[string]*Session)
	}
	if s, exists := m.active[visitorID][sessionID]; exists {
		return s, false
	}
	s := New(m.deps, visitorID, sessionID, lang)
	m.active[visitorID][sessionID] = s
	slog.Info("Chat session registered", "visitor_id", visitorID, "session_id", sessionID)
	return s, true
}

// Remove closes and forgets one session.
func (m *Manager) Remove(visitorID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions, ok := m.active[visitorID]
	if !ok {
		return
	}
	if s, exists := sessions[sessionID]; exists {
		s.Close()
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.active, visitorID)
		}
		slog.Info("Chat session removed", "visitor_id", visitorID, "session_id", sessionID)
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, sessions := range m.active {
		n += len(sessions)
	}
	return n
}

// Sweep removes sessions idle for longer than ttl and returns how many were
// removed. Sessions with a request in flight are kept.
func (m *Manager) Sweep(ttl time.Duration) int {
	now := m.deps.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for visitorID, sessions := range m.active {
		for id, s := range sessions {
			if last, busy := s.activity(); busy || now.Sub(last) <= ttl {
				continue
			}
			s.Close()
			delete(sessions, id)
			removed++
			slog.Debug("Chat session expired", "visitor_id", visitorID, "session_id", id)
		}
		if len(sessions) == 0 {
			delete(m.active, visitorID)
		}
	}
	return removed
}

// StartTTLWorker sweeps idle sessions every interval until ctx is done.
func (m *Manager) StartTTLWorker(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session TTL worker started", "interval", interval, "ttl", ttl)
		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(ttl); n > 0 {
					slog.Info("Session TTL worker expired sessions", "count", n, "remaining", m.Len())
				}
			case <-ctx.Done():
				slog.Info("Session TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
