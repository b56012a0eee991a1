// Package session tracks MCP protocol sessions. Sessions are created by
// initialize, live in memory only, and die with their transport or with the
// process. A janitor reaps sessions whose transport never said goodbye.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/metrics"
)

// Transport identifies how a session reaches the server.
type Transport string

const (
	TransportStdio     Transport = "stdio"
	TransportHTTP      Transport = "http"
	TransportWebSocket Transport = "websocket"
)

// ClientInfo is the client identity exchanged during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Session is one negotiated protocol session.
type Session struct {
	ID              string         `json:"id"`
	ClientInfo      ClientInfo     `json:"client_info"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	ProtocolVersion string         `json:"protocol_version"`
	Transport       Transport      `json:"transport"`
	BoundNamespace  string         `json:"bound_namespace,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`

	lastActive time.Time
	turn       sync.Mutex
}

// Lock serialises request processing within the session: requests are
// handled in arrival order even when the transport delivers them
// concurrently.
func (s *Session) Lock() { s.turn.Lock() }

// Unlock releases the session's turn.
func (s *Session) Unlock() { s.turn.Unlock() }

const (
	defaultTTL      = 24 * time.Hour
	defaultSweepGap = 10 * time.Minute
)

// Manager owns the process-global session table.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager starts a manager and its idle-session janitor.
func NewManager() *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      defaultTTL,
		stop:     make(chan struct{}),
	}
	go m.janitor(defaultSweepGap)
	return m
}

// Create registers a fresh session and returns it.
func (m *Manager) Create(info ClientInfo, capabilities map[string]any, protocolVersion string, transport Transport, boundNamespace string) *Session {
	now := time.Now()
	s := &Session{
		ID:              uuid.New().String(),
		ClientInfo:      info,
		Capabilities:    capabilities,
		ProtocolVersion: protocolVersion,
		Transport:       transport,
		BoundNamespace:  boundNamespace,
		CreatedAt:       now,
		lastActive:      now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	metrics.ActiveSessions.WithLabelValues(string(transport)).Inc()
	logger.Debug("session created: %s (%s, client=%s)", s.ID, transport, info.Name)
	return s
}

// Get looks up a session and refreshes its idle clock.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.lastActive = time.Now()
	}
	return s, ok
}

// Delete removes a session. Unknown ids are ignored.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		metrics.ActiveSessions.WithLabelValues(string(s.Transport)).Dec()
		logger.Debug("session deleted: %s", id)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the janitor and drops every session.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		metrics.ActiveSessions.WithLabelValues(string(s.Transport)).Dec()
		delete(m.sessions, id)
	}
}

func (m *Manager) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.reapIdle()
		}
	}
}

func (m *Manager) reapIdle() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var reaped []*Session
	for id, s := range m.sessions {
		if s.lastActive.Before(cutoff) {
			reaped = append(reaped, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range reaped {
		metrics.ActiveSessions.WithLabelValues(string(s.Transport)).Dec()
		logger.Info("reaped idle session %s (transport=%s)", s.ID, s.Transport)
	}
}
