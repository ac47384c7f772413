package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Manager owns one Session per caller identity.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opts     SessionOptions
	logger   zerolog.Logger
}

// NewManager creates an empty session manager.
func NewManager(logger zerolog.Logger, opts SessionOptions) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
		logger:   logger.With().Str("component", "mcpManager").Logger(),
	}
}

// Session returns the caller's session, creating a disconnected one if needed.
func (m *Manager) Session(callerID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[callerID]; ok {
		return s
	}
	s := NewSession(m.logger, m.opts)
	m.sessions[callerID] = s
	return s
}

// Lookup returns the caller's session without creating one.
func (m *Manager) Lookup(callerID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callerID]
	return s, ok
}

// Connect connects the caller's session to serverURL.
func (m *Manager) Connect(ctx context.Context, serverURL, callerID string) ([]ToolDescriptor, error) {
	return m.Session(callerID).Connect(ctx, serverURL, callerID)
}

// Disconnect closes and forgets the caller's session.
func (m *Manager) Disconnect(callerID string) {
	m.mu.Lock()
	s, ok := m.sessions[callerID]
	delete(m.sessions, callerID)
	m.mu.Unlock()

	if ok {
		s.Disconnect()
	}
}

// IsConnected reports whether the caller has a connected session.
func (m *Manager) IsConnected(callerID string) bool {
	s, ok := m.Lookup(callerID)
	return ok && s.IsConnected()
}

// Callers lists the callers that currently hold a session.
func (m *Manager) Callers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Keys(m.sessions)
}

// SweepIdle disconnects and removes sessions unused for longer than maxIdle.
// It returns the callers that were swept.
func (m *Manager) SweepIdle(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	idle := lo.PickBy(m.sessions, func(_ string, s *Session) bool {
		return s.LastUsed().Before(cutoff)
	})
	for callerID := range idle {
		delete(m.sessions, callerID)
	}
	m.mu.Unlock()

	for callerID, s := range idle {
		s.Disconnect()
		m.logger.Info().Str("caller_id", callerID).Msg("Swept idle MCP session")
	}
	return lo.Keys(idle)
}

// Close disconnects every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Disconnect()
	}
}
