package capture

import (
	"errors"
	"sync"
)

var (
	// ErrSessionActive indicates the chat already has a running session.
	ErrSessionActive = errors.New("a recording session is already active")

	// ErrNoSession indicates the chat has no session.
	ErrNoSession = errors.New("no active recording session")
)

// Manager tracks at most one session per chat.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
	}
}

// Start begins a session for chatID. Fails if one is already running.
func (m *Manager) Start(chatID int64, title string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[chatID]; ok {
		return nil, ErrSessionActive
	}
	session := newSession(chatID, title)
	m.sessions[chatID] = session
	return session, nil
}

// Get returns the chat's session, if any.
func (m *Manager) Get(chatID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[chatID]
	return session, ok
}

// Remove detaches the chat's session, returning it for final processing.
func (m *Manager) Remove(chatID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[chatID]
	if !ok {
		return nil, ErrNoSession
	}
	delete(m.sessions, chatID)
	return session, nil
}

// Active returns the number of running sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
