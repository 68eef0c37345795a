package socket

import (
	"context"
	"sync"

	"ripple-chat/pkg/logger"
)

// Manager owns the single persistent connection of an authenticated session.
// It is constructed per session and passed by reference, so its lifecycle is
// tied to login/logout rather than to process start.
type Manager struct {
	url   string
	token string
	log   *logger.Logger

	mu   sync.Mutex
	conn *Conn
}

func NewManager(url, token string, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Manager{url: url, token: token, log: log}
}

// Get returns the session connection, dialing it on first use. Subsequent
// calls return the same instance until Close drops it or the transport dies.
func (m *Manager) Get(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && !m.conn.Closed() {
		return m.conn, nil
	}

	conn, err := Dial(ctx, m.url, m.token, m.log)
	if err != nil {
		return nil, err
	}
	m.conn = conn
	return conn, nil
}

// Current returns the established connection, or nil when none is live.
// Consumers that must silently no-op without a transport use this instead of
// Get so they never trigger a dial.
func (m *Manager) Current() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil || m.conn.Closed() {
		return nil
	}
	return m.conn
}

// Close tears down the transport and drops the memoized connection so the
// next Get dials a fresh one.
func (m *Manager) Close() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
