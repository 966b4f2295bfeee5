package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyStarted is returned when a connection was already attempted.
	ErrAlreadyStarted = errors.New("connection already attempted")
	// ErrSessionClosed is returned when the session was disposed.
	ErrSessionClosed = errors.New("session closed")
)

// Manager owns the transport connection and its lifecycle status.
//
// States: connecting (initial), connected, disconnected (terminal).
// There is no transition back out of disconnected.
//
// Status transitions are driven by Session while it holds its own lock;
// the internal mutex only lets Send and Close run outside that lock.
type Manager struct {
	url    string
	dialer Dialer
	logger *zap.Logger

	mu        sync.RWMutex
	status    Status
	conn      Conn
	dialing   bool
	disposed  bool
	closeOnce sync.Once
	closeErr  error
}

// NewManager creates a Manager for the given endpoint.
func NewManager(url string, dialer Dialer, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		url:    url,
		dialer: dialer,
		logger: logger,
		status: StatusConnecting,
	}
}

// URL returns the endpoint this manager connects to.
func (m *Manager) URL() string {
	return m.url
}

// Status returns the current connection status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// dial opens the connection. It may be attempted once per manager.
func (m *Manager) dial(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if m.dialing || m.status != StatusConnecting {
		m.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	m.dialing = true
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return conn, nil
}

// opened records a successful dial: connecting -> connected.
// If the manager was disposed while dialing, conn is closed instead.
func (m *Manager) opened(conn Conn) error {
	m.mu.Lock()
	if m.disposed || m.status != StatusConnecting {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrSessionClosed
	}
	m.conn = conn
	m.status = StatusConnected
	m.mu.Unlock()

	m.logger.Info("connected", zap.String("url", m.url), zap.String("remote", conn.RemoteAddr()))
	return nil
}

// openFailed records a failed dial: connecting -> disconnected.
func (m *Manager) openFailed(err error) {
	m.mu.Lock()
	m.status = StatusDisconnected
	m.mu.Unlock()

	m.logger.Error("connection failed", zap.String("url", m.url), zap.Error(err))
}

// lost moves any state to disconnected. It reports whether the status changed.
func (m *Manager) lost(err error) bool {
	m.mu.Lock()
	prev := m.status
	m.status = StatusDisconnected
	m.mu.Unlock()

	if prev == StatusDisconnected {
		return false
	}
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, ErrSessionClosed):
		m.logger.Info("connection closed", zap.String("url", m.url))
	default:
		m.logger.Warn("connection lost", zap.String("url", m.url), zap.Error(err))
	}
	return true
}

// Send transmits text verbatim. It is a silent no-op unless connected.
func (m *Manager) Send(ctx context.Context, text string) error {
	m.mu.RLock()
	conn := m.conn
	status := m.status
	m.mu.RUnlock()

	if status != StatusConnected || conn == nil {
		return nil
	}
	if err := conn.Write(ctx, []byte(text)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close closes the connection exactly once. Later calls are no-ops.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.disposed = true
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	m.closeOnce.Do(func() {
		m.closeErr = conn.Close()
	})
	return m.closeErr
}

// listen reads frames until the connection fails, handing each to onFrame
// in arrival order and the terminating error to onDone.
func (m *Manager) listen(ctx context.Context, conn Conn, onFrame func(string), onDone func(error)) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			onDone(err)
			return
		}
		onFrame(string(data))
	}
}
