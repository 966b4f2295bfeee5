package chat_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omochice/toy-stream-chat/internal/chat"
)

var errConnClosed = errors.New("use of closed connection")

// mockConn is a mock implementation of chat.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	errCh      chan error
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	closeCalls atomic.Int32
	closeOnce  sync.Once
	done       chan struct{}
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		errCh:      make(chan error, 1),
		done:       make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, errConnClosed
	case err := <-m.errCh:
		return nil, err
	case data := <-m.readCh:
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.closeCalls.Add(1)
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

// push queues inbound frames in order.
func (m *mockConn) push(frames ...string) {
	for _, f := range frames {
		m.readCh <- []byte(f)
	}
}

// fail makes a pending Read return err. Callers wait for queued frames
// to be consumed first since select order is random.
func (m *mockConn) fail(err error) {
	m.errCh <- err
}

func (m *mockConn) GetWritten() []string {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	out := make([]string, len(m.written))
	for i, w := range m.written {
		out[i] = string(w)
	}
	return out
}

// dialerFor returns a dialer that always hands out conn.
func dialerFor(conn *mockConn) chat.Dialer {
	return chat.DialerFunc(func(ctx context.Context, url string) (chat.Conn, error) {
		return conn, nil
	})
}

// failingDialer returns a dialer that always fails with err.
func failingDialer(err error) chat.Dialer {
	return chat.DialerFunc(func(ctx context.Context, url string) (chat.Conn, error) {
		return nil, err
	})
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for: %s", msg)
}

// Compile-time check that mockConn implements chat.Conn
var _ chat.Conn = (*mockConn)(nil)
