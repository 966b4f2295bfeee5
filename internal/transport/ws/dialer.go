package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/toy-stream-chat/internal/chat"
)

// Dialer opens client connections to a chat backend.
type Dialer struct {
	// Timeout bounds the TCP connect and the upgrade handshake. Zero means no limit.
	Timeout time.Duration
	// ReadLimit bounds each inbound message on dialed connections. Zero means no limit.
	ReadLimit int64
}

// NewDialer creates a Dialer with the given handshake timeout.
func NewDialer(timeout time.Duration) *Dialer {
	return &Dialer{Timeout: timeout}
}

// Dial implements chat.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (chat.Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	c := NewConn(conn, br)
	c.SetReadLimit(d.ReadLimit)
	return c, nil
}

// Compile-time check that Dialer implements chat.Dialer
var _ chat.Dialer = (*Dialer)(nil)
