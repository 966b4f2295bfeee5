// Package chat implements the client side of a streaming chat session:
// connection lifecycle, reply reassembly, the conversation record and the
// send admission gate.
package chat

import "context"

// Conn abstracts the single bidirectional connection to the chat backend.
// This interface isolates transport details from session logic.
type Conn interface {
	// Read reads a single text frame.
	// Returns io.EOF when the peer closed the connection cleanly.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens a Conn to the given endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f(ctx, url).
func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}
