// Package ws provides the WebSocket transport for chat sessions using gobwas/ws:
// a client Conn and Dialer satisfying the chat interfaces, and a streaming
// backend Server.
package ws

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrMessageTooLarge is returned by Read when an inbound message exceeds
// the read limit. The connection is closed with status 1009.
var ErrMessageTooLarge = errors.New("message exceeds read limit")

// Conn adapts a client-side gobwas/ws connection to chat.Conn.
// Frames are exchanged as WebSocket text messages.
type Conn struct {
	conn      net.Conn
	rw        io.ReadWriter
	w         *lockedWriter
	readLimit int64

	closeOnce sync.Once
	closeErr  error
}

// lockedWriter serializes whole-frame writes from Write, Close and the
// control frame replies issued while reading.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

type readWriter struct {
	io.Reader
	io.Writer
}

// NewConn wraps an established client connection. br holds any bytes the
// handshake read past the response and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	w := &lockedWriter{w: conn}
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return &Conn{
		conn: conn,
		rw:   readWriter{Reader: r, Writer: w},
		w:    w,
	}
}

// SetReadLimit bounds the size of a single inbound message in bytes.
// Zero or less means no limit. It must be called before the first Read.
func (c *Conn) SetReadLimit(n int64) {
	c.readLimit = n
}

// Read implements chat.Conn.
// Reads the next data message; control frames are answered internally.
// A normal or going-away close from the server is reported as io.EOF;
// any other close code is returned as a wsutil.ClosedError.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	data, err := c.readMessage()
	if err == nil {
		return data, nil
	}

	var closed wsutil.ClosedError
	switch {
	case errors.As(err, &closed):
		switch closed.Code {
		case ws.StatusNormalClosure, ws.StatusGoingAway, ws.StatusNoStatusRcvd:
			return nil, io.EOF
		}
		return nil, fmt.Errorf("connection closed by server: %w", closed)
	case errors.Is(err, ErrMessageTooLarge):
		_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusMessageTooBig, "")))
		c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
		return nil, err
	}
	return nil, err
}

// readMessage reads one text or binary message, refusing to buffer more
// than the read limit.
func (c *Conn) readMessage() ([]byte, error) {
	control := wsutil.ControlFrameHandler(c.rw, ws.StateClientSide)
	rd := wsutil.Reader{
		Source:         c.rw,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		MaxFrameSize:   c.readLimit,
		OnIntermediate: control,
	}
	for {
		hdr, err := rd.NextFrame()
		if errors.Is(err, wsutil.ErrFrameTooLarge) {
			return nil, ErrMessageTooLarge
		}
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := control(hdr, &rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}

		var r io.Reader = &rd
		if c.readLimit > 0 {
			r = io.LimitReader(&rd, c.readLimit+1)
		}
		data, err := io.ReadAll(r)
		if errors.Is(err, wsutil.ErrFrameTooLarge) {
			return nil, ErrMessageTooLarge
		}
		if err != nil {
			return nil, err
		}
		if c.readLimit > 0 && int64(len(data)) > c.readLimit {
			return nil, ErrMessageTooLarge
		}
		return data, nil
	}
}

// Write implements chat.Conn.
// Writes data as a single masked text frame.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.writeFrame(ws.NewTextFrame(data))
}

// Close implements chat.Conn.
// Sends a normal closure frame before closing the socket. Later calls
// return the result of the first.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.writeFrame(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) writeFrame(f ws.Frame) error {
	frame, err := ws.CompileFrame(ws.MaskFrame(f))
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	_, err = c.w.Write(frame)
	return err
}
