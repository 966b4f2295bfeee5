package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/omochice/toy-stream-chat/internal/chat"
	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

// Request is one user message together with the earlier turns of its session.
type Request struct {
	SessionID string
	// History holds the completed turns of the session, oldest first.
	// It is shared by every connection to the same session id.
	History []chat.Message
	Prompt  string
}

// Responder produces the reply to one user message as a sequence of
// fragments handed to emit in order.
type Responder interface {
	Respond(ctx context.Context, req Request, emit func(fragment string) error) error
}

// Server accepts chat sessions on /ws/{session} and streams replies.
// Conversation history is kept per session id for the life of the Server,
// so a reconnect to the same id continues the conversation.
type Server struct {
	address   string
	listener  net.Listener
	responder Responder
	logger    *zap.Logger
	server    *http.Server

	mu        sync.Mutex
	conns     map[net.Conn]bool
	histories map[string][]chat.Message
	stopped   bool
	quit      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewServer creates a backend Server that answers with responder.
func NewServer(address string, responder Responder, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		address:   address,
		responder: responder,
		logger:    logger,
		conns:     make(map[net.Conn]bool),
		histories: make(map[string][]chat.Message),
		quit:      make(chan struct{}),
	}
	s.server = &http.Server{Handler: s.Handler()}
	return s
}

// Handler returns the HTTP handler serving the /ws/{session} endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{session}", s.handleWebSocket)
	return mux
}

// Listen binds the listening socket. Start calls it when needed.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	return nil
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.logger.Info("websocket server started", zap.String("addr", s.listener.Addr().String()))

	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop stops accepting sessions and closes the open ones.
// Calling Stop more than once is a no-op.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		close(s.quit)
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		s.server.Shutdown(context.Background())
	})
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// History returns a copy of the completed turns recorded for a session.
func (s *Server) History(sessionID string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.histories[sessionID]...)
}

func (s *Server) remember(sessionID, prompt, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[sessionID] = append(s.histories[sessionID],
		chat.Message{Sender: chat.SenderUser, Text: prompt},
		chat.Message{Sender: chat.SenderBot, Text: reply},
	)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")

	// Reserve the session before upgrading so Stop cannot miss it.
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.wg.Done()
		s.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		s.wg.Done()
		return
	}
	s.conns[conn] = true
	s.mu.Unlock()

	go s.handleSession(conn, sessionID)
}

// handleSession answers each user message with streamed fragments and the
// end marker. A responder failure closes the connection.
func (s *Server) handleSession(conn net.Conn, sessionID string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	logger := s.logger.With(zap.String("session", sessionID))
	logger.Info("session connected", zap.String("remote", conn.RemoteAddr().String()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			var closed wsutil.ClosedError
			if !errors.As(err, &closed) {
				logger.Debug("read failed", zap.Error(err))
			}
			logger.Info("session closed")
			return
		}
		if op != ws.OpText {
			continue
		}

		prompt := string(data)
		logger.Debug("received message", zap.Int("bytes", len(prompt)))

		var reply strings.Builder
		emit := func(fragment string) error {
			for _, frame := range protocol.SafeFragments(fragment) {
				if err := wsutil.WriteServerText(conn, []byte(frame)); err != nil {
					return fmt.Errorf("failed to send fragment: %w", err)
				}
			}
			reply.WriteString(fragment)
			return nil
		}
		req := Request{SessionID: sessionID, History: s.History(sessionID), Prompt: prompt}
		if err := s.responder.Respond(ctx, req, emit); err != nil {
			logger.Error("responder failed", zap.Error(err))
			_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusInternalServerError, ""))
			return
		}
		s.remember(sessionID, prompt, reply.String())
		if err := wsutil.WriteServerText(conn, []byte(protocol.EndOfStream)); err != nil {
			logger.Warn("failed to send end marker", zap.Error(err))
			return
		}
	}
}
