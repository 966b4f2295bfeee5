package chat

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Session composes the connection manager, reply aggregator, conversation
// store and send gate behind a single lock. It is the handle a presentation
// layer holds for the lifetime of one chat connection.
type Session struct {
	id      string
	manager *Manager
	logger  *zap.Logger

	mu         sync.Mutex
	store      *Store
	aggregator *Aggregator
	gate       Gate

	hub       *Hub
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxReplyBytes bounds the size of a single streamed reply.
// A reply exceeding the bound is discarded and the connection is dropped.
func WithMaxReplyBytes(n int) Option {
	return func(s *Session) {
		s.aggregator = NewAggregator(n)
	}
}

// NewSession creates a Session identified by id that connects through manager.
func NewSession(id string, manager *Manager, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		manager:    manager,
		logger:     zap.NewNop(),
		store:      NewStore(),
		aggregator: NewAggregator(0),
		hub:        NewHub(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Connect opens the connection and starts receiving frames.
// On failure the session is left disconnected; there is no retry.
func (s *Session) Connect(ctx context.Context) error {
	conn, err := s.manager.dial(ctx)
	if errors.Is(err, ErrAlreadyStarted) || errors.Is(err, ErrSessionClosed) {
		return err
	}

	s.mu.Lock()
	if err != nil {
		s.manager.openFailed(err)
		s.publishLocked()
		s.mu.Unlock()
		return err
	}
	if err := s.manager.opened(conn); err != nil {
		s.mu.Unlock()
		return err
	}
	s.wg.Add(1)
	s.publishLocked()
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.manager.listen(s.ctx, conn, s.handleFrame, s.connectionLost)
	}()
	return nil
}

// Submit offers user text for sending. It returns true when the text was
// admitted, in which case the caller should clear its pending input.
// Rejected text is dropped; the caller may offer it again later.
func (s *Session) Submit(ctx context.Context, text string) bool {
	s.mu.Lock()
	if err := s.gate.Check(text, s.manager.Status(), s.aggregator.Streaming()); err != nil {
		s.mu.Unlock()
		s.logger.Debug("send rejected", zap.Error(err))
		return false
	}
	s.store.Append(Message{Sender: SenderUser, Text: text})
	s.aggregator.Begin()
	s.publishLocked()
	s.mu.Unlock()

	if err := s.manager.Send(ctx, text); err != nil {
		s.connectionLost(err)
	}
	return true
}

// Snapshot returns the current read state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers for state change notifications. The returned channel
// always holds the latest snapshot and is closed when the session closes or
// the returned cancel function is called.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	sub := s.hub.Register(s.snapshotLocked())
	s.mu.Unlock()

	var once sync.Once
	return sub.Updates, func() {
		once.Do(func() { s.hub.Unregister(sub) })
	}
}

// Close disposes the session: any in-flight reply is abandoned, the
// connection is closed exactly once and subscribers are released.
// Calling Close more than once is a no-op.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.manager.lost(ErrSessionClosed)
		s.aggregator.Abandon()
		s.publishLocked()
		s.mu.Unlock()

		s.cancel()
		err = s.manager.Close()
		s.wg.Wait()
		s.hub.Close()
	})
	return err
}

func (s *Session) handleFrame(frame string) {
	s.mu.Lock()
	if s.manager.Status() != StatusConnected {
		s.mu.Unlock()
		return
	}
	msg, done, err := s.aggregator.Feed(frame)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("dropping oversized reply", zap.Error(err))
		s.connectionLost(err)
		_ = s.manager.Close()
		return
	}
	if done {
		s.store.Append(msg)
		s.logger.Debug("reply complete", zap.Int("bytes", len(msg.Text)))
	}
	s.publishLocked()
	s.mu.Unlock()
}

// connectionLost handles error and close events alike: the status becomes
// disconnected and a partial reply is discarded, never stored.
func (s *Session) connectionLost(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.manager.lost(err) {
		return
	}
	if s.aggregator.Streaming() {
		s.logger.Warn("discarding partial reply", zap.Int("bytes", len(s.aggregator.Buffer())))
	}
	s.aggregator.Abandon()
	s.publishLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Messages:    s.store.Messages(),
		Streaming:   s.aggregator.Buffer(),
		IsStreaming: s.aggregator.Streaming(),
		Status:      s.manager.Status(),
	}
}

func (s *Session) publishLocked() {
	s.hub.Broadcast(s.snapshotLocked())
}
