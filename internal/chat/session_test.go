package chat_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/omochice/toy-stream-chat/internal/chat"
)

func newConnectedSession(t *testing.T, opts ...chat.Option) (*chat.Session, *mockConn) {
	t.Helper()
	conn := newMockConn("127.0.0.1:8000")
	manager := chat.NewManager("ws://example.test/ws/1", dialerFor(conn), zaptest.NewLogger(t))
	opts = append([]chat.Option{chat.WithLogger(zaptest.NewLogger(t))}, opts...)
	s := chat.NewSession("1", manager, opts...)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, conn
}

func messageCount(s *chat.Session) int {
	return len(s.Snapshot().Messages)
}

func TestSession_InitialState(t *testing.T) {
	manager := chat.NewManager("ws://example.test/ws/1", dialerFor(newMockConn("")), nil)
	s := chat.NewSession("1", manager)

	snap := s.Snapshot()
	if snap.Status != chat.StatusConnecting {
		t.Errorf("Status = %v, want %v", snap.Status, chat.StatusConnecting)
	}
	if snap.IsStreaming {
		t.Error("IsStreaming = true before any send")
	}
	if len(snap.Messages) != 0 {
		t.Errorf("Messages = %v, want empty", snap.Messages)
	}
	if s.Submit(context.Background(), "hi") {
		t.Error("Submit() admitted while connecting")
	}
}

func TestSession_Connect(t *testing.T) {
	s, _ := newConnectedSession(t)

	if got := s.Snapshot().Status; got != chat.StatusConnected {
		t.Errorf("Status = %v, want %v", got, chat.StatusConnected)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, chat.ErrAlreadyStarted) {
		t.Errorf("second Connect() error = %v, want %v", err, chat.ErrAlreadyStarted)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	manager := chat.NewManager("ws://example.test/ws/1", failingDialer(dialErr), zaptest.NewLogger(t))
	s := chat.NewSession("1", manager)
	defer s.Close()

	err := s.Connect(context.Background())
	if !errors.Is(err, dialErr) {
		t.Fatalf("Connect() error = %v, want %v", err, dialErr)
	}
	if got := s.Snapshot().Status; got != chat.StatusDisconnected {
		t.Errorf("Status = %v, want %v", got, chat.StatusDisconnected)
	}
	if s.Submit(context.Background(), "hi") {
		t.Error("Submit() admitted after failed connect")
	}
	if err := s.Connect(context.Background()); err == nil {
		t.Error("expected reconnect attempt to fail")
	}
}

func TestSession_StreamedReply(t *testing.T) {
	s, conn := newConnectedSession(t)

	if !s.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}
	if got := conn.GetWritten(); len(got) != 1 || got[0] != "hi" {
		t.Errorf("written frames = %q, want [\"hi\"]", got)
	}

	conn.push("He", "llo", "[END]")
	eventually(t, func() bool { return messageCount(s) == 2 }, "bot reply")

	snap := s.Snapshot()
	want := []chat.Message{
		{Sender: chat.SenderUser, Text: "hi"},
		{Sender: chat.SenderBot, Text: "Hello"},
	}
	for i := range want {
		if snap.Messages[i] != want[i] {
			t.Errorf("Messages[%d] = %+v, want %+v", i, snap.Messages[i], want[i])
		}
	}
	if snap.IsStreaming {
		t.Error("IsStreaming = true after end marker")
	}
	if snap.Streaming != "" {
		t.Errorf("Streaming = %q, want empty", snap.Streaming)
	}
}

func TestSession_RejectsSecondSendWhileStreaming(t *testing.T) {
	s, conn := newConnectedSession(t)

	if !s.Submit(context.Background(), "hi") {
		t.Fatal("first Submit() rejected")
	}
	if s.Submit(context.Background(), "again") {
		t.Error("second Submit() admitted while streaming")
	}

	snap := s.Snapshot()
	if len(snap.Messages) != 1 {
		t.Errorf("Messages = %+v, want only the first user message", snap.Messages)
	}
	if got := conn.GetWritten(); len(got) != 1 {
		t.Errorf("written frames = %q, want one", got)
	}

	conn.push("[END]")
	eventually(t, func() bool { return messageCount(s) == 2 }, "bot reply")

	if !s.Submit(context.Background(), "again") {
		t.Error("Submit() rejected after reply completed")
	}
}

func TestSession_ConcurrentSubmitsAdmitOne(t *testing.T) {
	s, conn := newConnectedSession(t)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Submit(context.Background(), "hi") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Errorf("admitted %d sends, want 1", got)
	}
	if got := conn.GetWritten(); len(got) != 1 {
		t.Errorf("written frames = %d, want 1", len(got))
	}
	if got := len(s.Snapshot().Messages); got != 1 {
		t.Errorf("Messages length = %d, want 1", got)
	}
}

func TestSession_RejectsEmptyInput(t *testing.T) {
	s, conn := newConnectedSession(t)

	if s.Submit(context.Background(), "") {
		t.Error("Submit(\"\") admitted")
	}
	if len(conn.GetWritten()) != 0 {
		t.Error("empty input was transmitted")
	}
	if s.Snapshot().IsStreaming {
		t.Error("rejected send changed IsStreaming")
	}
}

func TestSession_EmptyReply(t *testing.T) {
	s, conn := newConnectedSession(t)

	s.Submit(context.Background(), "hi")
	conn.push("[END]")
	eventually(t, func() bool { return messageCount(s) == 2 }, "empty bot reply")

	bot := s.Snapshot().Messages[1]
	if bot.Sender != chat.SenderBot || bot.Text != "" {
		t.Errorf("bot message = %+v, want empty bot message", bot)
	}
}

func TestSession_CloseMidStream(t *testing.T) {
	s, conn := newConnectedSession(t)

	s.Submit(context.Background(), "hi")
	conn.push("He")
	eventually(t, func() bool { return s.Snapshot().Streaming == "He" }, "first fragment")

	conn.fail(io.EOF)
	eventually(t, func() bool { return s.Snapshot().Status == chat.StatusDisconnected }, "disconnect")

	snap := s.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Sender != chat.SenderUser {
		t.Errorf("Messages = %+v, want only the user message", snap.Messages)
	}
	if snap.IsStreaming {
		t.Error("IsStreaming = true after connection loss")
	}
	if snap.Streaming != "" {
		t.Errorf("Streaming = %q, want partial reply discarded", snap.Streaming)
	}
	if s.Submit(context.Background(), "again") {
		t.Error("Submit() admitted after disconnect")
	}
}

func TestSession_ErrorMidStreamIsLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	conn := newMockConn("127.0.0.1:8000")
	manager := chat.NewManager("ws://example.test/ws/1", dialerFor(conn), logger)
	s := chat.NewSession("1", manager, chat.WithLogger(logger))
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.Submit(context.Background(), "hi")
	conn.push("He")
	eventually(t, func() bool { return s.Snapshot().Streaming == "He" }, "first fragment")

	conn.fail(errors.New("connection reset by peer"))
	eventually(t, func() bool { return s.Snapshot().Status == chat.StatusDisconnected }, "disconnect")

	if got := logs.FilterMessage("connection lost").Len(); got != 1 {
		t.Errorf("logged %d \"connection lost\" entries, want 1", got)
	}
	if got := logs.FilterMessage("discarding partial reply").Len(); got != 1 {
		t.Errorf("logged %d \"discarding partial reply\" entries, want 1", got)
	}
}

func TestSession_SendFailureDisconnects(t *testing.T) {
	conn := newMockConn("127.0.0.1:8000")
	conn.writeErr = errors.New("broken pipe")
	manager := chat.NewManager("ws://example.test/ws/1", dialerFor(conn), zaptest.NewLogger(t))
	s := chat.NewSession("1", manager)
	defer s.Close()

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !s.Submit(context.Background(), "hi") {
		t.Fatal("Submit() rejected")
	}

	snap := s.Snapshot()
	if snap.Status != chat.StatusDisconnected {
		t.Errorf("Status = %v, want %v", snap.Status, chat.StatusDisconnected)
	}
	if snap.IsStreaming {
		t.Error("IsStreaming = true after failed send")
	}
}

func TestSession_ReplyTooLarge(t *testing.T) {
	s, conn := newConnectedSession(t, chat.WithMaxReplyBytes(4))

	s.Submit(context.Background(), "hi")
	conn.push("Hello")
	eventually(t, func() bool { return conn.closeCalls.Load() == 1 }, "connection close")

	snap := s.Snapshot()
	if len(snap.Messages) != 1 {
		t.Errorf("Messages = %+v, want only the user message", snap.Messages)
	}
	if snap.Status != chat.StatusDisconnected {
		t.Errorf("Status = %v, want %v", snap.Status, chat.StatusDisconnected)
	}
	if snap.IsStreaming {
		t.Error("IsStreaming = true after oversized reply")
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s, conn := newConnectedSession(t)

	s.Submit(context.Background(), "hi")
	conn.push("He")
	eventually(t, func() bool { return s.Snapshot().Streaming == "He" }, "first fragment")

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if got := conn.closeCalls.Load(); got != 1 {
		t.Errorf("Close called %d times on the connection, want 1", got)
	}
	snap := s.Snapshot()
	if snap.Status != chat.StatusDisconnected {
		t.Errorf("Status = %v, want %v", snap.Status, chat.StatusDisconnected)
	}
	if len(snap.Messages) != 1 || snap.IsStreaming {
		t.Errorf("snapshot after Close = %+v, want user message only and not streaming", snap)
	}
}

func TestSession_CloseBeforeConnect(t *testing.T) {
	conn := newMockConn("")
	manager := chat.NewManager("ws://example.test/ws/1", dialerFor(conn), nil)
	s := chat.NewSession("1", manager)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, chat.ErrSessionClosed) {
		t.Errorf("Connect() after Close error = %v, want %v", err, chat.ErrSessionClosed)
	}
	if conn.closeCalls.Load() != 0 {
		t.Error("connection should never have been opened")
	}
}

func TestSession_Subscribe(t *testing.T) {
	s, conn := newConnectedSession(t)

	updates, cancel := s.Subscribe()
	defer cancel()

	first := <-updates
	if first.Status != chat.StatusConnected {
		t.Errorf("initial snapshot status = %v, want %v", first.Status, chat.StatusConnected)
	}

	s.Submit(context.Background(), "hi")
	conn.push("He", "llo", "[END]")

	for snap := range updates {
		if len(snap.Messages) == 2 {
			if snap.Messages[1].Text != "Hello" {
				t.Errorf("bot text = %q, want %q", snap.Messages[1].Text, "Hello")
			}
			break
		}
	}

	s.Close()
	for range updates {
	}
}

func TestSession_StoreOnlyGrows(t *testing.T) {
	s, conn := newConnectedSession(t)

	var history []chat.Message
	for _, prompt := range []string{"one", "two", "three"} {
		if !s.Submit(context.Background(), prompt) {
			t.Fatalf("Submit(%q) rejected", prompt)
		}
		conn.push("re:", prompt, "[END]")
		want := len(history) + 2
		eventually(t, func() bool { return messageCount(s) == want }, "reply to "+prompt)

		snap := s.Snapshot()
		for i, m := range history {
			if snap.Messages[i] != m {
				t.Fatalf("Messages[%d] changed from %+v to %+v", i, m, snap.Messages[i])
			}
		}
		history = snap.Messages
	}
}
