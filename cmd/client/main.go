package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/toy-stream-chat/internal/chat"
	"github.com/omochice/toy-stream-chat/internal/config"
	"github.com/omochice/toy-stream-chat/internal/logging"
	"github.com/omochice/toy-stream-chat/internal/transcript"
	"github.com/omochice/toy-stream-chat/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	serverAddr := flag.String("server", "", "Chat backend address (e.g., ws://localhost:8000)")
	sessionID := flag.String("session", "", "Session id (random when empty)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	transcriptPath := flag.String("transcript", "", "Write the conversation to this file on exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *serverAddr != "" {
		cfg.Server = *serverAddr
	}
	if *sessionID != "" {
		cfg.SessionID = *sessionID
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *transcriptPath != "" {
		cfg.Transcript = *transcriptPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	endpoint, err := cfg.Endpoint()
	if err != nil {
		logger.Fatal("failed to build endpoint", zap.Error(err))
	}

	if err := run(cfg, endpoint, logger); err != nil {
		logger.Error("session ended with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, endpoint string, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer := ws.NewDialer(cfg.DialTimeout)
	dialer.ReadLimit = int64(cfg.MaxReplyBytes)
	manager := chat.NewManager(endpoint, dialer, logger)
	session := chat.NewSession(cfg.SessionID, manager,
		chat.WithLogger(logger),
		chat.WithMaxReplyBytes(cfg.MaxReplyBytes),
	)
	defer session.Close()

	updates, unsubscribe := session.Subscribe()
	defer unsubscribe()
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		newRenderer(os.Stdout).run(updates)
	}()

	if err := session.Connect(ctx); err != nil {
		session.Close()
		<-rendered
		return err
	}

	fmt.Println("Type your messages (or 'quit' to exit):")

	done := make(chan struct{})
	defer close(done)
	lines := readLines(os.Stdin, done, logger)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "quit" || text == "exit" {
				break loop
			}
			if !session.Submit(ctx, text) {
				fmt.Fprintln(os.Stderr, "(not sent: waiting for a reply or disconnected)")
			}
		}
	}

	snap := session.Snapshot()
	session.Close()
	<-rendered

	if cfg.Transcript != "" {
		t := transcript.Transcript{
			SessionID:  session.ID(),
			ExportedAt: time.Now(),
			Messages:   snap.Messages,
		}
		if err := transcript.WriteFile(cfg.Transcript, t); err != nil {
			return err
		}
		logger.Info("transcript written", zap.String("path", cfg.Transcript), zap.Int("messages", len(snap.Messages)))
	}
	return nil
}

// readLines delivers input lines until r is exhausted or done is closed.
// The returned channel is closed when the reader goroutine exits.
func readLines(r io.Reader, done <-chan struct{}, logger *zap.Logger) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			logger.Warn("error reading input", zap.Error(err))
		}
	}()
	return lines
}
