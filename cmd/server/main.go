package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/toy-stream-chat/internal/logging"
	"github.com/omochice/toy-stream-chat/internal/server"
	"github.com/omochice/toy-stream-chat/internal/transport/ws"
)

func main() {
	// Parse command-line flags
	addr := flag.String("addr", ":8000", "Address to listen on (e.g., :8000)")
	delay := flag.Duration("delay", 50*time.Millisecond, "Pause between streamed fragments")
	prefix := flag.String("prefix", "", "Text prepended to every echoed reply")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	responderName := flag.String("responder", "echo", "Reply generator: echo or ollama")
	ollamaHost := flag.String("ollama-host", os.Getenv("OLLAMA_HOST"), "Ollama server URL (default "+server.DefaultOllamaHost+")")
	ollamaModel := flag.String("ollama-model", "", "Ollama model to chat with")
	systemPrompt := flag.String("system-prompt", "", "System prompt sent with every Ollama request")
	flag.Parse()

	logger, err := logging.New(*logLevel, false)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	var responder ws.Responder
	switch *responderName {
	case "echo":
		responder = server.Echo{Prefix: *prefix, Delay: *delay}
	case "ollama":
		o, err := server.NewOllama(*ollamaHost, *ollamaModel, *systemPrompt)
		if err != nil {
			logger.Fatal("failed to create ollama responder", zap.Error(err))
		}
		responder = o
	default:
		logger.Fatal("unknown responder", zap.String("responder", *responderName))
	}

	srv := ws.NewServer(*addr, responder, logger)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting streaming chat server", zap.String("addr", *addr), zap.String("responder", *responderName))
		errChan <- srv.Start()
	}()

	// Wait for either error or shutdown signal
	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		srv.Stop()
	}

	logger.Info("server stopped")
}
