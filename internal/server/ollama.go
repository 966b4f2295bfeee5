package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/omochice/toy-stream-chat/internal/chat"
	"github.com/omochice/toy-stream-chat/internal/transport/ws"
)

// DefaultOllamaHost is the address of a local Ollama server.
const DefaultOllamaHost = "http://localhost:11434"

// Ollama streams replies from a model served by Ollama. The session history
// is sent with every request, so the model sees the whole conversation.
type Ollama struct {
	model        string
	systemPrompt string

	client *api.Client
}

// NewOllama creates an Ollama responder for the given host URL and model.
func NewOllama(host, model, systemPrompt string) (*Ollama, error) {
	if model == "" {
		return nil, errors.New("ollama model is required")
	}
	if host == "" {
		host = DefaultOllamaHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return &Ollama{
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
	}, nil
}

// Respond implements ws.Responder.
func (o *Ollama) Respond(ctx context.Context, req ws.Request, emit func(string) error) error {
	stream := true
	chatReq := api.ChatRequest{
		Model:    o.model,
		Messages: o.messages(req),
		Stream:   &stream,
	}

	err := o.client.Chat(ctx, &chatReq, func(res api.ChatResponse) error {
		if res.Message.Content == "" {
			return nil
		}
		return emit(res.Message.Content)
	})
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	return nil
}

func (o *Ollama) messages(req ws.Request) []api.Message {
	msgs := make([]api.Message, 0, len(req.History)+2)
	if o.systemPrompt != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: o.systemPrompt})
	}
	for _, m := range req.History {
		role := "user"
		if m.Sender == chat.SenderBot {
			role = "assistant"
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Text})
	}
	return append(msgs, api.Message{Role: "user", Content: req.Prompt})
}
