// Package server provides reply generators for the demo chat backend.
package server

import (
	"context"
	"time"

	"github.com/omochice/toy-stream-chat/internal/transport/ws"
	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

// Echo streams the prompt back word by word, pausing Delay between fragments.
// It ignores the session history.
type Echo struct {
	Prefix string
	Delay  time.Duration
}

// Respond implements ws.Responder.
func (e Echo) Respond(ctx context.Context, req ws.Request, emit func(string) error) error {
	for i, chunk := range protocol.Chunk(e.Prefix + req.Prompt) {
		if i > 0 && e.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.Delay):
			}
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}
