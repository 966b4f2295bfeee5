// Package transcript exports a finished conversation as protobuf JSON.
//
// The export is write-only from the client's point of view: a session never
// reloads it.
package transcript

import (
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/toy-stream-chat/internal/chat"
)

// ErrMalformed is returned by Decode for documents missing required fields.
var ErrMalformed = errors.New("malformed transcript")

// Transcript is one exported conversation.
type Transcript struct {
	SessionID  string
	ExportedAt time.Time
	Messages   []chat.Message
}

// Encode renders t as indented protobuf JSON (a google.protobuf.Struct).
func Encode(t Transcript) ([]byte, error) {
	messages := make([]any, 0, len(t.Messages))
	for _, m := range t.Messages {
		messages = append(messages, map[string]any{
			"sender": m.Sender.String(),
			"text":   m.Text,
		})
	}

	doc, err := structpb.NewStruct(map[string]any{
		"session_id":  t.SessionID,
		"exported_at": t.ExportedAt.UTC().Format(time.RFC3339),
		"messages":    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}

	data, err := protojson.MarshalOptions{Multiline: true}.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript: %w", err)
	}
	return data, nil
}

// Decode parses a document produced by Encode.
func Decode(data []byte) (Transcript, error) {
	doc := &structpb.Struct{}
	if err := protojson.Unmarshal(data, doc); err != nil {
		return Transcript{}, fmt.Errorf("failed to decode transcript: %w", err)
	}

	fields := doc.GetFields()
	t := Transcript{SessionID: fields["session_id"].GetStringValue()}
	if t.SessionID == "" {
		return Transcript{}, fmt.Errorf("%w: missing session_id", ErrMalformed)
	}

	exportedAt, err := time.Parse(time.RFC3339, fields["exported_at"].GetStringValue())
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: exported_at: %v", ErrMalformed, err)
	}
	t.ExportedAt = exportedAt

	for i, v := range fields["messages"].GetListValue().GetValues() {
		entry := v.GetStructValue().GetFields()
		var sender chat.Sender
		switch entry["sender"].GetStringValue() {
		case chat.SenderUser.String():
			sender = chat.SenderUser
		case chat.SenderBot.String():
			sender = chat.SenderBot
		default:
			return Transcript{}, fmt.Errorf("%w: message %d has unknown sender", ErrMalformed, i)
		}
		t.Messages = append(t.Messages, chat.Message{Sender: sender, Text: entry["text"].GetStringValue()})
	}
	return t, nil
}

// WriteFile encodes t and writes it to path.
func WriteFile(path string, t Transcript) error {
	data, err := Encode(t)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
