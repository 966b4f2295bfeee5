package chat

import (
	"errors"
	"strings"

	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

// ErrReplyTooLarge is returned by Feed when a fragment would grow the
// reply past the configured limit.
var ErrReplyTooLarge = errors.New("reply exceeds maximum size")

// Aggregator accumulates reply fragments into a single bot Message.
// It owns the stream buffer and the streaming flag; at most one reply is
// in flight at a time.
type Aggregator struct {
	buf       strings.Builder
	streaming bool
	maxBytes  int
}

// NewAggregator creates an Aggregator. maxBytes <= 0 disables the size limit.
func NewAggregator(maxBytes int) *Aggregator {
	return &Aggregator{maxBytes: maxBytes}
}

// Begin clears any previous buffer content and marks a reply as outstanding.
func (a *Aggregator) Begin() {
	a.buf.Reset()
	a.streaming = true
}

// Feed applies one inbound frame.
// For a content fragment it appends verbatim and returns ok == false.
// For the end marker it returns the finished bot Message with ok == true
// and resets the buffer. An empty buffer still yields a Message.
func (a *Aggregator) Feed(frame string) (msg Message, ok bool, err error) {
	if protocol.Classify(frame) == protocol.FrameEnd {
		msg = Message{Sender: SenderBot, Text: a.buf.String()}
		a.buf.Reset()
		a.streaming = false
		return msg, true, nil
	}

	if a.maxBytes > 0 && a.buf.Len()+len(frame) > a.maxBytes {
		return Message{}, false, ErrReplyTooLarge
	}
	a.buf.WriteString(frame)
	a.streaming = true
	return Message{}, false, nil
}

// Abandon discards a partial reply without producing a Message.
func (a *Aggregator) Abandon() {
	a.buf.Reset()
	a.streaming = false
}

// Streaming reports whether a reply is outstanding.
func (a *Aggregator) Streaming() bool {
	return a.streaming
}

// Buffer returns the reply content received so far.
func (a *Aggregator) Buffer() string {
	return a.buf.String()
}
