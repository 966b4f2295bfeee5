package chat

import "errors"

// Rejection reasons reported by Gate.Check.
var (
	ErrEmptyInput    = errors.New("input is empty")
	ErrNotConnected  = errors.New("connection is not open")
	ErrReplyInFlight = errors.New("a reply is still streaming")
)

// Gate decides whether a user send attempt is admitted.
// It is a pure filter: rejected input is neither queued nor retried.
type Gate struct{}

// Check returns nil when input may be sent, or the reason it may not.
func (Gate) Check(input string, status Status, streaming bool) error {
	switch {
	case input == "":
		return ErrEmptyInput
	case status != StatusConnected:
		return ErrNotConnected
	case streaming:
		return ErrReplyInFlight
	}
	return nil
}

// Admit reports whether Check would succeed.
func (g Gate) Admit(input string, status Status, streaming bool) bool {
	return g.Check(input, status, streaming) == nil
}
