package chat

// Sender identifies who produced a Message
type Sender int

const (
	SenderUser Sender = iota
	SenderBot
)

// String returns the string representation of Sender
func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "user"
	case SenderBot:
		return "bot"
	default:
		return "unknown"
	}
}

// Message is one completed turn in the conversation.
// Text is never partial once the message is stored.
type Message struct {
	Sender Sender
	Text   string
}

// Status is the lifecycle state of the session connection
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Snapshot is the read state handed to presentation layers.
type Snapshot struct {
	Messages    []Message
	Streaming   string
	IsStreaming bool
	Status      Status
}
