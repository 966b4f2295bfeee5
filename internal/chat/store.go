package chat

// Store is the append-only record of completed turns.
// Insertion order is temporal order and display order.
type Store struct {
	messages []Message
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Append adds msg to the end of the conversation.
func (s *Store) Append(msg Message) {
	s.messages = append(s.messages, msg)
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	return len(s.messages)
}

// Messages returns a copy of the conversation in order.
func (s *Store) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}
