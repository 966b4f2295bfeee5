package chat

import (
	"sync"
)

// Subscriber receives session snapshots.
type Subscriber struct {
	Updates chan Snapshot
}

// Hub manages snapshot subscribers and handles broadcast.
// Presentation layers register here instead of polling the session.
type Hub struct {
	subscribers map[*Subscriber]bool
	closed      bool
	mu          sync.Mutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
	}
}

// Register adds a subscriber whose single-slot channel starts out holding
// initial. After Close, the returned subscriber's channel is already closed.
func (h *Hub) Register(initial Snapshot) *Subscriber {
	sub := &Subscriber{Updates: make(chan Snapshot, 1)}
	sub.Updates <- initial

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.Updates)
		return sub
	}
	h.subscribers[sub] = true
	return sub
}

// Unregister removes a subscriber and closes its channel.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[sub] {
		delete(h.subscribers, sub)
		close(sub.Updates)
	}
}

// SubscriberCount returns number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Broadcast delivers snap to every subscriber without blocking.
// An unread snapshot is replaced, so each subscriber sees the latest state.
func (h *Hub) Broadcast(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		select {
		case sub.Updates <- snap:
		default:
			select {
			case <-sub.Updates:
			default:
			}
			select {
			case sub.Updates <- snap:
			default:
			}
		}
	}
}

// Close closes every subscriber channel. Later registrations get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.Updates)
		delete(h.subscribers, sub)
	}
}
