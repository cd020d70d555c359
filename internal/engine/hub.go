package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Hub fans tick results out to subscribers. Sends never block: a
// subscriber whose buffer is full misses that tick.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]chan *TickResult
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer results.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[uuid.UUID]chan *TickResult), buffer: buffer}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() (uuid.UUID, <-chan *TickResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New()
	ch := make(chan *TickResult, h.buffer)
	h.subs[id] = ch
	return id, ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		close(ch)
		delete(h.subs, id)
	}
}

// Publish delivers res to every subscriber with room in its buffer.
func (h *Hub) Publish(res *TickResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- res:
		default:
		}
	}
}

// Len returns the number of subscribers. A nil hub has none.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
