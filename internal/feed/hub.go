// Package feed reports the length of the chat message feed. Sources (an
// in-memory list, a WebSocket endpoint, a watched transcript file, or the
// live page) publish lengths into a Hub; the auto-capture trigger and the
// event stream subscribe to it.
package feed

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 64

// Hub fans feed lengths out to subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int64]chan int
	nextID      atomic.Int64
	last        atomic.Int64
	published   atomic.Bool
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]chan int)}
}

// Subscribe registers a consumer. When a length was already published the
// channel starts with it, so a late subscriber still sees the baseline.
// Slow consumers have lengths dropped.
func (h *Hub) Subscribe() (int64, <-chan int) {
	id := h.nextID.Add(1)
	ch := make(chan int, subscriberBufSize)
	h.mu.Lock()
	if h.published.Load() {
		ch <- int(h.last.Load())
	}
	h.subscribers[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel.
func (h *Hub) Unsubscribe(id int64) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers n to every subscriber without blocking.
func (h *Hub) Publish(n int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.last.Store(int64(n))
	h.published.Store(true)
	for _, ch := range h.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

// Last returns the most recent length and whether anything was published.
func (h *Hub) Last() (int, bool) {
	return int(h.last.Load()), h.published.Load()
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
