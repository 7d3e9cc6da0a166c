// Package events fans capture lifecycle events out to SSE subscribers.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 64

// Event kinds.
const (
	KindCaptureStored  = "capture.stored"
	KindCaptureFailed  = "capture.failed"
	KindCaptureDeleted = "capture.deleted"
	KindHistoryCleared = "history.cleared"
	KindArchiveExport  = "archive.exported"
	KindAutoCapture    = "auto_capture.changed"
	KindFeedLength     = "feed.length"
)

// Event is one message on the stream. Payload is JSON.
type Event struct {
	Kind    string
	Payload string
}

// Broker fans out events to all subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	dropped     atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]chan Event)}
}

// Subscribe registers a client. The channel is buffered; slow consumers
// have events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends evt to every subscriber without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Emit marshals v with a timestamp and publishes it under kind.
func (b *Broker) Emit(kind string, v any) {
	payload, err := json.Marshal(struct {
		At   time.Time `json:"at"`
		Data any       `json:"data,omitempty"`
	}{At: time.Now().UTC(), Data: v})
	if err != nil {
		slog.Warn("events: marshal failed", "kind", kind, "error", err)
		return
	}
	b.Publish(Event{Kind: kind, Payload: string(payload)})
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped is how many deliveries were skipped because a subscriber was full.
func (b *Broker) Dropped() int64 { return b.dropped.Load() }
