package feed

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Message types.
const (
	TypeText  = "text"
	TypeImage = "image"
)

// Message is one mocked chat message. Sender 1 is the other party and
// sender 2 is the phone owner.
type Message struct {
	ID      int64  `json:"id"`
	Sender  int    `json:"sender"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Time    string `json:"time"`
	Read    bool   `json:"read"`
}

// Validate checks the fields the editor requires.
func (m Message) Validate() error {
	switch m.Type {
	case TypeText:
		if strings.TrimSpace(m.Content) == "" {
			return errors.New("text message content is required")
		}
	case TypeImage:
		if m.Content == "" {
			return errors.New("image message content is required")
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	if m.Sender != 1 && m.Sender != 2 {
		return fmt.Errorf("sender must be 1 or 2, got %d", m.Sender)
	}
	return nil
}

// Memory is an in-process message list that publishes its length to a Hub
// after every change.
type Memory struct {
	hub *Hub

	mu     sync.RWMutex
	msgs   []Message
	nextID int64
}

// NewMemory returns an empty list and publishes its length of 0.
func NewMemory(hub *Hub) *Memory {
	m := &Memory{hub: hub}
	hub.Publish(0)
	return m
}

// Append adds m, assigning an ID when it has none. Only the owner's
// messages can be marked read.
func (m *Memory) Append(msg Message) (Message, error) {
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	if msg.Sender != 2 {
		msg.Read = false
	}

	m.mu.Lock()
	if msg.ID == 0 {
		m.nextID = max(m.nextID+1, time.Now().UnixMilli())
		msg.ID = m.nextID
	}
	m.msgs = append(m.msgs, msg)
	n := len(m.msgs)
	m.mu.Unlock()

	m.hub.Publish(n)
	return msg, nil
}

// Delete removes the message with id.
func (m *Memory) Delete(id int64) bool {
	m.mu.Lock()
	idx := -1
	for i, msg := range m.msgs {
		if msg.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return false
	}
	m.msgs = append(m.msgs[:idx], m.msgs[idx+1:]...)
	n := len(m.msgs)
	m.mu.Unlock()

	m.hub.Publish(n)
	return true
}

// Replace swaps the whole list, as a client that owns the feed does when it
// pushes its current state.
func (m *Memory) Replace(msgs []Message) error {
	for i, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	m.mu.Lock()
	m.msgs = append([]Message(nil), msgs...)
	n := len(m.msgs)
	m.mu.Unlock()

	m.hub.Publish(n)
	return nil
}

func (m *Memory) Messages() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message(nil), m.msgs...)
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.msgs)
}
