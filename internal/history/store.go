// Package history keeps the in-memory, ordered list of captured screenshots.
package history

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// Screenshot is one captured still. It is never modified after Add.
type Screenshot struct {
	ID         string    `json:"id"`
	Payload    string    `json:"-"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	PixelRatio float64   `json:"pixel_ratio"`
	ScrollTop  float64   `json:"scroll_top"`
	Bubbles    int       `json:"bubbles"`
	SizeBytes  int       `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Bytes decodes the PNG held in Payload.
func (s Screenshot) Bytes() ([]byte, error) {
	data, _, err := DecodeDataURL(s.Payload)
	return data, err
}

// NewID returns a time-ordered UUIDv7 string.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ValidID reports whether id is a lowercase canonical UUID.
func ValidID(id string) bool {
	return uuidRe.MatchString(id)
}

// Store is an ordered, append-only-with-removal collection of screenshots.
type Store struct {
	mu    sync.RWMutex
	items []Screenshot
	index map[string]int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Add appends s. Invalid or duplicate IDs are rejected.
func (s *Store) Add(shot Screenshot) (Screenshot, error) {
	if !ValidID(shot.ID) {
		return Screenshot{}, fmt.Errorf("history: invalid screenshot id: %q", shot.ID)
	}
	if shot.CreatedAt.IsZero() {
		shot.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[shot.ID]; ok {
		return Screenshot{}, fmt.Errorf("history: duplicate screenshot id: %s", shot.ID)
	}
	s.index[shot.ID] = len(s.items)
	s.items = append(s.items, shot)
	return shot, nil
}

// Remove deletes the screenshot with id. Unknown ids are a no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ID] = j
	}
	return true
}

// Clear removes everything and returns how many entries were dropped.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.items)
	s.items = nil
	s.index = make(map[string]int)
	return n
}

func (s *Store) Get(id string) (Screenshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return Screenshot{}, false
	}
	return s.items[i], true
}

// List returns a copy of all screenshots in insertion order.
func (s *Store) List() []Screenshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Screenshot, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Position returns the 1-based position of id, or 0 when absent.
func (s *Store) Position(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return 0
	}
	return i + 1
}
