package drawings

import (
	"sync"
	"time"
)

// Store is the append-only artifact log of one room.
type Store struct {
	mu    sync.Mutex
	items []Drawing
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Append(connID, author string, p Payload) Drawing {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := Drawing{
		Index:       len(s.items),
		ConnID:      connID,
		Author:      author,
		MediaType:   p.MediaType,
		Width:       p.Width,
		Height:      p.Height,
		Size:        p.Size,
		DataURL:     p.DataURL,
		SubmittedAt: time.Now(),
	}
	s.items = append(s.items, d)
	return d
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Snapshot returns the drawings submitted so far. Later appends are not visible
// through the returned slice.
func (s *Store) Snapshot() []Drawing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[:len(s.items):len(s.items)]
}

// Replay starts a replay over the drawings submitted so far.
func (s *Store) Replay() *Replay {
	return newReplay(s.Snapshot())
}

// Clear drops every drawing. Replays already started keep their snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}
