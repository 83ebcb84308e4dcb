package players

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"telestrations/internal/utility"
)

// Store holds the members of a single room keyed by connection id.
type Store struct {
	mu        sync.Mutex
	players   map[string]*Player
	nextOrder int
}

func NewStore() *Store {
	return &Store{
		players: make(map[string]*Player),
	}
}

// Add registers id under name. A second Add for the same id leaves the
// existing record untouched and reports added=false.
func (s *Store) Add(id string, name string) (player *Player, added bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[id]; ok {
		return p, false
	}
	player = &Player{
		ID:        id,
		Name:      s.uniqueNameLocked(name),
		Color:     utility.RandomColorHex(),
		JoinOrder: s.nextOrder,
		JoinedAt:  time.Now(),
	}
	s.nextOrder++
	s.players[id] = player
	return player, true
}

// uniqueNameLocked suffixes name until no current member displays it.
func (s *Store) uniqueNameLocked(name string) string {
	taken := func(candidate string) bool {
		for _, p := range s.players {
			if p.Name == candidate {
				return true
			}
		}
		return false
	}
	if !taken(name) {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

func (s *Store) Get(id string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[id]
}

func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return false
	}
	delete(s.players, id)
	return true
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.players[id]
	return exists
}

// GetList returns copies of the members in join order.
func (s *Store) GetList() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	playerList := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		playerList = append(playerList, *p)
	}
	slices.SortFunc(playerList, func(a, b Player) int {
		return a.JoinOrder - b.JoinOrder
	})
	return playerList
}

func (s *Store) Names() []string {
	list := s.GetList()
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
	}
	return names
}

func (s *Store) IDs() []string {
	list := s.GetList()
	ids := make([]string, len(list))
	for i, p := range list {
		ids[i] = p.ID
	}
	return ids
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = make(map[string]*Player)
}
