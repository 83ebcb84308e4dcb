package rooms

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"telestrations/internal/drawings"
)

// Reason records why a room was destroyed.
type Reason string

const (
	ReasonCreatorLeft Reason = "creator_left"
	ReasonEmpty       Reason = "empty"
	ReasonRemoved     Reason = "removed"
	ReasonSwept       Reason = "swept"
)

type Config struct {
	MaxDrawingBytes int
}

func DefaultConfig() Config {
	return Config{MaxDrawingBytes: drawings.DefaultMaxBytes}
}

// LeaveResult describes the effect of one connection leaving one room.
type LeaveResult struct {
	RoomCode  string
	WasMember bool
	Destroyed bool
	Reason    Reason
	// Remaining holds the members left behind when the room was destroyed.
	Remaining []string
}

// Store is the room directory. Every key in rooms equals its Room's Code.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
	cfg   Config
}

func NewStore(cfg Config) *Store {
	return &Store{
		rooms: make(map[string]*Room),
		cfg:   cfg,
	}
}

// Create registers a room under code with the creator as its first member.
// An existing code is rejected with ErrRoomExists.
func (s *Store) Create(code, creatorID, username string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(code, creatorID, username)
}

// CreateWithCode is Create with a freshly generated code.
func (s *Store) CreateWithCode(creatorID, username string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Try up to 10 times to generate a unique code
	for range 10 {
		code, err := GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("generating room code: %w", err)
		}
		if _, exists := s.rooms[code]; exists {
			continue
		}
		return s.createLocked(code, creatorID, username)
	}
	return nil, fmt.Errorf("failed to generate unique room code after 10 attempts")
}

func (s *Store) createLocked(code, creatorID, username string) (*Room, error) {
	if _, exists := s.rooms[code]; exists {
		return nil, fmt.Errorf("creating room %s: %w", code, ErrRoomExists)
	}
	room := newRoom(code, creatorID, s.cfg.MaxDrawingBytes)
	if err := room.AddUser(creatorID, username); err != nil {
		return nil, err
	}
	s.rooms[code] = room
	return room, nil
}

func (s *Store) Get(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[code]
}

// Remove destroys the room. Removing an absent code is a no-op.
func (s *Store) Remove(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(code)
}

func (s *Store) removeLocked(code string) bool {
	room, ok := s.rooms[code]
	if !ok {
		return false
	}
	delete(s.rooms, code)
	room.destroy()
	return true
}

// RemoveEmpty destroys every room without members and returns their codes.
func (s *Store) RemoveEmpty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []string
	for code, room := range s.rooms {
		if room.Len() == 0 {
			s.removeLocked(code)
			removed = append(removed, code)
		}
	}
	slices.Sort(removed)
	return removed
}

// Leave removes connID from the room. The room is destroyed when the leaver
// created it or nobody is left.
func (s *Store) Leave(code, connID string) (LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return LeaveResult{}, fmt.Errorf("leaving room %s: %w", code, ErrRoomNotFound)
	}
	return s.leaveLocked(room, connID), nil
}

// RemoveUserFromAllRooms applies Leave to every room connID belongs to.
func (s *Store) RemoveUserFromAllRooms(connID string) []LeaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []LeaveResult
	for _, room := range s.sortedLocked() {
		if !room.HasUser(connID) {
			continue
		}
		results = append(results, s.leaveLocked(room, connID))
	}
	return results
}

func (s *Store) leaveLocked(room *Room, connID string) LeaveResult {
	res := LeaveResult{RoomCode: room.Code}
	res.WasMember = room.RemoveUser(connID)
	switch {
	case room.IsCreator(connID):
		res.Reason = ReasonCreatorLeft
	case room.Len() == 0:
		res.Reason = ReasonEmpty
	default:
		return res
	}
	res.Remaining = room.MemberIDs()
	res.Destroyed = s.removeLocked(room.Code)
	return res
}

// AllUsernames flattens member names across rooms, oldest room first.
func (s *Store) AllUsernames() []string {
	names := []string{}
	for _, room := range s.List() {
		names = append(names, room.Usernames()...)
	}
	return names
}

// UsernamesInRoom returns an empty slice for an unknown code.
func (s *Store) UsernamesInRoom(code string) []string {
	room := s.Get(code)
	if room == nil {
		return []string{}
	}
	return room.Usernames()
}

func (s *Store) HostOf(code string) (string, bool) {
	room := s.Get(code)
	if room == nil {
		return "", false
	}
	return room.CreatorID, true
}

// List returns live rooms, oldest first.
func (s *Store) List() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []*Room {
	list := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r)
	}
	slices.SortFunc(list, func(a, b *Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return list
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Clear destroys every room.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code := range s.rooms {
		s.removeLocked(code)
	}
}
