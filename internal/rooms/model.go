package rooms

import (
	"fmt"
	"sync"
	"time"

	"telestrations/internal/drawings"
	"telestrations/internal/players"
)

type State int

const (
	StateCreated State = iota
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Room is one game session: its members and the drawings they submitted.
type Room struct {
	Code      string
	CreatorID string
	CreatedAt time.Time

	mu       sync.Mutex
	state    State
	maxBytes int
	members  *players.Store
	drawings *drawings.Store
}

func newRoom(code, creatorID string, maxBytes int) *Room {
	return &Room{
		Code:      code,
		CreatorID: creatorID,
		CreatedAt: time.Now(),
		state:     StateCreated,
		maxBytes:  maxBytes,
		members:   players.NewStore(),
		drawings:  drawings.NewStore(),
	}
}

func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// AddUser adds connID under username. Adding a connection that is already a
// member changes nothing.
func (r *Room) AddUser(connID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return ErrRoomDestroyed
	}
	r.members.Add(connID, username)
	r.state = StateActive
	return nil
}

// RemoveUser reports whether connID was a member.
func (r *Room) RemoveUser(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members.Remove(connID)
}

func (r *Room) HasUser(connID string) bool {
	return r.members.Has(connID)
}

func (r *Room) IsCreator(connID string) bool {
	return r.CreatorID == connID
}

func (r *Room) Len() int {
	return r.members.Count()
}

// Usernames returns member names in join order.
func (r *Room) Usernames() []string {
	return r.members.Names()
}

// Member returns connID's entry as it was made on joining: the
// deduplicated display name and the colour assigned to it.
func (r *Room) Member(connID string) (players.Player, bool) {
	p := r.members.Get(connID)
	if p == nil {
		return players.Player{}, false
	}
	return *p, true
}

// MemberIDs returns member connection ids in join order.
func (r *Room) MemberIDs() []string {
	return r.members.IDs()
}

// SaveDrawing validates dataURL and appends it to the room's drawings.
// Rounds are not enforced here: every valid submission is appended.
func (r *Room) SaveDrawing(connID, dataURL string) (drawings.Drawing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return drawings.Drawing{}, ErrRoomDestroyed
	}
	payload, err := drawings.Parse(dataURL, r.maxBytes)
	if err != nil {
		return drawings.Drawing{}, fmt.Errorf("saving drawing in room %s: %w", r.Code, err)
	}
	author := ""
	if p := r.members.Get(connID); p != nil {
		author = p.Name
	}
	return r.drawings.Append(connID, author, payload), nil
}

func (r *Room) DrawingCount() int {
	return r.drawings.Len()
}

// Replay returns a replay over the drawings submitted before the call.
func (r *Room) Replay() *drawings.Replay {
	return r.drawings.Replay()
}

func (r *Room) destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateDestroyed
	r.members.Clear()
	r.drawings.Clear()
}
