package players

import "time"

// Player is one connection's membership record inside a room.
type Player struct {
	ID        string
	Name      string
	Color     string
	JoinOrder int
	JoinedAt  time.Time
}
