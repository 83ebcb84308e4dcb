// Package registry remembers which room each live connection is in.
package registry

import "sync"

type Registry struct {
	mu    sync.RWMutex
	rooms map[string]string
}

func New() *Registry {
	return &Registry{rooms: make(map[string]string)}
}

// Bind records connID as being in roomCode, replacing any previous room.
func (r *Registry) Bind(connID, roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[connID] = roomCode
}

func (r *Registry) Lookup(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.rooms[connID]
	return code, ok
}

func (r *Registry) Forget(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, connID)
}

// ForgetRoom drops every connection bound to roomCode and returns their ids.
func (r *Registry) ForgetRoom(roomCode string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, code := range r.rooms {
		if code == roomCode {
			delete(r.rooms, id)
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
