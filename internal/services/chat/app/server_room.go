package server

import (
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
)

// roomArena owns every live room. Lock order is arena then room.
type roomArena struct {
	mu    deadlock.Mutex
	rooms map[string]*room
}

func newRoomArena() *roomArena {
	return &roomArena{rooms: make(map[string]*room)}
}

// acquire returns the live room for id, creating it when absent or closed.
func (a *roomArena) acquire(id string) *room {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.rooms[id]; ok && !existing.closed.Load() {
		return existing
	}
	created := newRoom(id)
	a.rooms[id] = created
	return created
}

// lookup returns the live room for id without creating one.
func (a *roomArena) lookup(id string) *room {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.rooms[id]
	if !ok || existing.closed.Load() {
		return nil
	}
	return existing
}

// release drops r from the arena if it is still the registered room for its id.
func (a *roomArena) release(r *room) {
	a.mu.Lock()
	if current, ok := a.rooms[r.id]; ok && current == r {
		delete(a.rooms, r.id)
	}
	a.mu.Unlock()
}

func (a *roomArena) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rooms)
}

// room is the in-memory membership of one roomId. A closed room never
// accepts members again.
type room struct {
	mu      deadlock.Mutex
	id      string
	members []*Conn
	closed  atomic.Bool
}

func newRoom(id string) *room {
	return &room{id: id}
}

// add appends c. Callers hold r.mu.
func (r *room) add(c *Conn) {
	r.members = append(r.members, c)
}

// remove drops c and reports whether the room is now empty. Callers hold r.mu.
func (r *room) remove(c *Conn) bool {
	for i, member := range r.members {
		if member == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	if len(r.members) == 0 {
		r.closed.Store(true)
		return true
	}
	return false
}

// usersInRoom lists distinct Phantom IDs in join order. Callers hold r.mu.
func (r *room) usersInRoom() []string {
	users := make([]string, 0, len(r.members))
	seen := make(map[string]struct{}, len(r.members))
	for _, member := range r.members {
		if _, ok := seen[member.phantomID]; ok {
			continue
		}
		seen[member.phantomID] = struct{}{}
		users = append(users, member.phantomID)
	}
	return users
}

// broadcast enqueues frame on every member except skip. Callers hold r.mu.
func (r *room) broadcast(frame wsFrame, skip *Conn) {
	for _, member := range r.members {
		if member == skip {
			continue
		}
		member.send(frame)
	}
}
