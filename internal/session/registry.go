package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cmdrelay/cmdrelay/internal/protocol"
)

// Registry is the single source of truth for which sessions exist and
// which room each belongs to. The registry lock is held only long enough
// to copy a room's membership or mutate the index, never while writing to
// a session's socket: callers snapshot under the lock, release it, then do
// I/O against the snapshot.
type Registry struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
	rooms    map[string]map[uint64]*Session
	seqs     map[string]*atomic.Uint64

	nextID atomic.Uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint64]*Session),
		rooms:    make(map[string]map[uint64]*Session),
		seqs:     make(map[string]*atomic.Uint64),
	}
}

// NextID hands out a fresh, process-unique session id.
func (r *Registry) NextID() uint64 {
	return r.nextID.Add(1)
}

// Add inserts a session into both the flat index and its room's index.
func (r *Registry) Add(s *Session) {
	room := s.Room()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[uint64]*Session)
	}
	r.rooms[room][s.ID] = s
}

// Remove drops a session from the registry. If it was the last occupant of
// its room, the room (and its sequence counter) is destroyed too.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)

	room := s.Room()
	if m, ok := r.rooms[room]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(r.rooms, room)
			delete(r.seqs, room)
		}
	}
}

// Get looks up a session by id.
func (r *Registry) Get(id uint64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ByRoom returns a point-in-time snapshot of a room's occupants. Callers
// must not hold the registry lock while iterating the result — there isn't
// one to hold, the snapshot is a plain slice.
func (r *Registry) ByRoom(room string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.rooms[room]
	out := make([]*Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// All returns a snapshot of every connected session, used for shutdown
// drains.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// MoveRoom transfers a session from its current room to newRoom, updating
// both the room index and the session's own room field atomically from the
// registry's point of view.
func (r *Registry) MoveRoom(id uint64, newRoom string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("move room: unknown session %d", id)
	}
	oldRoom := s.Room()
	if oldRoom == newRoom {
		return nil
	}
	if m, ok := r.rooms[oldRoom]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(r.rooms, oldRoom)
			delete(r.seqs, oldRoom)
		}
	}
	if r.rooms[newRoom] == nil {
		r.rooms[newRoom] = make(map[uint64]*Session)
	}
	r.rooms[newRoom][id] = s
	s.setRoom(newRoom)
	return nil
}

// NextSeq returns the next value of a room's monotonic message sequence
// counter, creating the counter on first use. The first message in a room
// gets seq 0.
func (r *Registry) NextSeq(room string) uint64 {
	r.mu.Lock()
	c, ok := r.seqs[room]
	if !ok {
		c = new(atomic.Uint64)
		r.seqs[room] = c
	}
	r.mu.Unlock()
	return c.Add(1) - 1
}

// Broadcast enqueues env on every session currently in room except skip
// (typically the sender, when the envelope is echoed separately or not at
// all). The registry lock is released before any enqueue is attempted, so
// a slow or stuck session can never stall the broadcast of the rest.
func (r *Registry) Broadcast(room string, env protocol.Envelope, skip uint64) {
	for _, s := range r.ByRoom(room) {
		if s.ID == skip {
			continue
		}
		s.Enqueue(env)
	}
}
