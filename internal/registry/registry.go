// Package registry maps (room code, participant id) to the live connection
// serving that participant.
package registry

import (
	"log/slog"
	"sync"
)

// Conn is the outbound side of one participant connection.
type Conn interface {
	// Send queues payload for delivery without blocking.
	Send(payload []byte) error
	// Close terminates the connection. Calling it more than once is safe.
	Close()
	// Open reports whether the connection can still deliver messages.
	Open() bool
}

// Key identifies one participant in one room.
type Key struct {
	RoomCode      string
	ParticipantID string
}

// Registry tracks at most one connection per Key. Thread-safe via sync.RWMutex.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
}

func New() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]Conn),
	}
}

// Put stores conn for key. A different, still open connection already held
// for key is closed first.
func (r *Registry) Put(key Key, conn Conn) {
	r.mu.Lock()
	participants := r.rooms[key.RoomCode]
	if participants == nil {
		participants = make(map[string]Conn)
		r.rooms[key.RoomCode] = participants
	}
	prior := participants[key.ParticipantID]
	participants[key.ParticipantID] = conn
	r.mu.Unlock()

	if prior != nil && prior != conn && prior.Open() {
		slog.Debug("registry: replacing connection", "room", key.RoomCode, "participant", key.ParticipantID)
		prior.Close()
	}
	slog.Debug("registry: registered", "room", key.RoomCode, "participant", key.ParticipantID)
}

// Get returns the connection registered for key.
func (r *Registry) Get(key Key) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rooms[key.RoomCode][key.ParticipantID]
	return c, ok
}

// Has reports whether any connection is registered for key.
func (r *Registry) Has(key Key) bool {
	_, ok := r.Get(key)
	return ok
}

// Remove drops the entry for key and reports whether one existed.
func (r *Registry) Remove(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(key)
}

// CompareAndRemove drops the entry for key only if it is still conn.
// It reports whether the entry was removed.
func (r *Registry) CompareAndRemove(key Key, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rooms[key.RoomCode][key.ParticipantID]; !ok || cur != conn {
		return false
	}
	return r.removeLocked(key)
}

func (r *Registry) removeLocked(key Key) bool {
	participants := r.rooms[key.RoomCode]
	if _, ok := participants[key.ParticipantID]; !ok {
		return false
	}
	delete(participants, key.ParticipantID)
	if len(participants) == 0 {
		delete(r.rooms, key.RoomCode)
	}
	slog.Debug("registry: unregistered", "room", key.RoomCode, "participant", key.ParticipantID)
	return true
}

// ForRoom returns a snapshot of every connection registered in roomCode.
func (r *Registry) ForRoom(roomCode string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participants := r.rooms[roomCode]
	conns := make([]Conn, 0, len(participants))
	for _, c := range participants {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast queues payload on every open connection in roomCode and returns
// how many accepted it. Per-recipient failures are logged and skipped.
func (r *Registry) Broadcast(roomCode string, payload []byte) int {
	sent := 0
	for _, c := range r.ForRoom(roomCode) {
		if !c.Open() {
			continue
		}
		if err := c.Send(payload); err != nil {
			slog.Debug("registry: broadcast send failed", "room", roomCode, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Active reports whether roomCode has at least one registered connection.
func (r *Registry) Active(roomCode string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomCode]) > 0
}

// ConnCount returns the number of connections registered in roomCode.
func (r *Registry) ConnCount(roomCode string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomCode])
}

// RoomCount returns the number of rooms with at least one connection.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
