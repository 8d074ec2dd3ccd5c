// Package registry holds the authoritative in-memory state of rooms and
// participants. All state is ephemeral and lost on process restart.
package registry

import (
	"errors"
	"sync"

	"github.com/nextdooroldwang/sprite-house/internal/domain"
)

var (
	// ErrRoomFull rejects a join that would exceed the room's capacity.
	// The room is left unmodified.
	ErrRoomFull = errors.New("room is full")

	// ErrNotFound marks an operation referencing a connection id that is no
	// longer present. Callers treat it as a benign no-op.
	ErrNotFound = errors.New("participant not found")
)

// Info is the read-only query view of a room.
type Info struct {
	Exists       bool
	Users        []domain.Participant
	MaxUsers     int
	CurrentUsers int
}

// Departure reports a participant's removal from its previous room when a
// repeat join moves it. Remaining is nil when the room emptied and was
// deleted.
type Departure struct {
	RoomID    string
	Remaining []domain.Participant
}

// Registry is the single synchronization boundary for room state: every
// operation runs to completion under one lock, so no partial-failure state
// is ever observable.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
	index map[string]string // connection id → room id

	maxUsers int
	spawn    domain.Position
}

// New creates an empty registry. Joins insert participants at the given
// spawn position; rooms are created with the given capacity.
func New(maxUsers int, spawn domain.Position) *Registry {
	return &Registry{
		rooms:    make(map[string]*domain.Room),
		index:    make(map[string]string),
		maxUsers: maxUsers,
		spawn:    spawn,
	}
}

// Join adds a participant to the room, creating the room if it does not
// exist yet. It returns the new participant and a roster snapshot including
// them. A connection that is already in a different room is moved: removed
// from the old room first, with the departure reported so callers can
// notify that room. A join that would exceed capacity returns ErrRoomFull
// and leaves every room untouched, including the joiner's current one.
func (r *Registry) Join(roomID, connID, username, avatar string) (domain.Participant, []domain.Participant, *Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = domain.NewRoom(roomID, r.maxUsers)
	}

	prevRoomID, present := r.index[connID]
	if room.IsFull() && prevRoomID != roomID {
		return domain.Participant{}, nil, nil, ErrRoomFull
	}

	var prev *Departure
	if present {
		left, remaining := r.removeLocked(connID)
		if left != roomID {
			prev = &Departure{RoomID: left, Remaining: remaining}
		}
	}

	p := &domain.Participant{
		ID:       connID,
		Username: username,
		Avatar:   avatar,
		X:        r.spawn.X,
		Y:        r.spawn.Y,
		RoomID:   roomID,
	}
	room.Users[connID] = p
	r.rooms[roomID] = room
	r.index[connID] = roomID

	return *p, room.Roster(), prev, nil
}

// Leave removes the participant and returns the room id and the remaining
// roster. When the room becomes empty it is deleted. Leaving twice is a
// no-op returning ErrNotFound the second time.
func (r *Registry) Leave(connID string) (string, []domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[connID]; !ok {
		return "", nil, ErrNotFound
	}

	roomID, remaining := r.removeLocked(connID)
	return roomID, remaining, nil
}

// removeLocked drops the participant from its room, deleting the room when
// it empties. Caller holds r.mu and has checked the index.
func (r *Registry) removeLocked(connID string) (string, []domain.Participant) {
	roomID := r.index[connID]
	delete(r.index, connID)

	room := r.rooms[roomID]
	delete(room.Users, connID)
	if len(room.Users) == 0 {
		delete(r.rooms, roomID)
		return roomID, nil
	}
	return roomID, room.Roster()
}

// UpdatePosition overwrites the participant's position unconditionally
// (last-write-wins) and returns the room id and the updated participant.
func (r *Registry) UpdatePosition(connID string, x, y float64) (string, domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.index[connID]
	if !ok {
		return "", domain.Participant{}, ErrNotFound
	}

	p := r.rooms[roomID].Users[connID]
	p.X = x
	p.Y = y

	return roomID, *p, nil
}

// Roster returns a snapshot of the room's participants, empty for an
// unknown room.
func (r *Registry) Roster(roomID string) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return []domain.Participant{}
	}
	return room.Roster()
}

// Info returns the query view of a room. Unknown rooms report exists=false
// with an empty roster.
func (r *Registry) Info(roomID string) Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return Info{
			Exists:   false,
			Users:    []domain.Participant{},
			MaxUsers: r.maxUsers,
		}
	}

	return Info{
		Exists:       true,
		Users:        room.Roster(),
		MaxUsers:     room.MaxUsers,
		CurrentUsers: len(room.Users),
	}
}
