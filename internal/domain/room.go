package domain

// Room is a capacity-bounded set of co-present participants identified by an
// opaque id. Rooms are created on first join and deleted as soon as the last
// participant leaves; an empty room is never observable.
//
// Room is not safe for concurrent use on its own — all access goes through
// the registry, which owns the synchronization boundary.
type Room struct {
	ID       string
	MaxUsers int
	Users    map[string]*Participant
}

// NewRoom constructs an empty room with the given capacity.
func NewRoom(id string, maxUsers int) *Room {
	return &Room{
		ID:       id,
		MaxUsers: maxUsers,
		Users:    make(map[string]*Participant),
	}
}

// IsFull reports whether the room has reached its capacity.
func (r *Room) IsFull() bool {
	return len(r.Users) >= r.MaxUsers
}

// Roster returns a snapshot of the room's participants. The order is not
// meaningful.
func (r *Room) Roster() []Participant {
	users := make([]Participant, 0, len(r.Users))
	for _, u := range r.Users {
		users = append(users, *u)
	}
	return users
}
