package domain

// Participant is one live connection's presence record within a room.
// The ID is the transport connection id: unique per live connection and
// never reused while the connection is open, but not stable across
// reconnects — a participant who reconnects is a brand-new identity.
type Participant struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Avatar   string  `json:"avatar"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	RoomID   string  `json:"-"`
}

// Position is a point on the shared floor. Positions are last-write-wins
// and never validated against movement speed or bounds on the server.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
