// Package relay dispatches signaling-socket events against the room
// registry and fans results out to the right connections. It holds no room
// state of its own; media never passes through it.
package relay

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/nextdooroldwang/sprite-house/internal/domain"
	"github.com/nextdooroldwang/sprite-house/internal/registry"
	"github.com/nextdooroldwang/sprite-house/lib/logger/sl"
)

// Sender is one live connection's outbound queue. Implementations must not
// block: a slow consumer drops events rather than stalling the relay.
type Sender interface {
	Send(env domain.Envelope)
}

// Relay routes inbound messages to registry calls and outbound events to
// senders. Each inbound event is handled to completion before the next one
// for the same connection.
type Relay struct {
	registry *registry.Registry
	log      *slog.Logger

	mu    sync.RWMutex
	conns map[string]Sender
}

func New(reg *registry.Registry, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		registry: reg,
		log:      log,
		conns:    make(map[string]Sender),
	}
}

// Register makes the connection addressable for roster events and forwarded
// signaling. Called by the transport layer right after the upgrade.
func (r *Relay) Register(connID string, s Sender) {
	r.mu.Lock()
	r.conns[connID] = s
	r.mu.Unlock()
}

// Disconnect handles a transport-level disconnect: the participant leaves
// its room and, if the room survives, the rest receive user-left.
func (r *Relay) Disconnect(connID string) {
	r.mu.Lock()
	delete(r.conns, connID)
	r.mu.Unlock()

	roomID, remaining, err := r.registry.Leave(connID)
	if err != nil {
		// Already gone; leaving twice is a benign no-op.
		return
	}

	r.log.Info("participant left",
		slog.String("conn_id", connID),
		slog.String("room_id", roomID),
		slog.Int("remaining", len(remaining)),
	)

	r.broadcast(remaining, connID, domain.MsgUserLeft, domain.UserLeft{ID: connID})
}

// Handle processes one decoded inbound message from connID. The inbound set
// is closed; every kind is matched here.
func (r *Relay) Handle(connID string, msg domain.Inbound) {
	switch m := msg.(type) {
	case domain.JoinRoom:
		r.handleJoin(connID, m)
	case domain.UserMove:
		r.handleMove(connID, m)
	case domain.Offer:
		m.SenderID = connID
		target := m.TargetID
		m.TargetID = ""
		r.forward(target, domain.MsgOffer, m)
	case domain.Answer:
		m.SenderID = connID
		target := m.TargetID
		m.TargetID = ""
		r.forward(target, domain.MsgAnswer, m)
	case domain.ICECandidate:
		m.SenderID = connID
		target := m.TargetID
		m.TargetID = ""
		r.forward(target, domain.MsgICECandidate, m)
	}
}

func (r *Relay) handleJoin(connID string, m domain.JoinRoom) {
	const op = "relay.join"
	m.RoomID = domain.NormalizeRoomID(m.RoomID)
	log := r.log.With(
		slog.String("op", op),
		slog.String("conn_id", connID),
		slog.String("room_id", m.RoomID),
	)

	p, roster, prev, err := r.registry.Join(m.RoomID, connID, m.Username, m.Avatar)
	if err != nil {
		if errors.Is(err, registry.ErrRoomFull) {
			log.Info("join rejected, room full")
			r.sendTo(connID, domain.MsgRoomFull, nil)
			return
		}
		log.Error("join failed", sl.Err(err))
		return
	}

	// A repeat join moved the participant; its old room sees a departure.
	if prev != nil {
		log.Info("moved from previous room", slog.String("prev_room_id", prev.RoomID))
		r.broadcast(prev.Remaining, connID, domain.MsgUserLeft, domain.UserLeft{ID: connID})
	}

	log.Info("participant joined",
		slog.String("username", p.Username),
		slog.Int("roster_size", len(roster)),
	)

	// Snapshot to the joiner, incremental notification to everyone else.
	r.sendTo(connID, domain.MsgRoomUsers, roster)
	r.broadcast(roster, connID, domain.MsgUserJoined, p)
}

func (r *Relay) handleMove(connID string, m domain.UserMove) {
	roomID, p, err := r.registry.UpdatePosition(connID, m.X, m.Y)
	if err != nil {
		// Mover raced a disconnect; nothing to update.
		return
	}

	r.broadcast(r.registry.Roster(roomID), connID, domain.MsgUserMoved, domain.UserMoved{
		ID: p.ID,
		X:  p.X,
		Y:  p.Y,
	})
}

// forward delivers a payload to a single connection. An unknown or absent
// target is a silent no-op — the target may have just disconnected, which
// is an expected race, not an error.
func (r *Relay) forward(targetID string, t domain.MessageType, payload any) {
	r.mu.RLock()
	target, ok := r.conns[targetID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	env, err := domain.NewEvent(t, payload)
	if err != nil {
		r.log.Error("encode forward", slog.String("type", string(t)), sl.Err(err))
		return
	}
	target.Send(env)
}

func (r *Relay) sendTo(connID string, t domain.MessageType, payload any) {
	r.forward(connID, t, payload)
}

func (r *Relay) broadcast(roster []domain.Participant, exclude string, t domain.MessageType, payload any) {
	env, err := domain.NewEvent(t, payload)
	if err != nil {
		r.log.Error("encode broadcast", slog.String("type", string(t)), sl.Err(err))
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range roster {
		if p.ID == exclude {
			continue
		}
		if s, ok := r.conns[p.ID]; ok {
			s.Send(env)
		}
	}
}
