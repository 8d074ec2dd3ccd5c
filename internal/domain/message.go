package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v3"
)

// MessageType identifies the kind of message on the signaling socket.
type MessageType string

// Client → server kinds. The three WebRTC kinds are reused server → client
// on delivery, with the sender id attached.
const (
	MsgJoinRoom     MessageType = "join-room"
	MsgUserMove     MessageType = "user-move"
	MsgOffer        MessageType = "webrtc-offer"
	MsgAnswer       MessageType = "webrtc-answer"
	MsgICECandidate MessageType = "webrtc-ice-candidate"
)

// Server → client kinds. "connected" is transport-level: it hands the client
// its freshly assigned connection id before any room interaction.
const (
	MsgConnected  MessageType = "connected"
	MsgRoomUsers  MessageType = "room-users"
	MsgUserJoined MessageType = "user-joined"
	MsgUserMoved  MessageType = "user-moved"
	MsgUserLeft   MessageType = "user-left"
	MsgRoomFull   MessageType = "room-full"
)

// ErrUnknownMessage is returned for a message type outside the closed set.
var ErrUnknownMessage = errors.New("unknown message type")

// Envelope is the JSON frame exchanged on the signaling socket.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an envelope with a marshalled payload. A nil payload
// produces an envelope with no data (e.g. room-full).
func NewEvent(t MessageType, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	env.Data = data
	return env, nil
}

// Inbound is the closed set of client-originated messages. The relay matches
// it exhaustively, so adding a signaling kind is a compile-time-checked
// change.
type Inbound interface {
	inbound()
}

// JoinRoom asks to enter a room with the given profile.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// UserMove reports the sender's latest position.
type UserMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Offer carries an SDP offer toward TargetID. On delivery the relay clears
// TargetID and stamps SenderID.
type Offer struct {
	TargetID string                    `json:"targetId,omitempty"`
	SenderID string                    `json:"senderId,omitempty"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

// Answer carries an SDP answer toward TargetID.
type Answer struct {
	TargetID string                    `json:"targetId,omitempty"`
	SenderID string                    `json:"senderId,omitempty"`
	Answer   webrtc.SessionDescription `json:"answer"`
}

// ICECandidate carries one trickled ICE candidate toward TargetID.
type ICECandidate struct {
	TargetID  string                  `json:"targetId,omitempty"`
	SenderID  string                  `json:"senderId,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

func (JoinRoom) inbound()     {}
func (UserMove) inbound()     {}
func (Offer) inbound()        {}
func (Answer) inbound()       {}
func (ICECandidate) inbound() {}

// Event is the closed set of server-originated messages, the mirror of
// Inbound for the client side.
type Event interface {
	event()
}

// Connected delivers the connection id assigned by the transport layer.
type Connected struct {
	ID string `json:"id"`
}

// RoomUsers is the full roster snapshot sent to a joiner.
type RoomUsers []Participant

// UserJoined notifies existing room members about a new participant.
type UserJoined Participant

// UserMoved is broadcast to the rest of the room after a position update.
type UserMoved struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// UserLeft is broadcast to the room when a participant disconnects.
type UserLeft struct {
	ID string `json:"id"`
}

// RoomFull rejects a join against a room at capacity.
type RoomFull struct{}

func (Connected) event()    {}
func (RoomUsers) event()    {}
func (UserJoined) event()   {}
func (UserMoved) event()    {}
func (UserLeft) event()     {}
func (RoomFull) event()     {}
func (Offer) event()        {}
func (Answer) event()       {}
func (ICECandidate) event() {}

// ParseInbound decodes a raw frame into one of the Inbound kinds.
func ParseInbound(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		msg Inbound
		err error
	)
	switch env.Type {
	case MsgJoinRoom:
		var m JoinRoom
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgUserMove:
		var m UserMove
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgOffer:
		var m Offer
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgAnswer:
		var m Answer
		err = json.Unmarshal(env.Data, &m)
		msg = m
	case MsgICECandidate:
		var m ICECandidate
		err = json.Unmarshal(env.Data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return msg, nil
}

// ParseEvent decodes a raw frame into one of the Event kinds.
func ParseEvent(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case MsgConnected:
		var e Connected
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case MsgRoomUsers:
		var e RoomUsers
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case MsgUserJoined:
		var e UserJoined
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case MsgUserMoved:
		var e UserMoved
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case MsgUserLeft:
		var e UserLeft
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case MsgRoomFull:
		ev = RoomFull{}
	case MsgOffer:
		var e Offer
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case MsgAnswer:
		var e Answer
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case MsgICECandidate:
		var e ICECandidate
		err = json.Unmarshal(env.Data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return ev, nil
}
