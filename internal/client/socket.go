// Package client implements one participant's side of the virtual room:
// the signaling socket, the per-remote peer link mesh, and presence sync.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/nextdooroldwang/sprite-house/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Socket manages the WebSocket connection to the signaling server. Incoming
// frames are decoded into domain events and delivered on Events(); outbound
// sends are serialized by a mutex.
type Socket struct {
	conn   *websocket.Conn
	events chan domain.Event

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the signaling server and starts the read pump.
// The URL should point at the /ws endpoint, e.g. ws://localhost:3301/ws.
func Dial(ctx context.Context, url string) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to signaling server: %w", err)
	}

	s := &Socket{
		conn:   conn,
		events: make(chan domain.Event, 32),
		done:   make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go s.readPump()
	go s.pingLoop()

	return s, nil
}

// Events returns the stream of decoded server events. The channel closes
// when the connection dies.
func (s *Socket) Events() <-chan domain.Event {
	return s.events
}

// Done is closed when the socket has shut down.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Close tears the connection down. Safe to call from any state, idempotent.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *Socket) readPump() {
	defer func() {
		s.Close()
		close(s.events)
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		ev, err := domain.ParseEvent(raw)
		if err != nil {
			// Unknown or malformed frames are dropped, not fatal.
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Socket) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Socket) send(t domain.MessageType, payload any) error {
	env, err := domain.NewEvent(t, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(env)
}

// Join asks to enter a room with the given profile.
func (s *Socket) Join(roomID, username, avatar string) error {
	return s.send(domain.MsgJoinRoom, domain.JoinRoom{
		RoomID:   roomID,
		Username: username,
		Avatar:   avatar,
	})
}

// SendMove reports the local position.
func (s *Socket) SendMove(x, y float64) error {
	return s.send(domain.MsgUserMove, domain.UserMove{X: x, Y: y})
}

// SendOffer relays an SDP offer to the target participant.
func (s *Socket) SendOffer(targetID string, sdp webrtc.SessionDescription) error {
	return s.send(domain.MsgOffer, domain.Offer{TargetID: targetID, Offer: sdp})
}

// SendAnswer relays an SDP answer to the target participant.
func (s *Socket) SendAnswer(targetID string, sdp webrtc.SessionDescription) error {
	return s.send(domain.MsgAnswer, domain.Answer{TargetID: targetID, Answer: sdp})
}

// SendCandidate relays one trickled ICE candidate to the target participant.
func (s *Socket) SendCandidate(targetID string, cand webrtc.ICECandidateInit) error {
	return s.send(domain.MsgICECandidate, domain.ICECandidate{TargetID: targetID, Candidate: cand})
}
