package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextdooroldwang/sprite-house/internal/domain"
)

// ErrRoomFull is returned by Run when the join is rejected.
var ErrRoomFull = errors.New("room is full")

// Config holds everything one participant needs to enter a room.
type Config struct {
	ServerURL string
	RoomID    string
	Username  string
	Avatar    string

	STUNServers       []string
	MoveInterval      time.Duration
	InterpolateWindow time.Duration
}

// Session is one participant's complete client core: signaling socket, peer
// link mesh, and presence sync. Construct it, optionally attach a capture
// source and remote-track handler, then Run.
type Session struct {
	cfg Config
	log *slog.Logger

	interp *Interpolator
	mover  *Mover

	mu      sync.Mutex
	sock    *Socket
	coord   *Coordinator
	selfID  string
	capture CaptureSource
	onTrack RemoteTrackHandler
}

func NewSession(cfg Config, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MoveInterval == 0 {
		cfg.MoveInterval = 50 * time.Millisecond
	}
	if cfg.InterpolateWindow == 0 {
		cfg.InterpolateWindow = 100 * time.Millisecond
	}
	if len(cfg.STUNServers) == 0 {
		cfg.STUNServers = []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		}
	}

	s := &Session{
		cfg:    cfg,
		log:    log,
		interp: NewInterpolator(cfg.InterpolateWindow),
	}
	s.mover = NewMover(s, cfg.MoveInterval)
	return s
}

// SetCapture attaches the local capture source, before or during Run.
func (s *Session) SetCapture(src CaptureSource) {
	s.mu.Lock()
	s.capture = src
	coord := s.coord
	s.mu.Unlock()

	if coord != nil {
		coord.SetCapture(src)
	}
}

// OnRemoteTrack registers the remote-track handler. Set before Run.
func (s *Session) OnRemoteTrack(fn RemoteTrackHandler) {
	s.mu.Lock()
	s.onTrack = fn
	s.mu.Unlock()
}

// Move updates the local position; the mover ships it at its own pace.
func (s *Session) Move(x, y float64) {
	s.mover.SetPosition(x, y)
}

// SendMove implements MoveSender for the internal mover.
func (s *Session) SendMove(x, y float64) error {
	s.mu.Lock()
	sock := s.sock
	s.mu.Unlock()
	if sock == nil {
		return nil
	}
	return sock.SendMove(x, y)
}

// SelfID returns the connection id assigned by the server, empty before the
// transport greeting arrives.
func (s *Session) SelfID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selfID
}

// Positions returns the interpolated positions of all remote participants.
func (s *Session) Positions() map[string]domain.Position {
	return s.interp.Positions()
}

// Links returns the current peer link states, empty before the mesh exists.
func (s *Session) Links() map[string]LinkState {
	s.mu.Lock()
	coord := s.coord
	s.mu.Unlock()
	if coord == nil {
		return map[string]LinkState{}
	}
	return coord.Links()
}

// Run connects, joins the room, and processes events until ctx is cancelled,
// the connection drops, or the join is rejected (ErrRoomFull).
func (s *Session) Run(ctx context.Context) error {
	sock, err := Dial(ctx, s.cfg.ServerURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sock = sock
	s.mu.Unlock()

	defer s.teardown()

	// The transport greeting must arrive before anything else: the
	// connection id drives the glare tie-break.
	selfID, err := s.awaitConnected(ctx, sock)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.selfID = selfID
	s.coord = NewCoordinator(selfID, sock, s.cfg.STUNServers, s.log)
	if s.onTrack != nil {
		s.coord.OnRemoteTrack(s.onTrack)
	}
	if s.capture != nil {
		s.coord.SetCapture(s.capture)
	}
	coord := s.coord
	s.mu.Unlock()

	if err := sock.Join(s.cfg.RoomID, s.cfg.Username, s.cfg.Avatar); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	s.mover.Start()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sock.Events():
			if !ok {
				return errors.New("signaling connection lost")
			}
			if err := s.handleEvent(coord, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handleEvent(coord *Coordinator, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.RoomUsers:
		s.log.Info("room snapshot", slog.Int("users", len(e)))
		for _, u := range e {
			if u.ID != s.SelfID() {
				s.interp.Track(u)
			}
		}
		coord.SyncRoster(e)

	case domain.UserJoined:
		s.log.Info("user joined", slog.String("id", e.ID), slog.String("username", e.Username))
		s.interp.Track(domain.Participant(e))
		coord.HandleJoined(domain.Participant(e))

	case domain.UserLeft:
		s.log.Info("user left", slog.String("id", e.ID))
		s.interp.Forget(e.ID)
		coord.HandleLeft(e.ID)

	case domain.UserMoved:
		s.interp.Observe(e)

	case domain.RoomFull:
		return ErrRoomFull

	case domain.Offer:
		coord.HandleOffer(e)

	case domain.Answer:
		coord.HandleAnswer(e)

	case domain.ICECandidate:
		coord.HandleCandidate(e)

	case domain.Connected:
		// Late duplicate greeting; nothing to do.
	}
	return nil
}

func (s *Session) awaitConnected(ctx context.Context, sock *Socket) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case ev, ok := <-sock.Events():
		if !ok {
			return "", errors.New("connection closed before greeting")
		}
		greeting, isGreeting := ev.(domain.Connected)
		if !isGreeting {
			return "", fmt.Errorf("expected connected greeting, got %T", ev)
		}
		return greeting.ID, nil
	}
}

func (s *Session) teardown() {
	s.mover.Stop()

	s.mu.Lock()
	coord := s.coord
	sock := s.sock
	s.mu.Unlock()

	if coord != nil {
		coord.Close()
	}
	if sock != nil {
		sock.Close()
	}
}
