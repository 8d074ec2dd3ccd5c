package client

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/nextdooroldwang/sprite-house/internal/domain"
	"github.com/nextdooroldwang/sprite-house/lib/logger/sl"
)

// SignalSender relays negotiation messages to a specific remote participant.
// Implemented by Socket.
type SignalSender interface {
	SendOffer(targetID string, sdp webrtc.SessionDescription) error
	SendAnswer(targetID string, sdp webrtc.SessionDescription) error
	SendCandidate(targetID string, cand webrtc.ICECandidateInit) error
}

// CaptureSource is the local audio/video capture shared read-only across all
// peer links. Links attach its tracks but never mutate it; the coordinator
// stops it exactly once on teardown.
type CaptureSource interface {
	Tracks() []webrtc.TrackLocal
	Close() error
}

// RemoteTrackHandler surfaces one inbound remote track to the presentation
// layer.
type RemoteTrackHandler func(remoteID string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

// ShouldInitiate decides which side of a pair offers. Both sides evaluate it
// independently on roster changes; the lexicographically smaller connection
// id always initiates, the other only answers, so simultaneous offers for
// one logical link cannot happen.
func ShouldInitiate(selfID, remoteID string) bool {
	return selfID < remoteID
}

// Coordinator maintains one PeerLink per co-resident remote participant,
// reacting to roster changes and relayed negotiation messages.
type Coordinator struct {
	selfID string
	sender SignalSender
	log    *slog.Logger
	api    webrtc.Configuration

	mu          sync.Mutex
	links       map[string]*PeerLink
	capture     CaptureSource
	onTrack     RemoteTrackHandler
	closed      bool
	captureOnce sync.Once
}

// NewCoordinator creates a coordinator for the participant with the given
// connection id.
func NewCoordinator(selfID string, sender SignalSender, stunServers []string, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		selfID: selfID,
		sender: sender,
		log:    log.With(slog.String("self_id", selfID)),
		api: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{
				{URLs: stunServers},
			},
		},
		links: make(map[string]*PeerLink),
	}
}

// OnRemoteTrack registers the handler invoked when a link surfaces an
// inbound remote track. Must be set before the first roster event.
func (c *Coordinator) OnRemoteTrack(fn RemoteTrackHandler) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

// SetCapture attaches the local capture source. Tracks are added to every
// existing link retroactively and to all links created afterwards.
func (c *Coordinator) SetCapture(src CaptureSource) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capture = src
	for _, link := range c.links {
		for _, track := range src.Tracks() {
			if _, err := link.pc.AddTrack(track); err != nil {
				c.log.Warn("attach track to existing link",
					slog.String("remote_id", link.remoteID), sl.Err(err))
			}
		}
	}
}

// SyncRoster reconciles the link set against a full roster snapshot:
// links are created toward every co-resident remote not already tracked and
// closed for participants no longer present.
func (c *Coordinator) SyncRoster(users []domain.Participant) {
	present := make(map[string]bool, len(users))
	for _, u := range users {
		if u.ID == c.selfID {
			continue
		}
		present[u.ID] = true
		c.ensureLink(u.ID)
	}

	c.mu.Lock()
	var stale []string
	for id := range c.links {
		if !present[id] {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()

	for _, id := range stale {
		c.HandleLeft(id)
	}
}

// HandleJoined reacts to a single participant joining the room.
func (c *Coordinator) HandleJoined(p domain.Participant) {
	if p.ID == c.selfID {
		return
	}
	c.ensureLink(p.ID)
}

// HandleLeft tears down the link toward a departed participant.
func (c *Coordinator) HandleLeft(remoteID string) {
	c.mu.Lock()
	link, ok := c.links[remoteID]
	delete(c.links, remoteID)
	c.mu.Unlock()

	if !ok {
		return
	}
	if err := link.close(); err != nil {
		c.log.Warn("close link", slog.String("remote_id", remoteID), sl.Err(err))
	}
	c.log.Info("peer link closed", slog.String("remote_id", remoteID))
}

// HandleOffer answers an inbound offer, creating the link on demand.
func (c *Coordinator) HandleOffer(m domain.Offer) {
	link := c.ensureLink(m.SenderID)
	if link == nil {
		return
	}

	err := link.handleOffer(m.Offer, func(answer webrtc.SessionDescription) error {
		return c.sender.SendAnswer(m.SenderID, answer)
	})
	if err != nil {
		c.log.Error("handle offer", slog.String("remote_id", m.SenderID), sl.Err(err))
	}
}

// HandleAnswer completes an offer this coordinator initiated.
func (c *Coordinator) HandleAnswer(m domain.Answer) {
	c.mu.Lock()
	link, ok := c.links[m.SenderID]
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := link.handleAnswer(m.Answer); err != nil {
		c.log.Error("handle answer", slog.String("remote_id", m.SenderID), sl.Err(err))
	}
}

// HandleCandidate applies (or buffers) a trickled remote candidate.
func (c *Coordinator) HandleCandidate(m domain.ICECandidate) {
	c.mu.Lock()
	link, ok := c.links[m.SenderID]
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := link.addCandidate(m.Candidate); err != nil {
		c.log.Warn("add candidate", slog.String("remote_id", m.SenderID), sl.Err(err))
	}
}

// Links returns the current remote id → state view, for logs and UIs.
func (c *Coordinator) Links() map[string]LinkState {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]LinkState, len(c.links))
	for id, link := range c.links {
		out[id] = link.State()
	}
	return out
}

// Close tears down every link and stops the capture source exactly once,
// regardless of how many links referenced it. Idempotent.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	links := c.links
	c.links = make(map[string]*PeerLink)
	capture := c.capture
	c.mu.Unlock()

	for _, link := range links {
		link.close()
	}

	var err error
	if capture != nil {
		c.captureOnce.Do(func() {
			err = capture.Close()
		})
	}
	return err
}

// ensureLink returns the non-Closed link for remoteID, creating one (and
// offering, when this side is the designated initiator) if none exists.
func (c *Coordinator) ensureLink(remoteID string) *PeerLink {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if link, ok := c.links[remoteID]; ok && link.State() != LinkClosed {
		c.mu.Unlock()
		return link
	}

	link, err := c.newLink(remoteID)
	if err != nil {
		c.mu.Unlock()
		c.log.Error("create peer link", slog.String("remote_id", remoteID), sl.Err(err))
		return nil
	}
	c.links[remoteID] = link
	c.mu.Unlock()

	c.log.Info("peer link created", slog.String("remote_id", remoteID),
		slog.Bool("initiator", ShouldInitiate(c.selfID, remoteID)))

	if ShouldInitiate(c.selfID, remoteID) {
		err := link.startOffer(func(offer webrtc.SessionDescription) error {
			return c.sender.SendOffer(remoteID, offer)
		})
		if err != nil {
			c.log.Error("start offer", slog.String("remote_id", remoteID), sl.Err(err))
		}
	}
	return link
}

// newLink builds the PeerConnection for one remote. Caller holds c.mu.
func (c *Coordinator) newLink(remoteID string) (*PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(c.api)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	if c.capture != nil {
		for _, track := range c.capture.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				pc.Close()
				return nil, fmt.Errorf("attach local track: %w", err)
			}
		}
	} else {
		// Receive-only media sections so negotiation carries the remote's
		// stream even before (or without) a local capture source.
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				pc.Close()
				return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
	}

	link := newPeerLink(remoteID, pc)
	onTrack := c.onTrack

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := c.sender.SendCandidate(remoteID, cand.ToJSON()); err != nil {
			c.log.Debug("send candidate", slog.String("remote_id", remoteID), sl.Err(err))
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.log.Info("remote track",
			slog.String("remote_id", remoteID),
			slog.String("kind", track.Kind().String()),
		)
		if onTrack != nil {
			onTrack(remoteID, track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.Info("peer connection state",
			slog.String("remote_id", remoteID),
			slog.String("state", state.String()),
		)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			link.markConnected()
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			// No retry here: a fresh link is only created on the next
			// roster evaluation.
			c.HandleLeft(remoteID)
		}
	})

	return link, nil
}
