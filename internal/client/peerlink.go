package client

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
)

// LinkState is the lifecycle of one side's view of a direct media
// connection to one remote participant.
type LinkState string

const (
	LinkIdle      LinkState = "idle"
	LinkOffering  LinkState = "offering"
	LinkAnswering LinkState = "answering"
	LinkConnected LinkState = "connected"
	LinkClosed    LinkState = "closed"
)

// PeerLink owns the negotiation state for one remote participant. The two
// ends of a pair each hold their own PeerLink; the two may transiently be in
// different states. All transitions are serialized by the link's mutex;
// different links progress independently.
type PeerLink struct {
	remoteID string

	mu      sync.Mutex
	state   LinkState
	pc      *webrtc.PeerConnection
	pending []webrtc.ICECandidateInit
}

func newPeerLink(remoteID string, pc *webrtc.PeerConnection) *PeerLink {
	return &PeerLink{
		remoteID: remoteID,
		state:    LinkIdle,
		pc:       pc,
	}
}

// RemoteID returns the remote participant this link points at.
func (l *PeerLink) RemoteID() string { return l.remoteID }

// State returns the last observed link state.
func (l *PeerLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// startOffer creates and applies a local offer and hands it to send. Only an
// Idle link may initiate; anything else is a no-op.
func (l *PeerLink) startOffer(send func(webrtc.SessionDescription) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != LinkIdle {
		return nil
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	l.state = LinkOffering
	return send(offer)
}

// handleOffer applies a remote offer and answers it. The answering side has
// nothing further to wait for, so the link goes straight to Connected; the
// transport completes negotiation asynchronously.
func (l *PeerLink) handleOffer(offer webrtc.SessionDescription, send func(webrtc.SessionDescription) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == LinkClosed {
		return nil
	}
	l.state = LinkAnswering

	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	if err := l.flushPendingLocked(); err != nil {
		return err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	if err := send(answer); err != nil {
		return err
	}

	l.state = LinkConnected
	return nil
}

// handleAnswer completes the offerer's side of the exchange. Answers for a
// link that is not Offering are stale and ignored.
func (l *PeerLink) handleAnswer(answer webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != LinkOffering {
		return nil
	}

	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	if err := l.flushPendingLocked(); err != nil {
		return err
	}

	l.state = LinkConnected
	return nil
}

// addCandidate applies a remote ICE candidate, buffering it while no remote
// description exists yet. Buffered candidates replay once a description is
// applied.
func (l *PeerLink) addCandidate(cand webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == LinkClosed {
		return nil
	}
	if l.pc.RemoteDescription() == nil {
		l.pending = append(l.pending, cand)
		return nil
	}
	return l.pc.AddICECandidate(cand)
}

func (l *PeerLink) flushPendingLocked() error {
	for _, cand := range l.pending {
		if err := l.pc.AddICECandidate(cand); err != nil {
			return fmt.Errorf("replay buffered candidate: %w", err)
		}
	}
	l.pending = nil
	return nil
}

// markConnected records that the transport reports an established
// connection, from any non-Closed state.
func (l *PeerLink) markConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LinkClosed {
		l.state = LinkConnected
	}
}

// close releases the link's transport resources. Safe to call from any
// state, including mid-negotiation, and idempotent.
func (l *PeerLink) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == LinkClosed {
		return nil
	}
	l.state = LinkClosed
	l.pending = nil
	return l.pc.Close()
}
