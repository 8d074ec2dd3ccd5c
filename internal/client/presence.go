package client

import (
	"sync"
	"time"

	"github.com/nextdooroldwang/sprite-house/internal/domain"
)

// MoveSender ships the local position to the server. Implemented by Socket.
type MoveSender interface {
	SendMove(x, y float64) error
}

// Mover rate-limits outbound movement: at most one move event per interval
// no matter how often the local position changes. Excess updates are
// dropped, not queued — the latest position wins on the next tick.
type Mover struct {
	sender   MoveSender
	interval time.Duration

	mu    sync.Mutex
	x, y  float64
	dirty bool

	stopOnce sync.Once
	stop     chan struct{}
}

func NewMover(sender MoveSender, interval time.Duration) *Mover {
	return &Mover{
		sender:   sender,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// SetPosition records the latest local position. Cheap; call as often as the
// input layer likes.
func (m *Mover) SetPosition(x, y float64) {
	m.mu.Lock()
	m.x, m.y = x, y
	m.dirty = true
	m.mu.Unlock()
}

// Start runs the tick loop until Stop.
func (m *Mover) Start() {
	go m.loop()
}

// Stop halts the tick loop. Idempotent.
func (m *Mover) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Mover) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			if !m.dirty {
				m.mu.Unlock()
				continue
			}
			x, y := m.x, m.y
			m.dirty = false
			m.mu.Unlock()

			if err := m.sender.SendMove(x, y); err != nil {
				return
			}
		case <-m.stop:
			return
		}
	}
}

// Interpolator smooths inbound movement: a user-moved event does not snap
// the remote representation, it glides toward the new position over a fixed
// window. The only guarantee is convergence to the last received position.
type Interpolator struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	remotes map[string]*remoteState
}

type remoteState struct {
	fromX, fromY float64
	toX, toY     float64
	start        time.Time
}

func NewInterpolator(window time.Duration) *Interpolator {
	return &Interpolator{
		window:  window,
		now:     time.Now,
		remotes: make(map[string]*remoteState),
	}
}

// Track starts following a participant at its current position, with no
// glide.
func (i *Interpolator) Track(p domain.Participant) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.remotes[p.ID] = &remoteState{
		fromX: p.X, fromY: p.Y,
		toX: p.X, toY: p.Y,
		start: i.now().Add(-i.window),
	}
}

// Forget drops a departed participant.
func (i *Interpolator) Forget(id string) {
	i.mu.Lock()
	delete(i.remotes, id)
	i.mu.Unlock()
}

// Observe records a position update; the rendered position starts gliding
// from wherever it currently is toward the new target. Updates for unknown
// ids are ignored — they race user-left and are benign.
func (i *Interpolator) Observe(m domain.UserMoved) {
	i.mu.Lock()
	defer i.mu.Unlock()

	r, ok := i.remotes[m.ID]
	if !ok {
		return
	}

	now := i.now()
	r.fromX, r.fromY = r.positionAt(now, i.window)
	r.toX, r.toY = m.X, m.Y
	r.start = now
}

// Position returns the interpolated position of one participant.
func (i *Interpolator) Position(id string) (domain.Position, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	r, ok := i.remotes[id]
	if !ok {
		return domain.Position{}, false
	}
	x, y := r.positionAt(i.now(), i.window)
	return domain.Position{X: x, Y: y}, true
}

// Positions returns the interpolated positions of all tracked participants.
func (i *Interpolator) Positions() map[string]domain.Position {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	out := make(map[string]domain.Position, len(i.remotes))
	for id, r := range i.remotes {
		x, y := r.positionAt(now, i.window)
		out[id] = domain.Position{X: x, Y: y}
	}
	return out
}

func (r *remoteState) positionAt(now time.Time, window time.Duration) (float64, float64) {
	elapsed := now.Sub(r.start)
	if elapsed >= window {
		return r.toX, r.toY
	}
	t := float64(elapsed) / float64(window)
	return r.fromX + (r.toX-r.fromX)*t, r.fromY + (r.toY-r.fromY)*t
}
