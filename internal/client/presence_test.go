package client

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextdooroldwang/sprite-house/internal/domain"
)

type recordingMoveSender struct {
	mu    sync.Mutex
	moves []domain.Position
}

func (r *recordingMoveSender) SendMove(x, y float64) error {
	r.mu.Lock()
	r.moves = append(r.moves, domain.Position{X: x, Y: y})
	r.mu.Unlock()
	return nil
}

func (r *recordingMoveSender) all() []domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Position(nil), r.moves...)
}

func TestMoverThrottlesToOneSendPerTick(t *testing.T) {
	sender := &recordingMoveSender{}
	mover := NewMover(sender, 20*time.Millisecond)

	mover.Start()
	defer mover.Stop()

	// Hammer the mover far faster than the tick rate.
	deadline := time.Now().Add(100 * time.Millisecond)
	i := 0.0
	for time.Now().Before(deadline) {
		mover.SetPosition(i, i*2)
		i++
		time.Sleep(time.Millisecond)
	}
	mover.SetPosition(500, 1000)

	assert.Eventually(t, func() bool {
		moves := sender.all()
		return len(moves) > 0 && moves[len(moves)-1] == domain.Position{X: 500, Y: 1000}
	}, time.Second, 10*time.Millisecond, "latest position never shipped")

	// ~5 ticks elapsed during the hammering; allow generous slack but prove
	// the rate is bounded by the ticker, not the update rate.
	moves := sender.all()
	assert.Less(t, len(moves), 15, "mover forwarded more than one move per tick")
}

func TestMoverIsSilentWhileStationary(t *testing.T) {
	sender := &recordingMoveSender{}
	mover := NewMover(sender, 5*time.Millisecond)

	mover.Start()
	time.Sleep(40 * time.Millisecond)
	mover.Stop()

	assert.Empty(t, sender.all())
}

func TestMoverStopIsIdempotent(t *testing.T) {
	mover := NewMover(&recordingMoveSender{}, time.Millisecond)
	mover.Start()
	mover.Stop()
	mover.Stop()
}

// fakeClock drives the interpolator deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestInterpolator(window time.Duration) (*Interpolator, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	interp := NewInterpolator(window)
	interp.now = clock.now
	return interp, clock
}

func TestInterpolatorGlidesTowardTarget(t *testing.T) {
	interp, clock := newTestInterpolator(100 * time.Millisecond)

	interp.Track(domain.Participant{ID: "u1", X: 0, Y: 0})

	pos, ok := interp.Position("u1")
	require.True(t, ok)
	assert.Equal(t, domain.Position{X: 0, Y: 0}, pos)

	interp.Observe(domain.UserMoved{ID: "u1", X: 100, Y: 50})

	// Immediately after the update the rendered position has not snapped.
	pos, _ = interp.Position("u1")
	assert.Equal(t, domain.Position{X: 0, Y: 0}, pos)

	clock.advance(50 * time.Millisecond)
	pos, _ = interp.Position("u1")
	assert.InDelta(t, 50, pos.X, 0.001)
	assert.InDelta(t, 25, pos.Y, 0.001)

	clock.advance(50 * time.Millisecond)
	pos, _ = interp.Position("u1")
	assert.Equal(t, domain.Position{X: 100, Y: 50}, pos)

	// Convergence is stable past the window.
	clock.advance(time.Hour)
	pos, _ = interp.Position("u1")
	assert.Equal(t, domain.Position{X: 100, Y: 50}, pos)
}

func TestInterpolatorRetargetsMidGlide(t *testing.T) {
	interp, clock := newTestInterpolator(100 * time.Millisecond)

	interp.Track(domain.Participant{ID: "u1", X: 0, Y: 0})
	interp.Observe(domain.UserMoved{ID: "u1", X: 100, Y: 0})

	clock.advance(50 * time.Millisecond)

	// A new target mid-glide starts from the current rendered position.
	interp.Observe(domain.UserMoved{ID: "u1", X: 0, Y: 100})

	clock.advance(100 * time.Millisecond)
	pos, _ := interp.Position("u1")
	assert.Equal(t, domain.Position{X: 0, Y: 100}, pos)
}

func TestInterpolatorIgnoresUnknownParticipants(t *testing.T) {
	interp, _ := newTestInterpolator(100 * time.Millisecond)

	// Races user-left; must not resurrect the participant.
	interp.Observe(domain.UserMoved{ID: "ghost", X: 1, Y: 2})

	_, ok := interp.Position("ghost")
	assert.False(t, ok)
	assert.Empty(t, interp.Positions())
}

func TestInterpolatorForget(t *testing.T) {
	interp, _ := newTestInterpolator(100 * time.Millisecond)

	interp.Track(domain.Participant{ID: "u1", X: 10, Y: 20})
	interp.Track(domain.Participant{ID: "u2", X: 30, Y: 40})
	interp.Forget("u1")

	_, ok := interp.Position("u1")
	assert.False(t, ok)

	positions := interp.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, domain.Position{X: 30, Y: 40}, positions["u2"])
}
