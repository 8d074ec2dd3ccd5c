package relay_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextdooroldwang/sprite-house/internal/domain"
	"github.com/nextdooroldwang/sprite-house/internal/registry"
	"github.com/nextdooroldwang/sprite-house/internal/relay"
)

// fakeSender records every envelope delivered to one connection.
type fakeSender struct {
	mu     sync.Mutex
	events []domain.Envelope
}

func (f *fakeSender) Send(env domain.Envelope) {
	f.mu.Lock()
	f.events = append(f.events, env)
	f.mu.Unlock()
}

func (f *fakeSender) all() []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Envelope(nil), f.events...)
}

func (f *fakeSender) last(t *testing.T) domain.Envelope {
	t.Helper()
	evs := f.all()
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

func decodeInto(t *testing.T, env domain.Envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func newRelay(t *testing.T, capacity int) (*relay.Relay, *registry.Registry) {
	t.Helper()
	reg := registry.New(capacity, domain.Position{X: 400, Y: 300})
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return relay.New(reg, log), reg
}

func join(t *testing.T, rel *relay.Relay, id, room, name string) *fakeSender {
	t.Helper()
	s := &fakeSender{}
	rel.Register(id, s)
	rel.Handle(id, domain.JoinRoom{RoomID: room, Username: name, Avatar: "avatar_1"})
	return s
}

func TestRoomLifecycleScenario(t *testing.T) {
	rel, reg := newRelay(t, 4)

	// Alice joins an empty room and receives a one-entry snapshot.
	u1 := join(t, rel, "u1", "ABCD", "Alice")

	env := u1.last(t)
	assert.Equal(t, domain.MsgRoomUsers, env.Type)
	var roster []domain.Participant
	decodeInto(t, env, &roster)
	require.Len(t, roster, 1)
	assert.Equal(t, "u1", roster[0].ID)

	// Bob joins: Alice is notified, Bob gets the full snapshot.
	u2 := join(t, rel, "u2", "ABCD", "Bob")

	env = u1.last(t)
	assert.Equal(t, domain.MsgUserJoined, env.Type)
	var joined domain.Participant
	decodeInto(t, env, &joined)
	assert.Equal(t, "u2", joined.ID)
	assert.Equal(t, "Bob", joined.Username)

	env = u2.last(t)
	assert.Equal(t, domain.MsgRoomUsers, env.Type)
	decodeInto(t, env, &roster)
	assert.Len(t, roster, 2)

	// Alice moves: Bob sees it, Alice does not get an echo.
	before := len(u1.all())
	rel.Handle("u1", domain.UserMove{X: 120, Y: 80})

	env = u2.last(t)
	assert.Equal(t, domain.MsgUserMoved, env.Type)
	var moved domain.UserMoved
	decodeInto(t, env, &moved)
	assert.Equal(t, domain.UserMoved{ID: "u1", X: 120, Y: 80}, moved)
	assert.Len(t, u1.all(), before)

	// Bob disconnects: Alice is told, the room survives.
	rel.Disconnect("u2")

	env = u1.last(t)
	assert.Equal(t, domain.MsgUserLeft, env.Type)
	var left domain.UserLeft
	decodeInto(t, env, &left)
	assert.Equal(t, "u2", left.ID)

	roster2 := reg.Roster("ABCD")
	require.Len(t, roster2, 1)
	assert.Equal(t, "u1", roster2[0].ID)

	// Alice disconnects: the room no longer exists.
	rel.Disconnect("u1")
	assert.False(t, reg.Info("ABCD").Exists)
}

func TestFullRoomRejectsFifthJoinSilently(t *testing.T) {
	rel, _ := newRelay(t, 4)

	members := make([]*fakeSender, 0, 4)
	ids := []string{"u1", "u2", "u3", "u4"}
	for _, id := range ids {
		members = append(members, join(t, rel, id, "ABCD", "user-"+id))
	}

	counts := make([]int, len(members))
	for i, m := range members {
		counts[i] = len(m.all())
	}

	late := &fakeSender{}
	rel.Register("u5", late)
	rel.Handle("u5", domain.JoinRoom{RoomID: "ABCD", Username: "late", Avatar: "avatar_2"})

	// The joiner is told the room is full; nobody else hears anything.
	env := late.last(t)
	assert.Equal(t, domain.MsgRoomFull, env.Type)
	assert.Len(t, late.all(), 1)

	for i, m := range members {
		assert.Len(t, m.all(), counts[i], "member %s received an event", ids[i])
	}
}

func TestForwardingIsContentPreservingAndTargeted(t *testing.T) {
	rel, _ := newRelay(t, 4)

	join(t, rel, "u1", "ABCD", "Alice")
	u2 := join(t, rel, "u2", "ABCD", "Bob")
	u3 := join(t, rel, "u3", "ABCD", "Carol")

	before3 := len(u3.all())

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  "v=0\r\no=- 42 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n",
	}
	rel.Handle("u1", domain.Offer{TargetID: "u2", Offer: offer})

	env := u2.last(t)
	require.Equal(t, domain.MsgOffer, env.Type)
	var got domain.Offer
	decodeInto(t, env, &got)
	assert.Equal(t, "u1", got.SenderID)
	assert.Empty(t, got.TargetID)
	assert.Equal(t, offer, got.Offer)

	// Never delivered to anyone but the target.
	assert.Len(t, u3.all(), before3)
}

func TestForwardToAbsentTargetIsSilentNoOp(t *testing.T) {
	rel, _ := newRelay(t, 4)

	u1 := join(t, rel, "u1", "ABCD", "Alice")
	before := len(u1.all())

	rel.Handle("u1", domain.ICECandidate{
		TargetID:  "gone",
		Candidate: webrtc.ICECandidateInit{Candidate: "candidate:1 1 UDP 2122252543 192.0.2.1 54321 typ host"},
	})

	assert.Len(t, u1.all(), before)
}

func TestMoveFromStaleConnectionIsIgnored(t *testing.T) {
	rel, reg := newRelay(t, 4)

	join(t, rel, "u1", "ABCD", "Alice")
	rel.Disconnect("u1")

	// Already gone: no panic, no state change.
	rel.Handle("u1", domain.UserMove{X: 1, Y: 2})
	assert.False(t, reg.Info("ABCD").Exists)
}

func TestRoomIDsAreCaseNormalized(t *testing.T) {
	rel, reg := newRelay(t, 4)

	join(t, rel, "u1", "abcd", "Alice")
	join(t, rel, "u2", "AbCd", "Bob")

	info := reg.Info("ABCD")
	assert.True(t, info.Exists)
	assert.Equal(t, 2, info.CurrentUsers)
}

func TestRepeatJoinNotifiesPreviousRoom(t *testing.T) {
	rel, reg := newRelay(t, 4)

	u1 := join(t, rel, "u1", "AAAA", "Alice")
	join(t, rel, "u2", "AAAA", "Bob")

	// u2 hops rooms without disconnecting: AAAA learns about the departure.
	rel.Handle("u2", domain.JoinRoom{RoomID: "BBBB", Username: "Bob", Avatar: "avatar_2"})

	env := u1.last(t)
	assert.Equal(t, domain.MsgUserLeft, env.Type)
	var left domain.UserLeft
	decodeInto(t, env, &left)
	assert.Equal(t, "u2", left.ID)

	assert.Equal(t, 1, reg.Info("AAAA").CurrentUsers)
	assert.Equal(t, 1, reg.Info("BBBB").CurrentUsers)

	// The hop leaves nothing behind once both disconnect.
	rel.Disconnect("u1")
	rel.Disconnect("u2")
	assert.False(t, reg.Info("AAAA").Exists)
	assert.False(t, reg.Info("BBBB").Exists)
}

func TestDoubleDisconnectDoesNotBroadcastTwice(t *testing.T) {
	rel, _ := newRelay(t, 4)

	u1 := join(t, rel, "u1", "ABCD", "Alice")
	join(t, rel, "u2", "ABCD", "Bob")

	rel.Disconnect("u2")
	count := len(u1.all())
	rel.Disconnect("u2")
	assert.Len(t, u1.all(), count)
}
