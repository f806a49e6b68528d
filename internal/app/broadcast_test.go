package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

type captureBus struct {
	mu   sync.Mutex
	envs []core.Envelope
}

func (b *captureBus) Publish(_ context.Context, env core.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envs = append(b.envs, env)
	return nil
}

func (b *captureBus) Subscribe(context.Context, func(core.Envelope)) error { return nil }
func (b *captureBus) Close() error                                         { return nil }

func (b *captureBus) last(t *testing.T) core.Envelope {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.envs)
	return b.envs[len(b.envs)-1]
}

func TestToUserDeliversLocallyAndPublishes(t *testing.T) {
	reg := NewRegistry()
	busSpy := &captureBus{}
	bc := NewBroadcaster(reg, busSpy)

	phone := &testConn{}
	laptop := &testConn{}
	reg.Register("c1", ident("alice"), phone, nil)
	reg.Register("c2", ident("alice"), laptop, nil)

	bc.ToUser(context.Background(), "alice", "new-message", map[string]string{"body": "hi"})

	require.Equal(t, 1, phone.count())
	require.Equal(t, 1, laptop.count())

	env := busSpy.last(t)
	require.Equal(t, core.ScopeUser, env.Scope)
	require.Equal(t, domain.UserID("alice"), env.User)
	require.Equal(t, "new-message", env.Event)
	require.JSONEq(t, `{"body":"hi"}`, string(env.Payload))
}

func TestToRoomSkipsExcludedUserEverywhere(t *testing.T) {
	reg := NewRegistry()
	busSpy := &captureBus{}
	bc := NewBroadcaster(reg, busSpy)

	alice := &testConn{}
	bob := &testConn{}
	reg.Register("c1", ident("alice"), alice, nil)
	reg.Register("c2", ident("bob"), bob, nil)

	members := []domain.UserID{"alice", "bob"}
	bc.ToRoom(context.Background(), "m1", members, "alice", "user-typing", map[string]bool{"is_typing": true})

	require.Zero(t, alice.count())
	require.Equal(t, 1, bob.count())

	env := busSpy.last(t)
	require.Equal(t, core.ScopeRoom, env.Scope)
	require.Equal(t, domain.MeetingID("m1"), env.Meeting)
	require.Equal(t, domain.UserID("alice"), env.Exclude, "siblings must skip the same user")
}

func TestHandleEnvelopeUserScope(t *testing.T) {
	reg := NewRegistry()
	bc := NewBroadcaster(reg, &captureBus{})
	c := &testConn{}
	reg.Register("c1", ident("alice"), c, nil)

	bc.HandleEnvelope(core.Envelope{
		Origin:  "other-instance",
		Scope:   core.ScopeUser,
		User:    "alice",
		Event:   "new-message",
		Payload: json.RawMessage(`{"body":"remote"}`),
	})

	msg := c.last(t)
	require.Equal(t, "new-message", msg.Type)
	require.JSONEq(t, `{"body":"remote"}`, string(msg.Payload))
}

func TestHandleEnvelopeRoomScope(t *testing.T) {
	reg := NewRegistry()
	bc := NewBroadcaster(reg, &captureBus{})
	alice := &testConn{}
	bob := &testConn{}
	reg.Register("c1", ident("alice"), alice, nil)
	reg.Register("c2", ident("bob"), bob, nil)

	env := core.Envelope{
		Origin:  "other-instance",
		Scope:   core.ScopeRoom,
		Meeting: "m1",
		Exclude: "alice",
		Event:   "participant-joined",
		Payload: json.RawMessage(`{}`),
	}

	// Without a membership lookup room envelopes cannot be resolved.
	bc.HandleEnvelope(env)
	require.Zero(t, bob.count())

	bc.SetLocalMembers(func(m domain.MeetingID) []domain.UserID {
		require.Equal(t, domain.MeetingID("m1"), m)
		return []domain.UserID{"alice", "bob"}
	})
	bc.HandleEnvelope(env)

	require.Zero(t, alice.count(), "the excluded user stays silent on every instance")
	require.Equal(t, 1, bob.count())

	// Unknown scopes are dropped.
	bc.HandleEnvelope(core.Envelope{Scope: "galaxy", Event: "x"})
	require.Equal(t, 1, bob.count())
}
