package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campushub/meetcore/internal/adapters/bus"
	"github.com/campushub/meetcore/internal/adapters/presence"
	"github.com/campushub/meetcore/internal/app"
	"github.com/campushub/meetcore/internal/app/media"
	"github.com/campushub/meetcore/internal/app/messaging"
	"github.com/campushub/meetcore/internal/app/rooms"
	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
	"github.com/campushub/meetcore/internal/repository"
)

type stubVerifier struct{}

func (stubVerifier) Verify(context.Context, string) (domain.Identity, error) {
	return domain.Identity{}, core.ErrTokenInvalid
}

type signalFixture struct {
	ctl     *Controller
	reg     *app.Registry
	store   *repository.Store
	meeting *domain.Meeting
}

// newSignalFixture wires a full controller over in-memory backends and a
// media-less orchestrator, with one scheduled meeting in the store.
func newSignalFixture(t *testing.T, limits map[string]messaging.Limit) *signalFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	pres := presence.NewMemoryStore()
	reg := app.NewRegistry()
	bc := app.NewBroadcaster(reg, bus.NewNopBus())
	orch := media.NewOrchestrator(nil)
	mgr := rooms.NewManager(store, pres, orch, bc, reg)
	queue := messaging.NewOfflineQueue(10)
	delivery := messaging.NewDelivery(reg, bc, pres, queue, store, mgr)
	limiter := messaging.NewLimiter(limits)
	ctl := NewController(context.Background(), stubVerifier{}, reg, mgr, orch, delivery, limiter, pres, "node-1")

	meeting, err := domain.NewMeeting("tenant-1", "alice", "Algebra study group", 10)
	require.NoError(t, err)
	require.NoError(t, store.Meetings.Create(context.Background(), meeting))
	return &signalFixture{ctl: ctl, reg: reg, store: store, meeting: meeting}
}

// openSession registers a connection the way HandleWS would, minus the socket.
func (f *signalFixture) openSession(t *testing.T, connID, user, name string) *session {
	t.Helper()
	id := domain.Identity{UserID: domain.UserID(user), TenantID: "tenant-1", DisplayName: name, Role: domain.RoleStudent}
	s := &session{id: core.ConnectionID(connID), identity: id, conn: newWSConn(nil)}
	_, cancel := context.WithCancel(context.Background())
	f.reg.Register(s.id, id, s.conn, cancel)
	return s
}

func (f *signalFixture) push(t *testing.T, s *session, event string, payload any) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = b
	}
	data, err := json.Marshal(core.Message{Type: event, Payload: raw})
	require.NoError(t, err)
	f.ctl.dispatch(context.Background(), s, data)
}

func (f *signalFixture) join(t *testing.T, s *session) rooms.JoinResult {
	t.Helper()
	f.push(t, s, core.EvJoinRoom, map[string]any{"meeting_id": string(f.meeting.ID)})
	return lastFrame[rooms.JoinResult](t, frames(t, s.conn), core.EvRoomJoined)
}

// frames drains everything queued on the connection so far.
func frames(t *testing.T, c *wsConn) []core.Message {
	t.Helper()
	var out []core.Message
	for {
		select {
		case f := <-c.send:
			var m core.Message
			require.NoError(t, json.Unmarshal(f, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func lastFrame[T any](t *testing.T, msgs []core.Message, event string) T {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type != event {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal(msgs[i].Payload, &v))
		return v
	}
	t.Fatalf("no %s frame in %d messages", event, len(msgs))
	var zero T
	return zero
}

func TestDispatchRejectsMalformedFrame(t *testing.T) {
	f := newSignalFixture(t, nil)
	s := f.openSession(t, "c1", "alice", "Alice Moreau")

	f.ctl.dispatch(context.Background(), s, []byte("{not json"))

	e := lastFrame[errorPayload](t, frames(t, s.conn), core.EvError)
	require.Equal(t, core.CodeBadPayload, e.Code)
	require.Empty(t, e.Event)
}

func TestDispatchRejectsUnknownEvent(t *testing.T) {
	f := newSignalFixture(t, nil)
	s := f.openSession(t, "c1", "alice", "Alice Moreau")

	f.push(t, s, "teleport", nil)

	e := lastFrame[errorPayload](t, frames(t, s.conn), core.EvError)
	require.Equal(t, core.CodeBadPayload, e.Code)
	require.Equal(t, "teleport", e.Event)
	require.Contains(t, e.Message, "teleport")
}

func TestPingPong(t *testing.T) {
	f := newSignalFixture(t, nil)
	s := f.openSession(t, "c1", "alice", "Alice Moreau")

	f.push(t, s, core.EvPing, nil)

	msgs := frames(t, s.conn)
	require.Len(t, msgs, 1)
	require.Equal(t, core.EvPong, msgs[0].Type)
}

func TestJoinAndChatOverDispatch(t *testing.T) {
	f := newSignalFixture(t, nil)
	alice := f.openSession(t, "c1", "alice", "Alice Moreau")
	bob := f.openSession(t, "c2", "bob", "Bob Tailor")

	res := f.join(t, alice)
	require.Equal(t, f.meeting.ID, res.Meeting.ID)
	require.Equal(t, domain.UserID("alice"), res.Participant.UserID)
	require.Empty(t, res.RTPCapabilities)

	m, pid, ok := alice.room()
	require.True(t, ok)
	require.Equal(t, f.meeting.ID, m)
	require.Equal(t, res.Participant.ID, pid)

	resBob := f.join(t, bob)
	require.Len(t, resBob.Participants, 2)

	joined := lastFrame[rooms.ParticipantJoinedEvent](t, frames(t, alice.conn), core.EvParticipantJoined)
	require.Equal(t, domain.UserID("bob"), joined.Participant.UserID)

	f.push(t, alice, core.EvSendMessage, map[string]any{"meeting_id": string(f.meeting.ID), "content": "  hello room  "})

	got := lastFrame[messaging.MessageEvent](t, frames(t, bob.conn), core.EvNewMessage)
	require.Equal(t, "hello room", got.Message.Content)
	require.Equal(t, domain.UserID("alice"), got.Message.SenderID)
	require.Equal(t, "Alice Moreau", got.Message.SenderName)
	require.False(t, got.Replayed)

	echo := lastFrame[messaging.MessageEvent](t, frames(t, alice.conn), core.EvNewMessage)
	require.Equal(t, got.Message.ID, echo.Message.ID)
}

func TestLeaveOverDispatch(t *testing.T) {
	f := newSignalFixture(t, nil)
	alice := f.openSession(t, "c1", "alice", "Alice Moreau")
	bob := f.openSession(t, "c2", "bob", "Bob Tailor")
	f.join(t, alice)
	f.join(t, bob)
	frames(t, alice.conn)

	f.push(t, bob, core.EvLeaveRoom, map[string]any{"meeting_id": "ghost-meeting"})
	e := lastFrame[errorPayload](t, frames(t, bob.conn), core.EvError)
	require.Equal(t, core.CodeNotInRoom, e.Code)
	_, _, ok := bob.room()
	require.True(t, ok, "a mismatched leave keeps the session in its room")

	f.push(t, alice, core.EvLeaveRoom, map[string]any{"meeting_id": string(f.meeting.ID)})

	ack := lastFrame[rooms.ParticipantLeftEvent](t, frames(t, alice.conn), core.EvParticipantLeft)
	require.Equal(t, domain.UserID("alice"), ack.UserID)
	require.Equal(t, rooms.ReasonLeft, ack.Reason)
	require.Equal(t, "Alice Moreau", ack.DisplayName)
	_, _, ok = alice.room()
	require.False(t, ok)

	left := lastFrame[rooms.ParticipantLeftEvent](t, frames(t, bob.conn), core.EvParticipantLeft)
	require.Equal(t, domain.UserID("alice"), left.UserID)

	f.push(t, alice, core.EvSendMessage, map[string]any{"meeting_id": string(f.meeting.ID), "content": "ghost"})
	e = lastFrame[errorPayload](t, frames(t, alice.conn), core.EvError)
	require.Equal(t, core.CodeNotInRoom, e.Code)
}

func TestJoiningAnotherMeetingLeavesTheFirst(t *testing.T) {
	f := newSignalFixture(t, nil)
	second, err := domain.NewMeeting("tenant-1", "alice", "Exam prep", 10)
	require.NoError(t, err)
	require.NoError(t, f.store.Meetings.Create(context.Background(), second))

	alice := f.openSession(t, "c1", "alice", "Alice Moreau")
	bob := f.openSession(t, "c2", "bob", "Bob Tailor")
	f.join(t, alice)
	f.join(t, bob)
	frames(t, alice.conn)
	frames(t, bob.conn)

	f.push(t, alice, core.EvJoinRoom, map[string]any{"meeting_id": string(second.ID)})

	res := lastFrame[rooms.JoinResult](t, frames(t, alice.conn), core.EvRoomJoined)
	require.Equal(t, second.ID, res.Meeting.ID)
	m, _, ok := alice.room()
	require.True(t, ok)
	require.Equal(t, second.ID, m)

	left := lastFrame[rooms.ParticipantLeftEvent](t, frames(t, bob.conn), core.EvParticipantLeft)
	require.Equal(t, domain.UserID("alice"), left.UserID)
}

func TestDispatchValidationFailures(t *testing.T) {
	f := newSignalFixture(t, nil)
	s := f.openSession(t, "c1", "alice", "Alice Moreau")
	f.join(t, s)
	mid := string(f.meeting.ID)

	cases := []struct {
		name    string
		event   string
		payload any
	}{
		{"join without meeting id", core.EvJoinRoom, map[string]any{}},
		{"transport with bad direction", core.EvCreateTransport, map[string]any{"meeting_id": mid, "direction": "sideways"}},
		{"mark seen without ids", core.EvMarkSeen, map[string]any{"meeting_id": mid, "message_ids": []string{}}},
		{"switch quality without layer", core.EvSwitchQuality, map[string]any{"meeting_id": mid}},
		{"no payload at all", core.EvSendMessage, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.push(t, s, tc.event, tc.payload)
			e := lastFrame[errorPayload](t, frames(t, s.conn), core.EvError)
			require.Equal(t, core.CodeBadPayload, e.Code)
			require.Equal(t, tc.event, e.Event)
		})
	}
}

func TestCreateTransportWithoutMediaTier(t *testing.T) {
	f := newSignalFixture(t, nil)
	s := f.openSession(t, "c1", "alice", "Alice Moreau")
	f.join(t, s)

	f.push(t, s, core.EvCreateTransport, map[string]any{"meeting_id": string(f.meeting.ID), "direction": "send"})

	e := lastFrame[errorPayload](t, frames(t, s.conn), core.EvError)
	require.Equal(t, core.CodeSFUUnavailable, e.Code)
	require.Equal(t, core.EvCreateTransport, e.Event)
}

func TestSwitchQualityAcceptsLayerZero(t *testing.T) {
	f := newSignalFixture(t, nil)
	s := f.openSession(t, "c1", "alice", "Alice Moreau")
	f.join(t, s)

	f.push(t, s, core.EvSwitchQuality, map[string]any{"meeting_id": string(f.meeting.ID), "layer": 0})

	p := lastFrame[layerSwitchedPayload](t, frames(t, s.conn), core.EvLayerSwitched)
	require.Zero(t, p.Layer)
	require.Empty(t, p.Consumers)
}

func TestRateLimitsVisibleAndSilent(t *testing.T) {
	f := newSignalFixture(t, map[string]messaging.Limit{
		core.EvSendMessage: {Max: 1, Window: time.Minute},
		core.EvTyping:      {Max: 1, Window: time.Minute},
	})
	alice := f.openSession(t, "c1", "alice", "Alice Moreau")
	bob := f.openSession(t, "c2", "bob", "Bob Tailor")
	f.join(t, alice)
	f.join(t, bob)
	frames(t, alice.conn)
	mid := string(f.meeting.ID)

	f.push(t, alice, core.EvSendMessage, map[string]any{"meeting_id": mid, "content": "one"})
	lastFrame[messaging.MessageEvent](t, frames(t, bob.conn), core.EvNewMessage)
	frames(t, alice.conn)

	f.push(t, alice, core.EvSendMessage, map[string]any{"meeting_id": mid, "content": "two"})
	e := lastFrame[errorPayload](t, frames(t, alice.conn), core.EvError)
	require.Equal(t, core.CodeRateLimited, e.Code)
	require.Equal(t, core.EvSendMessage, e.Event)
	require.Empty(t, frames(t, bob.conn))

	f.push(t, alice, core.EvTyping, map[string]any{"meeting_id": mid, "is_typing": true})
	typing := lastFrame[messaging.TypingEvent](t, frames(t, bob.conn), core.EvUserTyping)
	require.Equal(t, domain.UserID("alice"), typing.UserID)
	require.True(t, typing.IsTyping)

	// Over-budget typing drops without even an error reply.
	f.push(t, alice, core.EvTyping, map[string]any{"meeting_id": mid, "is_typing": true})
	require.Empty(t, frames(t, alice.conn))
	require.Empty(t, frames(t, bob.conn))
}
