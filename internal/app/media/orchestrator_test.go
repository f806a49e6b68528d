package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

// The fake engine records every handle it hands out so tests can assert that
// teardown reached each one.

type fakeEngine struct {
	mu      sync.Mutex
	routers []*fakeRouter
	fail    bool
}

func (e *fakeEngine) CreateRouter(context.Context) (core.Router, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return nil, errors.New("no live workers")
	}
	r := &fakeRouter{id: fmt.Sprintf("router-%d", len(e.routers)+1)}
	e.routers = append(e.routers, r)
	return r, nil
}

func (e *fakeEngine) Workers() int { return 2 }
func (e *fakeEngine) Close()       {}

type fakeRouter struct {
	id     string
	closed atomic.Bool

	mu         sync.Mutex
	transports []*fakeTransport
}

func (r *fakeRouter) ID() string { return r.id }
func (r *fakeRouter) RTPCapabilities() json.RawMessage {
	return json.RawMessage(`{"codecs":["opus","vp8"]}`)
}

func (r *fakeRouter) CreateTransport(_ context.Context, d core.Direction) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &fakeTransport{id: fmt.Sprintf("%s-t%d", r.id, len(r.transports)+1), direction: d}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *fakeRouter) Closed() bool { return r.closed.Load() }
func (r *fakeRouter) Close()       { r.closed.Store(true) }

type fakeTransport struct {
	id         string
	direction  core.Direction
	closed     atomic.Bool
	onNeg      func(json.RawMessage)
	consumeErr error

	mu        sync.Mutex
	producers []*fakeProducer
	consumers []*fakeConsumer
}

func (t *fakeTransport) ID() string                { return t.id }
func (t *fakeTransport) Direction() core.Direction { return t.direction }

func (t *fakeTransport) Info() core.TransportInfo {
	return core.TransportInfo{ID: t.id, Params: json.RawMessage(`{"ice":"candidates"}`)}
}

func (t *fakeTransport) Connect(context.Context, json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"dtls":"ack"}`), nil
}

func (t *fakeTransport) Produce(_ context.Context, kind core.MediaKind, _ json.RawMessage, encodings []core.SimulcastEncoding) (core.Producer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &fakeProducer{id: fmt.Sprintf("%s-p%d", t.id, len(t.producers)+1), kind: kind, encodings: encodings}
	t.producers = append(t.producers, p)
	return p, nil
}

func (t *fakeTransport) Consume(_ context.Context, p core.Producer, _ json.RawMessage) (core.Consumer, error) {
	if t.consumeErr != nil {
		return nil, t.consumeErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &fakeConsumer{id: fmt.Sprintf("%s-c%d", t.id, len(t.consumers)+1), kind: p.Kind(), producerID: p.ID()}
	c.paused.Store(true)
	t.consumers = append(t.consumers, c)
	return c, nil
}

func (t *fakeTransport) OnNegotiationNeeded(fn func(json.RawMessage)) { t.onNeg = fn }
func (t *fakeTransport) Close()                                       { t.closed.Store(true) }

type fakeProducer struct {
	id        string
	kind      core.MediaKind
	encodings []core.SimulcastEncoding
	closed    atomic.Bool
}

func (p *fakeProducer) ID() string           { return p.id }
func (p *fakeProducer) Kind() core.MediaKind { return p.kind }
func (p *fakeProducer) Close()               { p.closed.Store(true) }

type fakeConsumer struct {
	id         string
	kind       core.MediaKind
	producerID string
	paused     atomic.Bool
	closed     atomic.Bool
	spatial    atomic.Int32
	temporal   atomic.Int32
}

func (c *fakeConsumer) ID() string           { return c.id }
func (c *fakeConsumer) Kind() core.MediaKind { return c.kind }
func (c *fakeConsumer) ProducerID() string   { return c.producerID }
func (c *fakeConsumer) Paused() bool         { return c.paused.Load() }
func (c *fakeConsumer) Pause() error         { c.paused.Store(true); return nil }
func (c *fakeConsumer) Resume() error        { c.paused.Store(false); return nil }

func (c *fakeConsumer) SetPreferredLayers(spatial, temporal int) error {
	c.spatial.Store(int32(spatial))
	c.temporal.Store(int32(temporal))
	return nil
}

func (c *fakeConsumer) Close() { c.closed.Store(true) }

func newTestOrchestrator() (*Orchestrator, *fakeEngine) {
	e := &fakeEngine{}
	return NewOrchestrator(e), e
}

// openRoomWithPair sets up meeting m with p1 publishing audio and video and
// p2 consuming both, the smallest fully wired room.
func openRoomWithPair(t *testing.T, o *Orchestrator, m domain.MeetingID) (videoConsumerID, audioConsumerID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, o.CreateRoom(ctx, m))

	_, err := o.CreateTransport(ctx, m, "p1", core.DirectionSend)
	require.NoError(t, err)
	_, err = o.CreateTransport(ctx, m, "p2", core.DirectionRecv)
	require.NoError(t, err)

	_, err = o.Produce(ctx, m, "p1", core.MediaVideo, nil)
	require.NoError(t, err)
	_, err = o.Produce(ctx, m, "p1", core.MediaAudio, nil)
	require.NoError(t, err)

	vres, err := o.Consume(ctx, m, "p2", "p1", core.MediaVideo, nil)
	require.NoError(t, err)
	ares, err := o.Consume(ctx, m, "p2", "p1", core.MediaAudio, nil)
	require.NoError(t, err)
	return vres.ConsumerID, ares.ConsumerID
}

func TestCreateRoomIsIdempotent(t *testing.T) {
	o, e := newTestOrchestrator()
	ctx := context.Background()

	require.NoError(t, o.CreateRoom(ctx, "m1"))
	require.NoError(t, o.CreateRoom(ctx, "m1"))
	require.Len(t, e.routers, 1)
	require.JSONEq(t, `{"codecs":["opus","vp8"]}`, string(o.RoomCapabilities("m1")))
	require.Equal(t, 1, o.Snapshot().Routers)
}

func TestCreateRoomEngineFailure(t *testing.T) {
	o, e := newTestOrchestrator()
	e.fail = true

	require.Error(t, o.CreateRoom(context.Background(), "m1"))
	require.Nil(t, o.RoomCapabilities("m1"))
	_, err := o.CreateTransport(context.Background(), "m1", "p1", core.DirectionSend)
	require.Equal(t, core.CodeRouterNotFound, core.CodeOf(err))
}

func TestDegradedModeWithoutEngine(t *testing.T) {
	o := NewOrchestrator(nil)
	ctx := context.Background()

	require.False(t, o.Enabled())
	require.Zero(t, o.Workers())
	require.NoError(t, o.CreateRoom(ctx, "m1"), "rooms still open without media")
	require.Nil(t, o.RoomCapabilities("m1"))

	_, err := o.CreateTransport(ctx, "m1", "p1", core.DirectionSend)
	require.Equal(t, core.CodeSFUUnavailable, core.CodeOf(err))
}

func TestCreateTransportValidation(t *testing.T) {
	o, _ := newTestOrchestrator()
	ctx := context.Background()
	require.NoError(t, o.CreateRoom(ctx, "m1"))

	_, err := o.CreateTransport(ctx, "m1", "p1", "sideways")
	require.Equal(t, core.CodeInvalidDirection, core.CodeOf(err))

	_, err = o.CreateTransport(ctx, "other", "p1", core.DirectionSend)
	require.Equal(t, core.CodeRouterNotFound, core.CodeOf(err))
}

func TestCreateTransportReplacesSameSlot(t *testing.T) {
	o, e := newTestOrchestrator()
	ctx := context.Background()
	require.NoError(t, o.CreateRoom(ctx, "m1"))

	first, err := o.CreateTransport(ctx, "m1", "p1", core.DirectionSend)
	require.NoError(t, err)
	second, err := o.CreateTransport(ctx, "m1", "p1", core.DirectionSend)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	require.Equal(t, 1, o.Snapshot().Transports, "one slot per participant and direction")
	require.True(t, e.routers[0].transports[0].closed.Load(), "replaced transport is closed")

	_, err = o.ConnectTransport(ctx, first.ID, nil)
	require.Equal(t, core.CodeTransportNotFound, core.CodeOf(err))
	resp, err := o.ConnectTransport(ctx, second.ID, json.RawMessage(`{"dtls":"params"}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"dtls":"ack"}`, string(resp))
}

func TestProduce(t *testing.T) {
	o, e := newTestOrchestrator()
	ctx := context.Background()
	require.NoError(t, o.CreateRoom(ctx, "m1"))
	_, err := o.CreateTransport(ctx, "m1", "p1", core.DirectionSend)
	require.NoError(t, err)

	res, err := o.Produce(ctx, "m1", "p1", core.MediaVideo, nil)
	require.NoError(t, err)
	require.Equal(t, core.MediaVideo, res.Kind)
	require.Equal(t, domain.ParticipantID("p1"), res.Participant)

	// Video always carries the three simulcast tiers, audio none.
	transport := e.routers[0].transports[0]
	require.Len(t, transport.producers[0].encodings, 3)
	require.Equal(t, "r0", transport.producers[0].encodings[0].RID)

	_, err = o.Produce(ctx, "m1", "p1", core.MediaAudio, nil)
	require.NoError(t, err)
	require.Empty(t, transport.producers[1].encodings)

	_, err = o.Produce(ctx, "m1", "p1", core.MediaVideo, nil)
	require.Equal(t, core.CodeDuplicateProducer, core.CodeOf(err))

	_, err = o.Produce(ctx, "m1", "p1", "text", nil)
	require.Equal(t, core.CodeBadPayload, core.CodeOf(err))

	_, err = o.Produce(ctx, "m1", "p2", core.MediaVideo, nil)
	require.Equal(t, core.CodeTransportNotFound, core.CodeOf(err), "producing needs a send transport")
}

func TestConsume(t *testing.T) {
	o, _ := newTestOrchestrator()
	ctx := context.Background()
	videoID, _ := openRoomWithPair(t, o, "m1")
	require.NotEmpty(t, videoID)

	res, err := o.Consume(ctx, "m1", "p2", "p1", core.MediaVideo, nil)
	require.NoError(t, err)
	require.True(t, res.Paused, "consumers start paused")
	require.Equal(t, domain.ParticipantID("p1"), res.ProducerParticipant)

	_, err = o.Consume(ctx, "m1", "p2", "ghost", core.MediaVideo, nil)
	require.Equal(t, core.CodeProducerNotFound, core.CodeOf(err))

	_, err = o.Consume(ctx, "m1", "p3", "p1", core.MediaVideo, nil)
	require.Equal(t, core.CodeTransportNotFound, core.CodeOf(err), "consuming needs a recv transport")
}

func TestConsumeRejectionPassesThrough(t *testing.T) {
	o, e := newTestOrchestrator()
	ctx := context.Background()
	require.NoError(t, o.CreateRoom(ctx, "m1"))
	_, err := o.CreateTransport(ctx, "m1", "p1", core.DirectionSend)
	require.NoError(t, err)
	_, err = o.CreateTransport(ctx, "m1", "p2", core.DirectionRecv)
	require.NoError(t, err)
	_, err = o.Produce(ctx, "m1", "p1", core.MediaVideo, nil)
	require.NoError(t, err)

	recv := e.routers[0].transports[1]
	recv.consumeErr = core.Reject(core.CodeIncompatibleCaps, "client cannot receive vp8")

	_, err = o.Consume(ctx, "m1", "p2", "p1", core.MediaVideo, nil)
	require.Equal(t, core.CodeIncompatibleCaps, core.CodeOf(err))
}

func TestConsumerPauseResume(t *testing.T) {
	o, e := newTestOrchestrator()
	videoID, _ := openRoomWithPair(t, o, "m1")
	ctx := context.Background()

	consumer := e.routers[0].transports[1].consumers[0]
	require.True(t, consumer.Paused())

	require.NoError(t, o.ResumeConsumer(ctx, videoID))
	require.False(t, consumer.Paused())
	require.NoError(t, o.PauseConsumer(ctx, videoID))
	require.True(t, consumer.Paused())

	require.Equal(t, core.CodeConsumerNotFound, core.CodeOf(o.ResumeConsumer(ctx, "ghost")))
}

func TestSwitchLayer(t *testing.T) {
	o, e := newTestOrchestrator()
	videoID, audioID := openRoomWithPair(t, o, "m1")
	ctx := context.Background()

	require.NoError(t, o.SwitchLayer(ctx, videoID, core.SpatialLayerHigh))
	consumer := e.routers[0].transports[1].consumers[0]
	require.Equal(t, int32(core.SpatialLayerHigh), consumer.spatial.Load())
	require.Equal(t, int32(core.TemporalLayerMax), consumer.temporal.Load())

	require.Equal(t, core.CodeInvalidLayer, core.CodeOf(o.SwitchLayer(ctx, videoID, -1)))
	require.Equal(t, core.CodeInvalidLayer, core.CodeOf(o.SwitchLayer(ctx, videoID, core.SpatialLayerCount)))
	require.Equal(t, core.CodeInvalidLayer, core.CodeOf(o.SwitchLayer(ctx, audioID, core.SpatialLayerLow)))
	require.Equal(t, core.CodeConsumerNotFound, core.CodeOf(o.SwitchLayer(ctx, "ghost", core.SpatialLayerLow)))
}

func TestVideoConsumersOf(t *testing.T) {
	o, _ := newTestOrchestrator()
	videoID, audioID := openRoomWithPair(t, o, "m1")

	ids := o.VideoConsumersOf("m1", "p2")
	require.Equal(t, []string{videoID}, ids, "audio consumer %s is not listed", audioID)
	require.Empty(t, o.VideoConsumersOf("m1", "p1"))
	require.Empty(t, o.VideoConsumersOf("other", "p2"))
}

func TestDisconnectParticipantFreesEverything(t *testing.T) {
	o, e := newTestOrchestrator()
	openRoomWithPair(t, o, "m1")
	ctx := context.Background()

	// Dropping the producer side reaps the other side's consumers too.
	o.DisconnectParticipant(ctx, "m1", "p1")

	counts := o.Snapshot()
	require.Zero(t, counts.Producers)
	require.Zero(t, counts.Consumers)
	require.Equal(t, 1, counts.Transports, "p2's recv transport survives")

	send := e.routers[0].transports[0]
	require.True(t, send.closed.Load())
	for _, p := range send.producers {
		require.True(t, p.closed.Load())
	}
	recv := e.routers[0].transports[1]
	require.False(t, recv.closed.Load())
	for _, c := range recv.consumers {
		require.True(t, c.closed.Load())
	}

	o.DisconnectParticipant(ctx, "m1", "p2")
	require.Zero(t, o.Snapshot().Transports)
	require.True(t, recv.closed.Load())

	// Idempotent.
	o.DisconnectParticipant(ctx, "m1", "p1")
}

func TestCloseRoomTouchesOnlyItsOwnKeys(t *testing.T) {
	o, e := newTestOrchestrator()
	openRoomWithPair(t, o, "m1")
	openRoomWithPair(t, o, "m10")
	ctx := context.Background()

	o.CloseRoom(ctx, "m1")

	counts := o.Snapshot()
	require.Equal(t, 1, counts.Routers)
	require.Equal(t, 2, counts.Transports)
	require.Equal(t, 2, counts.Producers)
	require.Equal(t, 2, counts.Consumers)

	require.True(t, e.routers[0].closed.Load())
	require.False(t, e.routers[1].closed.Load(), "m10 is a different room, not a prefix match")
	require.NotNil(t, o.RoomCapabilities("m10"))
	require.Nil(t, o.RoomCapabilities("m1"))
}

func TestNegotiationForwarding(t *testing.T) {
	o, e := newTestOrchestrator()
	ctx := context.Background()

	type negotiation struct {
		meeting     domain.MeetingID
		participant domain.ParticipantID
		transportID string
		params      json.RawMessage
	}
	var got negotiation
	o.OnNegotiate(func(m domain.MeetingID, p domain.ParticipantID, tid string, params json.RawMessage) {
		got = negotiation{meeting: m, participant: p, transportID: tid, params: params}
	})

	require.NoError(t, o.CreateRoom(ctx, "m1"))
	info, err := o.CreateTransport(ctx, "m1", "p1", core.DirectionRecv)
	require.NoError(t, err)

	transport := e.routers[0].transports[0]
	require.NotNil(t, transport.onNeg)
	transport.onNeg(json.RawMessage(`{"offer":"sdp"}`))

	require.Equal(t, domain.MeetingID("m1"), got.meeting)
	require.Equal(t, domain.ParticipantID("p1"), got.participant)
	require.Equal(t, info.ID, got.transportID)
	require.JSONEq(t, `{"offer":"sdp"}`, string(got.params))
}
