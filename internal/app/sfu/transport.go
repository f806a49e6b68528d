package sfu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
)

// sessionDesc is the engine-opaque negotiation blob exchanged with clients.
type sessionDesc struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// transportParams is what a client needs to build its peer connection before
// negotiating.
type transportParams struct {
	Direction  core.Direction `json:"direction"`
	ICEServers []string       `json:"ice_servers"`
}

// transport wraps one PeerConnection between a participant and a media
// worker. Send transports receive the client's tracks and feed relays; recv
// transports carry consumer legs outward. Negotiation is offer/answer with
// full ICE gathering, no trickle.
type transport struct {
	id         string
	direction  core.Direction
	pc         *webrtc.PeerConnection
	iceServers []string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	producers map[core.MediaKind]*producer
	consumers map[string]*consumer
	pending   []*webrtc.TrackRemote

	onNegotiate func(json.RawMessage)
	closed      atomic.Bool
}

func newTransport(direction core.Direction, pc *webrtc.PeerConnection, iceServers []string) *transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &transport{
		id:         uuid.NewString(),
		direction:  direction,
		pc:         pc,
		iceServers: iceServers,
		ctx:        ctx,
		cancel:     cancel,
		producers:  make(map[core.MediaKind]*producer),
		consumers:  make(map[string]*consumer),
	}
}

func (t *transport) start() {
	t.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "sfu.transport").Str("transport", t.id).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			t.cancel()
		}
	})

	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "sfu.transport").Str("transport", t.id).Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			t.cancel()
		}
	})

	if t.direction == core.DirectionSend {
		t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			log.Info().
				Str("module", "sfu.transport").
				Str("transport", t.id).
				Str("kind", track.Kind().String()).
				Str("track_id", track.ID()).
				Str("rid", track.RID()).
				Msg("remote track arrived")
			t.bindTrack(track)
		})
	}
}

func kindOf(t webrtc.RTPCodecType) core.MediaKind {
	if t == webrtc.RTPCodecTypeAudio {
		return core.MediaAudio
	}
	return core.MediaVideo
}

func codecCapability(kind core.MediaKind) webrtc.RTPCodecCapability {
	if kind == core.MediaAudio {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

// bindTrack routes an arriving remote track to its producer, or parks it
// until Produce declares one for that kind.
func (t *transport) bindTrack(track *webrtc.TrackRemote) {
	kind := kindOf(track.Kind())

	t.mu.Lock()
	p, ok := t.producers[kind]
	if !ok {
		t.pending = append(t.pending, track)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	p.attachTrack(t.ctx, track, t.keyframeFunc(track))
}

func (t *transport) keyframeFunc(track *webrtc.TrackRemote) func() {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return nil
	}
	ssrc := uint32(track.SSRC())
	return func() {
		if err := t.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}}); err != nil {
			log.Debug().Str("module", "sfu.transport").Str("transport", t.id).Err(err).Msg("PLI write failed")
		}
	}
}

func (t *transport) ID() string                { return t.id }
func (t *transport) Direction() core.Direction { return t.direction }

func (t *transport) Info() core.TransportInfo {
	params, _ := json.Marshal(transportParams{Direction: t.direction, ICEServers: t.iceServers})
	return core.TransportInfo{ID: t.id, Params: params}
}

func (t *transport) OnNegotiationNeeded(fn func(params json.RawMessage)) {
	t.onNegotiate = fn
}

// Connect drives one negotiation step. A client offer is answered in the
// return value; a client answer to a server-initiated offer completes the
// exchange and returns nil.
func (t *transport) Connect(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var sd sessionDesc
	if err := json.Unmarshal(params, &sd); err != nil {
		return nil, core.Reject(core.CodeBadPayload, "malformed negotiation parameters")
	}

	switch strings.ToLower(sd.Type) {
	case "offer":
		answer, err := t.applyOffer(sd.SDP)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(sessionDesc{Type: "answer", SDP: answer.SDP})
		if err != nil {
			return nil, err
		}
		return raw, nil
	case "answer":
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sd.SDP}
		if err := t.pc.SetRemoteDescription(desc); err != nil {
			return nil, fmt.Errorf("apply answer: %w", err)
		}
		return nil, nil
	default:
		return nil, core.Reject(core.CodeBadPayload, "negotiation type must be offer or answer")
	}
}

func (t *transport) applyOffer(sdp string) (*webrtc.SessionDescription, error) {
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("apply offer: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete
	return t.pc.LocalDescription(), nil
}

// renegotiate sends a server-initiated offer through the negotiation sink.
// Needed after consumer tracks are added to a recv transport.
func (t *transport) renegotiate() error {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	local := t.pc.LocalDescription()
	raw, err := json.Marshal(sessionDesc{Type: "offer", SDP: local.SDP})
	if err != nil {
		return err
	}
	if t.onNegotiate == nil {
		log.Warn().Str("module", "sfu.transport").Str("transport", t.id).Msg("no negotiation sink, offer dropped")
		return nil
	}
	t.onNegotiate(raw)
	return nil
}

// Produce declares a media publication on a send transport. The relay starts
// when the matching remote track arrives; tracks that arrived early are bound
// immediately.
func (t *transport) Produce(ctx context.Context, kind core.MediaKind, rtpParameters json.RawMessage, encodings []core.SimulcastEncoding) (core.Producer, error) {
	if t.direction != core.DirectionSend {
		return nil, core.Reject(core.CodeInvalidDirection, "produce requires a send transport")
	}

	t.mu.Lock()
	if _, dup := t.producers[kind]; dup {
		t.mu.Unlock()
		return nil, core.Reject(core.CodeDuplicateProducer, "transport already produces %s", kind)
	}
	p := newProducer(uuid.NewString(), kind, t)
	t.producers[kind] = p

	var matched []*webrtc.TrackRemote
	rest := t.pending[:0]
	for _, track := range t.pending {
		if kindOf(track.Kind()) == kind {
			matched = append(matched, track)
		} else {
			rest = append(rest, track)
		}
	}
	t.pending = rest
	t.mu.Unlock()

	for _, track := range matched {
		p.attachTrack(t.ctx, track, t.keyframeFunc(track))
	}
	return p, nil
}

// Consume attaches a producer's media to this recv transport as a new,
// paused consumer leg, then renegotiates so the client learns about the
// added track.
func (t *transport) Consume(ctx context.Context, cp core.Producer, rtpCapabilities json.RawMessage) (core.Consumer, error) {
	if t.direction != core.DirectionRecv {
		return nil, core.Reject(core.CodeInvalidDirection, "consume requires a recv transport")
	}
	prod, ok := cp.(*producer)
	if !ok {
		return nil, fmt.Errorf("producer handle from a different engine")
	}
	if err := checkCapabilities(rtpCapabilities, prod.kind); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticRTP(codecCapability(prod.kind), id, prod.id)
	if err != nil {
		return nil, fmt.Errorf("create local track: %w", err)
	}
	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}

	out := NewOutTrack(local)
	desired := core.SpatialLayerLow
	if prod.kind == core.MediaVideo {
		desired = core.SpatialLayerHigh
	}
	prod.addSub(id, out, desired)

	c := &consumer{id: id, kind: prod.kind, prod: prod, out: out, sender: sender, owner: t}
	t.mu.Lock()
	t.consumers[id] = c
	t.mu.Unlock()

	if err := t.renegotiate(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// checkCapabilities verifies the client can receive the producer's codec.
func checkCapabilities(rtpCapabilities json.RawMessage, kind core.MediaKind) error {
	var caps struct {
		Codecs []struct {
			MimeType string `json:"mimeType"`
		} `json:"codecs"`
	}
	if err := json.Unmarshal(rtpCapabilities, &caps); err != nil {
		return core.Reject(core.CodeIncompatibleCaps, "malformed rtp capabilities")
	}
	want := codecCapability(kind).MimeType
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, want) {
			return nil
		}
	}
	return core.Reject(core.CodeIncompatibleCaps, "client cannot receive %s", want)
}

func (t *transport) removeProducer(kind core.MediaKind) {
	t.mu.Lock()
	delete(t.producers, kind)
	t.mu.Unlock()
}

func (t *transport) removeConsumer(id string) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}

func (t *transport) removeSender(sender *webrtc.RTPSender) error {
	if t.closed.Load() {
		return nil
	}
	return t.pc.RemoveTrack(sender)
}

func (t *transport) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.cancel()

	t.mu.Lock()
	consumers := make([]*consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.consumers = make(map[string]*consumer)
	producers := make([]*producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	t.producers = make(map[core.MediaKind]*producer)
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}

	if err := t.pc.Close(); err != nil {
		log.Error().Str("module", "sfu.transport").Str("transport", t.id).Err(err).Msg("close error")
	} else {
		log.Info().Str("module", "sfu.transport").Str("transport", t.id).Msg("closed")
	}
}
