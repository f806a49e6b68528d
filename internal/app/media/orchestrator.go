// Package media owns the mapping from rooms and participants to SFU resource
// handles. All resource maps live here and nowhere else; the room session
// manager drives lifecycle through this orchestrator and never touches engine
// internals.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

// ProduceResult identifies the engine producer created for a participant.
type ProduceResult struct {
	ProducerID  string               `json:"producer_id"`
	Participant domain.ParticipantID `json:"participant_id"`
	Kind        core.MediaKind       `json:"kind"`
}

// ConsumeResult identifies the engine consumer created for a subscription.
// Consumers always start paused; the client resumes once its side is ready.
type ConsumeResult struct {
	ConsumerID          string               `json:"consumer_id"`
	ProducerID          string               `json:"producer_id"`
	ProducerParticipant domain.ParticipantID `json:"producer_participant"`
	Kind                core.MediaKind       `json:"kind"`
	Paused              bool                 `json:"paused"`
}

// NegotiateFunc receives engine-initiated renegotiation offers that must
// reach the transport's owning client.
type NegotiateFunc func(meeting domain.MeetingID, participant domain.ParticipantID, transportID string, params json.RawMessage)

// Orchestrator tracks every live SFU handle under composite string keys:
// transports by meeting:participant:direction, producers by
// meeting:participant:kind, consumers by meeting:consumer:producer:kind.
// Keying by room and participant, never by connection, is what lets a bare
// disconnect find and free everything the connection owned.
type Orchestrator struct {
	mu             sync.RWMutex
	engine         core.MediaEngine
	routers        map[domain.MeetingID]core.Router
	transports     map[string]core.Transport
	transportIndex map[string]string
	producers      map[string]core.Producer
	consumers      map[string]core.Consumer
	consumerIndex  map[string]string

	onNegotiate NegotiateFunc
}

// NewOrchestrator wires the engine; a nil engine puts the orchestrator into
// degraded mode where rooms still open but every media call is rejected, so
// signaling and chat keep working without an SFU.
func NewOrchestrator(engine core.MediaEngine) *Orchestrator {
	return &Orchestrator{
		engine:         engine,
		routers:        make(map[domain.MeetingID]core.Router),
		transports:     make(map[string]core.Transport),
		transportIndex: make(map[string]string),
		producers:      make(map[string]core.Producer),
		consumers:      make(map[string]core.Consumer),
		consumerIndex:  make(map[string]string),
	}
}

// Enabled reports whether an engine is attached.
func (o *Orchestrator) Enabled() bool { return o.engine != nil }

// Workers reports the engine's live worker count, zero in degraded mode.
func (o *Orchestrator) Workers() int {
	if o.engine == nil {
		return 0
	}
	return o.engine.Workers()
}

// OnNegotiate installs the sink for engine-initiated renegotiation.
func (o *Orchestrator) OnNegotiate(fn NegotiateFunc) { o.onNegotiate = fn }

func transportKey(m domain.MeetingID, p domain.ParticipantID, d core.Direction) string {
	return fmt.Sprintf("%s:%s:%s", m, p, d)
}

func producerKey(m domain.MeetingID, p domain.ParticipantID, kind core.MediaKind) string {
	return fmt.Sprintf("%s:%s:%s", m, p, kind)
}

func consumerKey(m domain.MeetingID, consumer, producer domain.ParticipantID, kind core.MediaKind) string {
	return fmt.Sprintf("%s:%s:%s:%s", m, consumer, producer, kind)
}

// CreateRoom allocates a router for the meeting. Without an engine this is a
// quiet no-op. Calling it for a room that already has a router returns the
// existing one.
func (o *Orchestrator) CreateRoom(ctx context.Context, meeting domain.MeetingID) error {
	if o.engine == nil {
		log.Warn().Str("module", "media.orchestrator").Str("meeting", string(meeting)).Msg("no media engine, room opens without media")
		return nil
	}

	o.mu.RLock()
	_, exists := o.routers[meeting]
	o.mu.RUnlock()
	if exists {
		return nil
	}

	router, err := o.engine.CreateRouter(ctx)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}

	o.mu.Lock()
	if _, raced := o.routers[meeting]; raced {
		o.mu.Unlock()
		router.Close()
		return nil
	}
	o.routers[meeting] = router
	o.mu.Unlock()

	log.Info().Str("module", "media.orchestrator").Str("meeting", string(meeting)).Str("router", router.ID()).Msg("room router allocated")
	return nil
}

// RoomCapabilities returns the router's RTP capability blob for the join
// reply, or nil when the room has no media.
func (o *Orchestrator) RoomCapabilities(meeting domain.MeetingID) json.RawMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if r, ok := o.routers[meeting]; ok && !r.Closed() {
		return r.RTPCapabilities()
	}
	return nil
}

// CreateTransport makes one engine transport for the participant in the given
// direction and returns the parameters the client needs to negotiate it.
func (o *Orchestrator) CreateTransport(ctx context.Context, meeting domain.MeetingID, participant domain.ParticipantID, direction core.Direction) (core.TransportInfo, error) {
	if !direction.Valid() {
		return core.TransportInfo{}, core.Reject(core.CodeInvalidDirection, "direction must be send or recv")
	}
	if o.engine == nil {
		return core.TransportInfo{}, core.Reject(core.CodeSFUUnavailable, "media engine is not available")
	}

	o.mu.RLock()
	router, ok := o.routers[meeting]
	o.mu.RUnlock()
	if !ok || router.Closed() {
		return core.TransportInfo{}, core.Reject(core.CodeRouterNotFound, "no media router for meeting %s", meeting)
	}

	t, err := router.CreateTransport(ctx, direction)
	if err != nil {
		return core.TransportInfo{}, fmt.Errorf("create transport: %w", err)
	}
	t.OnNegotiationNeeded(func(params json.RawMessage) {
		if o.onNegotiate != nil {
			o.onNegotiate(meeting, participant, t.ID(), params)
		}
	})

	key := transportKey(meeting, participant, direction)
	o.mu.Lock()
	if old, dup := o.transports[key]; dup {
		delete(o.transportIndex, old.ID())
		old.Close()
	}
	o.transports[key] = t
	o.transportIndex[t.ID()] = key
	o.mu.Unlock()

	log.Info().Str("module", "media.orchestrator").Str("meeting", string(meeting)).Str("participant", string(participant)).Str("direction", string(direction)).Str("transport", t.ID()).Msg("transport created")
	return t.Info(), nil
}

// ConnectTransport applies the client's negotiation parameters to the
// transport identified by its engine id and returns the engine's response
// parameters, if any.
func (o *Orchestrator) ConnectTransport(ctx context.Context, transportID string, params json.RawMessage) (json.RawMessage, error) {
	o.mu.RLock()
	key, ok := o.transportIndex[transportID]
	var t core.Transport
	if ok {
		t = o.transports[key]
	}
	o.mu.RUnlock()
	if t == nil {
		return nil, core.Reject(core.CodeTransportNotFound, "transport %s not found", transportID)
	}
	resp, err := t.Connect(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("connect transport %s: %w", transportID, err)
	}
	return resp, nil
}

// Produce publishes the participant's media on their send transport. Video
// always carries the three simulcast tiers so consumers can pick a quality
// independently of the sender.
func (o *Orchestrator) Produce(ctx context.Context, meeting domain.MeetingID, participant domain.ParticipantID, kind core.MediaKind, rtpParameters json.RawMessage) (ProduceResult, error) {
	if !kind.Valid() {
		return ProduceResult{}, core.Reject(core.CodeBadPayload, "unknown media kind %q", kind)
	}

	o.mu.RLock()
	t, ok := o.transports[transportKey(meeting, participant, core.DirectionSend)]
	_, dup := o.producers[producerKey(meeting, participant, kind)]
	o.mu.RUnlock()
	if !ok {
		return ProduceResult{}, core.Reject(core.CodeTransportNotFound, "no send transport for participant %s", participant)
	}
	if dup {
		return ProduceResult{}, core.Reject(core.CodeDuplicateProducer, "participant %s already produces %s", participant, kind)
	}

	var encodings []core.SimulcastEncoding
	if kind == core.MediaVideo {
		encodings = core.SimulcastEncodings()
	}
	p, err := t.Produce(ctx, kind, rtpParameters, encodings)
	if err != nil {
		return ProduceResult{}, fmt.Errorf("produce %s for %s: %w", kind, participant, err)
	}

	key := producerKey(meeting, participant, kind)
	o.mu.Lock()
	if _, raced := o.producers[key]; raced {
		o.mu.Unlock()
		p.Close()
		return ProduceResult{}, core.Reject(core.CodeDuplicateProducer, "participant %s already produces %s", participant, kind)
	}
	o.producers[key] = p
	o.mu.Unlock()

	log.Info().Str("module", "media.orchestrator").Str("meeting", string(meeting)).Str("participant", string(participant)).Str("kind", string(kind)).Str("producer", p.ID()).Msg("producer created")
	return ProduceResult{ProducerID: p.ID(), Participant: participant, Kind: kind}, nil
}

// Consume subscribes one participant to another's producer on the consumer's
// recv transport. The engine verifies capability compatibility; the consumer
// starts paused.
func (o *Orchestrator) Consume(ctx context.Context, meeting domain.MeetingID, consumerPart, producerPart domain.ParticipantID, kind core.MediaKind, rtpCapabilities json.RawMessage) (ConsumeResult, error) {
	if !kind.Valid() {
		return ConsumeResult{}, core.Reject(core.CodeBadPayload, "unknown media kind %q", kind)
	}

	o.mu.RLock()
	t, hasTransport := o.transports[transportKey(meeting, consumerPart, core.DirectionRecv)]
	p, hasProducer := o.producers[producerKey(meeting, producerPart, kind)]
	o.mu.RUnlock()
	if !hasTransport {
		return ConsumeResult{}, core.Reject(core.CodeTransportNotFound, "no recv transport for participant %s", consumerPart)
	}
	if !hasProducer {
		return ConsumeResult{}, core.Reject(core.CodeProducerNotFound, "participant %s has no %s producer", producerPart, kind)
	}

	c, err := t.Consume(ctx, p, rtpCapabilities)
	if err != nil {
		if core.CodeOf(err) != core.CodeInternal {
			return ConsumeResult{}, err
		}
		return ConsumeResult{}, fmt.Errorf("consume %s from %s: %w", kind, producerPart, err)
	}

	key := consumerKey(meeting, consumerPart, producerPart, kind)
	o.mu.Lock()
	if old, dup := o.consumers[key]; dup {
		delete(o.consumerIndex, old.ID())
		old.Close()
	}
	o.consumers[key] = c
	o.consumerIndex[c.ID()] = key
	o.mu.Unlock()

	log.Info().Str("module", "media.orchestrator").Str("meeting", string(meeting)).Str("consumer_participant", string(consumerPart)).Str("producer_participant", string(producerPart)).Str("kind", string(kind)).Str("consumer", c.ID()).Msg("consumer created paused")
	return ConsumeResult{
		ConsumerID:          c.ID(),
		ProducerID:          p.ID(),
		ProducerParticipant: producerPart,
		Kind:                kind,
		Paused:              true,
	}, nil
}

func (o *Orchestrator) consumerByID(id string) (core.Consumer, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if key, ok := o.consumerIndex[id]; ok {
		if c, ok := o.consumers[key]; ok {
			return c, nil
		}
	}
	return nil, core.Reject(core.CodeConsumerNotFound, "consumer %s not found", id)
}

// ResumeConsumer starts media flow on a consumer the client finished setting
// up.
func (o *Orchestrator) ResumeConsumer(ctx context.Context, consumerID string) error {
	c, err := o.consumerByID(consumerID)
	if err != nil {
		return err
	}
	if err := c.Resume(); err != nil {
		return fmt.Errorf("resume consumer %s: %w", consumerID, err)
	}
	return nil
}

// PauseConsumer halts media flow without tearing the consumer down.
func (o *Orchestrator) PauseConsumer(ctx context.Context, consumerID string) error {
	c, err := o.consumerByID(consumerID)
	if err != nil {
		return err
	}
	if err := c.Pause(); err != nil {
		return fmt.Errorf("pause consumer %s: %w", consumerID, err)
	}
	return nil
}

// SwitchLayer points a video consumer at another simulcast tier. The highest
// temporal layer is always requested so frame rate stays smooth.
func (o *Orchestrator) SwitchLayer(ctx context.Context, consumerID string, spatial int) error {
	if spatial < core.SpatialLayerLow || spatial >= core.SpatialLayerCount {
		return core.Reject(core.CodeInvalidLayer, "spatial layer %d out of range", spatial)
	}
	c, err := o.consumerByID(consumerID)
	if err != nil {
		return err
	}
	if c.Kind() != core.MediaVideo {
		return core.Reject(core.CodeInvalidLayer, "layer switching applies to video consumers only")
	}
	if err := c.SetPreferredLayers(spatial, core.TemporalLayerMax); err != nil {
		return fmt.Errorf("switch consumer %s to layer %d: %w", consumerID, spatial, err)
	}
	log.Info().Str("module", "media.orchestrator").Str("consumer", consumerID).Int("spatial", spatial).Msg("layer switched")
	return nil
}

// VideoConsumersOf lists the ids of the participant's video consumers in the
// meeting. Meeting-wide quality switching walks this list.
func (o *Orchestrator) VideoConsumersOf(meeting domain.MeetingID, participant domain.ParticipantID) []string {
	prefix := fmt.Sprintf("%s:%s:", meeting, participant)
	o.mu.RLock()
	defer o.mu.RUnlock()
	var ids []string
	for key, c := range o.consumers {
		if strings.HasPrefix(key, prefix) && c.Kind() == core.MediaVideo {
			ids = append(ids, c.ID())
		}
	}
	return ids
}

// DisconnectParticipant frees everything the participant holds in the room:
// transports in both directions, their producers and every consumer whose key
// references them on either side. Safe to call any number of times.
func (o *Orchestrator) DisconnectParticipant(ctx context.Context, meeting domain.MeetingID, participant domain.ParticipantID) {
	needle := ":" + string(participant) + ":"

	o.mu.Lock()
	var transports []core.Transport
	for _, d := range []core.Direction{core.DirectionSend, core.DirectionRecv} {
		key := transportKey(meeting, participant, d)
		if t, ok := o.transports[key]; ok {
			delete(o.transports, key)
			delete(o.transportIndex, t.ID())
			transports = append(transports, t)
		}
	}
	var producers []core.Producer
	for key, p := range o.producers {
		if strings.HasPrefix(key, string(meeting)+":") && strings.Contains(key, needle) {
			delete(o.producers, key)
			producers = append(producers, p)
		}
	}
	var consumers []core.Consumer
	for key, c := range o.consumers {
		if strings.HasPrefix(key, string(meeting)+":") && strings.Contains(key, needle) {
			delete(o.consumers, key)
			delete(o.consumerIndex, c.ID())
			consumers = append(consumers, c)
		}
	}
	o.mu.Unlock()

	closeHandles(consumers, producers, transports)
	if len(transports)+len(producers)+len(consumers) > 0 {
		log.Info().Str("module", "media.orchestrator").Str("meeting", string(meeting)).Str("participant", string(participant)).Int("transports", len(transports)).Int("producers", len(producers)).Int("consumers", len(consumers)).Msg("participant media released")
	}
}

// closeHandles closes a tier in parallel and the tiers in order: consumers
// detach from producers, producers release their transports last.
func closeHandles(consumers []core.Consumer, producers []core.Producer, transports []core.Transport) {
	var wg conc.WaitGroup
	for _, c := range consumers {
		wg.Go(c.Close)
	}
	wg.Wait()
	for _, p := range producers {
		wg.Go(p.Close)
	}
	wg.Wait()
	for _, t := range transports {
		wg.Go(t.Close)
	}
	wg.Wait()
}

// CloseRoom frees every handle keyed under the room, then the router itself.
// Only keys of this exact room are touched.
func (o *Orchestrator) CloseRoom(ctx context.Context, meeting domain.MeetingID) {
	prefix := string(meeting) + ":"

	o.mu.Lock()
	var consumers []core.Consumer
	for key, c := range o.consumers {
		if strings.HasPrefix(key, prefix) {
			delete(o.consumers, key)
			delete(o.consumerIndex, c.ID())
			consumers = append(consumers, c)
		}
	}
	var producers []core.Producer
	for key, p := range o.producers {
		if strings.HasPrefix(key, prefix) {
			delete(o.producers, key)
			producers = append(producers, p)
		}
	}
	var transports []core.Transport
	for key, t := range o.transports {
		if strings.HasPrefix(key, prefix) {
			delete(o.transports, key)
			delete(o.transportIndex, t.ID())
			transports = append(transports, t)
		}
	}
	router := o.routers[meeting]
	delete(o.routers, meeting)
	o.mu.Unlock()

	closeHandles(consumers, producers, transports)
	if router != nil {
		router.Close()
	}
	log.Info().Str("module", "media.orchestrator").Str("meeting", string(meeting)).Int("transports", len(transports)).Int("producers", len(producers)).Int("consumers", len(consumers)).Msg("room media closed")
}

// Counts is a live snapshot of tracked handles, used by health reporting.
type Counts struct {
	Routers    int `json:"routers"`
	Transports int `json:"transports"`
	Producers  int `json:"producers"`
	Consumers  int `json:"consumers"`
}

func (o *Orchestrator) Snapshot() Counts {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return Counts{
		Routers:    len(o.routers),
		Transports: len(o.transports),
		Producers:  len(o.producers),
		Consumers:  len(o.consumers),
	}
}

// Close tears down all rooms and the engine.
func (o *Orchestrator) Close() {
	o.mu.RLock()
	meetings := make([]domain.MeetingID, 0, len(o.routers))
	for m := range o.routers {
		meetings = append(meetings, m)
	}
	o.mu.RUnlock()
	for _, m := range meetings {
		o.CloseRoom(context.Background(), m)
	}
	if o.engine != nil {
		o.engine.Close()
	}
}
