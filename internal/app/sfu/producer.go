package sfu

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
)

// subscription is one consumer's standing request against a producer: the
// layer it wants and the relay it is currently fed from (-1 while no layer
// has arrived yet).
type subscription struct {
	out     *OutTrack
	desired int
	actual  int
}

// producer is the engine handle for one participant's published media. Video
// producers own up to three relays, one per simulcast layer keyed by RID;
// audio uses the single low slot. Subscribers are re-homed whenever a better
// matching layer shows up.
type producer struct {
	id    string
	kind  core.MediaKind
	owner *transport

	mu     sync.Mutex
	layers [core.SpatialLayerCount]*Relay
	subs   map[string]*subscription

	closed atomic.Bool
}

func newProducer(id string, kind core.MediaKind, owner *transport) *producer {
	return &producer{
		id:    id,
		kind:  kind,
		owner: owner,
		subs:  make(map[string]*subscription),
	}
}

func (p *producer) ID() string           { return p.id }
func (p *producer) Kind() core.MediaKind { return p.kind }

func layerOfRID(rid string) int {
	switch rid {
	case "r1":
		return core.SpatialLayerMedium
	case "r2":
		return core.SpatialLayerHigh
	default:
		return core.SpatialLayerLow
	}
}

// attachTrack binds an arriving remote track to its simulcast slot and starts
// the relay loop. Existing subscribers are re-homed if this layer matches
// their request better than what they were getting.
func (p *producer) attachTrack(ctx context.Context, track *webrtc.TrackRemote, keyframe func()) {
	if p.closed.Load() {
		return
	}
	layer := 0
	if p.kind == core.MediaVideo {
		layer = layerOfRID(track.RID())
	}

	logger := log.With().
		Str("module", "sfu.relay").
		Str("producer", p.id).
		Str("kind", string(p.kind)).
		Int("layer", layer).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := newRelay(track, cancel, keyframe)

	p.mu.Lock()
	if old := p.layers[layer]; old != nil {
		logger.Info().Msg("replacing relay for layer")
		old.stop()
	}
	p.layers[layer] = relay
	p.rehomeLocked()
	p.mu.Unlock()

	logger.Info().Msg("relay started")
	go relay.loop(relayCtx, &logger)
}

// bestLayerLocked picks the closest available layer at or below the request,
// falling back upward when only better tiers exist.
func (p *producer) bestLayerLocked(desired int) int {
	for i := desired; i >= 0; i-- {
		if p.layers[i] != nil {
			return i
		}
	}
	for i := desired + 1; i < core.SpatialLayerCount; i++ {
		if p.layers[i] != nil {
			return i
		}
	}
	return -1
}

func (p *producer) rehomeLocked() {
	for id, sub := range p.subs {
		best := p.bestLayerLocked(sub.desired)
		if best == sub.actual {
			continue
		}
		if sub.actual >= 0 && p.layers[sub.actual] != nil {
			p.layers[sub.actual].Detach(id)
		}
		if best >= 0 {
			p.layers[best].Attach(id, sub.out)
		}
		sub.actual = best
	}
}

// addSub registers a consumer leg. Media starts flowing once a relay exists
// for a suitable layer and the consumer resumes.
func (p *producer) addSub(consumerID string, out *OutTrack, desired int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub := &subscription{out: out, desired: desired, actual: -1}
	p.subs[consumerID] = sub
	if best := p.bestLayerLocked(desired); best >= 0 {
		p.layers[best].Attach(consumerID, out)
		sub.actual = best
	}
}

// moveSub retargets a consumer to another layer, keeping the same OutTrack so
// pause state survives the move.
func (p *producer) moveSub(consumerID string, desired int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[consumerID]
	if !ok {
		return
	}
	sub.desired = desired
	best := p.bestLayerLocked(desired)
	if best == sub.actual {
		return
	}
	if sub.actual >= 0 && p.layers[sub.actual] != nil {
		p.layers[sub.actual].Detach(consumerID)
	}
	if best >= 0 {
		p.layers[best].Attach(consumerID, sub.out)
	}
	sub.actual = best
}

func (p *producer) removeSub(consumerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sub, ok := p.subs[consumerID]
	if !ok {
		return
	}
	if sub.actual >= 0 && p.layers[sub.actual] != nil {
		p.layers[sub.actual].Detach(consumerID)
	}
	sub.out.MarkDead()
	delete(p.subs, consumerID)
}

// Close stops every relay and releases all subscriber legs.
func (p *producer) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	for i, relay := range p.layers {
		if relay != nil {
			relay.stop()
			p.layers[i] = nil
		}
	}
	for _, sub := range p.subs {
		sub.out.MarkDead()
	}
	p.subs = make(map[string]*subscription)
	p.mu.Unlock()

	if p.owner != nil {
		p.owner.removeProducer(p.kind)
	}
	log.Info().Str("module", "sfu.producer").Str("producer", p.id).Str("kind", string(p.kind)).Msg("producer closed")
}
