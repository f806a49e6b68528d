package sfu

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// keyframeInterval paces PLI requests toward the producer while a video relay
// has at least one live subscriber.
const keyframeInterval = 3 * time.Second

// Relay forwards one remote track (one simulcast layer of one producer) to
// every subscribed OutTrack. The read loop never blocks on a subscriber:
// paused legs are skipped, dead legs are swept after the write pass.
type Relay struct {
	src trackSource

	mu   sync.RWMutex
	outs map[string]*OutTrack

	cancel   context.CancelFunc
	keyframe func()
}

// trackSource is what the relay needs from webrtc.TrackRemote; narrowed so
// tests can feed synthetic packets.
type trackSource interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

func newRelay(src trackSource, cancel context.CancelFunc, keyframe func()) *Relay {
	return &Relay{
		src:      src,
		outs:     make(map[string]*OutTrack),
		cancel:   cancel,
		keyframe: keyframe,
	}
}

// loop reads RTP from the source until the context ends or the track errors,
// forwarding each packet to the live subscribers.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	if r.keyframe != nil {
		go r.keyframeLoop(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay done, releasing subscribers")
			r.markAllDead()
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("relay source ended")
			r.markAllDead()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) keyframeLoop(ctx context.Context) {
	ticker := time.NewTicker(keyframeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.hasLive() {
				r.keyframe()
			}
		}
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[string]*OutTrack, len(r.outs))
	maps.Copy(snapshot, r.outs)
	r.mu.RUnlock()

	var dead []string
	for id, ot := range snapshot {
		switch ot.State() {
		case trackStateDead:
			dead = append(dead, id)
		case trackStatePaused:
		case trackStateLive:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Debug().Err(err).Str("consumer", id).Msg("relay write failed, dropping subscriber")
				ot.MarkDead()
				dead = append(dead, id)
			}
		}
	}

	if len(dead) > 0 {
		r.mu.Lock()
		for _, id := range dead {
			delete(r.outs, id)
		}
		r.mu.Unlock()
	}
}

func (r *Relay) hasLive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ot := range r.outs {
		if ot.State() == trackStateLive {
			return true
		}
	}
	return false
}

func (r *Relay) markAllDead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outs {
		ot.MarkDead()
	}
}

// Attach subscribes a consumer leg and immediately asks the producer for a
// keyframe so the new subscriber does not wait out a full GOP.
func (r *Relay) Attach(consumerID string, ot *OutTrack) {
	r.mu.Lock()
	r.outs[consumerID] = ot
	r.mu.Unlock()
	if r.keyframe != nil {
		r.keyframe()
	}
}

// Detach removes a consumer leg without touching its state, so the same
// OutTrack can be re-attached to a sibling layer.
func (r *Relay) Detach(consumerID string) {
	r.mu.Lock()
	delete(r.outs, consumerID)
	r.mu.Unlock()
}

func (r *Relay) stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.markAllDead()
}

func (r *Relay) subscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outs)
}
