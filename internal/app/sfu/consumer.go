package sfu

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
)

// consumer is the engine handle for one subscription, pairing a producer's
// relay leg with the RTPSender on the subscriber's recv transport. Pause and
// resume never touch the peer connection: they only flip the OutTrack state
// the relay loop reads.
type consumer struct {
	id     string
	kind   core.MediaKind
	prod   *producer
	out    *OutTrack
	sender *webrtc.RTPSender
	owner  *transport
	closed atomic.Bool
}

func (c *consumer) ID() string           { return c.id }
func (c *consumer) Kind() core.MediaKind { return c.kind }
func (c *consumer) ProducerID() string   { return c.prod.id }

func (c *consumer) Paused() bool { return c.out.State() != trackStateLive }

func (c *consumer) Pause() error {
	c.out.MarkPaused()
	return nil
}

func (c *consumer) Resume() error {
	c.out.MarkLive()
	return nil
}

// SetPreferredLayers re-homes the consumer's leg onto another simulcast
// relay. The temporal argument is accepted for symmetry; relayed layers
// always carry their full frame rate.
func (c *consumer) SetPreferredLayers(spatial, temporal int) error {
	if c.closed.Load() {
		return core.Reject(core.CodeConsumerNotFound, "consumer %s is closed", c.id)
	}
	c.prod.moveSub(c.id, spatial)
	return nil
}

func (c *consumer) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.prod.removeSub(c.id)
	if c.owner == nil {
		return
	}
	if c.sender != nil {
		if err := c.owner.removeSender(c.sender); err != nil {
			log.Debug().Str("module", "sfu.consumer").Str("consumer", c.id).Err(err).Msg("sender removal failed")
		}
	}
	c.owner.removeConsumer(c.id)
}
