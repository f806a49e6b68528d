package bus

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
)

const channel = "meetcore:events"

// RedisBus relays envelopes between instances over one pub/sub channel. Every
// instance receives everything and filters by origin, mirroring how the local
// registry filters by connection.
type RedisBus struct {
	rdb    *redis.Client
	origin string
	pubsub *redis.PubSub
}

func NewRedisBus(rdb *redis.Client, instanceID string) *RedisBus {
	return &RedisBus{rdb: rdb, origin: instanceID}
}

func (b *RedisBus) Publish(ctx context.Context, env core.Envelope) error {
	env.Origin = b.origin
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, data).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, handler func(core.Envelope)) error {
	b.pubsub = b.rdb.Subscribe(ctx, channel)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := b.pubsub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env core.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Warn().Str("module", "bus.redis").Err(err).Msg("dropping malformed envelope")
					continue
				}
				if env.Origin == b.origin {
					continue
				}
				handler(env)
			}
		}
	}()
	log.Info().Str("module", "bus.redis").Str("instance", b.origin).Str("channel", channel).Msg("subscribed to event bus")
	return nil
}

func (b *RedisBus) Close() error {
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
