package app

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

// Broadcaster pairs local registry fan-out with cross-instance bus publishes
// so callers emit an event once and every device of every target user sees
// it, wherever its connection landed.
type Broadcaster struct {
	reg          *Registry
	bus          core.EventBus
	localMembers func(domain.MeetingID) []domain.UserID
}

func NewBroadcaster(reg *Registry, bus core.EventBus) *Broadcaster {
	return &Broadcaster{reg: reg, bus: bus}
}

// SetLocalMembers installs the room-membership lookup used to resolve
// room-scoped envelopes arriving from sibling instances.
func (b *Broadcaster) SetLocalMembers(fn func(domain.MeetingID) []domain.UserID) {
	b.localMembers = fn
}

// ToUser sends to every device of one user, local and remote.
func (b *Broadcaster) ToUser(ctx context.Context, user domain.UserID, event string, payload any) {
	b.reg.FanOut(user, event, payload)
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Str("module", "app.broadcast").Str("event", event).Err(err).Msg("envelope encode failed")
		return
	}
	env := core.Envelope{Scope: core.ScopeUser, User: user, Event: event, Payload: raw}
	if err := b.bus.Publish(ctx, env); err != nil {
		log.Warn().Str("module", "app.broadcast").Str("event", event).Err(err).Msg("bus publish failed")
	}
}

// ToRoom sends to the given member set locally and publishes one room-scoped
// envelope for siblings to resolve against their own membership. exclude, when
// non-empty, names a user skipped everywhere.
func (b *Broadcaster) ToRoom(ctx context.Context, meeting domain.MeetingID, members []domain.UserID, exclude domain.UserID, event string, payload any) {
	for _, u := range members {
		if exclude != "" && u == exclude {
			continue
		}
		b.reg.FanOut(u, event, payload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Str("module", "app.broadcast").Str("event", event).Err(err).Msg("envelope encode failed")
		return
	}
	env := core.Envelope{Scope: core.ScopeRoom, Meeting: meeting, Exclude: exclude, Event: event, Payload: raw}
	if err := b.bus.Publish(ctx, env); err != nil {
		log.Warn().Str("module", "app.broadcast").Str("event", event).Err(err).Msg("bus publish failed")
	}
}

// HandleEnvelope resolves an envelope from a sibling instance into local
// deliveries. Wire this as the bus subscriber.
func (b *Broadcaster) HandleEnvelope(env core.Envelope) {
	switch env.Scope {
	case core.ScopeUser:
		b.reg.FanOut(env.User, env.Event, env.Payload)
	case core.ScopeRoom:
		if b.localMembers == nil {
			return
		}
		for _, u := range b.localMembers(env.Meeting) {
			if env.Exclude != "" && u == env.Exclude {
				continue
			}
			b.reg.FanOut(u, env.Event, env.Payload)
		}
	default:
		log.Warn().Str("module", "app.broadcast").Str("scope", string(env.Scope)).Msg("unknown envelope scope")
	}
}
