package core

import (
	"context"
	"encoding/json"

	"github.com/campushub/meetcore/internal/domain"
)

// EnvelopeScope selects who an inter-instance envelope is for.
type EnvelopeScope string

const (
	ScopeUser EnvelopeScope = "user"
	ScopeRoom EnvelopeScope = "room"
)

// Envelope is one event published to sibling instances so connections held
// elsewhere still see room and user events originating here.
type Envelope struct {
	Origin  string           `json:"origin"`
	Scope   EnvelopeScope    `json:"scope"`
	User    domain.UserID    `json:"user,omitempty"`
	Meeting domain.MeetingID `json:"meeting,omitempty"`
	Exclude domain.UserID    `json:"exclude,omitempty"`
	Event   string           `json:"event"`
	Payload json.RawMessage  `json:"payload"`
}

// EventBus bridges event fan-out across process instances. Publish is
// fire-and-forget from the caller's perspective; delivery to remote members is
// best-effort exactly like local delivery.
type EventBus interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe starts delivering envelopes from other instances to handler
	// until ctx ends. Envelopes with this instance's origin are filtered out.
	Subscribe(ctx context.Context, handler func(Envelope)) error
	Close() error
}
