package bus

import (
	"context"

	"github.com/campushub/meetcore/internal/core"
)

// NopBus is wired when Redis is absent and the process runs alone. Publishes
// vanish because there is nobody to hear them.
type NopBus struct{}

func NewNopBus() NopBus { return NopBus{} }

func (NopBus) Publish(context.Context, core.Envelope) error         { return nil }
func (NopBus) Subscribe(context.Context, func(core.Envelope)) error { return nil }
func (NopBus) Close() error                                         { return nil }
