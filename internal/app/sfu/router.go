package sfu

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/campushub/meetcore/internal/core"
)

// routerCapabilities is the codec surface every router exposes. Clients use
// it to build their device before creating transports.
var routerCapabilities = mustCapabilities()

func mustCapabilities() json.RawMessage {
	type codec struct {
		MimeType  string `json:"mimeType"`
		ClockRate uint32 `json:"clockRate"`
		Channels  uint16 `json:"channels,omitempty"`
	}
	raw, err := json.Marshal(struct {
		Codecs []codec `json:"codecs"`
	}{
		Codecs: []codec{
			{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		},
	})
	if err != nil {
		panic(err)
	}
	return raw
}

// router is one room's media context, pinned to a single worker so all of a
// room's peer connections share an API instance.
type router struct {
	id     string
	worker *worker
	closed atomic.Bool
}

func newRouter(w *worker) *router {
	return &router{id: uuid.NewString(), worker: w}
}

func (r *router) ID() string { return r.id }

func (r *router) RTPCapabilities() json.RawMessage { return routerCapabilities }

func (r *router) CreateTransport(ctx context.Context, direction core.Direction) (core.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Closed() {
		return nil, fmt.Errorf("router %s is closed", r.id)
	}
	pc, err := r.worker.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	t := newTransport(direction, pc, r.worker.iceServers())
	t.start()
	return t, nil
}

func (r *router) Closed() bool {
	return r.closed.Load() || r.worker.gone()
}

func (r *router) Close() {
	r.closed.Store(true)
}
