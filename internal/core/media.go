package core

import (
	"context"
	"encoding/json"
)

type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool { return k == MediaAudio || k == MediaVideo }

// Direction of a transport relative to the client.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func (d Direction) Valid() bool { return d == DirectionSend || d == DirectionRecv }

// Spatial layers of a simulcast video producer, low to high.
const (
	SpatialLayerLow    = 0
	SpatialLayerMedium = 1
	SpatialLayerHigh   = 2
	SpatialLayerCount  = 3

	// TemporalLayerMax is always requested so frame rate stays smooth while
	// spatial resolution adapts.
	TemporalLayerMax = 2
)

// SimulcastEncoding is one bitrate tier of a video producer.
type SimulcastEncoding struct {
	RID        string `json:"rid"`
	MaxBitrate int    `json:"max_bitrate"`
	ScaleDown  int    `json:"scale_resolution_down_by"`
}

// SimulcastEncodings are the three tiers every video producer carries, so a
// consumer can pick a tier independently of the sender's uplink.
func SimulcastEncodings() []SimulcastEncoding {
	return []SimulcastEncoding{
		{RID: "r0", MaxBitrate: 100_000, ScaleDown: 4},
		{RID: "r1", MaxBitrate: 300_000, ScaleDown: 2},
		{RID: "r2", MaxBitrate: 900_000, ScaleDown: 1},
	}
}

// TransportInfo is what the client needs to finish ICE/DTLS negotiation.
// Params is engine-specific and opaque to the orchestrator.
type TransportInfo struct {
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// MediaEngine abstracts the SFU engine. This core orchestrates its resources
// (routers, transports, producers, consumers) and never touches the media
// plane itself.
type MediaEngine interface {
	// CreateRouter allocates a router on one of the engine's media workers.
	CreateRouter(ctx context.Context) (Router, error)
	// Workers reports the number of live media workers.
	Workers() int
	Close()
}

// Router is the per-room media hub on one worker.
type Router interface {
	ID() string
	// RTPCapabilities is the opaque capability blob the joining client needs
	// before it can negotiate transports.
	RTPCapabilities() json.RawMessage
	CreateTransport(ctx context.Context, direction Direction) (Transport, error)
	// Closed reports whether the router (or its worker) is gone.
	Closed() bool
	Close()
}

// Transport is one negotiated path between a client and the engine,
// one per participant per direction.
type Transport interface {
	ID() string
	Direction() Direction
	// Info returns the negotiation parameters for the client.
	Info() TransportInfo
	// Connect applies the client's negotiation blob (engine-specific) and
	// returns response parameters when the engine has any, nil otherwise.
	Connect(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
	// Produce binds an incoming track on a send transport. Video producers
	// carry the given simulcast encodings.
	Produce(ctx context.Context, kind MediaKind, rtpParameters json.RawMessage, encodings []SimulcastEncoding) (Producer, error)
	// Consume attaches the producer's media to a recv transport. Consumers
	// start paused; the engine must verify rtpCapabilities compatibility.
	Consume(ctx context.Context, p Producer, rtpCapabilities json.RawMessage) (Consumer, error)
	// OnNegotiationNeeded fires when the engine needs another client round
	// trip (e.g. a consumer track was attached).
	OnNegotiationNeeded(func(params json.RawMessage))
	Close()
}

// Producer is a media source published by one participant.
type Producer interface {
	ID() string
	Kind() MediaKind
	Close()
}

// Consumer is one participant's subscription to another's producer.
type Consumer interface {
	ID() string
	Kind() MediaKind
	ProducerID() string
	Paused() bool
	Pause() error
	Resume() error
	// SetPreferredLayers selects the simulcast tier; valid for video only.
	SetPreferredLayers(spatial, temporal int) error
	Close()
}
