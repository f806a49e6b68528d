package sfu

import (
	"fmt"
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// workerFailureLimit is how many peer connection constructions may fail in a
// row before the worker is declared dead and taken out of rotation.
const workerFailureLimit = 3

// worker owns one configured webrtc API. Routers pin to a worker; a worker
// that keeps failing is reaped and its routers report closed.
type worker struct {
	id      int
	api     *webrtc.API
	cfg     webrtc.Configuration
	dead    atomic.Bool
	fails   atomic.Int32
	onDeath func()
}

func newWorker(id int, stunServers []string) (*worker, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	for _, ext := range []string{
		"urn:ietf:params:rtp-hdrext:sdes:mid",
		"urn:ietf:params:rtp-hdrext:sdes:rtp-stream-id",
		"urn:ietf:params:rtp-hdrext:sdes:repaired-rtp-stream-id",
	} {
		if err := me.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: ext}, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("register header extension: %w", err)
		}
	}

	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(me, reg); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	cfg := webrtc.Configuration{}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	return &worker{
		id:  id,
		api: webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithInterceptorRegistry(reg)),
		cfg: cfg,
	}, nil
}

func (w *worker) newPeerConnection() (*webrtc.PeerConnection, error) {
	if w.dead.Load() {
		return nil, fmt.Errorf("worker %d is dead", w.id)
	}
	pc, err := w.api.NewPeerConnection(w.cfg)
	if err != nil {
		if w.fails.Add(1) >= workerFailureLimit {
			w.die()
		}
		return nil, err
	}
	w.fails.Store(0)
	return pc, nil
}

func (w *worker) die() {
	if !w.dead.CompareAndSwap(false, true) {
		return
	}
	log.Error().Str("module", "sfu.worker").Int("worker", w.id).Msg("worker died, removing from rotation")
	if w.onDeath != nil {
		w.onDeath()
	}
}

func (w *worker) gone() bool { return w.dead.Load() }

func (w *worker) iceServers() []string {
	if len(w.cfg.ICEServers) == 0 {
		return nil
	}
	return w.cfg.ICEServers[0].URLs
}
