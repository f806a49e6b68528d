// Package sfu implements the selective forwarding unit on top of pion. Each
// room gets a router pinned to one of a fixed pool of workers; producers fan
// RTP out through per-layer relays to consumer tracks.
package sfu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
)

// Engine is the pion-backed core.MediaEngine. It owns the worker pool and
// hands out routers round-robin across the workers still alive.
type Engine struct {
	mu      sync.RWMutex
	workers []*worker
	next    atomic.Uint32
}

func NewEngine(workerCount int, stunServers []string) (*Engine, error) {
	if workerCount < 1 {
		workerCount = 1
	}
	e := &Engine{}
	for i := 0; i < workerCount; i++ {
		w, err := newWorker(i, stunServers)
		if err != nil {
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		w.onDeath = e.reap
		e.workers = append(e.workers, w)
	}
	log.Info().Str("module", "sfu.engine").Int("workers", workerCount).Msg("engine started")
	return e, nil
}

func (e *Engine) CreateRouter(ctx context.Context) (core.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := e.pick()
	if w == nil {
		return nil, fmt.Errorf("no live workers")
	}
	r := newRouter(w)
	log.Info().Str("module", "sfu.engine").Str("router", r.id).Int("worker", w.id).Msg("router created")
	return r, nil
}

func (e *Engine) pick() *worker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.workers)
	if n == 0 {
		return nil
	}
	start := int(e.next.Add(1))
	for i := 0; i < n; i++ {
		w := e.workers[(start+i)%n]
		if !w.gone() {
			return w
		}
	}
	return nil
}

// reap drops dead workers from the pool. Routers pinned to a reaped worker
// report closed and get rebuilt by the orchestrator on next use.
func (e *Engine) reap() {
	e.mu.Lock()
	defer e.mu.Unlock()
	alive := e.workers[:0]
	for _, w := range e.workers {
		if !w.gone() {
			alive = append(alive, w)
		}
	}
	e.workers = alive
	log.Warn().Str("module", "sfu.engine").Int("workers", len(alive)).Msg("worker pool reaped")
}

// Workers reports how many workers remain in rotation.
func (e *Engine) Workers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, w := range e.workers {
		if !w.gone() {
			n++
		}
	}
	return n
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.workers {
		w.dead.Store(true)
	}
	e.workers = nil
	log.Info().Str("module", "sfu.engine").Msg("engine closed")
}
