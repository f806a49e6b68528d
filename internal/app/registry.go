// Package app holds the per-process components of the meeting core: the
// connection registry and, in subpackages, the room session manager, the
// media orchestrator and the messaging subsystem.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/campushub/meetcore/internal/core"
	"github.com/campushub/meetcore/internal/domain"
)

type connEntry struct {
	identity domain.Identity
	conn     core.SignalConn
	cancel   context.CancelFunc
}

// Registry maps live connections on this process to verified identities.
// One user may hold any number of simultaneous connections (multi-device);
// cross-instance visibility is the presence store's job, not the registry's.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnectionID]*connEntry
	byUser map[domain.UserID]map[core.ConnectionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnectionID]*connEntry),
		byUser: make(map[domain.UserID]map[core.ConnectionID]struct{}),
	}
}

// Register binds a connection to its identity. Registering the same id twice
// overwrites the previous entry.
func (r *Registry) Register(id core.ConnectionID, identity domain.Identity, sc core.SignalConn, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[id]; ok {
		delete(r.byUser[old.identity.UserID], id)
		if len(r.byUser[old.identity.UserID]) == 0 {
			delete(r.byUser, old.identity.UserID)
		}
	}
	r.conns[id] = &connEntry{identity: identity, conn: sc, cancel: cancel}
	set, ok := r.byUser[identity.UserID]
	if !ok {
		set = make(map[core.ConnectionID]struct{})
		r.byUser[identity.UserID] = set
	}
	set[id] = struct{}{}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(identity.UserID)).Msg("connection registered")
}

// Unregister drops the connection and reports how many connections the same
// user still holds on this process; zero means the user went fully offline
// here (one device disconnecting is not the user disconnecting).
func (r *Registry) Unregister(id core.ConnectionID) (remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.conns[id]
	if !ok {
		return 0
	}
	delete(r.conns, id)
	user := entry.identity.UserID
	if set, ok := r.byUser[user]; ok {
		delete(set, id)
		remaining = len(set)
		if remaining == 0 {
			delete(r.byUser, user)
		}
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("user", string(user)).Int("remaining", remaining).Msg("connection unregistered")
	return remaining
}

// Identity returns the verified identity behind a connection.
func (r *Registry) Identity(id core.ConnectionID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.identity, true
	}
	return domain.Identity{}, false
}

// ConnectionsFor lists the user's live connection ids on this process.
func (r *Registry) ConnectionsFor(user domain.UserID) []core.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.byUser[user]
	if !ok {
		return nil
	}
	out := make([]core.ConnectionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Online reports whether the user holds at least one local connection.
func (r *Registry) Online(user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[user]) > 0
}

// Len is the number of live connections on this process.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// SendTo delivers one event to one connection, best-effort.
func (r *Registry) SendTo(id core.ConnectionID, event string, payload any) error {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	f, err := core.NewFrame(event, payload)
	if err != nil {
		return err
	}
	if err := e.conn.TrySend(f); err != nil {
		log.Debug().Str("module", "app.registry").Str("conn", string(id)).Str("event", event).Err(err).Msg("send dropped")
		return err
	}
	return nil
}

// FanOut delivers an event to every local connection of the user. No local
// connections is not an error: remote devices are the fan-out adapter's
// responsibility. Per-device delivery is best-effort, so send failures are
// logged and counted, never returned.
func (r *Registry) FanOut(user domain.UserID, event string, payload any) (delivered int) {
	r.mu.RLock()
	targets := make([]*connEntry, 0, 2)
	if set, ok := r.byUser[user]; ok {
		for id := range set {
			if e, ok := r.conns[id]; ok {
				targets = append(targets, e)
			}
		}
	}
	r.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}

	f, err := core.NewFrame(event, payload)
	if err != nil {
		log.Error().Str("module", "app.registry").Str("event", event).Err(err).Msg("fan-out encode failed")
		return 0
	}
	for _, e := range targets {
		if err := e.conn.TrySend(f); err != nil {
			log.Debug().Str("module", "app.registry").Str("user", string(user)).Str("event", event).Err(err).Msg("fan-out send dropped")
			continue
		}
		delivered++
	}
	return delivered
}

// Cancel severs the connection's context (the adapter tears the socket down).
func (r *Registry) Cancel(id core.ConnectionID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("connection canceled")
	return true
}
