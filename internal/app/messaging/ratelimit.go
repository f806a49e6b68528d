// Package messaging implements chat delivery, per-connection rate limits and
// the offline message queue.
package messaging

import (
	"sync"
	"time"

	"github.com/campushub/meetcore/internal/core"
)

// Limit is one fixed-window budget for an event name.
type Limit struct {
	Max    int
	Window time.Duration
}

type windowKey struct {
	conn  core.ConnectionID
	event string
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter enforces fixed-window rate limits keyed by (connection, event).
// Events with no configured limit always pass. State is per-process and is
// dropped with the connection.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	windows map[windowKey]*window
	now     func() time.Time
}

func NewLimiter(limits map[string]Limit) *Limiter {
	return &Limiter{
		limits:  limits,
		windows: make(map[windowKey]*window),
		now:     time.Now,
	}
}

// Allow consumes one slot from the connection's window for the event.
// The first call in a window starts it; once count reaches the maximum the
// call reports false until the window rolls over.
func (l *Limiter) Allow(conn core.ConnectionID, event string) bool {
	limit, ok := l.limits[event]
	if !ok || limit.Max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := windowKey{conn: conn, event: event}
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &window{count: 1, resetAt: now.Add(limit.Window)}
		return true
	}
	if w.count >= limit.Max {
		return false
	}
	w.count++
	return true
}

// Forget drops every window held for the connection. Called on disconnect so
// limiter state cannot outlive its socket.
func (l *Limiter) Forget(conn core.ConnectionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.windows {
		if key.conn == conn {
			delete(l.windows, key)
		}
	}
}
