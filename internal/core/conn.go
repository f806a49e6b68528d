// Package core holds the contracts between the meeting-core components:
// signal connections, the presence store, the cross-instance bus, the media
// engine, and the client-facing rejection codes. Implementations live in
// internal/app and internal/adapters.
package core

// Frame is a raw encoded payload ready to go out on a signal connection.
type Frame []byte

// ConnectionID identifies one live socket on this process.
type ConnectionID string

// SignalConn abstracts the client-facing messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConn interface {
	// TrySend enqueues without blocking and fails on backpressure or after
	// close. Delivery past the enqueue is best-effort.
	TrySend(Frame) error
	Close()
}
