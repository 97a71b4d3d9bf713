package synclib

import (
	"net"
	"time"
)

type eventBase struct {
	connID    string
	timestamp time.Time
}

// ConnID returns an id of the connection this event belongs to.
func (e eventBase) ConnID() string {
	return e.connID
}

// Timestamp returns a time when this event was generated.
func (e eventBase) Timestamp() time.Time {
	return e.timestamp
}

// EventConnectionOpened is emitted when the engine accepts a new
// WebSocket connection, before authentication.
type EventConnectionOpened struct {
	eventBase

	// RemoteIP is an IP address of the client.
	RemoteIP net.IP
}

// EventConnectionClosed is emitted when the engine stops managing a
// connection.
type EventConnectionClosed struct {
	eventBase
}

// EventAuthenticated is emitted when a connection completes the auth
// handshake.
type EventAuthenticated struct {
	eventBase

	// UserID is a verified subject id of the connection owner.
	UserID string
}

// EventAuthFailed is emitted when the handshake fails: a rejected
// token, a hit connection limit or an expired auth timer.
type EventAuthFailed struct {
	eventBase

	Reason string
}

// EventRateLimited is emitted when a frame or a connection attempt is
// rejected by a rate limiter.
type EventRateLimited struct {
	eventBase
}

// EventConcurrencyLimited is emitted when a connection is declined
// because of the worker pool concurrency limit.
type EventConcurrencyLimited struct {
	eventBase
}

// EventReplayAttack is emitted when an authenticated envelope fails
// verification: a replayed nonce, a stale timestamp or a bad signature.
// The client is never told which.
type EventReplayAttack struct {
	eventBase

	UserID string
}

// EventBroadcast is emitted after a fan-out attempt. This is the
// high-frequency event of the engine: streams may drop it on overflow.
type EventBroadcast struct {
	eventBase

	// MessageType is a type of the sync frame which was fanned out.
	MessageType string

	// Delivered is a count of devices the frame actually reached.
	Delivered int
}

// NewEventConnectionOpened creates a new EventConnectionOpened event.
func NewEventConnectionOpened(connID string, remoteIP net.IP) EventConnectionOpened {
	return EventConnectionOpened{
		eventBase: eventBase{connID: connID, timestamp: time.Now()},
		RemoteIP:  remoteIP,
	}
}

// NewEventConnectionClosed creates a new EventConnectionClosed event.
func NewEventConnectionClosed(connID string) EventConnectionClosed {
	return EventConnectionClosed{
		eventBase: eventBase{connID: connID, timestamp: time.Now()},
	}
}

// NewEventAuthenticated creates a new EventAuthenticated event.
func NewEventAuthenticated(connID, userID string) EventAuthenticated {
	return EventAuthenticated{
		eventBase: eventBase{connID: connID, timestamp: time.Now()},
		UserID:    userID,
	}
}

// NewEventAuthFailed creates a new EventAuthFailed event.
func NewEventAuthFailed(connID, reason string) EventAuthFailed {
	return EventAuthFailed{
		eventBase: eventBase{connID: connID, timestamp: time.Now()},
		Reason:    reason,
	}
}

// NewEventRateLimited creates a new EventRateLimited event.
func NewEventRateLimited(connID string) EventRateLimited {
	return EventRateLimited{
		eventBase: eventBase{connID: connID, timestamp: time.Now()},
	}
}

// NewEventConcurrencyLimited creates a new EventConcurrencyLimited event.
func NewEventConcurrencyLimited() EventConcurrencyLimited {
	return EventConcurrencyLimited{
		eventBase: eventBase{timestamp: time.Now()},
	}
}

// NewEventReplayAttack creates a new EventReplayAttack event.
func NewEventReplayAttack(connID, userID string) EventReplayAttack {
	return EventReplayAttack{
		eventBase: eventBase{connID: connID, timestamp: time.Now()},
		UserID:    userID,
	}
}

// NewEventBroadcast creates a new EventBroadcast event.
func NewEventBroadcast(connID, messageType string, delivered int) EventBroadcast {
	return EventBroadcast{
		eventBase:   eventBase{connID: connID, timestamp: time.Now()},
		MessageType: messageType,
		Delivered:   delivered,
	}
}
