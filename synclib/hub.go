package synclib

import (
	"encoding/json"
	"sort"
	"sync"
)

// Hub owns the in-memory connection registries: user id to the set of
// that user's authenticated connections, and note id to the set of
// connections subscribed to that note. All operations are pure
// bookkeeping, guarded by a single mutex; no I/O happens under it
// except best-effort frame writes during fan-out.
//
// The registries are never exposed: every mutation goes through Hub
// methods, so a multi-goroutine caller cannot corrupt them.
type Hub struct {
	logger     Logger
	maxPerUser int

	mu    sync.RWMutex
	users map[string]map[*Connection]struct{}
	notes map[string]map[*Connection]struct{}
}

// NewHub builds a hub enforcing at most maxPerUser simultaneous
// connections per user.
func NewHub(maxPerUser int, logger Logger) *Hub {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxConnectionsPerUser
	}

	return &Hub{
		logger:     logger,
		maxPerUser: maxPerUser,
		users:      make(map[string]map[*Connection]struct{}),
		notes:      make(map[string]map[*Connection]struct{}),
	}
}

// AddUserConnection registers an authenticated connection under its
// user id. Idempotent. Unauthenticated connections are refused: they
// must never appear in a user set.
func (h *Hub) AddUserConnection(conn *Connection) {
	_, userID, _, ok := conn.authState()
	if !ok {
		h.logger.BindStr("conn_id", conn.ID()).Warning("refusing to register unauthenticated connection")

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, exists := h.users[userID]
	if !exists {
		set = make(map[*Connection]struct{})
		h.users[userID] = set
	}

	set[conn] = struct{}{}
}

// RemoveUserConnection drops a connection from its user set. Idempotent;
// empty sets are deleted.
func (h *Hub) RemoveUserConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeUserConnectionLocked(conn)
}

func (h *Hub) removeUserConnectionLocked(conn *Connection) {
	userID := conn.UserID()

	set, exists := h.users[userID]
	if !exists {
		return
	}

	delete(set, conn)

	if len(set) == 0 {
		delete(h.users, userID)
	}
}

// AddNoteConnection subscribes a connection to a note's change feed.
// Idempotent. Note subscriptions are independent of user sets.
func (h *Hub) AddNoteConnection(noteID string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, exists := h.notes[noteID]
	if !exists {
		set = make(map[*Connection]struct{})
		h.notes[noteID] = set
	}

	set[conn] = struct{}{}
}

// RemoveNoteConnection unsubscribes a connection from a note.
// Idempotent; empty sets are deleted.
func (h *Hub) RemoveNoteConnection(noteID string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, exists := h.notes[noteID]
	if !exists {
		return
	}

	delete(set, conn)

	if len(set) == 0 {
		delete(h.notes, noteID)
	}
}

// CheckConnectionLimit reports whether userID may open one more
// authenticated connection. It first prunes closed connections from the
// user's set, self-healing against missed close events, and then
// compares the remaining count against the configured maximum. It does
// not register anything itself.
func (h *Hub) CheckConnectionLimit(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, exists := h.users[userID]
	if !exists {
		return true
	}

	for conn := range set {
		if conn.IsClosed() {
			delete(set, conn)
		}
	}

	if len(set) == 0 {
		delete(h.users, userID)

		return true
	}

	return len(set) < h.maxPerUser
}

// BroadcastToUserDevices serializes message once and sends it to every
// open connection of userID except exclude (the originating device, if
// any). Delivery is best-effort: a write error is logged and the peer
// simply misses the frame. Returns the number of successful deliveries.
func (h *Hub) BroadcastToUserDevices(userID string, message interface{}, exclude *Connection) int {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.BindStr("user_id", userID).WarningError("cannot serialize broadcast", err)

		return 0
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.users[userID]))

	for conn := range h.users[userID] {
		if conn == exclude || conn.IsClosed() {
			continue
		}

		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	delivered := 0

	for _, conn := range targets {
		if err := conn.sendRaw(data); err != nil {
			h.logger.
				BindStr("user_id", userID).
				BindStr("conn_id", conn.ID()).
				DebugError("broadcast delivery failed", err)

			continue
		}

		delivered++
	}

	return delivered
}

// CleanupConnection removes a connection from its user set and from
// every note subscriber set, and clears a pending auth timer.
// Idempotent; called exactly once per connection lifecycle by the
// manager, but safe against stray extra calls.
func (h *Hub) CleanupConnection(conn *Connection) {
	conn.cancelAuthTimeout()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeUserConnectionLocked(conn)

	for noteID, set := range h.notes {
		delete(set, conn)

		if len(set) == 0 {
			delete(h.notes, noteID)
		}
	}
}

// NoteSubscribers returns how many connections are currently joined to
// a note.
func (h *Hub) NoteSubscribers(noteID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.notes[noteID])
}

// Stats assembles a read-only snapshot. total is supplied by the caller
// because the hub tracks authenticated connections only: the manager
// also counts the ones still in the auth handshake.
func (h *Hub) Stats(total int) ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := ConnectionStats{
		TotalConnections:   total,
		AuthenticatedUsers: len(h.users),
		ConnectionsPerUser: make([]UserDeviceCount, 0, len(h.users)),
	}

	for userID, set := range h.users {
		stats.ConnectionsPerUser = append(stats.ConnectionsPerUser, UserDeviceCount{
			UserID:      userID,
			DeviceCount: len(set),
		})
	}

	sort.Slice(stats.ConnectionsPerUser, func(i, j int) bool {
		return stats.ConnectionsPerUser[i].UserID < stats.ConnectionsPerUser[j].UserID
	})

	return stats
}
