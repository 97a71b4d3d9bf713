package synclib

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection is a single live WebSocket session. It is created on
// accept, mutated by the auth handshake and the message throttle, and
// destroyed exactly once on close or error.
//
// Writes are serialized with a dedicated mutex: gorilla/websocket
// supports at most one concurrent writer, and fan-out can hit the same
// connection from several goroutines.
type Connection struct {
	id           string
	ws           *websocket.Conn
	remoteIP     net.IP
	createdAt    time.Time
	writeTimeout time.Duration

	writeMu sync.Mutex

	mu            sync.Mutex
	authenticated bool
	userID        string
	token         string
	sessionSecret string
	window        rateWindow
	authTimer     *time.Timer
	timerCleared  bool
	closed        bool
}

type rateWindow struct {
	count int
	start time.Time
}

func newConnection(ws *websocket.Conn, remoteIP net.IP, writeTimeout time.Duration) *Connection {
	return &Connection{
		id:           uuid.NewString(),
		ws:           ws,
		remoteIP:     remoteIP,
		createdAt:    time.Now(),
		writeTimeout: writeTimeout,
	}
}

// ID returns a unique identifier of this connection. It is attached to
// every log line and event emitted on behalf of the connection.
func (c *Connection) ID() string {
	return c.id
}

// RemoteIP returns the peer address the connection was accepted from.
func (c *Connection) RemoteIP() net.IP {
	return c.remoteIP
}

// CreatedAt returns the time the connection was accepted.
func (c *Connection) CreatedAt() time.Time {
	return c.createdAt
}

// IsAuthenticated reports whether the auth handshake has completed.
func (c *Connection) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.authenticated
}

// UserID returns the verified subject id, or an empty string before the
// handshake completes.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.userID
}

// authState returns the retained token, verified user id and the secret
// stored at handshake time. ok is false before authentication.
func (c *Connection) authState() (token, userID, secret string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.token, c.userID, c.sessionSecret, c.authenticated
}

// markAuthenticated moves the connection into its terminal
// AUTHENTICATED state and cancels the pending auth timer.
func (c *Connection) markAuthenticated(userID, token, sessionSecret string) {
	c.mu.Lock()
	c.authenticated = true
	c.userID = userID
	c.token = token
	c.sessionSecret = sessionSecret
	c.mu.Unlock()

	c.cancelAuthTimeout()
}

// armAuthTimeout schedules a one-shot timer firing if the connection is
// still unauthenticated after d.
func (c *Connection) armAuthTimeout(d time.Duration, onTimeout func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timerCleared || c.authTimer != nil {
		return
	}

	c.authTimer = time.AfterFunc(d, onTimeout)
}

// cancelAuthTimeout stops the auth timer. The timer is cleared exactly
// once: either on successful authentication or on cleanup, whichever
// comes first.
func (c *Connection) cancelAuthTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timerCleared {
		return
	}

	c.timerCleared = true

	if c.authTimer != nil {
		c.authTimer.Stop()
	}
}

// allowMessage applies the per-connection fixed-window throttle. The
// window state lives on the connection itself: every device gets an
// independent budget, and a single abusive socket stays bounded.
func (c *Connection) allowMessage(max int, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if c.window.start.IsZero() || now.Sub(c.window.start) >= window {
		c.window = rateWindow{count: 1, start: now}

		return true
	}

	if c.window.count >= max {
		return false
	}

	c.window.count++

	return true
}

// Send marshals v and writes it as a single text frame.
func (c *Connection) Send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)) //nolint: errcheck

	return c.ws.WriteJSON(v) //nolint: wrapcheck
}

// sendRaw writes pre-serialized bytes. Fan-out uses it to marshal a
// broadcast exactly once.
func (c *Connection) sendRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)) //nolint: errcheck

	return c.ws.WriteMessage(websocket.TextMessage, data) //nolint: wrapcheck
}

// Close tears the transport down. Safe to call multiple times.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()

		return
	}

	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(time.Second))                                  //nolint: errcheck
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(1000, "")) //nolint: errcheck
	c.writeMu.Unlock()

	c.ws.Close()
}

// IsClosed reports whether Close has been called. The registries use it
// to self-heal against missed close events.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
