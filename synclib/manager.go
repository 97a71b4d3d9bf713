package synclib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/quillvault/syncwire/synclib/internal/msgauth"
)

// Manager is the WebSocket synchronization engine. It owns the
// listener-facing HTTP handler, wires every accepted connection through
// rate limiting, auth verification and type dispatch, and exposes a
// server-initiated notification API for the REST layer.
type Manager struct {
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup

	logger   Logger
	stream   EventStream
	verifier TokenVerifier

	hub           *Hub
	notes         *noteHandler
	folders       *folderHandler
	envelopes     *msgauth.Verifier
	ledger        *msgauth.NonceLedger
	acceptLimiter *IPRateLimiter
	workerPool    *ants.PoolWithFunc
	upgrader      websocket.Upgrader

	authTimeout   time.Duration
	verifyTimeout time.Duration
	rateWindow    time.Duration
	rateMax       int
	maxFrameSize  int
	writeTimeout  time.Duration

	connsMu sync.Mutex
	conns   map[*Connection]struct{}
}

// NewManager makes a new sync manager instance.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if err := opts.valid(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := opts.Logger.Named("sync")
	hub := NewHub(opts.getMaxConnectionsPerUser(), logger.Named("hub"))
	ledger := msgauth.NewNonceLedger(
		opts.getReplayWindow()+opts.getReplayFutureSkew(),
		opts.getReplayMaxEntries(),
		opts.getReplaySweepEach(),
	)

	var acceptLimiter *IPRateLimiter
	if opts.AcceptRatePerSecond > 0 {
		burst := opts.AcceptRateBurst
		if burst <= 0 {
			burst = int(opts.AcceptRatePerSecond) * 2
		}

		acceptLimiter = NewIPRateLimiter(
			rate.Limit(opts.AcceptRatePerSecond), burst, time.Minute)
	}

	manager := &Manager{
		ctx:           ctx,
		ctxCancel:     cancel,
		logger:        logger,
		stream:        opts.EventStream,
		verifier:      opts.TokenVerifier,
		hub:           hub,
		notes:         newNoteHandler(hub, opts.Notes, opts.EventStream, logger),
		folders:       newFolderHandler(hub, opts.Folders, opts.EventStream, logger),
		envelopes:     msgauth.NewVerifier(ledger, opts.getReplayWindow(), opts.getReplayFutureSkew()),
		ledger:        ledger,
		acceptLimiter: acceptLimiter,
		authTimeout:   opts.getAuthTimeout(),
		verifyTimeout: opts.getVerifyTimeout(),
		rateWindow:    opts.getRateLimitWindow(),
		rateMax:       opts.getRateLimitMax(),
		maxFrameSize:  opts.getMaxFrameSize(),
		writeTimeout:  opts.getWriteTimeout(),
		conns:         make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	pool, err := ants.NewPoolWithFunc(opts.getConcurrency(),
		func(arg interface{}) {
			manager.serveConn(arg.(*Connection)) //nolint: forcetypeassert
		},
		ants.WithNonblocking(true))
	if err != nil {
		cancel()
		ledger.Stop()

		return nil, fmt.Errorf("cannot create worker pool: %w", err)
	}

	manager.workerPool = pool

	return manager, nil
}

// ServeHTTP upgrades an incoming request and hands the connection to
// the worker pool.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := remoteIP(r)

	if m.acceptLimiter != nil && !m.acceptLimiter.Allow(ip) {
		m.stream.Send(m.ctx, NewEventRateLimited(""))
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)

		return
	}

	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.InfoError("cannot upgrade connection", err)

		return
	}

	conn := newConnection(ws, ip, m.writeTimeout)

	m.connsMu.Lock()
	m.conns[conn] = struct{}{}
	m.connsMu.Unlock()

	m.stream.Send(m.ctx, NewEventConnectionOpened(conn.ID(), ip))
	m.logger.BindStr("conn_id", conn.ID()).Info("connection has been accepted")

	conn.armAuthTimeout(m.authTimeout, func() {
		m.onAuthTimeout(conn)
	})

	if err := conn.Send(connectionEstablishedFrame{
		Type:         frameConnectionEstablished,
		ConnectionID: conn.ID(),
		Timestamp:    nowMillis(),
	}); err != nil {
		m.logger.BindStr("conn_id", conn.ID()).DebugError("cannot send welcome frame", err)
		m.cleanup(conn)

		return
	}

	err = m.workerPool.Invoke(conn)

	switch {
	case err == nil:
	case errors.Is(err, ants.ErrPoolClosed):
		m.cleanup(conn)
	case errors.Is(err, ants.ErrPoolOverload):
		m.logger.BindStr("conn_id", conn.ID()).Info("connection was concurrency limited")
		m.stream.Send(m.ctx, NewEventConcurrencyLimited())
		conn.Send(newErrorFrame("Server is at capacity")) //nolint: errcheck
		m.cleanup(conn)
	}
}

// serveConn runs the read loop of one connection. Each connection's own
// frames are handled sequentially; different connections interleave.
func (m *Manager) serveConn(conn *Connection) {
	m.wg.Add(1)
	defer m.wg.Done()
	defer m.cleanup(conn)

	conn.ws.SetReadLimit(hardReadLimit)

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		m.handleFrame(conn, data)
	}
}

// handleFrame runs one inbound frame through the gauntlet: size check,
// rate limit, JSON parse, envelope verification, type dispatch. Every
// rejection here keeps the socket open.
func (m *Manager) handleFrame(conn *Connection, data []byte) {
	if len(data) > m.maxFrameSize {
		conn.Send(newErrorFrame("Message too large")) //nolint: errcheck

		return
	}

	if !conn.allowMessage(m.rateMax, m.rateWindow) {
		m.stream.Send(m.ctx, NewEventRateLimited(conn.ID()))
		conn.Send(newErrorFrame("Rate limit exceeded")) //nolint: errcheck

		return
	}

	probe := frameProbe{}
	if err := json.Unmarshal(data, &probe); err != nil {
		conn.Send(newErrorFrame("Invalid message format")) //nolint: errcheck

		return
	}

	raw := json.RawMessage(data)

	if probe.isEnvelope() {
		payload, ok := m.openEnvelope(conn, probe)
		if !ok {
			return
		}

		raw = payload

		probe = frameProbe{}
		if err := json.Unmarshal(raw, &probe); err != nil {
			conn.Send(newErrorFrame("Invalid message format")) //nolint: errcheck

			return
		}
	}

	m.dispatch(conn, probe.Type, raw)
}

// openEnvelope verifies an authenticated envelope. The client only ever
// sees the generic failure text: which check tripped is a matter for
// logs and metrics, not for a potential attacker probing the oracle.
func (m *Manager) openEnvelope(conn *Connection, probe frameProbe) (json.RawMessage, bool) {
	token, userID, storedSecret, authenticated := conn.authState()
	if !authenticated {
		conn.Send(newErrorFrame(replyMessageAuthFailed)) //nolint: errcheck

		return nil, false
	}

	env := msgauth.Envelope{
		Payload:   probe.Payload,
		Signature: probe.Signature,
		Timestamp: probe.Timestamp,
		Nonce:     probe.Nonce,
	}

	payload, err := m.envelopes.Verify(env, token, userID, storedSecret, time.Now())
	if err != nil {
		m.logger.
			BindStr("conn_id", conn.ID()).
			BindStr("user_id", userID).
			WarningError("envelope rejected", err)
		m.stream.Send(m.ctx, NewEventReplayAttack(conn.ID(), userID))
		conn.Send(newErrorFrame(replyMessageAuthFailed)) //nolint: errcheck

		return nil, false
	}

	return payload, true
}

func (m *Manager) dispatch(conn *Connection, typ string, raw json.RawMessage) {
	if typ == "" {
		conn.Send(newErrorFrame("Message type is required")) //nolint: errcheck

		return
	}

	// Only auth and ping are reachable before the handshake completes.
	switch typ {
	case MessageTypeAuth:
		msg := AuthMessage{}
		if err := json.Unmarshal(raw, &msg); err != nil {
			conn.Send(newErrorFrame("Invalid message format")) //nolint: errcheck

			return
		}

		m.handleAuth(conn, msg)

		return
	case MessageTypePing:
		conn.Send(pongFrame{Type: framePong, Timestamp: nowMillis()}) //nolint: errcheck

		return
	}

	if !conn.IsAuthenticated() {
		conn.Send(newErrorFrame(replyAuthRequired)) //nolint: errcheck

		return
	}

	decoded, err := decodeMessage(typ, raw)
	if err != nil {
		m.logger.BindStr("conn_id", conn.ID()).BindStr("type", typ).DebugError("cannot decode message", err)
		conn.Send(newErrorFrame("Unknown or malformed message")) //nolint: errcheck

		return
	}

	switch msg := decoded.(type) {
	case JoinNoteMessage:
		m.notes.handleJoin(m.ctx, conn, msg)
	case LeaveNoteMessage:
		m.notes.handleLeave(m.ctx, conn, msg)
	case NoteUpdateMessage:
		m.notes.handleUpdate(m.ctx, conn, msg)
	case NoteCreatedMessage:
		m.notes.handleCreated(m.ctx, conn, msg)
	case NoteDeletedMessage:
		m.notes.handleDeleted(m.ctx, conn, msg)
	case FolderCreatedMessage:
		m.folders.handleCreated(m.ctx, conn, msg)
	case FolderUpdatedMessage:
		m.folders.handleUpdated(m.ctx, conn, msg)
	case FolderDeletedMessage:
		m.folders.handleDeleted(m.ctx, conn, msg)
	}
}

// handleAuth runs the handshake: token verification, connection limit,
// secret derivation, registration. Failure closes the connection; the
// client must reconnect, there is no in-place retry.
func (m *Manager) handleAuth(conn *Connection, msg AuthMessage) {
	logger := m.logger.BindStr("conn_id", conn.ID())

	if conn.IsAuthenticated() {
		// Registries are sets, so a second handshake cannot duplicate
		// anything. Re-confirm with the stored secret.
		_, userID, secret, _ := conn.authState()
		conn.Send(authSuccessFrame{Type: frameAuthSuccess, UserID: userID, SessionSecret: secret}) //nolint: errcheck

		return
	}

	if msg.Token == "" {
		m.failAuth(conn, "token is required")

		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.verifyTimeout)
	defer cancel()

	userID, err := m.verifier.Verify(ctx, msg.Token)
	if err != nil {
		logger.InfoError("token verification failed", err)
		m.failAuth(conn, "Invalid or expired token")

		return
	}

	// This connection is not registered yet, so it does not count
	// against the limit it is checked with.
	if !m.hub.CheckConnectionLimit(userID) {
		logger.BindStr("user_id", userID).Info("connection limit exceeded")
		m.stream.Send(m.ctx, NewEventAuthFailed(conn.ID(), "connection limit exceeded"))
		conn.Send(newErrorFrame("Connection limit exceeded")) //nolint: errcheck
		m.cleanup(conn)

		return
	}

	secret := msgauth.SessionSecret(msg.Token, userID, time.Now())

	conn.markAuthenticated(userID, msg.Token, secret)
	m.hub.AddUserConnection(conn)
	m.stream.Send(m.ctx, NewEventAuthenticated(conn.ID(), userID))

	conn.Send(authSuccessFrame{Type: frameAuthSuccess, UserID: userID, SessionSecret: secret}) //nolint: errcheck
	logger.BindStr("user_id", userID).Info("connection has been authenticated")
}

func (m *Manager) failAuth(conn *Connection, reason string) {
	m.stream.Send(m.ctx, NewEventAuthFailed(conn.ID(), reason))
	conn.Send(newAuthFailedFrame(reason)) //nolint: errcheck
	m.cleanup(conn)
}

func (m *Manager) onAuthTimeout(conn *Connection) {
	if conn.IsAuthenticated() {
		return
	}

	m.logger.BindStr("conn_id", conn.ID()).Info("authentication timeout")
	m.stream.Send(m.ctx, NewEventAuthFailed(conn.ID(), "authentication timeout"))
	conn.Send(newErrorFrame("Authentication timeout")) //nolint: errcheck
	m.cleanup(conn)
}

// cleanup runs the connection teardown exactly once: deregisters the
// connection, clears its registries and timer, closes the transport.
func (m *Manager) cleanup(conn *Connection) {
	m.connsMu.Lock()
	_, present := m.conns[conn]
	delete(m.conns, conn)
	m.connsMu.Unlock()

	if !present {
		return
	}

	m.hub.CleanupConnection(conn)
	conn.Close()

	m.stream.Send(m.ctx, NewEventConnectionClosed(conn.ID()))
	m.logger.BindStr("conn_id", conn.ID()).Info("connection has been finished")
}

// ConnectionStats returns a read-only snapshot of the registries for
// the ops endpoint.
func (m *Manager) ConnectionStats() ConnectionStats {
	m.connsMu.Lock()
	total := len(m.conns)
	m.connsMu.Unlock()

	return m.hub.Stats(total)
}

// LedgerMetrics exposes nonce-ledger counters for the ops endpoint.
func (m *Manager) LedgerMetrics() msgauth.Metrics {
	return m.ledger.GetMetrics()
}

// Notification API for the REST layer. REST mutations were authorized
// and committed already, so these skip the socket-side checks and go
// straight to fan-out, returning the delivery count.

func (m *Manager) NotifyNoteUpdated(userID, noteID string, changes map[string]interface{}, updatedNote *Note) int {
	return m.notify(userID, frameNoteSync, noteSyncFrame{
		Type:        frameNoteSync,
		NoteID:      noteID,
		Changes:     changes,
		UpdatedNote: updatedNote,
		UserID:      userID,
		Timestamp:   nowMillis(),
	})
}

func (m *Manager) NotifyNoteCreated(userID string, note *Note) int {
	data, err := json.Marshal(note)
	if err != nil {
		m.logger.BindStr("user_id", userID).WarningError("cannot serialize note", err)

		return 0
	}

	return m.notify(userID, frameNoteCreatedSync, noteCreatedSyncFrame{
		Type:      frameNoteCreatedSync,
		Note:      data,
		UserID:    userID,
		Timestamp: nowMillis(),
	})
}

func (m *Manager) NotifyNoteDeleted(userID, noteID string) int {
	return m.notify(userID, frameNoteDeletedSync, noteDeletedSyncFrame{
		Type:      frameNoteDeletedSync,
		NoteID:    noteID,
		UserID:    userID,
		Timestamp: nowMillis(),
	})
}

func (m *Manager) NotifyFolderUpdated(userID, folderID string, changes map[string]interface{}, updatedFolder *Folder) int {
	return m.notify(userID, frameFolderSync, folderSyncFrame{
		Type:          frameFolderSync,
		FolderID:      folderID,
		Changes:       changes,
		UpdatedFolder: updatedFolder,
		UserID:        userID,
		Timestamp:     nowMillis(),
	})
}

func (m *Manager) NotifyFolderCreated(userID string, folder *Folder) int {
	data, err := json.Marshal(folder)
	if err != nil {
		m.logger.BindStr("user_id", userID).WarningError("cannot serialize folder", err)

		return 0
	}

	return m.notify(userID, frameFolderCreatedSync, folderCreatedSyncFrame{
		Type:      frameFolderCreatedSync,
		Folder:    data,
		UserID:    userID,
		Timestamp: nowMillis(),
	})
}

func (m *Manager) NotifyFolderDeleted(userID, folderID string) int {
	return m.notify(userID, frameFolderDeletedSync, folderDeletedSyncFrame{
		Type:      frameFolderDeletedSync,
		FolderID:  folderID,
		UserID:    userID,
		Timestamp: nowMillis(),
	})
}

func (m *Manager) notify(userID, frameType string, frame interface{}) int {
	delivered := m.hub.BroadcastToUserDevices(userID, frame, nil)
	m.stream.Send(m.ctx, NewEventBroadcast("", frameType, delivered))

	return delivered
}

// Shutdown 'gracefully' shutdowns all connections. Please remember that
// it does not close an underlying listener.
func (m *Manager) Shutdown() {
	m.ctxCancel()

	m.connsMu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for conn := range m.conns {
		conns = append(conns, conn)
	}
	m.connsMu.Unlock()

	for _, conn := range conns {
		m.cleanup(conn)
	}

	m.wg.Wait()
	m.workerPool.Release()

	if m.acceptLimiter != nil {
		m.acceptLimiter.Stop()
	}

	m.ledger.Stop()
}

func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip
	}

	return net.IPv4zero
}
