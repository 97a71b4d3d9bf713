package synclib_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/quillvault/syncwire/internal/testlib"
	"github.com/quillvault/syncwire/synclib"
	"github.com/quillvault/syncwire/synclib/internal/msgauth"
)

const testFrameLimit = 4096

type ManagerTestSuite struct {
	suite.Suite

	verifier *testlib.TokenVerifierMock
	notes    *testlib.NoteStoreMock
	folders  *testlib.FolderStoreMock
	stream   *testlib.EventStreamSink

	manager *synclib.Manager
	server  *httptest.Server
}

func (suite *ManagerTestSuite) SetupTest() {
	suite.verifier = &testlib.TokenVerifierMock{}
	suite.notes = &testlib.NoteStoreMock{}
	suite.folders = &testlib.FolderStoreMock{}
	suite.stream = &testlib.EventStreamSink{}

	manager, err := synclib.NewManager(synclib.ManagerOpts{
		Logger:                testlib.NewNoopLogger(),
		EventStream:           suite.stream,
		TokenVerifier:         suite.verifier,
		Notes:                 suite.notes,
		Folders:               suite.folders,
		MaxConnectionsPerUser: 2,
		MaxFrameSize:          testFrameLimit,
	})
	suite.Require().NoError(err)

	suite.manager = manager
	suite.server = httptest.NewServer(manager)
}

func (suite *ManagerTestSuite) TearDownTest() {
	suite.server.Close()
	suite.manager.Shutdown()

	suite.verifier.AssertExpectations(suite.T())
	suite.notes.AssertExpectations(suite.T())
	suite.folders.AssertExpectations(suite.T())
}

// dial opens a websocket connection and consumes the welcome frame.
func (suite *ManagerTestSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(suite.server.URL, "http") + "/"

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)

	suite.T().Cleanup(func() { ws.Close() })

	welcome := suite.readFrame(ws)
	suite.Require().Equal("connection_established", welcome["type"])
	suite.Require().NotEmpty(welcome["connectionId"])

	return ws
}

func (suite *ManagerTestSuite) readFrame(ws *websocket.Conn) map[string]interface{} {
	ws.SetReadDeadline(time.Now().Add(3 * time.Second)) //nolint: errcheck

	frame := map[string]interface{}{}
	suite.Require().NoError(ws.ReadJSON(&frame))

	return frame
}

func (suite *ManagerTestSuite) send(ws *websocket.Conn, v interface{}) {
	suite.Require().NoError(ws.WriteJSON(v))
}

// authenticate runs the handshake and returns the session secret.
func (suite *ManagerTestSuite) authenticate(ws *websocket.Conn, token string) string {
	suite.send(ws, map[string]interface{}{"type": "auth", "token": token})

	frame := suite.readFrame(ws)
	suite.Require().Equal("auth_success", frame["type"])

	secret, _ := frame["sessionSecret"].(string)
	suite.Require().NotEmpty(secret)

	return secret
}

func (suite *ManagerTestSuite) expectToken(token, userID string) {
	suite.verifier.On("Verify", mock.Anything, token).Return(userID, nil)
}

func (suite *ManagerTestSuite) TestAuthSuccess() {
	suite.expectToken("token-1", "user-1")

	ws := suite.dial()

	suite.send(ws, map[string]interface{}{"type": "auth", "token": "token-1"})

	frame := suite.readFrame(ws)
	suite.Equal("auth_success", frame["type"])
	suite.Equal("user-1", frame["userId"])

	// The handshake happened a moment ago, so the secret belongs to the
	// current bucket or, right at a rotation boundary, the previous one.
	now := time.Now()
	suite.Contains([]string{
		msgauth.SessionSecret("token-1", "user-1", now),
		msgauth.SessionSecret("token-1", "user-1", now.Add(-msgauth.SecretWindow)),
	}, frame["sessionSecret"])
}

func (suite *ManagerTestSuite) TestAuthRejectedToken() {
	suite.verifier.On("Verify", mock.Anything, "bad-token").Return("", errors.New("unknown token"))

	ws := suite.dial()

	suite.send(ws, map[string]interface{}{"type": "auth", "token": "bad-token"})

	frame := suite.readFrame(ws)
	suite.Equal("auth_failed", frame["type"])
	suite.Equal("Invalid or expired token", frame["reason"])

	// Handshake failure closes the socket.
	ws.SetReadDeadline(time.Now().Add(time.Second)) //nolint: errcheck
	_, _, err := ws.ReadMessage()
	suite.Error(err)
}

func (suite *ManagerTestSuite) TestAuthEmptyToken() {
	ws := suite.dial()

	suite.send(ws, map[string]interface{}{"type": "auth"})

	frame := suite.readFrame(ws)
	suite.Equal("auth_failed", frame["type"])
}

func (suite *ManagerTestSuite) TestReauthReturnsSameSecret() {
	suite.expectToken("token-1", "user-1")

	ws := suite.dial()
	secret := suite.authenticate(ws, "token-1")

	suite.send(ws, map[string]interface{}{"type": "auth", "token": "token-1"})

	frame := suite.readFrame(ws)
	suite.Equal("auth_success", frame["type"])
	suite.Equal(secret, frame["sessionSecret"])
}

func (suite *ManagerTestSuite) TestPingBeforeAuth() {
	ws := suite.dial()

	suite.send(ws, map[string]interface{}{"type": "ping"})

	frame := suite.readFrame(ws)
	suite.Equal("pong", frame["type"])
	suite.NotZero(frame["timestamp"])
}

func (suite *ManagerTestSuite) TestResourceOpsRequireAuth() {
	ws := suite.dial()

	suite.send(ws, map[string]interface{}{
		"type":    "note_update",
		"noteId":  "n1",
		"changes": map[string]interface{}{"pinned": true},
	})

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Authentication required", frame["message"])
}

func (suite *ManagerTestSuite) TestMissingType() {
	ws := suite.dial()

	suite.send(ws, map[string]interface{}{"noteId": "n1"})

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Message type is required", frame["message"])
}

func (suite *ManagerTestSuite) TestNoteUpdateFanOut() {
	suite.expectToken("token-1", "user-1")

	updated := &synclib.Note{ID: "n1", UserID: "user-1", Pinned: true}
	suite.notes.
		On("UpdateScoped", mock.Anything, "n1", "user-1", map[string]interface{}{"pinned": true}).
		Return(updated, nil)

	origin := suite.dial()
	other := suite.dial()

	suite.authenticate(origin, "token-1")
	suite.authenticate(other, "token-1")

	suite.send(origin, map[string]interface{}{
		"type":    "note_update",
		"noteId":  "n1",
		"changes": map[string]interface{}{"pinned": true},
	})

	confirmation := suite.readFrame(origin)
	suite.Equal("note_update_success", confirmation["type"])
	suite.Equal("n1", confirmation["noteId"])

	sync := suite.readFrame(other)
	suite.Equal("note_sync", sync["type"])
	suite.Equal("n1", sync["noteId"])
	suite.Equal("user-1", sync["userId"])
}

func (suite *ManagerTestSuite) TestNoteUpdateDropsPlaintextTitle() {
	suite.expectToken("token-1", "user-1")

	// The store must only ever see the surviving fields.
	updated := &synclib.Note{ID: "n1", UserID: "user-1", Pinned: true}
	suite.notes.
		On("UpdateScoped", mock.Anything, "n1", "user-1", map[string]interface{}{"pinned": true}).
		Return(updated, nil)

	ws := suite.dial()
	suite.authenticate(ws, "token-1")

	suite.send(ws, map[string]interface{}{
		"type":   "note_update",
		"noteId": "n1",
		"changes": map[string]interface{}{
			"title":  "definitely plaintext",
			"pinned": true,
		},
	})

	frame := suite.readFrame(ws)
	suite.Equal("note_update_success", frame["type"])
}

func (suite *ManagerTestSuite) TestNoteUpdateNotFound() {
	suite.expectToken("token-1", "user-1")

	suite.notes.
		On("UpdateScoped", mock.Anything, "nx", "user-1", map[string]interface{}{"pinned": true}).
		Return(nil, synclib.ErrNotFound)

	ws := suite.dial()
	suite.authenticate(ws, "token-1")

	suite.send(ws, map[string]interface{}{
		"type":    "note_update",
		"noteId":  "nx",
		"changes": map[string]interface{}{"pinned": true},
	})

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Note not found or access denied", frame["message"])
}

func (suite *ManagerTestSuite) TestJoinNote() {
	suite.expectToken("token-1", "user-1")

	suite.notes.
		On("FindByIDAndUser", mock.Anything, "n1", "user-1").
		Return(&synclib.Note{ID: "n1", UserID: "user-1"}, nil)

	ws := suite.dial()
	suite.authenticate(ws, "token-1")

	suite.send(ws, map[string]interface{}{"type": "join_note", "noteId": "n1"})

	frame := suite.readFrame(ws)
	suite.Equal("note_joined", frame["type"])
	suite.Equal("n1", frame["noteId"])

	suite.send(ws, map[string]interface{}{"type": "leave_note", "noteId": "n1"})

	frame = suite.readFrame(ws)
	suite.Equal("note_left", frame["type"])
}

func (suite *ManagerTestSuite) TestJoinForeignNote() {
	suite.expectToken("token-1", "user-1")

	suite.notes.
		On("FindByIDAndUser", mock.Anything, "foreign", "user-1").
		Return(nil, synclib.ErrNotFound)

	ws := suite.dial()
	suite.authenticate(ws, "token-1")

	suite.send(ws, map[string]interface{}{"type": "join_note", "noteId": "foreign"})

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Note not found or access denied", frame["message"])
}

func (suite *ManagerTestSuite) TestLeaveForeignNote() {
	suite.expectToken("token-1", "user-1")

	suite.notes.
		On("FindByIDAndUser", mock.Anything, "foreign", "user-1").
		Return(nil, synclib.ErrNotFound)

	ws := suite.dial()
	suite.authenticate(ws, "token-1")

	suite.send(ws, map[string]interface{}{"type": "leave_note", "noteId": "foreign"})

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Note not found or access denied", frame["message"])
}

func (suite *ManagerTestSuite) TestConnectionLimit() {
	suite.expectToken("token-1", "user-1")

	first := suite.dial()
	second := suite.dial()
	suite.authenticate(first, "token-1")
	suite.authenticate(second, "token-1")

	third := suite.dial()
	suite.send(third, map[string]interface{}{"type": "auth", "token": "token-1"})

	frame := suite.readFrame(third)
	suite.Equal("error", frame["type"])
	suite.Equal("Connection limit exceeded", frame["message"])

	// Closing one device frees a slot for the next handshake.
	first.Close()

	suite.Eventually(func() bool {
		ws := suite.dial()
		suite.send(ws, map[string]interface{}{"type": "auth", "token": "token-1"})

		return suite.readFrame(ws)["type"] == "auth_success"
	}, 3*time.Second, 100*time.Millisecond)
}

func (suite *ManagerTestSuite) TestSignedEnvelope() {
	suite.expectToken("token-1", "user-1")

	ws := suite.dial()
	secret := suite.authenticate(ws, "token-1")

	payload := json.RawMessage(`{"type":"ping"}`)
	timestamp := time.Now().UnixMilli()
	envelope := map[string]interface{}{
		"payload":   payload,
		"signature": msgauth.Sign(secret, payload, timestamp, "nonce-1"),
		"timestamp": timestamp,
		"nonce":     "nonce-1",
	}

	suite.send(ws, envelope)
	suite.Equal("pong", suite.readFrame(ws)["type"])

	// The very same envelope is a replay now.
	suite.send(ws, envelope)

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Message authentication failed", frame["message"])
}

func (suite *ManagerTestSuite) TestEnvelopeBeforeAuth() {
	ws := suite.dial()

	payload := json.RawMessage(`{"type":"ping"}`)
	timestamp := time.Now().UnixMilli()

	suite.send(ws, map[string]interface{}{
		"payload":   payload,
		"signature": msgauth.Sign("guessed-secret", payload, timestamp, "nonce-1"),
		"timestamp": timestamp,
		"nonce":     "nonce-1",
	})

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Message authentication failed", frame["message"])
}

func (suite *ManagerTestSuite) TestOversizedFrame() {
	ws := suite.dial()

	big := map[string]interface{}{
		"type":    "ping",
		"padding": strings.Repeat("x", testFrameLimit),
	}
	suite.send(ws, big)

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Message too large", frame["message"])

	// The socket survives the rejection.
	suite.send(ws, map[string]interface{}{"type": "ping"})
	suite.Equal("pong", suite.readFrame(ws)["type"])
}

func (suite *ManagerTestSuite) TestMalformedJSON() {
	ws := suite.dial()

	suite.Require().NoError(
		ws.WriteMessage(websocket.TextMessage, bytes.TrimSpace([]byte(`{"type":`))))

	frame := suite.readFrame(ws)
	suite.Equal("error", frame["type"])
	suite.Equal("Invalid message format", frame["message"])
}

func (suite *ManagerTestSuite) TestNotifyAPI() {
	suite.expectToken("token-1", "user-1")

	ws := suite.dial()
	suite.authenticate(ws, "token-1")

	delivered := suite.manager.NotifyNoteDeleted("user-1", "n9")
	suite.Equal(1, delivered)

	frame := suite.readFrame(ws)
	suite.Equal("note_deleted_sync", frame["type"])
	suite.Equal("n9", frame["noteId"])
	suite.Equal("user-1", frame["userId"])

	suite.Zero(suite.manager.NotifyNoteDeleted("nobody-home", "n9"))
}

func (suite *ManagerTestSuite) TestConnectionStats() {
	suite.expectToken("token-1", "user-1")

	ws := suite.dial()
	pending := suite.dial()
	_ = pending

	suite.authenticate(ws, "token-1")

	stats := suite.manager.ConnectionStats()
	suite.Equal(2, stats.TotalConnections)
	suite.Equal(1, stats.AuthenticatedUsers)
	suite.Require().Len(stats.ConnectionsPerUser, 1)
	suite.Equal("user-1", stats.ConnectionsPerUser[0].UserID)
	suite.Equal(1, stats.ConnectionsPerUser[0].DeviceCount)
}

func TestManager(t *testing.T) {
	suite.Run(t, &ManagerTestSuite{})
}
