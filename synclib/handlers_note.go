package synclib

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/quillvault/syncwire/synclib/internal/schema"
)

// noteMutableFields is the whitelist of fields a client may change
// through note_update. Anything else in the change set is dropped.
var noteMutableFields = map[string]struct{}{
	"title":    {},
	"content":  {},
	"folderId": {},
	"pinned":   {},
	"archived": {},
	"tags":     {},
}

type noteHandler struct {
	resourceHandler

	notes NoteStore
}

func newNoteHandler(hub *Hub, notes NoteStore, stream EventStream, logger Logger) *noteHandler {
	return &noteHandler{
		resourceHandler: resourceHandler{
			hub:    hub,
			logger: logger.Named("notes"),
			stream: stream,
		},
		notes: notes,
	}
}

// handleJoin subscribes the connection to a note's change feed after an
// ownership check.
func (h *noteHandler) handleJoin(ctx context.Context, conn *Connection, msg JoinNoteMessage) {
	if msg.NoteID == "" {
		h.replyError(conn, "noteId is required")

		return
	}

	if _, err := h.notes.FindByIDAndUser(ctx, msg.NoteID, conn.UserID()); err != nil {
		h.replyNoteError(conn, msg.NoteID, err, "cannot authorize join")

		return
	}

	h.hub.AddNoteConnection(msg.NoteID, conn)

	if err := conn.Send(noteJoinedFrame{Type: frameNoteJoined, NoteID: msg.NoteID}); err != nil {
		h.logger.BindStr("conn_id", conn.ID()).DebugError("cannot confirm join", err)
	}
}

// handleLeave drops the subscription after the same ownership check as
// join, so a leave for a foreign or unknown note answers with the
// uniform not-found wording instead of confirming.
func (h *noteHandler) handleLeave(ctx context.Context, conn *Connection, msg LeaveNoteMessage) {
	if msg.NoteID == "" {
		h.replyError(conn, "noteId is required")

		return
	}

	if _, err := h.notes.FindByIDAndUser(ctx, msg.NoteID, conn.UserID()); err != nil {
		h.replyNoteError(conn, msg.NoteID, err, "cannot authorize leave")

		return
	}

	h.hub.RemoveNoteConnection(msg.NoteID, conn)

	if err := conn.Send(noteLeftFrame{Type: frameNoteLeft, NoteID: msg.NoteID}); err != nil {
		h.logger.BindStr("conn_id", conn.ID()).DebugError("cannot confirm leave", err)
	}
}

// handleUpdate persists a whitelisted change set and mirrors it to the
// user's other devices. The originator gets a confirmation instead of
// the sync frame. Returns the fan-out delivery count.
func (h *noteHandler) handleUpdate(ctx context.Context, conn *Connection, msg NoteUpdateMessage) int {
	if msg.NoteID == "" {
		h.replyError(conn, "noteId is required")

		return 0
	}

	if len(msg.Changes) == 0 {
		h.replyError(conn, "changes is required")

		return 0
	}

	changes, dropped := filterNoteChanges(msg.Changes)
	if len(dropped) > 0 {
		logger := h.logger.BindStr("conn_id", conn.ID()).BindStr("note_id", msg.NoteID)
		for _, field := range dropped {
			logger.BindStr("field", field).Warning("dropped disallowed change field")
		}
	}

	updated, err := h.notes.UpdateScoped(ctx, msg.NoteID, conn.UserID(), changes)
	if err != nil {
		h.replyNoteError(conn, msg.NoteID, err, "cannot update note")

		return 0
	}

	timestamp := nowMillis()

	if err := conn.Send(noteUpdateSuccessFrame{
		Type:        frameNoteUpdateSuccess,
		NoteID:      msg.NoteID,
		UpdatedNote: updated,
		Timestamp:   timestamp,
	}); err != nil {
		h.logger.BindStr("conn_id", conn.ID()).DebugError("cannot confirm update", err)
	}

	return h.fanOut(ctx, conn, conn.UserID(), frameNoteSync, noteSyncFrame{
		Type:        frameNoteSync,
		NoteID:      msg.NoteID,
		Changes:     changes,
		UpdatedNote: updated,
		UserID:      conn.UserID(),
		Timestamp:   timestamp,
	})
}

// handleCreated mirrors a freshly created note to the user's other
// devices. The record was persisted by the REST layer already; the
// socket op only proves ownership and validates the payload shape.
func (h *noteHandler) handleCreated(ctx context.Context, conn *Connection, msg NoteCreatedMessage) int {
	if len(msg.NoteData) == 0 {
		h.replyError(conn, "noteData is required")

		return 0
	}

	if err := schema.ValidateNote(msg.NoteData); err != nil {
		h.logger.BindStr("conn_id", conn.ID()).InfoError("invalid note payload", err)
		h.replyError(conn, "noteData is invalid")

		return 0
	}

	if !payloadOwnedBy(msg.NoteData, conn.UserID()) {
		h.replyError(conn, "noteData.userId does not match authenticated user")

		return 0
	}

	return h.fanOut(ctx, conn, conn.UserID(), frameNoteCreatedSync, noteCreatedSyncFrame{
		Type:      frameNoteCreatedSync,
		Note:      msg.NoteData,
		UserID:    conn.UserID(),
		Timestamp: nowMillis(),
	})
}

// handleDeleted removes the note and mirrors the deletion. The scoped
// delete is the authorization: zero affected rows answers with the
// uniform not-found wording.
func (h *noteHandler) handleDeleted(ctx context.Context, conn *Connection, msg NoteDeletedMessage) int {
	if msg.NoteID == "" {
		h.replyError(conn, "noteId is required")

		return 0
	}

	if err := h.notes.DeleteScoped(ctx, msg.NoteID, conn.UserID()); err != nil {
		h.replyNoteError(conn, msg.NoteID, err, "cannot delete note")

		return 0
	}

	return h.fanOut(ctx, conn, conn.UserID(), frameNoteDeletedSync, noteDeletedSyncFrame{
		Type:      frameNoteDeletedSync,
		NoteID:    msg.NoteID,
		UserID:    conn.UserID(),
		Timestamp: nowMillis(),
	})
}

// replyNoteError maps a store failure to the wire: ErrNotFound gets the
// uniform access wording, anything else is an infrastructure failure
// which is logged with context and answered generically. The connection
// stays open either way.
func (h *noteHandler) replyNoteError(conn *Connection, noteID string, err error, logMsg string) {
	if errors.Is(err, ErrNotFound) {
		h.replyError(conn, replyNoteAccessDenied)

		return
	}

	h.logger.
		BindStr("conn_id", conn.ID()).
		BindStr("note_id", noteID).
		WarningError(logMsg, err)
	h.replyError(conn, "Operation failed")
}

// filterNoteChanges keeps whitelisted fields only and enforces the
// encryption sentinel on title and content. A whitelisted field with a
// bad sentinel is dropped while the rest of the change set still
// applies.
func filterNoteChanges(changes map[string]interface{}) (map[string]interface{}, []string) {
	allowed := make(map[string]interface{}, len(changes))
	dropped := make([]string, 0)

	for field, value := range changes {
		if _, ok := noteMutableFields[field]; !ok {
			dropped = append(dropped, field)

			continue
		}

		if field == "title" || field == "content" {
			if s, ok := value.(string); !ok || s != EncryptedSentinel {
				dropped = append(dropped, field)

				continue
			}
		}

		allowed[field] = value
	}

	return allowed, dropped
}

// payloadOwnedBy checks that the payload's embedded owner id equals the
// authenticated user id. Identity always comes from the connection,
// never the other way around.
func payloadOwnedBy(raw json.RawMessage, userID string) bool {
	owner := struct {
		UserID string `json:"userId"`
	}{}

	if err := json.Unmarshal(raw, &owner); err != nil {
		return false
	}

	return owner.UserID == userID
}
