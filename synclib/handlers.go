package synclib

import "context"

// Uniform reply wording. Authorization failures use the same text for
// "does not exist" and "owned by somebody else" so record existence
// never leaks; security failures never say which check tripped.
const (
	replyNoteAccessDenied   = "Note not found or access denied"
	replyFolderAccessDenied = "Folder not found or access denied"
	replyAuthRequired       = "Authentication required"
	replyMessageAuthFailed  = "Message authentication failed"
)

// resourceHandler carries the collaborators every resource handler
// needs: the hub for fan-out, the event stream and a named logger.
type resourceHandler struct {
	hub    *Hub
	logger Logger
	stream EventStream
}

func (h resourceHandler) replyError(conn *Connection, message string) {
	if err := conn.Send(newErrorFrame(message)); err != nil {
		h.logger.BindStr("conn_id", conn.ID()).DebugError("cannot send error reply", err)
	}
}

// fanOut mirrors a sync frame to the user's other devices, excluding
// the originator, and reports the delivery count.
func (h resourceHandler) fanOut(ctx context.Context, origin *Connection, userID, frameType string, frame interface{}) int {
	delivered := h.hub.BroadcastToUserDevices(userID, frame, origin)

	connID := ""
	if origin != nil {
		connID = origin.ID()
	}

	h.stream.Send(ctx, NewEventBroadcast(connID, frameType, delivered))
	h.logger.
		BindStr("user_id", userID).
		BindStr("frame", frameType).
		BindInt("delivered", delivered).
		Debug("sync frame fanned out")

	return delivered
}
