package synclib

import (
	"context"
	"errors"

	"github.com/quillvault/syncwire/synclib/internal/schema"
)

// folderMutableFields mirrors the note whitelist for folder updates.
var folderMutableFields = map[string]struct{}{
	"name":     {},
	"color":    {},
	"parentId": {},
}

type folderHandler struct {
	resourceHandler

	folders FolderStore
}

func newFolderHandler(hub *Hub, folders FolderStore, stream EventStream, logger Logger) *folderHandler {
	return &folderHandler{
		resourceHandler: resourceHandler{
			hub:    hub,
			logger: logger.Named("folders"),
			stream: stream,
		},
		folders: folders,
	}
}

func (h *folderHandler) handleCreated(ctx context.Context, conn *Connection, msg FolderCreatedMessage) int {
	if len(msg.FolderData) == 0 {
		h.replyError(conn, "folderData is required")

		return 0
	}

	if err := schema.ValidateFolder(msg.FolderData); err != nil {
		h.logger.BindStr("conn_id", conn.ID()).InfoError("invalid folder payload", err)
		h.replyError(conn, "folderData is invalid")

		return 0
	}

	if !payloadOwnedBy(msg.FolderData, conn.UserID()) {
		h.replyError(conn, "folderData.userId does not match authenticated user")

		return 0
	}

	return h.fanOut(ctx, conn, conn.UserID(), frameFolderCreatedSync, folderCreatedSyncFrame{
		Type:      frameFolderCreatedSync,
		Folder:    msg.FolderData,
		UserID:    conn.UserID(),
		Timestamp: nowMillis(),
	})
}

// handleUpdated persists a whitelisted change set and fans out the
// server-echoed record. The client may supply its own updatedFolder in
// the message; it is ignored in favor of what the store returns.
func (h *folderHandler) handleUpdated(ctx context.Context, conn *Connection, msg FolderUpdatedMessage) int {
	if msg.FolderID == "" {
		h.replyError(conn, "folderId is required")

		return 0
	}

	if len(msg.Changes) == 0 {
		h.replyError(conn, "changes is required")

		return 0
	}

	changes := make(map[string]interface{}, len(msg.Changes))

	for field, value := range msg.Changes {
		if _, ok := folderMutableFields[field]; !ok {
			h.logger.
				BindStr("conn_id", conn.ID()).
				BindStr("folder_id", msg.FolderID).
				BindStr("field", field).
				Warning("dropped disallowed change field")

			continue
		}

		changes[field] = value
	}

	updated, err := h.folders.UpdateScoped(ctx, msg.FolderID, conn.UserID(), changes)
	if err != nil {
		h.replyFolderError(conn, msg.FolderID, err, "cannot update folder")

		return 0
	}

	return h.fanOut(ctx, conn, conn.UserID(), frameFolderSync, folderSyncFrame{
		Type:          frameFolderSync,
		FolderID:      msg.FolderID,
		Changes:       changes,
		UpdatedFolder: updated,
		UserID:        conn.UserID(),
		Timestamp:     nowMillis(),
	})
}

func (h *folderHandler) handleDeleted(ctx context.Context, conn *Connection, msg FolderDeletedMessage) int {
	if msg.FolderID == "" {
		h.replyError(conn, "folderId is required")

		return 0
	}

	if err := h.folders.DeleteScoped(ctx, msg.FolderID, conn.UserID()); err != nil {
		h.replyFolderError(conn, msg.FolderID, err, "cannot delete folder")

		return 0
	}

	return h.fanOut(ctx, conn, conn.UserID(), frameFolderDeletedSync, folderDeletedSyncFrame{
		Type:      frameFolderDeletedSync,
		FolderID:  msg.FolderID,
		UserID:    conn.UserID(),
		Timestamp: nowMillis(),
	})
}

func (h *folderHandler) replyFolderError(conn *Connection, folderID string, err error, logMsg string) {
	if errors.Is(err, ErrNotFound) {
		h.replyError(conn, replyFolderAccessDenied)

		return
	}

	h.logger.
		BindStr("conn_id", conn.ID()).
		BindStr("folder_id", folderID).
		WarningError(logMsg, err)
	h.replyError(conn, "Operation failed")
}
