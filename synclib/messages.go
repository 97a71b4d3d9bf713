package synclib

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound message types.
const (
	MessageTypeAuth          = "auth"
	MessageTypePing          = "ping"
	MessageTypeJoinNote      = "join_note"
	MessageTypeLeaveNote     = "leave_note"
	MessageTypeNoteUpdate    = "note_update"
	MessageTypeNoteCreated   = "note_created"
	MessageTypeNoteDeleted   = "note_deleted"
	MessageTypeFolderCreated = "folder_created"
	MessageTypeFolderUpdated = "folder_updated"
	MessageTypeFolderDeleted = "folder_deleted"
)

// Outbound frame types.
const (
	frameConnectionEstablished = "connection_established"
	frameAuthSuccess           = "auth_success"
	frameAuthFailed            = "auth_failed"
	frameError                 = "error"
	framePong                  = "pong"
	frameNoteJoined            = "note_joined"
	frameNoteLeft              = "note_left"
	frameNoteUpdateSuccess     = "note_update_success"
	frameNoteSync              = "note_sync"
	frameNoteCreatedSync       = "note_created_sync"
	frameNoteDeletedSync       = "note_deleted_sync"
	frameFolderSync            = "folder_sync"
	frameFolderCreatedSync     = "folder_created_sync"
	frameFolderDeletedSync     = "folder_deleted_sync"
)

// frameProbe is the first-pass decode of an inbound frame. A frame is
// either a flat {type, ...} message or an authenticated envelope
// {payload, signature, timestamp, nonce}; the probe covers both so the
// boundary decides with one unmarshal.
type frameProbe struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"timestamp"`
	Nonce     string          `json:"nonce"`
}

func (p frameProbe) isEnvelope() bool {
	return p.Signature != "" && len(p.Payload) > 0
}

// Typed inbound messages, one variant per enumerated type. Fields a
// variant does not declare simply do not exist for it.

type AuthMessage struct {
	Token string `json:"token"`
}

type JoinNoteMessage struct {
	NoteID string `json:"noteId"`
}

type LeaveNoteMessage struct {
	NoteID string `json:"noteId"`
}

type NoteUpdateMessage struct {
	NoteID  string                 `json:"noteId"`
	Changes map[string]interface{} `json:"changes"`
}

type NoteCreatedMessage struct {
	NoteData json.RawMessage `json:"noteData"`
}

type NoteDeletedMessage struct {
	NoteID string `json:"noteId"`
}

type FolderCreatedMessage struct {
	FolderData json.RawMessage `json:"folderData"`
}

type FolderUpdatedMessage struct {
	FolderID      string                 `json:"folderId"`
	Changes       map[string]interface{} `json:"changes"`
	UpdatedFolder json.RawMessage        `json:"updatedFolder"`
}

type FolderDeletedMessage struct {
	FolderID string `json:"folderId"`
}

// decodeMessage decodes raw into the variant matching typ.
func decodeMessage(typ string, raw []byte) (interface{}, error) {
	var (
		msg interface{}
		err error
	)

	switch typ {
	case MessageTypeAuth:
		m := AuthMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	case MessageTypePing:
		msg = struct{}{}
	case MessageTypeJoinNote:
		m := JoinNoteMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	case MessageTypeLeaveNote:
		m := LeaveNoteMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	case MessageTypeNoteUpdate:
		m := NoteUpdateMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	case MessageTypeNoteCreated:
		m := NoteCreatedMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	case MessageTypeNoteDeleted:
		m := NoteDeletedMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	case MessageTypeFolderCreated:
		m := FolderCreatedMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	case MessageTypeFolderUpdated:
		m := FolderUpdatedMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	case MessageTypeFolderDeleted:
		m := FolderDeletedMessage{}
		err = json.Unmarshal(raw, &m)
		msg = m
	default:
		return nil, fmt.Errorf("unknown message type %q", typ)
	}

	if err != nil {
		return nil, fmt.Errorf("cannot decode %s message: %w", typ, err)
	}

	return msg, nil
}

// Outbound frames. Shapes are part of the wire contract, so the structs
// stay explicit instead of ad-hoc maps.

type connectionEstablishedFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
}

type authSuccessFrame struct {
	Type          string `json:"type"`
	UserID        string `json:"userId"`
	SessionSecret string `json:"sessionSecret"`
}

type authFailedFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type noteJoinedFrame struct {
	Type   string `json:"type"`
	NoteID string `json:"noteId"`
}

type noteLeftFrame struct {
	Type   string `json:"type"`
	NoteID string `json:"noteId"`
}

type noteUpdateSuccessFrame struct {
	Type        string `json:"type"`
	NoteID      string `json:"noteId"`
	UpdatedNote *Note  `json:"updatedNote"`
	Timestamp   int64  `json:"timestamp"`
}

type noteSyncFrame struct {
	Type        string                 `json:"type"`
	NoteID      string                 `json:"noteId"`
	Changes     map[string]interface{} `json:"changes"`
	UpdatedNote *Note                  `json:"updatedNote"`
	UserID      string                 `json:"userId"`
	Timestamp   int64                  `json:"timestamp"`
}

type noteCreatedSyncFrame struct {
	Type      string          `json:"type"`
	Note      json.RawMessage `json:"note"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"`
}

type noteDeletedSyncFrame struct {
	Type      string `json:"type"`
	NoteID    string `json:"noteId"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

type folderSyncFrame struct {
	Type          string                 `json:"type"`
	FolderID      string                 `json:"folderId"`
	Changes       map[string]interface{} `json:"changes"`
	UpdatedFolder *Folder                `json:"updatedFolder"`
	UserID        string                 `json:"userId"`
	Timestamp     int64                  `json:"timestamp"`
}

type folderCreatedSyncFrame struct {
	Type      string          `json:"type"`
	Folder    json.RawMessage `json:"folder"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"`
}

type folderDeletedSyncFrame struct {
	Type      string `json:"type"`
	FolderID  string `json:"folderId"`
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

func newErrorFrame(message string) errorFrame {
	return errorFrame{Type: frameError, Message: message}
}

func newAuthFailedFrame(reason string) authFailedFrame {
	return authFailedFrame{Type: frameAuthFailed, Reason: reason}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
