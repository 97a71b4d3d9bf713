package synclib

import (
	"context"
	"time"
)

// Logger defines a logging interface used by the sync engine.
//
// Almost every method returns a new logger with updated settings, so
// handlers can keep binding context without touching the parent logger.
type Logger interface {
	// Named returns a logger with a new name. A name is usually
	// appended to the parent one with some delimiter.
	Named(name string) Logger

	// BindStr binds a string parameter to the logger.
	BindStr(name, value string) Logger

	// BindInt binds an integer parameter to the logger.
	BindInt(name string, value int) Logger

	Debug(msg string)
	Info(msg string)
	Warning(msg string)

	DebugError(msg string, err error)
	InfoError(msg string, err error)
	WarningError(msg string, err error)
}

// Event is a data structure which is sent to an event stream.
type Event interface {
	// ConnID returns an identifier of the connection this event belongs
	// to. Empty string means the event is not bound to any connection.
	ConnID() string

	// Timestamp returns a time when this event was generated.
	Timestamp() time.Time
}

// EventStream is an abstraction which delivers events to observers:
// metric exporters, audit logs and so on.
//
// Event streams must be thread-safe and should not block the caller
// longer than strictly necessary.
type EventStream interface {
	Send(ctx context.Context, evt Event)
}

// TokenVerifier validates a bearer token against an external identity
// provider and returns a verified subject (user) id.
//
// Any returned error means the token must not be trusted: expired,
// malformed, revoked or simply unknown. The engine does not retry.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// NoteStore is a persistence collaborator for notes. All operations are
// scoped to (id, userID): a record owned by somebody else behaves
// exactly like a missing one.
type NoteStore interface {
	// FindByIDAndUser returns a note or ErrNotFound.
	FindByIDAndUser(ctx context.Context, noteID, userID string) (*Note, error)

	// UpdateScoped applies a change set to a note in a single
	// conditional statement and returns the updated record, or
	// ErrNotFound if no row matched the (id, userID) pair.
	UpdateScoped(ctx context.Context, noteID, userID string, changes map[string]interface{}) (*Note, error)

	// DeleteScoped removes a note, or returns ErrNotFound if no row
	// matched the (id, userID) pair.
	DeleteScoped(ctx context.Context, noteID, userID string) error
}

// FolderStore is a persistence collaborator for folders, with the same
// scoping contract as NoteStore.
type FolderStore interface {
	FindByIDAndUser(ctx context.Context, folderID, userID string) (*Folder, error)
	UpdateScoped(ctx context.Context, folderID, userID string, changes map[string]interface{}) (*Folder, error)
	DeleteScoped(ctx context.Context, folderID, userID string) error
}
