package synclib

import "errors"

var (
	// ErrNotFound is returned by stores when no record matched the
	// (id, userID) pair. Handlers translate it to a uniform
	// not-found-or-access-denied reply so record existence never leaks.
	ErrNotFound = errors.New("record not found")

	ErrLoggerIsNotDefined        = errors.New("logger is not defined")
	ErrEventStreamIsNotDefined   = errors.New("event stream is not defined")
	ErrTokenVerifierIsNotDefined = errors.New("token verifier is not defined")
	ErrNoteStoreIsNotDefined     = errors.New("note store is not defined")
	ErrFolderStoreIsNotDefined   = errors.New("folder store is not defined")
)
