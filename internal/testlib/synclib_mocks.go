package testlib

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/quillvault/syncwire/synclib"
)

type TokenVerifierMock struct {
	mock.Mock
}

func (m *TokenVerifierMock) Verify(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)

	return args.String(0), args.Error(1) //nolint: wrapcheck
}

type NoteStoreMock struct {
	mock.Mock
}

func (m *NoteStoreMock) FindByIDAndUser(ctx context.Context, noteID, userID string) (*synclib.Note, error) {
	args := m.Called(ctx, noteID, userID)

	if args.Get(0) == nil {
		return nil, args.Error(1) //nolint: wrapcheck
	}

	return args.Get(0).(*synclib.Note), args.Error(1) //nolint: wrapcheck, forcetypeassert
}

func (m *NoteStoreMock) UpdateScoped(ctx context.Context, noteID, userID string, changes map[string]interface{}) (*synclib.Note, error) {
	args := m.Called(ctx, noteID, userID, changes)

	if args.Get(0) == nil {
		return nil, args.Error(1) //nolint: wrapcheck
	}

	return args.Get(0).(*synclib.Note), args.Error(1) //nolint: wrapcheck, forcetypeassert
}

func (m *NoteStoreMock) DeleteScoped(ctx context.Context, noteID, userID string) error {
	return m.Called(ctx, noteID, userID).Error(0) //nolint: wrapcheck
}

type FolderStoreMock struct {
	mock.Mock
}

func (m *FolderStoreMock) FindByIDAndUser(ctx context.Context, folderID, userID string) (*synclib.Folder, error) {
	args := m.Called(ctx, folderID, userID)

	if args.Get(0) == nil {
		return nil, args.Error(1) //nolint: wrapcheck
	}

	return args.Get(0).(*synclib.Folder), args.Error(1) //nolint: wrapcheck, forcetypeassert
}

func (m *FolderStoreMock) UpdateScoped(ctx context.Context, folderID, userID string, changes map[string]interface{}) (*synclib.Folder, error) {
	args := m.Called(ctx, folderID, userID, changes)

	if args.Get(0) == nil {
		return nil, args.Error(1) //nolint: wrapcheck
	}

	return args.Get(0).(*synclib.Folder), args.Error(1) //nolint: wrapcheck, forcetypeassert
}

func (m *FolderStoreMock) DeleteScoped(ctx context.Context, folderID, userID string) error {
	return m.Called(ctx, folderID, userID).Error(0) //nolint: wrapcheck
}

type EventStreamMock struct {
	mock.Mock
}

func (m *EventStreamMock) Send(ctx context.Context, evt synclib.Event) {
	m.Called(ctx, evt)
}
