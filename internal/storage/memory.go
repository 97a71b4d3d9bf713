// Package storage provides note and folder stores: an in-memory one
// for tests and single-node setups, and a Postgres one for everything
// else.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/quillvault/syncwire/synclib"
)

// MemoryNoteStore keeps notes in a process-local map. It honors the
// same (id, userID) scoping contract as the Postgres store.
type MemoryNoteStore struct {
	mu    sync.RWMutex
	notes map[string]*synclib.Note
}

func NewMemoryNoteStore() *MemoryNoteStore {
	return &MemoryNoteStore{
		notes: make(map[string]*synclib.Note),
	}
}

// Put inserts or replaces a note. It exists for seeding and for REST
// handlers which persist before notifying.
func (m *MemoryNoteStore) Put(note *synclib.Note) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *note
	m.notes[note.ID] = &clone
}

func (m *MemoryNoteStore) FindByIDAndUser(_ context.Context, noteID, userID string) (*synclib.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	note, ok := m.notes[noteID]
	if !ok || note.UserID != userID {
		return nil, synclib.ErrNotFound
	}

	clone := *note

	return &clone, nil
}

func (m *MemoryNoteStore) UpdateScoped(_ context.Context, noteID, userID string, changes map[string]interface{}) (*synclib.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[noteID]
	if !ok || note.UserID != userID {
		return nil, synclib.ErrNotFound
	}

	applyNoteChanges(note, changes)
	note.UpdatedAt = time.Now()

	clone := *note

	return &clone, nil
}

func (m *MemoryNoteStore) DeleteScoped(_ context.Context, noteID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	note, ok := m.notes[noteID]
	if !ok || note.UserID != userID {
		return synclib.ErrNotFound
	}

	delete(m.notes, noteID)

	return nil
}

// MemoryFolderStore is a process-local folder store.
type MemoryFolderStore struct {
	mu      sync.RWMutex
	folders map[string]*synclib.Folder
}

func NewMemoryFolderStore() *MemoryFolderStore {
	return &MemoryFolderStore{
		folders: make(map[string]*synclib.Folder),
	}
}

func (m *MemoryFolderStore) Put(folder *synclib.Folder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *folder
	m.folders[folder.ID] = &clone
}

func (m *MemoryFolderStore) FindByIDAndUser(_ context.Context, folderID, userID string) (*synclib.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	folder, ok := m.folders[folderID]
	if !ok || folder.UserID != userID {
		return nil, synclib.ErrNotFound
	}

	clone := *folder

	return &clone, nil
}

func (m *MemoryFolderStore) UpdateScoped(_ context.Context, folderID, userID string, changes map[string]interface{}) (*synclib.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	folder, ok := m.folders[folderID]
	if !ok || folder.UserID != userID {
		return nil, synclib.ErrNotFound
	}

	applyFolderChanges(folder, changes)
	folder.UpdatedAt = time.Now()

	clone := *folder

	return &clone, nil
}

func (m *MemoryFolderStore) DeleteScoped(_ context.Context, folderID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	folder, ok := m.folders[folderID]
	if !ok || folder.UserID != userID {
		return synclib.ErrNotFound
	}

	delete(m.folders, folderID)

	return nil
}

func applyNoteChanges(note *synclib.Note, changes map[string]interface{}) {
	for field, value := range changes {
		switch field {
		case "title":
			if v, ok := value.(string); ok {
				note.Title = v
			}
		case "content":
			if v, ok := value.(string); ok {
				note.Content = v
			}
		case "folderId":
			switch v := value.(type) {
			case string:
				note.FolderID = v
			case nil:
				note.FolderID = ""
			}
		case "pinned":
			if v, ok := value.(bool); ok {
				note.Pinned = v
			}
		case "archived":
			if v, ok := value.(bool); ok {
				note.Archived = v
			}
		case "tags":
			note.Tags = toStringSlice(value)
		}
	}
}

func applyFolderChanges(folder *synclib.Folder, changes map[string]interface{}) {
	for field, value := range changes {
		switch field {
		case "name":
			if v, ok := value.(string); ok {
				folder.Name = v
			}
		case "color":
			if v, ok := value.(string); ok {
				folder.Color = v
			}
		case "parentId":
			switch v := value.(type) {
			case string:
				folder.ParentID = v
			case nil:
				folder.ParentID = ""
			}
		}
	}
}

// toStringSlice converts a decoded JSON array to []string, dropping
// anything which is not a string.
func toStringSlice(value interface{}) []string {
	raw, ok := value.([]interface{})
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))

	for _, item := range raw {
		if v, ok := item.(string); ok {
			out = append(out, v)
		}
	}

	return out
}
