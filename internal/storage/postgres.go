package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/quillvault/syncwire/synclib"
)

const notesTableDDL = `
CREATE TABLE IF NOT EXISTS notes (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT NOT NULL DEFAULT '',
    content    TEXT NOT NULL DEFAULT '',
    folder_id  TEXT NOT NULL DEFAULT '',
    pinned     BOOLEAN NOT NULL DEFAULT FALSE,
    archived   BOOLEAN NOT NULL DEFAULT FALSE,
    tags       TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS notes_user_id_idx ON notes (user_id);
`

const foldersTableDDL = `
CREATE TABLE IF NOT EXISTS folders (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    color      TEXT NOT NULL DEFAULT '',
    parent_id  TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS folders_user_id_idx ON folders (user_id);
`

// noteColumns maps wire field names to table columns. Anything absent
// here never reaches SQL.
var noteColumns = map[string]string{
	"title":    "title",
	"content":  "content",
	"folderId": "folder_id",
	"pinned":   "pinned",
	"archived": "archived",
	"tags":     "tags",
}

var folderColumns = map[string]string{
	"name":     "name",
	"color":    "color",
	"parentId": "parent_id",
}

// Postgres owns a database handle shared by the note and folder
// stores. Table bootstrap runs once, on first use.
type Postgres struct {
	db           *sql.DB
	bootstrap    sync.Once
	bootstrapErr error
}

// NewPostgres opens a database handle. The connection is established
// lazily, call Ping to fail fast on a bad DSN.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open a database: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx) //nolint: wrapcheck
}

func (p *Postgres) Close() error {
	return p.db.Close() //nolint: wrapcheck
}

// Notes returns a note store backed by this handle.
func (p *Postgres) Notes() *PostgresNoteStore {
	return &PostgresNoteStore{parent: p}
}

// Folders returns a folder store backed by this handle.
func (p *Postgres) Folders() *PostgresFolderStore {
	return &PostgresFolderStore{parent: p}
}

func (p *Postgres) ensureReady(ctx context.Context) error {
	p.bootstrap.Do(func() {
		for _, ddl := range []string{notesTableDDL, foldersTableDDL} {
			if _, err := p.db.ExecContext(ctx, ddl); err != nil {
				p.bootstrapErr = fmt.Errorf("cannot bootstrap tables: %w", err)

				return
			}
		}
	})

	return p.bootstrapErr
}

type PostgresNoteStore struct {
	parent *Postgres
}

func (s *PostgresNoteStore) FindByIDAndUser(ctx context.Context, noteID, userID string) (*synclib.Note, error) {
	if err := s.parent.ensureReady(ctx); err != nil {
		return nil, err
	}

	row := s.parent.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, content, folder_id, pinned, archived, tags, created_at, updated_at
         FROM notes WHERE id = $1 AND user_id = $2`,
		noteID, userID)

	return scanNote(row)
}

func (s *PostgresNoteStore) UpdateScoped(ctx context.Context, noteID, userID string, changes map[string]interface{}) (*synclib.Note, error) {
	if err := s.parent.ensureReady(ctx); err != nil {
		return nil, err
	}

	assignments, args := buildAssignments(noteColumns, changes)
	args = append(args, noteID, userID)

	query := fmt.Sprintf(
		`UPDATE notes SET %s
         WHERE id = $%d AND user_id = $%d
         RETURNING id, user_id, title, content, folder_id, pinned, archived, tags, created_at, updated_at`,
		strings.Join(assignments, ", "), len(args)-1, len(args))

	return scanNote(s.parent.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresNoteStore) DeleteScoped(ctx context.Context, noteID, userID string) error {
	if err := s.parent.ensureReady(ctx); err != nil {
		return err
	}

	result, err := s.parent.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND user_id = $2`, noteID, userID)
	if err != nil {
		return fmt.Errorf("cannot delete a note: %w", err)
	}

	return checkAffected(result)
}

type PostgresFolderStore struct {
	parent *Postgres
}

func (s *PostgresFolderStore) FindByIDAndUser(ctx context.Context, folderID, userID string) (*synclib.Folder, error) {
	if err := s.parent.ensureReady(ctx); err != nil {
		return nil, err
	}

	row := s.parent.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, color, parent_id, created_at, updated_at
         FROM folders WHERE id = $1 AND user_id = $2`,
		folderID, userID)

	return scanFolder(row)
}

func (s *PostgresFolderStore) UpdateScoped(ctx context.Context, folderID, userID string, changes map[string]interface{}) (*synclib.Folder, error) {
	if err := s.parent.ensureReady(ctx); err != nil {
		return nil, err
	}

	assignments, args := buildAssignments(folderColumns, changes)
	args = append(args, folderID, userID)

	query := fmt.Sprintf(
		`UPDATE folders SET %s
         WHERE id = $%d AND user_id = $%d
         RETURNING id, user_id, name, color, parent_id, created_at, updated_at`,
		strings.Join(assignments, ", "), len(args)-1, len(args))

	return scanFolder(s.parent.db.QueryRowContext(ctx, query, args...))
}

func (s *PostgresFolderStore) DeleteScoped(ctx context.Context, folderID, userID string) error {
	if err := s.parent.ensureReady(ctx); err != nil {
		return err
	}

	result, err := s.parent.db.ExecContext(ctx,
		`DELETE FROM folders WHERE id = $1 AND user_id = $2`, folderID, userID)
	if err != nil {
		return fmt.Errorf("cannot delete a folder: %w", err)
	}

	return checkAffected(result)
}

// buildAssignments renders SET clauses for the known columns of a
// change set. Callers filter change sets before they get here, so an
// unknown field is simply skipped. updated_at is always refreshed,
// which also keeps the statement valid for an empty change set.
func buildAssignments(columns map[string]string, changes map[string]interface{}) ([]string, []interface{}) {
	assignments := append(make([]string, 0, len(changes)+1), "updated_at = NOW()")
	args := make([]interface{}, 0, len(changes))

	for field, value := range changes {
		column, ok := columns[field]
		if !ok {
			continue
		}

		if field == "tags" {
			value = pq.Array(toStringSlice(value))
		}

		if value == nil {
			value = ""
		}

		args = append(args, value)
		assignments = append(assignments, column+" = $"+strconv.Itoa(len(args)))
	}

	return assignments, args
}

func scanNote(row *sql.Row) (*synclib.Note, error) {
	note := &synclib.Note{}

	err := row.Scan(
		&note.ID, &note.UserID, &note.Title, &note.Content, &note.FolderID,
		&note.Pinned, &note.Archived, pq.Array(&note.Tags),
		&note.CreatedAt, &note.UpdatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, synclib.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("cannot scan a note: %w", err)
	}

	return note, nil
}

func scanFolder(row *sql.Row) (*synclib.Folder, error) {
	folder := &synclib.Folder{}

	err := row.Scan(
		&folder.ID, &folder.UserID, &folder.Name, &folder.Color, &folder.ParentID,
		&folder.CreatedAt, &folder.UpdatedAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, synclib.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("cannot scan a folder: %w", err)
	}

	return folder, nil
}

func checkAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("cannot get affected rows: %w", err)
	}

	if affected == 0 {
		return synclib.ErrNotFound
	}

	return nil
}
