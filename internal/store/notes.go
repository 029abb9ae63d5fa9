package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mnemo/internal/types"
)

// ErrNotFound is returned when a keyed lookup misses.
var ErrNotFound = errors.New("not found")

const noteColumns = "id, title, content, summary, tags, folder_id, kind, language, attachments, created_at, updated_at"

func scanNote(row interface{ Scan(...any) error }) (*types.Note, error) {
	var n types.Note
	var tags, attachments, createdAt, updatedAt string
	var folderID sql.NullString
	err := row.Scan(&n.ID, &n.Title, &n.Content, &n.Summary, &tags,
		&folderID, &n.Kind, &n.Language, &attachments, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	n.FolderID = folderID.String
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		n.Tags = nil
	}
	if err := json.Unmarshal([]byte(attachments), &n.Attachments); err != nil {
		n.Attachments = nil
	}
	return &n, nil
}

func noteArgs(n *types.Note) ([]any, error) {
	tags, err := json.Marshal(n.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	attachments, err := json.Marshal(n.Attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}
	var folderID sql.NullString
	if n.FolderID != "" {
		folderID = sql.NullString{String: n.FolderID, Valid: true}
	}
	return []any{
		n.ID, n.Title, n.Content, n.Summary, string(tags), folderID,
		string(n.Kind), n.Language, string(attachments),
		fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt),
	}, nil
}

// AddNote inserts a new note. Fails if the id already exists.
func (s *Store) AddNote(n *types.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := noteArgs(n)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT INTO notes ("+noteColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?)", args...)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// PutNote upserts a note by id.
func (s *Store) PutNote(n *types.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	args, err := noteArgs(n)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO notes ("+noteColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?)", args...)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

// GetNote returns the note with the given id, or ErrNotFound.
func (s *Store) GetNote(id string) (*types.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, err := scanNote(s.db.QueryRow("SELECT "+noteColumns+" FROM notes WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load note: %w", err)
	}
	return n, nil
}

// AllNotes returns every note, most recently updated first.
func (s *Store) AllNotes() ([]*types.Note, error) {
	return s.queryNotes("SELECT " + noteColumns + " FROM notes ORDER BY updated_at DESC")
}

// NotesByFolder returns notes in a folder, most recently updated first.
// Pass an empty folder id for uncategorized notes.
func (s *Store) NotesByFolder(folderID string) ([]*types.Note, error) {
	if folderID == "" {
		return s.queryNotes("SELECT " + noteColumns + " FROM notes WHERE folder_id IS NULL ORDER BY updated_at DESC")
	}
	return s.queryNotes("SELECT "+noteColumns+" FROM notes WHERE folder_id = ? ORDER BY updated_at DESC", folderID)
}

// NotesUpdatedSince returns notes updated at or after the given time,
// oldest first. Used by list views and the enrichment sweep.
func (s *Store) NotesUpdatedSince(t time.Time) ([]*types.Note, error) {
	return s.queryNotes("SELECT "+noteColumns+" FROM notes WHERE updated_at >= ? ORDER BY updated_at ASC", fmtTime(t))
}

func (s *Store) queryNotes(query string, args ...any) ([]*types.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	var notes []*types.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// DeleteNote removes a note by id. Deleting a missing note is a no-op.
func (s *Store) DeleteNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM notes WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	return nil
}
