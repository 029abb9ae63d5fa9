package store

import (
	"database/sql"
	"errors"
	"fmt"

	"mnemo/internal/types"
)

// AppendVersion stores an immutable note snapshot. Versions are only ever
// appended; there is no update counterpart.
func (s *Store) AppendVersion(v *types.NoteVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO note_versions (id, note_id, title, content, created_at) VALUES (?,?,?,?,?)",
		v.ID, v.NoteID, v.Title, v.Content, fmtTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append version: %w", err)
	}
	return nil
}

// LatestVersion returns the most recent snapshot for a note, or nil when
// the note has no versions yet.
func (s *Store) LatestVersion(noteID string) (*types.NoteVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		"SELECT id, note_id, title, content, created_at FROM note_versions WHERE note_id = ? ORDER BY created_at DESC LIMIT 1",
		noteID)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest version: %w", err)
	}
	return v, nil
}

// VersionsForNote returns snapshots for a note, newest first (the order
// the restore view presents them in).
func (s *Store) VersionsForNote(noteID string) ([]*types.NoteVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, note_id, title, content, created_at FROM note_versions WHERE note_id = ? ORDER BY created_at DESC",
		noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var versions []*types.NoteVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetVersion returns a snapshot by id, or ErrNotFound.
func (s *Store) GetVersion(id string) (*types.NoteVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := scanVersion(s.db.QueryRow(
		"SELECT id, note_id, title, content, created_at FROM note_versions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load version: %w", err)
	}
	return v, nil
}

func scanVersion(row interface{ Scan(...any) error }) (*types.NoteVersion, error) {
	var v types.NoteVersion
	var createdAt string
	if err := row.Scan(&v.ID, &v.NoteID, &v.Title, &v.Content, &createdAt); err != nil {
		return nil, err
	}
	v.CreatedAt = parseTime(createdAt)
	return &v, nil
}
