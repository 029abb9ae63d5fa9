package store

import (
	"database/sql"
	"errors"
	"fmt"

	"mnemo/internal/types"
)

func scanFolder(row interface{ Scan(...any) error }) (*types.Folder, error) {
	var f types.Folder
	var createdAt string
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &createdAt); err != nil {
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	return &f, nil
}

// AddFolder inserts a new folder. The UNIQUE constraint on name is the
// store-level backstop; the engine rejects duplicates before getting here.
func (s *Store) AddFolder(f *types.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO folders (id, name, description, created_at) VALUES (?,?,?,?)",
		f.ID, f.Name, f.Description, fmtTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert folder: %w", err)
	}
	return nil
}

// PutFolder upserts a folder by id.
func (s *Store) PutFolder(f *types.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO folders (id, name, description, created_at) VALUES (?,?,?,?)",
		f.ID, f.Name, f.Description, fmtTime(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert folder: %w", err)
	}
	return nil
}

// GetFolder returns the folder with the given id, or ErrNotFound.
func (s *Store) GetFolder(id string) (*types.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := scanFolder(s.db.QueryRow(
		"SELECT id, name, description, created_at FROM folders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load folder: %w", err)
	}
	return f, nil
}

// AllFolders returns every folder ordered by name.
func (s *Store) AllFolders() ([]*types.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, name, description, created_at FROM folders ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query folders: %w", err)
	}
	defer rows.Close()

	var folders []*types.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// DeleteFolderReassigning removes a folder and nulls the folder reference
// of every member note as a single transaction. If either step fails,
// neither is applied; the engine relies on this for the delete_folder
// contract.
func (s *Store) DeleteFolderReassigning(folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE notes SET folder_id = NULL WHERE folder_id = ?", folderID); err != nil {
		return fmt.Errorf("failed to reassign notes: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM folders WHERE id = ?", folderID); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return tx.Commit()
}
