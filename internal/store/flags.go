package store

import (
	"database/sql"
	"errors"
	"fmt"

	"mnemo/internal/types"
)

// PutFlag upserts a feature flag by id.
func (s *Store) PutFlag(f *types.FeatureFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabled := 0
	if f.Enabled {
		enabled = 1
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO feature_flags (id, name, description, enabled) VALUES (?,?,?,?)",
		f.ID, f.Name, f.Description, enabled)
	if err != nil {
		return fmt.Errorf("failed to upsert flag: %w", err)
	}
	return nil
}

// GetFlag returns the flag with the given id, or ErrNotFound.
func (s *Store) GetFlag(id string) (*types.FeatureFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := scanFlag(s.db.QueryRow(
		"SELECT id, name, description, enabled FROM feature_flags WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flag %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flag: %w", err)
	}
	return f, nil
}

// AllFlags returns every feature flag ordered by name.
func (s *Store) AllFlags() ([]*types.FeatureFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, name, description, enabled FROM feature_flags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query flags: %w", err)
	}
	defer rows.Close()

	var flags []*types.FeatureFlag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

// DeleteFlag removes a flag by id.
func (s *Store) DeleteFlag(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM feature_flags WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete flag: %w", err)
	}
	return nil
}

func scanFlag(row interface{ Scan(...any) error }) (*types.FeatureFlag, error) {
	var f types.FeatureFlag
	var enabled int
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &enabled); err != nil {
		return nil, err
	}
	f.Enabled = enabled != 0
	return &f, nil
}
