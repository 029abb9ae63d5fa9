package store

import (
	"database/sql"
	"errors"
	"fmt"

	"mnemo/internal/types"
)

func scanConnection(row interface{ Scan(...any) error }) (*types.Connection, error) {
	var c types.Connection
	var createdAt string
	if err := row.Scan(&c.ID, &c.NoteA, &c.NoteB, &c.Rationale, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// AddConnection inserts a connection edge.
func (s *Store) AddConnection(c *types.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO connections (id, note_a, note_b, rationale, created_at) VALUES (?,?,?,?,?)",
		c.ID, c.NoteA, c.NoteB, c.Rationale, fmtTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	return nil
}

// GetConnection returns the connection with the given id, or ErrNotFound.
func (s *Store) GetConnection(id string) (*types.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanConnection(s.db.QueryRow(
		"SELECT id, note_a, note_b, rationale, created_at FROM connections WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	return c, nil
}

// AllConnections returns every connection edge.
func (s *Store) AllConnections() ([]*types.Connection, error) {
	return s.queryConnections("SELECT id, note_a, note_b, rationale, created_at FROM connections ORDER BY created_at")
}

// ConnectionsForNote returns edges touching the given note in either
// direction. Endpoints may dangle after a note delete; callers filter.
func (s *Store) ConnectionsForNote(noteID string) ([]*types.Connection, error) {
	return s.queryConnections(
		"SELECT id, note_a, note_b, rationale, created_at FROM connections WHERE note_a = ? OR note_b = ? ORDER BY created_at",
		noteID, noteID)
}

func (s *Store) queryConnections(query string, args ...any) ([]*types.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*types.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// DeleteConnection removes an edge by id.
func (s *Store) DeleteConnection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM connections WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}
