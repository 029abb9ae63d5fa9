package store

import (
	"database/sql"
	"errors"
	"fmt"

	"mnemo/internal/types"
)

const patchColumns = "id, title, description, diff, test_notes, status, model, created_at"

func scanPatch(row interface{ Scan(...any) error }) (*types.PatchProposal, error) {
	var p types.PatchProposal
	var createdAt string
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Diff, &p.TestNotes,
		&p.Status, &p.Model, &createdAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// AddPatch inserts a patch proposal.
func (s *Store) AddPatch(p *types.PatchProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO patch_proposals ("+patchColumns+") VALUES (?,?,?,?,?,?,?,?)",
		p.ID, p.Title, p.Description, p.Diff, p.TestNotes, string(p.Status), p.Model, fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert patch: %w", err)
	}
	return nil
}

// PutPatch upserts a patch proposal by id.
func (s *Store) PutPatch(p *types.PatchProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO patch_proposals ("+patchColumns+") VALUES (?,?,?,?,?,?,?,?)",
		p.ID, p.Title, p.Description, p.Diff, p.TestNotes, string(p.Status), p.Model, fmtTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert patch: %w", err)
	}
	return nil
}

// GetPatch returns the proposal with the given id, or ErrNotFound.
func (s *Store) GetPatch(id string) (*types.PatchProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanPatch(s.db.QueryRow("SELECT "+patchColumns+" FROM patch_proposals WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("patch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load patch: %w", err)
	}
	return p, nil
}

// AllPatches returns every proposal, newest first.
func (s *Store) AllPatches() ([]*types.PatchProposal, error) {
	return s.queryPatches("SELECT " + patchColumns + " FROM patch_proposals ORDER BY created_at DESC")
}

// PatchesByStatus returns proposals in the given status, newest first.
func (s *Store) PatchesByStatus(status types.PatchStatus) ([]*types.PatchProposal, error) {
	return s.queryPatches("SELECT "+patchColumns+" FROM patch_proposals WHERE status = ? ORDER BY created_at DESC", string(status))
}

func (s *Store) queryPatches(query string, args ...any) ([]*types.PatchProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patches: %w", err)
	}
	defer rows.Close()

	var patches []*types.PatchProposal
	for rows.Next() {
		p, err := scanPatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patch: %w", err)
		}
		patches = append(patches, p)
	}
	return patches, rows.Err()
}

// SetPatchStatus updates a proposal's status and records the audit
// entry in the same transaction, so the log never disagrees with the
// proposal row.
func (s *Store) SetPatchStatus(p *types.PatchProposal, e *types.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec("UPDATE patch_proposals SET status = ? WHERE id = ?", string(p.Status), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update patch status: %w", err)
	}
	_, err = tx.Exec(
		"INSERT INTO audit_log (id, patch_id, status, created_at) VALUES (?,?,?,?)",
		e.ID, e.PatchID, string(e.Status), fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return tx.Commit()
}

// AppendAuditEntry records a patch status transition. The audit log is
// append-only: there is deliberately no update or delete counterpart.
func (s *Store) AppendAuditEntry(e *types.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO audit_log (id, patch_id, status, created_at) VALUES (?,?,?,?)",
		e.ID, e.PatchID, string(e.Status), fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// AuditLog returns all audit entries in insertion order.
func (s *Store) AuditLog() ([]*types.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, patch_id, status, created_at FROM audit_log ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*types.AuditLogEntry
	for rows.Next() {
		var e types.AuditLogEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.PatchID, &e.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
