package store

import (
	"encoding/json"
	"fmt"

	"mnemo/internal/types"
)

// Archive is the export/import document: one JSON object with parallel
// arrays for every collection. Import replaces all local state wholesale.
type Archive struct {
	Notes       []*types.Note          `json:"notes"`
	Folders     []*types.Folder        `json:"folders"`
	Connections []*types.Connection    `json:"connections"`
	Patches     []*types.PatchProposal `json:"patches"`
	Flags       []*types.FeatureFlag   `json:"feature_flags"`
	AuditLog    []*types.AuditLogEntry `json:"audit_log"`
	Versions    []*types.NoteVersion   `json:"versions"`
	Settings    map[string]string      `json:"settings"`
}

// Export collects every collection into a single archive.
func (s *Store) Export() (*Archive, error) {
	a := &Archive{Settings: map[string]string{}}
	var err error

	if a.Notes, err = s.AllNotes(); err != nil {
		return nil, err
	}
	if a.Folders, err = s.AllFolders(); err != nil {
		return nil, err
	}
	if a.Connections, err = s.AllConnections(); err != nil {
		return nil, err
	}
	if a.Patches, err = s.AllPatches(); err != nil {
		return nil, err
	}
	if a.Flags, err = s.AllFlags(); err != nil {
		return nil, err
	}
	if a.AuditLog, err = s.AuditLog(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, note_id, title, content, created_at FROM note_versions ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		a.Versions = append(a.Versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var k, v string
		if err := srows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		a.Settings[k] = v
	}
	return a, srows.Err()
}

// ExportJSON marshals the archive as indented JSON.
func (s *Store) ExportJSON() ([]byte, error) {
	a, err := s.Export()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(a, "", "  ")
}

// Import replaces all local state with the archive's contents in a single
// transaction. Callers confirm with the user before invoking this.
func (s *Store) Import(a *Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"notes", "folders", "connections", "patch_proposals",
		"audit_log", "note_versions", "feature_flags", "settings",
	} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, n := range a.Notes {
		args, err := noteArgs(n)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT INTO notes ("+noteColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?)", args...); err != nil {
			return fmt.Errorf("failed to import note %s: %w", n.ID, err)
		}
	}
	for _, f := range a.Folders {
		if _, err := tx.Exec("INSERT INTO folders (id, name, description, created_at) VALUES (?,?,?,?)",
			f.ID, f.Name, f.Description, fmtTime(f.CreatedAt)); err != nil {
			return fmt.Errorf("failed to import folder %s: %w", f.ID, err)
		}
	}
	for _, c := range a.Connections {
		if _, err := tx.Exec("INSERT INTO connections (id, note_a, note_b, rationale, created_at) VALUES (?,?,?,?,?)",
			c.ID, c.NoteA, c.NoteB, c.Rationale, fmtTime(c.CreatedAt)); err != nil {
			return fmt.Errorf("failed to import connection %s: %w", c.ID, err)
		}
	}
	for _, p := range a.Patches {
		if _, err := tx.Exec("INSERT INTO patch_proposals ("+patchColumns+") VALUES (?,?,?,?,?,?,?,?)",
			p.ID, p.Title, p.Description, p.Diff, p.TestNotes, string(p.Status), p.Model, fmtTime(p.CreatedAt)); err != nil {
			return fmt.Errorf("failed to import patch %s: %w", p.ID, err)
		}
	}
	for _, e := range a.AuditLog {
		if _, err := tx.Exec("INSERT INTO audit_log (id, patch_id, status, created_at) VALUES (?,?,?,?)",
			e.ID, e.PatchID, string(e.Status), fmtTime(e.CreatedAt)); err != nil {
			return fmt.Errorf("failed to import audit entry %s: %w", e.ID, err)
		}
	}
	for _, v := range a.Versions {
		if _, err := tx.Exec("INSERT INTO note_versions (id, note_id, title, content, created_at) VALUES (?,?,?,?,?)",
			v.ID, v.NoteID, v.Title, v.Content, fmtTime(v.CreatedAt)); err != nil {
			return fmt.Errorf("failed to import version %s: %w", v.ID, err)
		}
	}
	for _, f := range a.Flags {
		enabled := 0
		if f.Enabled {
			enabled = 1
		}
		if _, err := tx.Exec("INSERT INTO feature_flags (id, name, description, enabled) VALUES (?,?,?,?)",
			f.ID, f.Name, f.Description, enabled); err != nil {
			return fmt.Errorf("failed to import flag %s: %w", f.ID, err)
		}
	}
	for k, v := range a.Settings {
		if _, err := tx.Exec("INSERT INTO settings (key, value) VALUES (?,?)", k, v); err != nil {
			return fmt.Errorf("failed to import setting %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// ImportJSON parses and imports an archive document.
func (s *Store) ImportJSON(data []byte) error {
	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("failed to parse archive: %w", err)
	}
	return s.Import(&a)
}
