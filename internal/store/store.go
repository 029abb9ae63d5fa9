// Package store implements the embedded persistent store backing mnemo.
// All entities live in a single SQLite database: notes, folders,
// connections, patch proposals, feature flags, the audit log, and note
// versions. The store is a pure CRUD surface; mutation policy (optimistic
// apply, rollback, constraint ordering) lives in internal/engine.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"mnemo/internal/types"
)

// Store wraps the SQLite connection. A single writer at a time is assumed
// (UI-level serialization); the mutex guards the connection against the
// recorder and exporter running concurrently with reads.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	logger *zap.Logger
}

// Open initializes the SQLite database at the given path, creating the
// parent directory and schema as needed. Use ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logger.Debug("failed to enable sqlite foreign_keys", zap.Error(err))
	}

	s := &Store{db: db, dbPath: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("store initialized", zap.String("path", path))
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	notesTable := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		folder_id TEXT,
		kind TEXT NOT NULL DEFAULT 'text',
		language TEXT NOT NULL DEFAULT '',
		attachments TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notes_folder ON notes(folder_id);
	CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated_at);
	`

	foldersTable := `
	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	`

	connectionsTable := `
	CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		note_a TEXT NOT NULL,
		note_b TEXT NOT NULL,
		rationale TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(note_a, note_b)
	);
	CREATE INDEX IF NOT EXISTS idx_connections_a ON connections(note_a);
	CREATE INDEX IF NOT EXISTS idx_connections_b ON connections(note_b);
	`

	patchesTable := `
	CREATE TABLE IF NOT EXISTS patch_proposals (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		diff TEXT NOT NULL DEFAULT '',
		test_notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		model TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patches_status ON patch_proposals(status);
	`

	auditTable := `
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		patch_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_patch ON audit_log(patch_id);
	`

	versionsTable := `
	CREATE TABLE IF NOT EXISTS note_versions (
		id TEXT PRIMARY KEY,
		note_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_versions_note ON note_versions(note_id, created_at);
	`

	flagsTable := `
	CREATE TABLE IF NOT EXISTS feature_flags (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 0
	);
	`

	settingsTable := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	for _, table := range []string{
		notesTable,
		foldersTable,
		connectionsTable,
		patchesTable,
		auditTable,
		versionsTable,
		flagsTable,
		settingsTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if err := runMigrations(s.db, s.logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.logger.Debug("closing store", zap.String("path", s.dbPath))
	return s.db.Close()
}

// DB returns the underlying SQL database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Stats returns per-table row counts.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := []string{
		"notes", "folders", "connections", "patch_proposals",
		"audit_log", "note_versions", "feature_flags",
	}
	for _, table := range tables {
		var count int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			s.logger.Debug("table count failed", zap.String("table", table), zap.Error(err))
			continue
		}
		stats[table] = count
	}
	return stats, nil
}

// Empty reports whether the store holds no notes and no folders. The
// engine checks this under its init lock to decide first-run seeding.
func (s *Store) Empty() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRow("SELECT (SELECT COUNT(*) FROM notes) + (SELECT COUNT(*) FROM folders)").Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count entities: %w", err)
	}
	return n == 0, nil
}

// SeedContent inserts starter folders and notes in a single transaction.
// If any insert fails nothing is committed, so a failed first-run seed
// leaves the store exactly as empty as it found it.
func (s *Store) SeedContent(folders []*types.Folder, notes []*types.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, f := range folders {
		if _, err := tx.Exec("INSERT INTO folders (id, name, description, created_at) VALUES (?,?,?,?)",
			f.ID, f.Name, f.Description, fmtTime(f.CreatedAt)); err != nil {
			return fmt.Errorf("failed to seed folder %s: %w", f.Name, err)
		}
	}
	for _, n := range notes {
		args, err := noteArgs(n)
		if err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT INTO notes ("+noteColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?)", args...); err != nil {
			return fmt.Errorf("failed to seed note %s: %w", n.ID, err)
		}
	}
	return tx.Commit()
}

// Timestamps are stored as RFC3339Nano text so they round-trip exactly
// through export/import.
const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
