// Package types provides shared type definitions used across mnemo packages.
// This package exists to break import cycles between store, engine, and
// provider. Types in this package should be foundational data structures
// with no complex dependencies.
package types

import (
	"fmt"
	"sync"
	"time"
)

// ContentKind classifies what a note body contains.
type ContentKind string

const (
	KindText ContentKind = "text"
	KindCode ContentKind = "code"
	KindLink ContentKind = "link"
)

// Valid reports whether the kind is one of the known content kinds.
func (k ContentKind) Valid() bool {
	switch k {
	case KindText, KindCode, KindLink:
		return true
	}
	return false
}

// Attachment is an opaque reference to captured media stored outside the
// database (path or URI plus a MIME hint).
type Attachment struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mime_type,omitempty"`
}

// Note is the primary document entity. FolderID is empty for uncategorized
// notes. Summary and Tags are written only by the enrichment path.
type Note struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Summary     string       `json:"summary,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	FolderID    string       `json:"folder_id,omitempty"`
	Kind        ContentKind  `json:"kind"`
	Language    string       `json:"language,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Clone returns a deep copy. The engine snapshots entities before mutating
// so a failed persist can restore the exact prior state.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	c.Tags = append([]string(nil), n.Tags...)
	c.Attachments = append([]Attachment(nil), n.Attachments...)
	return &c
}

// HasTag reports whether the note carries the given tag.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Folder groups notes. Names are unique across the folder collection.
type Folder struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a copy of the folder.
func (f *Folder) Clone() *Folder {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// Connection is an undirected edge between two notes with the rationale
// that motivated it. Endpoints may dangle after a note delete; read paths
// must tolerate that.
type Connection struct {
	ID        string    `json:"id"`
	NoteA     string    `json:"note_a"`
	NoteB     string    `json:"note_b"`
	Rationale string    `json:"rationale"`
	CreatedAt time.Time `json:"created_at"`
}

// Links reports whether the connection touches both given notes,
// regardless of direction.
func (c *Connection) Links(a, b string) bool {
	return (c.NoteA == a && c.NoteB == b) || (c.NoteA == b && c.NoteB == a)
}

// Touches reports whether the connection references the given note.
func (c *Connection) Touches(noteID string) bool {
	return c.NoteA == noteID || c.NoteB == noteID
}

// PatchStatus is the lifecycle state of a patch proposal. Transitions are
// one-directional from pending.
type PatchStatus string

const (
	PatchPending  PatchStatus = "pending"
	PatchApproved PatchStatus = "approved"
	PatchRejected PatchStatus = "rejected"
)

// CanTransitionTo reports whether a status change is legal.
func (s PatchStatus) CanTransitionTo(next PatchStatus) bool {
	if s != PatchPending {
		return false
	}
	return next == PatchApproved || next == PatchRejected
}

// PatchProposal is a model-suggested code change. The diff is opaque text;
// nothing in this system parses or applies it.
type PatchProposal struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Diff        string      `json:"diff"`
	TestNotes   string      `json:"test_notes,omitempty"`
	Status      PatchStatus `json:"status"`
	Model       string      `json:"model,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Clone returns a copy of the proposal.
func (p *PatchProposal) Clone() *PatchProposal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// AuditLogEntry records a single patch status transition. Entries are
// append-only and never mutated.
type AuditLogEntry struct {
	ID        string      `json:"id"`
	PatchID   string      `json:"patch_id"`
	Status    PatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// NoteVersion is an immutable snapshot of a note's title and body at a
// point in time. Versions are only appended and read in timestamp order.
type NoteVersion struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"note_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// FeatureFlag is a user-toggled boolean switch.
type FeatureFlag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Clone returns a copy of the flag.
func (f *FeatureFlag) Clone() *FeatureFlag {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// Identifier stamps are wall-clock milliseconds, bumped past the previous
// stamp so two creates in the same millisecond still get distinct IDs.
var (
	stampMu   sync.Mutex
	lastStamp int64
)

func nextStamp(now time.Time) int64 {
	stampMu.Lock()
	defer stampMu.Unlock()
	ms := now.UnixMilli()
	if ms <= lastStamp {
		ms = lastStamp + 1
	}
	lastStamp = ms
	return ms
}

// NewNoteID mints a note identifier from a wall-clock timestamp.
func NewNoteID(now time.Time) string {
	return fmt.Sprintf("note-%d", nextStamp(now))
}

// NewFolderID mints a folder identifier from a wall-clock timestamp.
func NewFolderID(now time.Time) string {
	return fmt.Sprintf("folder-%d", nextStamp(now))
}
