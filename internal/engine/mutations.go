package engine

import (
	"fmt"

	"github.com/google/uuid"

	"mnemo/internal/types"
)

// CreateNote adds a note and returns a clone of it. The folder, when
// given, must exist; an empty folderID leaves the note uncategorized.
func (e *Engine) CreateNote(title, content, folderID string, kind types.ContentKind, language string) (*types.Note, error) {
	if kind == "" {
		kind = types.KindText
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	e.mu.RLock()
	_, folderOK := e.folders[folderID]
	e.mu.RUnlock()
	if folderID != "" && !folderOK {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, folderID)
	}

	now := e.now()
	note := &types.Note{
		ID:        types.NewNoteID(now),
		Title:     title,
		Content:   content,
		FolderID:  folderID,
		Kind:      kind,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := e.Apply(
		func() { e.notes[note.ID] = note },
		func() error { return e.store.AddNote(note) },
		func() { delete(e.notes, note.ID) },
	)
	if err != nil {
		return nil, err
	}
	e.notify(Event{Kind: EventNoteChanged, Note: note.Clone()})
	return note.Clone(), nil
}

// mutateNote runs the optimistic protocol for an in-place note change.
// change edits the live mirror entry; the pre-mutation clone is restored
// on persist failure.
func (e *Engine) mutateNote(id string, change func(*types.Note)) (*types.Note, error) {
	e.mu.RLock()
	n, ok := e.notes[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNote, id)
	}

	snapshot := n.Clone()
	err := e.Apply(
		func() {
			change(n)
			n.UpdatedAt = e.now()
		},
		func() error { return e.store.PutNote(n) },
		func() { e.notes[id] = snapshot },
	)
	if err != nil {
		return nil, err
	}
	e.notify(Event{Kind: EventNoteChanged, Note: n.Clone()})
	return n.Clone(), nil
}

// UpdateNoteTitle renames a note.
func (e *Engine) UpdateNoteTitle(id, title string) (*types.Note, error) {
	return e.mutateNote(id, func(n *types.Note) { n.Title = title })
}

// AppendNoteContent appends a block to a note's body, separated from
// the existing body by a blank line.
func (e *Engine) AppendNoteContent(id, content string) (*types.Note, error) {
	return e.mutateNote(id, func(n *types.Note) {
		if n.Content == "" {
			n.Content = content
			return
		}
		n.Content = n.Content + "\n\n" + content
	})
}

// OverwriteNoteContent replaces a note's body wholesale.
func (e *Engine) OverwriteNoteContent(id, content string) (*types.Note, error) {
	return e.mutateNote(id, func(n *types.Note) { n.Content = content })
}

// RestoreNoteVersion rewinds a note's title and body to a recorded
// snapshot. The restore itself is an ordinary content change, so the
// pre-restore state gets its own version snapshot downstream.
func (e *Engine) RestoreNoteVersion(id string, v *types.NoteVersion) (*types.Note, error) {
	return e.mutateNote(id, func(n *types.Note) {
		n.Title = v.Title
		n.Content = v.Content
	})
}

// SetNoteMetadata updates a note's content kind and language hint.
// Empty arguments leave the corresponding field untouched.
func (e *Engine) SetNoteMetadata(id string, kind types.ContentKind, language string) (*types.Note, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return e.mutateNote(id, func(n *types.Note) {
		if kind != "" {
			n.Kind = kind
		}
		if language != "" {
			n.Language = language
		}
	})
}

// SetNoteEnrichment writes a model-produced summary and tag set.
func (e *Engine) SetNoteEnrichment(id, summary string, tags []string) (*types.Note, error) {
	return e.mutateNote(id, func(n *types.Note) {
		n.Summary = summary
		n.Tags = append([]string(nil), tags...)
	})
}

// AttachToNote appends an attachment reference.
func (e *Engine) AttachToNote(id string, att types.Attachment) (*types.Note, error) {
	return e.mutateNote(id, func(n *types.Note) {
		n.Attachments = append(n.Attachments, att)
	})
}

// MoveNote reassigns a note to a folder. An empty folderID moves it to
// uncategorized. The target folder must exist.
func (e *Engine) MoveNote(id, folderID string) (*types.Note, error) {
	if folderID != "" {
		e.mu.RLock()
		_, ok := e.folders[folderID]
		e.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, folderID)
		}
	}
	return e.mutateNote(id, func(n *types.Note) { n.FolderID = folderID })
}

// DeleteNote removes a note. Connections touching it are left in place;
// read paths skip edges with a dangling endpoint.
func (e *Engine) DeleteNote(id string) error {
	e.mu.RLock()
	n, ok := e.notes[id]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNote, id)
	}

	snapshot := n.Clone()
	err := e.Apply(
		func() { delete(e.notes, id) },
		func() error { return e.store.DeleteNote(id) },
		func() { e.notes[id] = snapshot },
	)
	if err != nil {
		return err
	}
	e.notify(Event{Kind: EventNoteDeleted, Note: snapshot})
	return nil
}

// CreateFolder adds a folder. Names are unique across the collection;
// a duplicate is rejected before any state changes.
func (e *Engine) CreateFolder(name, description string) (*types.Folder, error) {
	e.mu.RLock()
	dup := false
	for _, f := range e.folders {
		if f.Name == name {
			dup = true
			break
		}
	}
	e.mu.RUnlock()
	if dup {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateFolderName, name)
	}

	now := e.now()
	folder := &types.Folder{
		ID:          types.NewFolderID(now),
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}

	err := e.Apply(
		func() { e.folders[folder.ID] = folder },
		func() error { return e.store.AddFolder(folder) },
		func() { delete(e.folders, folder.ID) },
	)
	if err != nil {
		return nil, err
	}
	e.notify(Event{Kind: EventFolderChanged})
	return folder.Clone(), nil
}

// UpdateFolderDescription replaces a folder's description.
func (e *Engine) UpdateFolderDescription(id, description string) (*types.Folder, error) {
	e.mu.RLock()
	f, ok := e.folders[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, id)
	}

	snapshot := f.Clone()
	err := e.Apply(
		func() { f.Description = description },
		func() error { return e.store.PutFolder(f) },
		func() { e.folders[id] = snapshot },
	)
	if err != nil {
		return nil, err
	}
	e.notify(Event{Kind: EventFolderChanged})
	return f.Clone(), nil
}

// DeleteFolder removes a folder and reassigns its notes to
// uncategorized. The reassignment and the delete persist in one store
// transaction; if it fails, both the folder and its member notes are
// restored in memory.
func (e *Engine) DeleteFolder(id string) error {
	e.mu.RLock()
	f, ok := e.folders[id]
	var members []*types.Note
	if ok {
		for _, n := range e.notes {
			if n.FolderID == id {
				members = append(members, n)
			}
		}
	}
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFolder, id)
	}

	folderSnap := f.Clone()
	noteSnaps := make([]*types.Note, len(members))
	for i, n := range members {
		noteSnaps[i] = n.Clone()
	}

	err := e.Apply(
		func() {
			for _, n := range members {
				n.FolderID = ""
			}
			delete(e.folders, id)
		},
		func() error { return e.store.DeleteFolderReassigning(id) },
		func() {
			e.folders[id] = folderSnap
			for _, snap := range noteSnaps {
				e.notes[snap.ID] = snap
			}
		},
	)
	if err != nil {
		return err
	}
	e.notify(Event{Kind: EventFolderChanged})
	for _, n := range members {
		e.notify(Event{Kind: EventNoteChanged, Note: n.Clone()})
	}
	return nil
}

// CreateConnection records an undirected edge between two notes. Both
// endpoints must exist and the pair must not already be linked in
// either direction.
func (e *Engine) CreateConnection(noteA, noteB, rationale string) (*types.Connection, error) {
	e.mu.RLock()
	_, aOK := e.notes[noteA]
	_, bOK := e.notes[noteB]
	dup := false
	for _, c := range e.connections {
		if c.Links(noteA, noteB) {
			dup = true
			break
		}
	}
	e.mu.RUnlock()
	if !aOK {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNote, noteA)
	}
	if !bOK {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNote, noteB)
	}
	if dup {
		return nil, fmt.Errorf("%w: %s <-> %s", ErrDuplicateConnection, noteA, noteB)
	}

	conn := &types.Connection{
		ID:        uuid.NewString(),
		NoteA:     noteA,
		NoteB:     noteB,
		Rationale: rationale,
		CreatedAt: e.now(),
	}

	err := e.Apply(
		func() { e.connections[conn.ID] = conn },
		func() error { return e.store.AddConnection(conn) },
		func() { delete(e.connections, conn.ID) },
	)
	if err != nil {
		return nil, err
	}
	cp := *conn
	return &cp, nil
}

// DeleteConnection removes an edge.
func (e *Engine) DeleteConnection(id string) error {
	e.mu.RLock()
	c, ok := e.connections[id]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown connection: %s", id)
	}

	snapshot := *c
	return e.Apply(
		func() { delete(e.connections, id) },
		func() error { return e.store.DeleteConnection(id) },
		func() { e.connections[id] = &snapshot },
	)
}

// CreatePatch records a model-proposed code change in pending status.
func (e *Engine) CreatePatch(title, description, diff, testNotes, model string) (*types.PatchProposal, error) {
	patch := &types.PatchProposal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Diff:        diff,
		TestNotes:   testNotes,
		Status:      types.PatchPending,
		Model:       model,
		CreatedAt:   e.now(),
	}

	err := e.Apply(
		func() { e.patches[patch.ID] = patch },
		func() error { return e.store.AddPatch(patch) },
		func() { delete(e.patches, patch.ID) },
	)
	if err != nil {
		return nil, err
	}
	return patch.Clone(), nil
}

// SetPatchStatus transitions a proposal and appends the audit entry.
// Only pending proposals can move, and only to approved or rejected.
func (e *Engine) SetPatchStatus(id string, status types.PatchStatus) (*types.PatchProposal, error) {
	e.mu.RLock()
	p, ok := e.patches[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPatch, id)
	}
	if !p.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, status)
	}

	entry := &types.AuditLogEntry{
		ID:        uuid.NewString(),
		PatchID:   id,
		Status:    status,
		CreatedAt: e.now(),
	}
	snapshot := p.Clone()
	err := e.Apply(
		func() { p.Status = status },
		func() error { return e.store.SetPatchStatus(p, entry) },
		func() { e.patches[id] = snapshot },
	)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// PutFlag creates or replaces a feature flag.
func (e *Engine) PutFlag(name, description string, enabled bool) (*types.FeatureFlag, error) {
	e.mu.RLock()
	var existing *types.FeatureFlag
	for _, f := range e.flags {
		if f.Name == name {
			existing = f
			break
		}
	}
	e.mu.RUnlock()

	if existing != nil {
		snapshot := existing.Clone()
		err := e.Apply(
			func() {
				existing.Description = description
				existing.Enabled = enabled
			},
			func() error { return e.store.PutFlag(existing) },
			func() { e.flags[existing.ID] = snapshot },
		)
		if err != nil {
			return nil, err
		}
		return existing.Clone(), nil
	}

	flag := &types.FeatureFlag{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Enabled:     enabled,
	}
	err := e.Apply(
		func() { e.flags[flag.ID] = flag },
		func() error { return e.store.PutFlag(flag) },
		func() { delete(e.flags, flag.ID) },
	)
	if err != nil {
		return nil, err
	}
	return flag.Clone(), nil
}

// ToggleFlag flips a flag and returns its new state.
func (e *Engine) ToggleFlag(id string) (*types.FeatureFlag, error) {
	e.mu.RLock()
	f, ok := e.flags[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, id)
	}

	snapshot := f.Clone()
	err := e.Apply(
		func() { f.Enabled = !f.Enabled },
		func() error { return e.store.PutFlag(f) },
		func() { e.flags[id] = snapshot },
	)
	if err != nil {
		return nil, err
	}
	return f.Clone(), nil
}
