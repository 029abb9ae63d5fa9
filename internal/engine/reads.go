package engine

import (
	"sort"
	"strings"

	"mnemo/internal/types"
)

// GetNote returns a clone of the note, or ErrUnknownNote.
func (e *Engine) GetNote(id string) (*types.Note, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.notes[id]
	if !ok {
		return nil, ErrUnknownNote
	}
	return n.Clone(), nil
}

// ListNotes returns clones of all notes, newest first.
func (e *Engine) ListNotes() []*types.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.Note, 0, len(e.notes))
	for _, n := range e.notes {
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// NotesInFolder returns clones of the notes in the given folder. An
// empty folder id selects uncategorized notes.
func (e *Engine) NotesInFolder(folderID string) []*types.Note {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*types.Note
	for _, n := range e.notes {
		if n.FolderID == folderID {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// GetFolder returns a copy of the folder, or ErrUnknownFolder.
func (e *Engine) GetFolder(id string) (*types.Folder, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.folders[id]
	if !ok {
		return nil, ErrUnknownFolder
	}
	cp := *f
	return &cp, nil
}

// FolderByName resolves a folder by exact name.
func (e *Engine) FolderByName(name string) (*types.Folder, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, f := range e.folders {
		if f.Name == name {
			cp := *f
			return &cp, true
		}
	}
	return nil, false
}

// ListFolders returns copies of all folders sorted by name.
func (e *Engine) ListFolders() []*types.Folder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.Folder, 0, len(e.folders))
	for _, f := range e.folders {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// ConnectionsForNote returns the edges touching a note. Edges whose
// other endpoint no longer resolves are skipped rather than surfaced.
func (e *Engine) ConnectionsForNote(noteID string) []*types.Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*types.Connection
	for _, c := range e.connections {
		if !c.Touches(noteID) {
			continue
		}
		other := c.NoteA
		if other == noteID {
			other = c.NoteB
		}
		if _, ok := e.notes[other]; !ok {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListConnections returns copies of all edges.
func (e *Engine) ListConnections() []*types.Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.Connection, 0, len(e.connections))
	for _, c := range e.connections {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetPatch returns a copy of the patch proposal, or ErrUnknownPatch.
func (e *Engine) GetPatch(id string) (*types.PatchProposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.patches[id]
	if !ok {
		return nil, ErrUnknownPatch
	}
	cp := *p
	return &cp, nil
}

// ListPatches returns copies of all patch proposals, newest first.
func (e *Engine) ListPatches() []*types.PatchProposal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.PatchProposal, 0, len(e.patches))
	for _, p := range e.patches {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GetFlag returns a copy of the feature flag, or ErrUnknownFlag.
func (e *Engine) GetFlag(id string) (*types.FeatureFlag, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.flags[id]
	if !ok {
		return nil, ErrUnknownFlag
	}
	cp := *f
	return &cp, nil
}

// ListFlags returns copies of all feature flags sorted by name.
func (e *Engine) ListFlags() []*types.FeatureFlag {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.FeatureFlag, 0, len(e.flags))
	for _, f := range e.flags {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
