package tools

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"mnemo/internal/engine"
	"mnemo/internal/store"
	"mnemo/internal/types"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *engine.Engine) {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	eng := engine.New(s, zap.NewNop())
	if err := eng.Reload(); err != nil {
		t.Fatalf("failed to load mirror: %v", err)
	}
	return NewDispatcher(eng, "test-model", zap.NewNop()), eng
}

func dispatch(t *testing.T, d *Dispatcher, name string, args map[string]any) types.ToolResult {
	t.Helper()
	return d.Dispatch(context.Background(), types.ToolCall{
		ID:    "call-1",
		Name:  name,
		Input: args,
	})
}

func TestCreateFolderConfirmationIncludesID(t *testing.T) {
	d, eng := newTestDispatcher(t)

	res := dispatch(t, d, "create_folder", map[string]any{"name": "Ideas"})
	if res.IsError {
		t.Fatalf("create_folder failed: %s", res.Content)
	}
	f, ok := eng.FolderByName("Ideas")
	if !ok {
		t.Fatal("folder not created")
	}
	if !strings.Contains(res.Content, f.ID) {
		t.Fatalf("confirmation does not reference the folder id: %q", res.Content)
	}
}

func TestDuplicateCreateFolderLeavesCollectionUnchanged(t *testing.T) {
	d, eng := newTestDispatcher(t)

	dispatch(t, d, "create_folder", map[string]any{"name": "Ideas"})
	res := dispatch(t, d, "create_folder", map[string]any{"name": "Ideas"})
	if !res.IsError {
		t.Fatalf("expected validation error, got %q", res.Content)
	}
	if got := len(eng.ListFolders()); got != 1 {
		t.Fatalf("folder collection changed on duplicate: %d folders", got)
	}
}

func TestSequentialToolCallsObserveEarlierEffects(t *testing.T) {
	d, eng := newTestDispatcher(t)
	ctx := context.Background()

	noteRes := d.Dispatch(ctx, types.ToolCall{ID: "c1", Name: "create_note", Input: map[string]any{
		"title": "loose thought", "content": "x",
	}})
	if noteRes.IsError {
		t.Fatalf("create_note failed: %s", noteRes.Content)
	}
	note := eng.ListNotes()[0]

	// Moving into a folder that does not exist yet must fail with a
	// referential error.
	moveRes := d.Dispatch(ctx, types.ToolCall{ID: "c2", Name: "move_note_to_folder", Input: map[string]any{
		"note_id": note.ID, "folder_id": "folder-404",
	}})
	if !moveRes.IsError {
		t.Fatal("expected referential validation error")
	}

	// In request order: create the folder first, then the move sees it.
	d.Dispatch(ctx, types.ToolCall{ID: "c3", Name: "create_folder", Input: map[string]any{"name": "A"}})
	folder, _ := eng.FolderByName("A")
	moveRes = d.Dispatch(ctx, types.ToolCall{ID: "c4", Name: "move_note_to_folder", Input: map[string]any{
		"note_id": note.ID, "folder_id": folder.ID,
	}})
	if moveRes.IsError {
		t.Fatalf("move after create failed: %s", moveRes.Content)
	}
	moved, _ := eng.GetNote(note.ID)
	if moved.FolderID != folder.ID {
		t.Fatalf("note not moved: %q", moved.FolderID)
	}
}

func TestRepeatedCreateNoteMintsDistinctNotes(t *testing.T) {
	d, eng := newTestDispatcher(t)

	args := map[string]any{"title": "same title", "content": "same content"}
	r1 := dispatch(t, d, "create_note", args)
	r2 := dispatch(t, d, "create_note", args)
	if r1.IsError || r2.IsError {
		t.Fatalf("create_note failed: %s / %s", r1.Content, r2.Content)
	}
	if r1.Content == r2.Content {
		t.Fatal("repeated creates returned the same identifier")
	}
	if got := len(eng.ListNotes()); got != 2 {
		t.Fatalf("expected 2 distinct notes, got %d", got)
	}
}

func TestUnknownToolReturnsErrorResult(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res := dispatch(t, d, "launch_missiles", map[string]any{})
	if !res.IsError {
		t.Fatal("unknown tool must produce an error result")
	}
	if res.ToolUseID != "call-1" {
		t.Fatalf("result not paired with the call id: %q", res.ToolUseID)
	}
}

func TestMissingRequiredArgReturnsErrorResult(t *testing.T) {
	d, _ := newTestDispatcher(t)

	res := dispatch(t, d, "create_note", map[string]any{"title": "no content arg"})
	if !res.IsError {
		t.Fatal("missing required argument must produce an error result")
	}
	if !strings.Contains(res.Content, "content") {
		t.Fatalf("error does not name the missing argument: %q", res.Content)
	}
}

func TestUpdateNoteAppendsAndWriteFileOverwrites(t *testing.T) {
	d, eng := newTestDispatcher(t)

	dispatch(t, d, "create_note", map[string]any{"title": "doc", "content": "first"})
	note := eng.ListNotes()[0]

	res := dispatch(t, d, "update_note", map[string]any{"note_id": note.ID, "content": "second"})
	if res.IsError {
		t.Fatalf("append failed: %s", res.Content)
	}
	got, _ := eng.GetNote(note.ID)
	if got.Content != "first\n\nsecond" {
		t.Fatalf("append produced %q", got.Content)
	}

	res = dispatch(t, d, "write_file", map[string]any{"note_id": note.ID, "content": "replaced"})
	if res.IsError {
		t.Fatalf("overwrite failed: %s", res.Content)
	}
	got, _ = eng.GetNote(note.ID)
	if got.Content != "replaced" {
		t.Fatalf("overwrite produced %q", got.Content)
	}
}

func TestDeleteFolderReportsReassignment(t *testing.T) {
	d, eng := newTestDispatcher(t)

	dispatch(t, d, "create_folder", map[string]any{"name": "Temp"})
	folder, _ := eng.FolderByName("Temp")
	dispatch(t, d, "create_note", map[string]any{"title": "inside", "content": "x", "folder_id": folder.ID})

	res := dispatch(t, d, "delete_folder", map[string]any{"folder_id": folder.ID})
	if res.IsError {
		t.Fatalf("delete_folder failed: %s", res.Content)
	}
	note := eng.ListNotes()[0]
	if note.FolderID != "" {
		t.Fatalf("member note not reassigned: %q", note.FolderID)
	}
}

func TestProposeCodePatchStoresPending(t *testing.T) {
	d, eng := newTestDispatcher(t)

	res := dispatch(t, d, "propose_code_patch", map[string]any{
		"title":       "fix off-by-one",
		"description": "loop bound",
		"code_diff":   "--- a\n+++ b",
		"tests":       "covered by existing suite",
	})
	if res.IsError {
		t.Fatalf("propose_code_patch failed: %s", res.Content)
	}

	patches := eng.ListPatches()
	if len(patches) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(patches))
	}
	p := patches[0]
	if p.Status != types.PatchPending {
		t.Fatalf("proposal not pending: %s", p.Status)
	}
	if p.Diff != "--- a\n+++ b" || p.Model != "test-model" {
		t.Fatalf("proposal fields wrong: %+v", p)
	}
}

func TestExplainNoteConnections(t *testing.T) {
	d, eng := newTestDispatcher(t)

	a, _ := eng.CreateNote("alpha", "", "", types.KindText, "")
	b, _ := eng.CreateNote("beta", "", "", types.KindText, "")
	if _, err := eng.CreateConnection(a.ID, b.ID, "both discuss caching"); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	res := dispatch(t, d, "explain_note_connections", map[string]any{"note_id": a.ID})
	if res.IsError {
		t.Fatalf("explain_note_connections failed: %s", res.Content)
	}
	if !strings.Contains(res.Content, "beta") || !strings.Contains(res.Content, "both discuss caching") {
		t.Fatalf("explanation missing link details: %q", res.Content)
	}
}

func TestDefinitionsCoverVocabulary(t *testing.T) {
	d, _ := newTestDispatcher(t)

	defs := d.Definitions()
	byName := make(map[string]bool, len(defs))
	for _, def := range defs {
		byName[def.Name] = true
	}
	for _, name := range []string{
		"get_note_content", "set_note_metadata", "create_note", "create_folder",
		"delete_folder", "update_folder_description", "update_note_title",
		"move_note_to_folder", "list_folders", "update_note", "write_file",
		"propose_code_patch", "explain_note_connections",
	} {
		if !byName[name] {
			t.Fatalf("tool %s missing from definitions", name)
		}
	}
}
