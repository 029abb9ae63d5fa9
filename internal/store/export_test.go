package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mnemo/internal/types"
)

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestStore(t)

	now := time.Now().Truncate(time.Millisecond)
	folder := &types.Folder{ID: "folder-1", Name: "Ideas", Description: "raw thoughts", CreatedAt: now}
	note := &types.Note{
		ID: "note-1", Title: "first", Content: "body", Summary: "a summary",
		Tags: []string{"seed"}, FolderID: "folder-1", Kind: types.KindText,
		CreatedAt: now, UpdatedAt: now,
	}
	conn := &types.Connection{ID: "c1", NoteA: "note-1", NoteB: "note-2", Rationale: "pair", CreatedAt: now}
	patch := &types.PatchProposal{ID: "p1", Title: "fix", Diff: "diff text", Status: types.PatchPending, Model: "gemini", CreatedAt: now}
	flag := &types.FeatureFlag{ID: "f1", Name: "web_search", Enabled: true}
	version := &types.NoteVersion{ID: "v1", NoteID: "note-1", Title: "first", Content: "old body", CreatedAt: now}

	if err := src.AddFolder(folder); err != nil {
		t.Fatal(err)
	}
	if err := src.AddNote(note); err != nil {
		t.Fatal(err)
	}
	if err := src.AddConnection(conn); err != nil {
		t.Fatal(err)
	}
	if err := src.AddPatch(patch); err != nil {
		t.Fatal(err)
	}
	if err := src.PutFlag(flag); err != nil {
		t.Fatal(err)
	}
	if err := src.AppendVersion(version); err != nil {
		t.Fatal(err)
	}

	data, err := src.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	dst := newTestStore(t)
	// Pre-populate so the wholesale replacement is observable.
	if err := dst.AddNote(&types.Note{ID: "stale", Title: "stale", Kind: types.KindText, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := dst.ImportJSON(data); err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}

	want, err := src.Export()
	if err != nil {
		t.Fatal(err)
	}
	got, err := dst.Export()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("import did not reproduce export (-want +got):\n%s", diff)
	}

	if _, err := dst.GetNote("stale"); err == nil {
		t.Error("pre-existing note should have been replaced by import")
	}
}
