package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"mnemo/internal/store"
	"mnemo/internal/types"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	e := New(s, zap.NewNop())
	if err := e.Reload(); err != nil {
		t.Fatalf("failed to load mirror: %v", err)
	}
	return e, s
}

func TestCreateNotePersists(t *testing.T) {
	e, s := newTestEngine(t)

	n, err := e.CreateNote("groceries", "milk", "", types.KindText, "")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	if n.ID == "" {
		t.Fatal("expected a minted note id")
	}

	got, err := s.GetNote(n.ID)
	if err != nil {
		t.Fatalf("note not persisted: %v", err)
	}
	if got.Title != "groceries" || got.Content != "milk" {
		t.Fatalf("persisted note mismatch: %+v", got)
	}
}

func TestCreateNoteDistinctIDs(t *testing.T) {
	e, _ := newTestEngine(t)

	a, err := e.CreateNote("one", "", "", types.KindText, "")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	b, err := e.CreateNote("two", "", "", types.KindText, "")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("back-to-back creates shared id %s", a.ID)
	}
}

func TestRollbackRestoresPriorState(t *testing.T) {
	e, s := newTestEngine(t)

	n, err := e.CreateNote("stable", "original body", "", types.KindText, "")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}

	var rolledBack bool
	e.Subscribe(func(ev Event) {
		if ev.Kind == EventRolledBack {
			rolledBack = true
		}
	})

	// Closing the database forces every subsequent persist to fail.
	s.Close()

	if _, err := e.UpdateNoteTitle(n.ID, "doomed rename"); err == nil {
		t.Fatal("expected persist failure")
	}
	if !rolledBack {
		t.Fatal("expected a rollback notification")
	}

	got, err := e.GetNote(n.ID)
	if err != nil {
		t.Fatalf("note missing after rollback: %v", err)
	}
	if got.Title != "stable" || got.Content != "original body" {
		t.Fatalf("mirror diverged after rollback: %+v", got)
	}
}

func TestRollbackCreateRemovesEntity(t *testing.T) {
	e, s := newTestEngine(t)
	s.Close()

	if _, err := e.CreateNote("never", "", "", types.KindText, ""); err == nil {
		t.Fatal("expected persist failure")
	}
	if got := e.ListNotes(); len(got) != 0 {
		t.Fatalf("expected empty mirror after rolled-back create, got %d notes", len(got))
	}
}

func TestDuplicateFolderRejectedBeforeApply(t *testing.T) {
	e, _ := newTestEngine(t)

	if _, err := e.CreateFolder("Projects", ""); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	_, err := e.CreateFolder("Projects", "second")
	if !errors.Is(err, ErrDuplicateFolderName) {
		t.Fatalf("expected ErrDuplicateFolderName, got %v", err)
	}
	if got := e.ListFolders(); len(got) != 1 {
		t.Fatalf("folder collection changed on rejected create: %d folders", len(got))
	}
}

func TestMoveNoteUnknownFolderRejected(t *testing.T) {
	e, _ := newTestEngine(t)

	n, err := e.CreateNote("drifting", "", "", types.KindText, "")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	if _, err := e.MoveNote(n.ID, "folder-404"); !errors.Is(err, ErrUnknownFolder) {
		t.Fatalf("expected ErrUnknownFolder, got %v", err)
	}
	got, _ := e.GetNote(n.ID)
	if got.FolderID != "" {
		t.Fatalf("note moved despite rejection: %q", got.FolderID)
	}
}

func TestDeleteFolderReassignsMembers(t *testing.T) {
	e, s := newTestEngine(t)

	f, err := e.CreateFolder("Doomed", "")
	if err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	n, err := e.CreateNote("survivor", "", f.ID, types.KindText, "")
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}

	if err := e.DeleteFolder(f.ID); err != nil {
		t.Fatalf("DeleteFolder failed: %v", err)
	}

	got, err := e.GetNote(n.ID)
	if err != nil {
		t.Fatalf("member note lost: %v", err)
	}
	if got.FolderID != "" {
		t.Fatalf("member note not reassigned: %q", got.FolderID)
	}
	if _, err := e.GetFolder(f.ID); !errors.Is(err, ErrUnknownFolder) {
		t.Fatal("folder still present in mirror")
	}

	persisted, err := s.GetNote(n.ID)
	if err != nil {
		t.Fatalf("member note missing from store: %v", err)
	}
	if persisted.FolderID != "" {
		t.Fatalf("store disagrees with mirror: %q", persisted.FolderID)
	}
}

func TestAppendNoteContentSeparatesBlocks(t *testing.T) {
	e, _ := newTestEngine(t)

	n, _ := e.CreateNote("log", "first", "", types.KindText, "")
	got, err := e.AppendNoteContent(n.ID, "second")
	if err != nil {
		t.Fatalf("AppendNoteContent failed: %v", err)
	}
	if got.Content != "first\n\nsecond" {
		t.Fatalf("unexpected body: %q", got.Content)
	}
}

func TestConnectionDedupeBothDirections(t *testing.T) {
	e, _ := newTestEngine(t)

	a, _ := e.CreateNote("a", "", "", types.KindText, "")
	b, _ := e.CreateNote("b", "", "", types.KindText, "")

	if _, err := e.CreateConnection(a.ID, b.ID, "related"); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}
	if _, err := e.CreateConnection(b.ID, a.ID, "again"); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
}

func TestConnectionsSkipDanglingEndpoints(t *testing.T) {
	e, _ := newTestEngine(t)

	a, _ := e.CreateNote("a", "", "", types.KindText, "")
	b, _ := e.CreateNote("b", "", "", types.KindText, "")
	if _, err := e.CreateConnection(a.ID, b.ID, "related"); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}
	if err := e.DeleteNote(b.ID); err != nil {
		t.Fatalf("DeleteNote failed: %v", err)
	}
	if got := e.ConnectionsForNote(a.ID); len(got) != 0 {
		t.Fatalf("dangling edge surfaced: %d connections", len(got))
	}
}

func TestPatchStatusTransitions(t *testing.T) {
	e, s := newTestEngine(t)

	p, err := e.CreatePatch("fix", "desc", "--- a\n+++ b", "", "test-model")
	if err != nil {
		t.Fatalf("CreatePatch failed: %v", err)
	}
	if p.Status != types.PatchPending {
		t.Fatalf("new patch not pending: %s", p.Status)
	}

	if _, err := e.SetPatchStatus(p.ID, types.PatchApproved); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := e.SetPatchStatus(p.ID, types.PatchRejected); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	entries, err := s.AuditLog()
	if err != nil {
		t.Fatalf("AuditLog failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != types.PatchApproved {
		t.Fatalf("unexpected audit log: %+v", entries)
	}
}

func TestNoteChangeEvents(t *testing.T) {
	e, _ := newTestEngine(t)

	var mu sync.Mutex
	var events []Event
	e.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	n, _ := e.CreateNote("watched", "v1", "", types.KindText, "")
	e.OverwriteNoteContent(n.ID, "v2")

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Kind != EventNoteChanged || ev.Note == nil || ev.Note.ID != n.ID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
	if events[1].Note.Content != "v2" {
		t.Fatalf("event carries stale snapshot: %q", events[1].Note.Content)
	}
}

func TestEnsureInitializedSeedsOnce(t *testing.T) {
	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	e := New(s, zap.NewNop())
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = e.EnsureInitialized(ctx)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d failed: %v", i, err)
		}
	}

	folders := e.ListFolders()
	notes := e.ListNotes()
	if len(folders) != 2 || len(notes) != 3 {
		t.Fatalf("seed ran more than once: %d folders, %d notes", len(folders), len(notes))
	}

	// A second round against the now non-empty store must not seed again.
	if err := e.EnsureInitialized(ctx); err != nil {
		t.Fatalf("re-init failed: %v", err)
	}
	if got := e.ListNotes(); len(got) != 3 {
		t.Fatalf("re-init duplicated seed content: %d notes", len(got))
	}
}

func TestEnsureInitializedSkipsSeedWhenPopulated(t *testing.T) {
	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	existing := &types.Note{ID: "note-1", Title: "pre-existing", Kind: types.KindText}
	if err := s.AddNote(existing); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}

	e := New(s, zap.NewNop())
	if err := e.EnsureInitialized(context.Background()); err != nil {
		t.Fatalf("EnsureInitialized failed: %v", err)
	}
	notes := e.ListNotes()
	if len(notes) != 1 || notes[0].ID != "note-1" {
		t.Fatalf("populated store was seeded anyway: %d notes", len(notes))
	}
}

func TestEnsureInitializedRetriesAfterFailure(t *testing.T) {
	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	e := New(s, zap.NewNop())
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.EnsureInitialized(canceled); err == nil {
		t.Fatal("expected failure with canceled context")
	}

	// The failed attempt must not have latched the initialized bit.
	if err := e.EnsureInitialized(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := e.ListNotes(); len(got) != 3 {
		t.Fatalf("retry did not seed: %d notes", len(got))
	}
}

func TestSeedFailureCommitsNothing(t *testing.T) {
	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	e := New(s, zap.NewNop())
	if err := e.seed(); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	folders := e.ListFolders()
	notes := e.ListNotes()

	// Running seed again collides with the unique folder names. The whole
	// batch is one transaction, so the failure must leave the store at
	// exactly the first seed's contents, not a partial second copy.
	if err := e.seed(); err == nil {
		t.Fatal("expected second seed to fail on duplicate folder names")
	}
	gotNotes, err := s.AllNotes()
	if err != nil {
		t.Fatalf("AllNotes failed: %v", err)
	}
	gotFolders, err := s.AllFolders()
	if err != nil {
		t.Fatalf("AllFolders failed: %v", err)
	}
	if len(gotFolders) != len(folders) || len(gotNotes) != len(notes) {
		t.Fatalf("failed seed changed store contents: %d folders, %d notes",
			len(gotFolders), len(gotNotes))
	}
}
