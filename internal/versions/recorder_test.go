package versions

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"mnemo/internal/store"
	"mnemo/internal/types"
)

func newTestRecorder(t *testing.T, quiet time.Duration) (*Recorder, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewRecorder(s, quiet, zap.NewNop()), s
}

// steppingClock returns a clock that advances one second per reading, so
// versions recorded back to back get distinct, ordered timestamps.
func steppingClock() func() time.Time {
	at := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

func mustVersions(t *testing.T, s *store.Store, noteID string) []*types.NoteVersion {
	t.Helper()
	vs, err := s.VersionsForNote(noteID)
	if err != nil {
		t.Fatalf("VersionsForNote failed: %v", err)
	}
	return vs
}

func TestBurstCollapsesToOneVersion(t *testing.T) {
	r, s := newTestRecorder(t, time.Hour)

	r.Observe("note-1", "draft", "a")
	r.Observe("note-1", "draft", "ab")
	r.Observe("note-1", "draft", "abc")
	r.Flush()

	vs := mustVersions(t, s, "note-1")
	if len(vs) != 1 {
		t.Fatalf("expected 1 version, got %d", len(vs))
	}
	if vs[0].Content != "abc" {
		t.Fatalf("expected final burst content, got %q", vs[0].Content)
	}
}

func TestSeparatedEditsEachRecorded(t *testing.T) {
	r, s := newTestRecorder(t, time.Hour)
	r.now = steppingClock()

	r.Observe("note-1", "draft", "first")
	r.Flush()
	r.Observe("note-1", "draft", "second")
	r.Flush()

	vs := mustVersions(t, s, "note-1")
	if len(vs) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(vs))
	}
	// Reverse chronological order.
	if vs[0].Content != "second" || vs[1].Content != "first" {
		t.Fatalf("unexpected order: %q, %q", vs[0].Content, vs[1].Content)
	}
}

func TestIdenticalContentNotRecorded(t *testing.T) {
	r, s := newTestRecorder(t, time.Hour)
	r.now = steppingClock()

	r.Observe("note-1", "draft", "same")
	r.Flush()
	r.Observe("note-1", "renamed", "same")
	r.Flush()

	if vs := mustVersions(t, s, "note-1"); len(vs) != 1 {
		t.Fatalf("identical content recorded again: %d versions", len(vs))
	}
}

func TestNotesPendIndependently(t *testing.T) {
	r, s := newTestRecorder(t, time.Hour)

	r.Observe("note-1", "a", "alpha")
	r.Observe("note-2", "b", "beta")

	// Recording one note must not touch the other's pending snapshot.
	r.record("note-1")
	if vs := mustVersions(t, s, "note-1"); len(vs) != 1 || vs[0].Content != "alpha" {
		t.Fatalf("note-1 not recorded: %+v", vs)
	}
	if vs := mustVersions(t, s, "note-2"); len(vs) != 0 {
		t.Fatalf("note-2 recorded early: %d versions", len(vs))
	}

	r.Flush()
	if vs := mustVersions(t, s, "note-2"); len(vs) != 1 || vs[0].Content != "beta" {
		t.Fatalf("note-2 lost its pending snapshot: %+v", vs)
	}
}

func TestDebounceTimerFires(t *testing.T) {
	// The one real-timer test: everything else drives record/Flush
	// directly, this proves the quiet-period timer actually triggers.
	r, s := newTestRecorder(t, 10*time.Millisecond)

	r.Observe("note-1", "draft", "timed")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if vs := mustVersions(t, s, "note-1"); len(vs) == 1 {
			if vs[0].Content != "timed" {
				t.Fatalf("unexpected content %q", vs[0].Content)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("quiet-period timer never recorded the snapshot")
}

func TestFlushTakesPendingSnapshot(t *testing.T) {
	r, s := newTestRecorder(t, time.Hour)

	r.Observe("note-1", "draft", "pending edit")
	r.Flush()

	vs := mustVersions(t, s, "note-1")
	if len(vs) != 1 || vs[0].Content != "pending edit" {
		t.Fatalf("flush did not record pending snapshot: %+v", vs)
	}
}

func TestObserveDeletedDropsPending(t *testing.T) {
	r, s := newTestRecorder(t, time.Hour)

	r.Observe("note-1", "draft", "doomed")
	r.ObserveDeleted("note-1")
	r.Flush()

	if vs := mustVersions(t, s, "note-1"); len(vs) != 0 {
		t.Fatalf("deleted note still snapshotted: %d versions", len(vs))
	}
}

func TestRecorderSwallowsStoreFailure(t *testing.T) {
	r, s := newTestRecorder(t, time.Hour)
	s.Close()

	// Must not panic or block; the failure is logged and dropped.
	r.Observe("note-1", "draft", "unpersistable")
	r.Flush()
}
