// Package engine implements the optimistic update engine: the single
// module boundary through which every mutation of local knowledge state
// flows. Mutations are applied to an in-memory mirror first (visible to
// callers synchronously), then persisted; a failed persist rolls the
// mirror back to a pre-mutation snapshot so memory and disk never
// diverge. Constraint violations are rejected before the optimistic
// apply, not after.
package engine

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mnemo/internal/store"
	"mnemo/internal/types"
)

// Engine mutation errors.
var (
	// ErrDuplicateFolderName is returned when a folder name is already taken.
	ErrDuplicateFolderName = errors.New("folder name already exists")

	// ErrUnknownNote is returned when a note id does not resolve.
	ErrUnknownNote = errors.New("unknown note")

	// ErrUnknownFolder is returned when a folder id does not resolve.
	ErrUnknownFolder = errors.New("unknown folder")

	// ErrDuplicateConnection is returned when an edge already exists in
	// either direction.
	ErrDuplicateConnection = errors.New("connection already exists")

	// ErrInvalidKind is returned for an unknown note content kind.
	ErrInvalidKind = errors.New("invalid content kind")

	// ErrInvalidTransition is returned for an illegal patch status change.
	ErrInvalidTransition = errors.New("invalid patch status transition")

	// ErrUnknownPatch is returned when a patch id does not resolve.
	ErrUnknownPatch = errors.New("unknown patch")

	// ErrUnknownFlag is returned when a feature flag id does not resolve.
	ErrUnknownFlag = errors.New("unknown feature flag")
)

// EventKind classifies change notifications.
type EventKind string

const (
	// EventNoteChanged fires after a note mutation commits (create,
	// content/title/metadata change, move, restore).
	EventNoteChanged EventKind = "note_changed"

	// EventNoteDeleted fires after a note delete commits.
	EventNoteDeleted EventKind = "note_deleted"

	// EventFolderChanged fires after any folder mutation commits.
	EventFolderChanged EventKind = "folder_changed"

	// EventRolledBack fires after a failed persist has been rolled back,
	// so observers re-read the restored state.
	EventRolledBack EventKind = "rolled_back"
)

// Event is a change notification. Note is a snapshot clone for note
// events and nil otherwise.
type Event struct {
	Kind EventKind
	Note *types.Note
}

// Subscriber receives committed-change notifications. Subscribers are
// called synchronously on the mutating goroutine and must not mutate
// through the engine re-entrantly.
type Subscriber func(Event)

// Engine owns the in-memory mirror of the persistent store.
type Engine struct {
	mu     sync.RWMutex
	store  *store.Store
	logger *zap.Logger

	notes       map[string]*types.Note
	folders     map[string]*types.Folder
	connections map[string]*types.Connection
	patches     map[string]*types.PatchProposal
	flags       map[string]*types.FeatureFlag

	subMu sync.RWMutex
	subs  []Subscriber

	initGroup singleflight.Group
	initMu    sync.Mutex
	initDone  bool

	now func() time.Time
}

// New creates an engine over the given store. Call EnsureInitialized
// before using it.
func New(s *store.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:       s,
		logger:      logger,
		notes:       make(map[string]*types.Note),
		folders:     make(map[string]*types.Folder),
		connections: make(map[string]*types.Connection),
		patches:     make(map[string]*types.PatchProposal),
		flags:       make(map[string]*types.FeatureFlag),
		now:         time.Now,
	}
}

// Subscribe registers a change observer.
func (e *Engine) Subscribe(fn Subscriber) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs = append(e.subs, fn)
}

func (e *Engine) notify(ev Event) {
	e.subMu.RLock()
	subs := e.subs
	e.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Apply runs the optimistic commit protocol: localMutation executes
// against the mirror immediately, then persist writes to the store. If
// persist fails, rollback restores the pre-mutation mirror state
// synchronously and the error is returned (non-fatal, recoverable). On
// success the mirror and store agree by construction.
func (e *Engine) Apply(localMutation func(), persist func() error, rollback func()) error {
	e.mu.Lock()
	localMutation()
	e.mu.Unlock()

	if err := persist(); err != nil {
		e.mu.Lock()
		rollback()
		e.mu.Unlock()
		e.logger.Warn("mutation rolled back", zap.Error(err))
		e.notify(Event{Kind: EventRolledBack})
		return err
	}
	return nil
}

// loadMirror hydrates the in-memory mirror from the store. Called under
// the init lock.
func (e *Engine) loadMirror() error {
	notes, err := e.store.AllNotes()
	if err != nil {
		return err
	}
	folders, err := e.store.AllFolders()
	if err != nil {
		return err
	}
	connections, err := e.store.AllConnections()
	if err != nil {
		return err
	}
	patches, err := e.store.AllPatches()
	if err != nil {
		return err
	}
	flags, err := e.store.AllFlags()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.notes = make(map[string]*types.Note, len(notes))
	for _, n := range notes {
		e.notes[n.ID] = n
	}
	e.folders = make(map[string]*types.Folder, len(folders))
	for _, f := range folders {
		e.folders[f.ID] = f
	}
	e.connections = make(map[string]*types.Connection, len(connections))
	for _, c := range connections {
		e.connections[c.ID] = c
	}
	e.patches = make(map[string]*types.PatchProposal, len(patches))
	for _, p := range patches {
		e.patches[p.ID] = p
	}
	e.flags = make(map[string]*types.FeatureFlag, len(flags))
	for _, f := range flags {
		e.flags[f.ID] = f
	}
	return nil
}

// Reload discards the mirror and rehydrates it from the store. Used
// after a wholesale import.
func (e *Engine) Reload() error {
	return e.loadMirror()
}
