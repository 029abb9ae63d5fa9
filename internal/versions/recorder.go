package versions

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mnemo/internal/store"
	"mnemo/internal/types"
)

// DefaultQuietPeriod is how long a note must go unedited before a
// snapshot is taken. A burst of rapid edits yields one version.
const DefaultQuietPeriod = 2 * time.Second

// Recorder observes note changes and appends history snapshots after a
// per-note quiet period. Identical consecutive content is not recorded.
type Recorder struct {
	store  *store.Store
	logger *zap.Logger
	quiet  time.Duration
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingNote
}

type pendingNote struct {
	debouncer *Debouncer
	title     string
	content   string
}

// NewRecorder creates a recorder writing snapshots to the given store.
func NewRecorder(s *store.Store, quiet time.Duration, logger *zap.Logger) *Recorder {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:   s,
		logger:  logger,
		quiet:   quiet,
		now:     time.Now,
		pending: make(map[string]*pendingNote),
	}
}

// Observe registers a committed note change. The snapshot is taken only
// after the note goes quiet; each call resets that note's timer and
// replaces its pending content, so a burst collapses to its final
// state. Notes debounce independently of each other.
func (r *Recorder) Observe(noteID, title, content string) {
	r.mu.Lock()
	p, ok := r.pending[noteID]
	if !ok {
		p = &pendingNote{debouncer: NewDebouncer(r.quiet)}
		r.pending[noteID] = p
	}
	p.title = title
	p.content = content
	r.mu.Unlock()

	p.debouncer.Debounce(func() { r.record(noteID) })
}

// ObserveDeleted drops any pending snapshot for a deleted note.
func (r *Recorder) ObserveDeleted(noteID string) {
	r.mu.Lock()
	p, ok := r.pending[noteID]
	if ok {
		delete(r.pending, noteID)
	}
	r.mu.Unlock()
	if ok {
		p.debouncer.Cancel()
	}
}

// Flush takes all pending snapshots immediately. Call on shutdown so a
// recent edit is not lost to the quiet period.
func (r *Recorder) Flush() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pending))
	for id, p := range r.pending {
		p.debouncer.Cancel()
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.record(id)
	}
}

// record appends the pending snapshot for a note, skipping when the
// content matches the latest recorded version. Errors are logged and
// swallowed: history is best-effort and must never disturb editing.
func (r *Recorder) record(noteID string) {
	r.mu.Lock()
	p, ok := r.pending[noteID]
	if !ok {
		r.mu.Unlock()
		return
	}
	title, content := p.title, p.content
	delete(r.pending, noteID)
	r.mu.Unlock()

	latest, err := r.store.LatestVersion(noteID)
	if err != nil {
		r.logger.Warn("failed to read latest version",
			zap.String("note_id", noteID), zap.Error(err))
		return
	}
	if latest != nil && latest.Content == content {
		return
	}

	v := &types.NoteVersion{
		ID:        uuid.NewString(),
		NoteID:    noteID,
		Title:     title,
		Content:   content,
		CreatedAt: r.now(),
	}
	if err := r.store.AppendVersion(v); err != nil {
		r.logger.Warn("failed to record version",
			zap.String("note_id", noteID), zap.Error(err))
		return
	}
	r.logger.Debug("recorded note version",
		zap.String("note_id", noteID), zap.String("version_id", v.ID))
}
