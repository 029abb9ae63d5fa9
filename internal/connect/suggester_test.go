package connect

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"mnemo/internal/engine"
	"mnemo/internal/store"
	"mnemo/internal/types"
)

// fakeEmbedder returns canned vectors keyed by note title prefix.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	batch, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return batch[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		matched := false
		for prefix, vec := range f.vectors {
			if len(text) >= len(prefix) && text[:len(prefix)] == prefix {
				out[i] = vec
				matched = true
				break
			}
		}
		if !matched {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Name() string    { return "fake" }

func newSuggesterFixture(t *testing.T) (*Suggester, *engine.Engine, *fakeEmbedder) {
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
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	return NewSuggester(eng, emb, nil, zap.NewNop()), eng, emb
}

func TestSuggestRanksSimilarPairs(t *testing.T) {
	sug, eng, emb := newSuggesterFixture(t)

	a, _ := eng.CreateNote("caching strategies", "lru and ttl", "", types.KindText, "")
	b, _ := eng.CreateNote("cache invalidation", "hard problems", "", types.KindText, "")
	c, _ := eng.CreateNote("sourdough starter", "flour and water", "", types.KindText, "")

	emb.vectors["caching strategies"] = []float32{1, 0, 0}
	emb.vectors["cache invalidation"] = []float32{0.95, 0.05, 0}
	emb.vectors["sourdough starter"] = []float32{0, 1, 0}

	got, err := sug.Suggest(context.Background(), 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(got))
	}
	pair := got[0]
	if !((pair.NoteA.ID == a.ID && pair.NoteB.ID == b.ID) || (pair.NoteA.ID == b.ID && pair.NoteB.ID == a.ID)) {
		t.Fatalf("wrong pair suggested: %s <-> %s", pair.NoteA.Title, pair.NoteB.Title)
	}
	if pair.NoteA.ID == c.ID || pair.NoteB.ID == c.ID {
		t.Fatal("dissimilar note suggested")
	}
	if pair.Rationale == "" {
		t.Fatal("suggestion missing rationale")
	}
}

func TestSuggestSkipsExistingConnections(t *testing.T) {
	sug, eng, emb := newSuggesterFixture(t)

	a, _ := eng.CreateNote("alpha", "x", "", types.KindText, "")
	b, _ := eng.CreateNote("beta", "y", "", types.KindText, "")
	emb.vectors["alpha"] = []float32{1, 0, 0}
	emb.vectors["beta"] = []float32{1, 0, 0}

	if _, err := eng.CreateConnection(a.ID, b.ID, "already linked"); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	got, err := sug.Suggest(context.Background(), 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("already-connected pair suggested: %d suggestions", len(got))
	}
}

func TestSuggestPropagatesEmbedFailure(t *testing.T) {
	sug, eng, emb := newSuggesterFixture(t)

	eng.CreateNote("one", "", "", types.KindText, "")
	eng.CreateNote("two", "", "", types.KindText, "")
	emb.err = errors.New("embedding service down")

	if _, err := sug.Suggest(context.Background(), 5); err == nil {
		t.Fatal("expected embedding failure to propagate")
	}
}

func TestAcceptCreatesConnection(t *testing.T) {
	sug, eng, emb := newSuggesterFixture(t)

	a, _ := eng.CreateNote("alpha", "x", "", types.KindText, "")
	b, _ := eng.CreateNote("beta", "y", "", types.KindText, "")
	emb.vectors["alpha"] = []float32{1, 0, 0}
	emb.vectors["beta"] = []float32{0.99, 0.01, 0}

	suggestions, err := sug.Suggest(context.Background(), 1)
	if err != nil || len(suggestions) != 1 {
		t.Fatalf("Suggest failed: %v (%d suggestions)", err, len(suggestions))
	}

	conn, err := sug.Accept(suggestions[0])
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if !conn.Links(a.ID, b.ID) {
		t.Fatalf("connection links wrong notes: %+v", conn)
	}
	if got := eng.ConnectionsForNote(a.ID); len(got) != 1 {
		t.Fatalf("connection not recorded: %d", len(got))
	}
}
