package enrich

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"mnemo/internal/engine"
	"mnemo/internal/store"
	"mnemo/internal/types"
)

// fakeCompleter returns canned completions.
type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeCompleter) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	f.calls++
	return f.reply, f.err
}

func (f *fakeCompleter) SendTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (*types.TurnResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeCompleter) StreamTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (<-chan string, <-chan error) {
	content := make(chan string)
	errs := make(chan error, 1)
	close(content)
	close(errs)
	return content, errs
}

func (f *fakeCompleter) SetModel(model string) {}
func (f *fakeCompleter) GetModel() string      { return "fake" }

func newEnrichFixture(t *testing.T, client *fakeCompleter) (*Enricher, *engine.Engine) {
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
	return NewEnricher(eng, client, zap.NewNop()), eng
}

func TestEnrichNoteWritesSummaryAndTags(t *testing.T) {
	client := &fakeCompleter{reply: `{"summary": "Notes on cache eviction.", "tags": ["Caching", "performance"]}`}
	e, eng := newEnrichFixture(t, client)

	n, _ := eng.CreateNote("caching", "lru beats fifo here", "", types.KindText, "")
	got, err := e.EnrichNote(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("EnrichNote failed: %v", err)
	}
	if got.Summary != "Notes on cache eviction." {
		t.Fatalf("summary not written: %q", got.Summary)
	}
	// Tags normalize to lowercase.
	if len(got.Tags) != 2 || got.Tags[0] != "caching" || got.Tags[1] != "performance" {
		t.Fatalf("tags wrong: %v", got.Tags)
	}

	persisted, _ := eng.GetNote(n.ID)
	if persisted.Summary == "" {
		t.Fatal("enrichment not persisted")
	}
}

func TestEnrichNoteToleratesFencedJSON(t *testing.T) {
	client := &fakeCompleter{reply: "```json\n{\"summary\": \"ok\", \"tags\": []}\n```"}
	e, eng := newEnrichFixture(t, client)

	n, _ := eng.CreateNote("x", "body", "", types.KindText, "")
	got, err := e.EnrichNote(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("EnrichNote failed: %v", err)
	}
	if got.Summary != "ok" {
		t.Fatalf("summary not parsed from fenced output: %q", got.Summary)
	}
}

func TestEnrichNoteRejectsEmptyContent(t *testing.T) {
	client := &fakeCompleter{reply: `{"summary": "x"}`}
	e, eng := newEnrichFixture(t, client)

	n, _ := eng.CreateNote("empty", "", "", types.KindText, "")
	if _, err := e.EnrichNote(context.Background(), n.ID); err == nil {
		t.Fatal("expected error for empty note")
	}
	if client.calls != 0 {
		t.Fatal("provider called for empty note")
	}
}

func TestEnrichAllSkipsFailuresAndSummarized(t *testing.T) {
	client := &fakeCompleter{reply: `{"summary": "fine", "tags": ["a"]}`}
	e, eng := newEnrichFixture(t, client)

	eng.CreateNote("one", "content", "", types.KindText, "")
	eng.CreateNote("two", "content", "", types.KindText, "")
	done, _ := eng.CreateNote("three", "content", "", types.KindText, "")
	eng.SetNoteEnrichment(done.ID, "already summarized", nil)

	count, err := e.EnrichAll(context.Background())
	if err != nil {
		t.Fatalf("EnrichAll failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 enriched, got %d", count)
	}
	if client.calls != 2 {
		t.Fatalf("provider called %d times", client.calls)
	}
}

func TestEnrichAllContinuesPastProviderError(t *testing.T) {
	client := &fakeCompleter{err: errors.New("rate limited")}
	e, eng := newEnrichFixture(t, client)

	eng.CreateNote("one", "content", "", types.KindText, "")
	count, err := e.EnrichAll(context.Background())
	if err != nil {
		t.Fatalf("EnrichAll surfaced a per-note failure: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 enriched, got %d", count)
	}
}
