// Package connect discovers candidate connections between notes using
// embedding similarity, then asks the language model to phrase a
// rationale for each suggested link. Accepted suggestions become
// ordinary connections through the update engine.
package connect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mnemo/internal/embedding"
	"mnemo/internal/engine"
	"mnemo/internal/provider"
	"mnemo/internal/types"
)

// DefaultThreshold is the minimum cosine similarity for a pair to be
// suggested. Below this, pairs read as coincidental.
const DefaultThreshold = 0.72

// embedBatchSize bounds texts per embedding request.
const embedBatchSize = 16

// rationaleSystemPrompt frames the model's one-sentence link rationale.
const rationaleSystemPrompt = "You explain why two personal notes relate. " +
	"Reply with one short sentence naming the shared idea. No preamble."

// Suggestion is a candidate link between two notes.
type Suggestion struct {
	NoteA      *types.Note
	NoteB      *types.Note
	Similarity float64
	Rationale  string
}

// Suggester ranks note pairs by embedding similarity.
type Suggester struct {
	engine    *engine.Engine
	embedder  embedding.Engine
	client    provider.Client
	logger    *zap.Logger
	threshold float64
}

// NewSuggester creates a suggester. client may be nil, in which case
// suggestions carry a similarity-based rationale instead of a
// model-written one.
func NewSuggester(eng *engine.Engine, embedder embedding.Engine, client provider.Client, logger *zap.Logger) *Suggester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Suggester{
		engine:    eng,
		embedder:  embedder,
		client:    client,
		logger:    logger,
		threshold: DefaultThreshold,
	}
}

// SetThreshold overrides the similarity cutoff.
func (s *Suggester) SetThreshold(t float64) {
	s.threshold = t
}

// noteText is what gets embedded for a note.
func noteText(n *types.Note) string {
	var b strings.Builder
	b.WriteString(n.Title)
	if n.Summary != "" {
		b.WriteString("\n")
		b.WriteString(n.Summary)
	}
	b.WriteString("\n")
	b.WriteString(n.Content)
	return b.String()
}

// Suggest embeds every note and returns up to limit unconnected pairs
// above the similarity threshold, most similar first.
func (s *Suggester) Suggest(ctx context.Context, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 5
	}

	notes := s.engine.ListNotes()
	if len(notes) < 2 {
		return nil, nil
	}

	vectors, err := s.embedAll(ctx, notes)
	if err != nil {
		return nil, fmt.Errorf("failed to embed notes: %w", err)
	}

	existing := s.engine.ListConnections()
	connected := func(a, b string) bool {
		for _, c := range existing {
			if c.Links(a, b) {
				return true
			}
		}
		return false
	}

	var candidates []Suggestion
	for i := 0; i < len(notes); i++ {
		for j := i + 1; j < len(notes); j++ {
			if connected(notes[i].ID, notes[j].ID) {
				continue
			}
			sim, err := embedding.CosineSimilarity(vectors[i], vectors[j])
			if err != nil {
				continue
			}
			if sim < s.threshold {
				continue
			}
			candidates = append(candidates, Suggestion{
				NoteA:      notes[i],
				NoteB:      notes[j],
				Similarity: sim,
			})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Similarity > candidates[j].Similarity })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	for i := range candidates {
		candidates[i].Rationale = s.rationale(ctx, &candidates[i])
	}
	s.logger.Debug("suggested connections",
		zap.Int("notes", len(notes)),
		zap.Int("suggestions", len(candidates)))
	return candidates, nil
}

// embedAll embeds note texts in concurrent batches.
func (s *Suggester) embedAll(ctx context.Context, notes []*types.Note) ([][]float32, error) {
	vectors := make([][]float32, len(notes))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(notes); start += embedBatchSize {
		start := start
		end := start + embedBatchSize
		if end > len(notes) {
			end = len(notes)
		}
		g.Go(func() error {
			texts := make([]string, end-start)
			for i, n := range notes[start:end] {
				texts[i] = noteText(n)
			}
			batch, err := s.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			mu.Lock()
			copy(vectors[start:end], batch)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// rationale asks the model for a one-sentence explanation. Failures
// fall back to a plain similarity statement; a missing rationale never
// blocks a suggestion.
func (s *Suggester) rationale(ctx context.Context, sug *Suggestion) string {
	fallback := fmt.Sprintf("These notes cover closely related material (similarity %.2f).", sug.Similarity)
	if s.client == nil {
		return fallback
	}

	prompt := fmt.Sprintf("Note one, %q:\n%s\n\nNote two, %q:\n%s",
		sug.NoteA.Title, clip(sug.NoteA.Content, 800),
		sug.NoteB.Title, clip(sug.NoteB.Content, 800))
	text, err := s.client.CompleteWithSystem(ctx, rationaleSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Debug("rationale generation failed", zap.Error(err))
		return fallback
	}
	return strings.TrimSpace(text)
}

// Accept records a suggestion as a connection through the engine.
func (s *Suggester) Accept(sug Suggestion) (*types.Connection, error) {
	return s.engine.CreateConnection(sug.NoteA.ID, sug.NoteB.ID, sug.Rationale)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
