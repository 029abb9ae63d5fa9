// Package enrich produces model-written summaries and tags for notes.
// Enrichment is additive metadata: it writes through the update engine
// like any other mutation and never touches a note's body.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mnemo/internal/engine"
	"mnemo/internal/provider"
	"mnemo/internal/types"
)

const enrichSystemPrompt = `You summarize personal notes. Given a note, reply with JSON only:
{"summary": "<one or two sentences>", "tags": ["<up to five lowercase tags>"]}
No markdown fences, no commentary.`

// maxContentChars bounds how much of a note body is sent for
// enrichment.
const maxContentChars = 6000

// Enricher writes summaries and tags onto notes.
type Enricher struct {
	engine *engine.Engine
	client provider.Client
	logger *zap.Logger
}

// NewEnricher creates an enricher.
func NewEnricher(eng *engine.Engine, client provider.Client, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{engine: eng, client: client, logger: logger}
}

type enrichment struct {
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// parseEnrichment tolerates fenced or prefixed model output around the
// JSON payload.
func parseEnrichment(text string) (*enrichment, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var e enrichment
	if err := json.Unmarshal([]byte(text[start:end+1]), &e); err != nil {
		return nil, fmt.Errorf("failed to parse enrichment: %w", err)
	}
	if e.Summary == "" {
		return nil, fmt.Errorf("enrichment missing summary")
	}
	if len(e.Tags) > 5 {
		e.Tags = e.Tags[:5]
	}
	for i, tag := range e.Tags {
		e.Tags[i] = strings.ToLower(strings.TrimSpace(tag))
	}
	return &e, nil
}

// EnrichNote summarizes and tags one note, persisting the result.
func (e *Enricher) EnrichNote(ctx context.Context, noteID string) (*types.Note, error) {
	n, err := e.engine.GetNote(noteID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(n.Content) == "" {
		return nil, fmt.Errorf("note %s has no content to enrich", noteID)
	}

	content := n.Content
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
	}
	prompt := fmt.Sprintf("Title: %s\n\n%s", n.Title, content)

	text, err := e.client.CompleteWithSystem(ctx, enrichSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("enrichment request failed: %w", err)
	}
	parsed, err := parseEnrichment(text)
	if err != nil {
		return nil, err
	}

	updated, err := e.engine.SetNoteEnrichment(noteID, parsed.Summary, parsed.Tags)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("enriched note",
		zap.String("note_id", noteID),
		zap.Int("tags", len(parsed.Tags)))
	return updated, nil
}

// EnrichAll enriches every note missing a summary. Per-note failures
// are logged and skipped; the pass reports how many notes it updated.
func (e *Enricher) EnrichAll(ctx context.Context) (int, error) {
	enriched := 0
	for _, n := range e.engine.ListNotes() {
		if n.Summary != "" {
			continue
		}
		if strings.TrimSpace(n.Content) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return enriched, err
		}
		if _, err := e.EnrichNote(ctx, n.ID); err != nil {
			e.logger.Warn("enrichment skipped",
				zap.String("note_id", n.ID), zap.Error(err))
			continue
		}
		enriched++
	}
	return enriched, nil
}
