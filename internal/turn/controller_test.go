package turn

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"mnemo/internal/engine"
	"mnemo/internal/store"
	"mnemo/internal/tools"
	"mnemo/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClient scripts SendTurn responses in order and replays canned
// stream chunks.
type fakeClient struct {
	responses []*types.TurnResponse
	errs      []error
	calls     int

	sentOpts    []types.TurnOptions
	sentHistory [][]types.Message

	streamChunks []string
	streamErr    error
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return "", nil
}

func (f *fakeClient) SendTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (*types.TurnResponse, error) {
	i := f.calls
	f.calls++
	f.sentOpts = append(f.sentOpts, opts)
	f.sentHistory = append(f.sentHistory, append([]types.Message(nil), history...))
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		return &types.TurnResponse{Text: "fallback", StopReason: "end_turn"}, nil
	}
	return f.responses[i], nil
}

func (f *fakeClient) StreamTurn(ctx context.Context, history []types.Message, message string, opts types.TurnOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string, len(f.streamChunks))
	errorChan := make(chan error, 1)
	f.sentOpts = append(f.sentOpts, opts)
	for _, c := range f.streamChunks {
		contentChan <- c
	}
	close(contentChan)
	if f.streamErr != nil {
		errorChan <- f.streamErr
	}
	close(errorChan)
	return contentChan, errorChan
}

func (f *fakeClient) SetModel(model string) {}
func (f *fakeClient) GetModel() string      { return "fake-model" }

func newTestController(t *testing.T, client *fakeClient) (*Controller, *engine.Engine) {
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
	d := tools.NewDispatcher(eng, "fake-model", zap.NewNop())
	return NewController(client, d, zap.NewNop()), eng
}

func TestPlainTurnDeliversTextAsOneChunk(t *testing.T) {
	client := &fakeClient{responses: []*types.TurnResponse{
		{Text: "Hello there.", StopReason: "end_turn"},
	}}
	c, _ := newTestController(t, client)

	var chunks []string
	res, err := c.RunTurn(context.Background(), "hi", types.TurnOptions{}, Handler{
		OnChunk: func(s string) { chunks = append(chunks, s) },
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if res.Text != "Hello there." {
		t.Fatalf("unexpected text: %q", res.Text)
	}
	if len(chunks) != 1 || chunks[0] != "Hello there." {
		t.Fatalf("expected single chunk, got %v", chunks)
	}
	if c.State() != StateDone {
		t.Fatalf("unexpected state: %s", c.State())
	}

	hist := c.History()
	if len(hist) != 2 || hist[0].Role != types.RoleUser || hist[1].Role != types.RoleAssistant {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestToolCallsExecuteInRequestOrder(t *testing.T) {
	client := &fakeClient{
		responses: []*types.TurnResponse{
			{
				Text:       "Creating and filing.",
				StopReason: "tool_use",
				ToolCalls: []types.ToolCall{
					{ID: "c1", Name: "create_folder", Input: map[string]any{"name": "A"}},
					{ID: "c2", Name: "create_note", Input: map[string]any{"title": "n", "content": "x"}},
				},
			},
			{Text: "Done: folder A now holds your note.", StopReason: "end_turn"},
		},
	}
	c, eng := newTestController(t, client)

	var order []string
	res, err := c.RunTurn(context.Background(), "file a note under A", types.TurnOptions{}, Handler{
		OnToolCall: func(call types.ToolCall) { order = append(order, call.Name) },
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if res.Text != "Done: folder A now holds your note." {
		t.Fatalf("unexpected final text: %q", res.Text)
	}
	if len(order) != 2 || order[0] != "create_folder" || order[1] != "create_note" {
		t.Fatalf("tools out of order: %v", order)
	}
	if _, ok := eng.FolderByName("A"); !ok {
		t.Fatal("folder not created")
	}

	// Tool results ride back to the provider paired by call id.
	secondHistory := client.sentHistory[1]
	var toolMsg *types.Message
	for i := range secondHistory {
		if secondHistory[i].Role == types.RoleTool {
			toolMsg = &secondHistory[i]
		}
	}
	if toolMsg == nil || len(toolMsg.ToolResults) != 2 {
		t.Fatalf("tool results not fed back: %+v", secondHistory)
	}
	if toolMsg.ToolResults[0].ToolUseID != "c1" || toolMsg.ToolResults[1].ToolUseID != "c2" {
		t.Fatalf("results not paired by call id: %+v", toolMsg.ToolResults)
	}
}

func TestFailedToolResultStillFedBack(t *testing.T) {
	client := &fakeClient{
		responses: []*types.TurnResponse{
			{
				StopReason: "tool_use",
				ToolCalls: []types.ToolCall{
					{ID: "c1", Name: "move_note_to_folder", Input: map[string]any{"note_id": "note-404"}},
				},
			},
			{Text: "That note does not exist.", StopReason: "end_turn"},
		},
	}
	c, _ := newTestController(t, client)

	var results []types.ToolResult
	_, err := c.RunTurn(context.Background(), "move it", types.TurnOptions{}, Handler{
		OnToolResult: func(r types.ToolResult) { results = append(results, r) },
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if len(results) != 1 || !results[0].IsError {
		t.Fatalf("expected one error result, got %+v", results)
	}
}

func TestCancellationStopsUndispatchedCalls(t *testing.T) {
	client := &fakeClient{
		responses: []*types.TurnResponse{
			{
				StopReason: "tool_use",
				ToolCalls: []types.ToolCall{
					{ID: "c1", Name: "create_folder", Input: map[string]any{"name": "First"}},
					{ID: "c2", Name: "create_folder", Input: map[string]any{"name": "Second"}},
				},
			},
		},
	}
	c, eng := newTestController(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.RunTurn(ctx, "make two folders", types.TurnOptions{}, Handler{
		OnToolResult: func(r types.ToolResult) { cancel() },
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The dispatched call stands; the undispatched one never ran.
	if _, ok := eng.FolderByName("First"); !ok {
		t.Fatal("dispatched mutation was lost")
	}
	if _, ok := eng.FolderByName("Second"); ok {
		t.Fatal("undispatched call executed anyway")
	}
}

func TestStreamedFollowupAfterTools(t *testing.T) {
	client := &fakeClient{
		responses: []*types.TurnResponse{
			{
				StopReason: "tool_use",
				ToolCalls: []types.ToolCall{
					{ID: "c1", Name: "create_folder", Input: map[string]any{"name": "Ideas"}},
				},
			},
		},
		streamChunks: []string{"Your folder ", "is ready."},
	}
	c, _ := newTestController(t, client)

	var chunks []string
	res, err := c.RunTurn(context.Background(), "make it", types.TurnOptions{}, Handler{
		OnChunk: func(s string) { chunks = append(chunks, s) },
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if res.Text != "Your folder is ready." {
		t.Fatalf("unexpected accumulated text: %q", res.Text)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks not forwarded: %v", chunks)
	}

	// The streamed pass must not re-offer tools.
	streamOpts := client.sentOpts[len(client.sentOpts)-1]
	if len(streamOpts.Tools) != 0 {
		t.Fatalf("follow-up stream carried tool definitions: %d", len(streamOpts.Tools))
	}
}

func TestMidStreamFailureIsTerminal(t *testing.T) {
	client := &fakeClient{
		responses: []*types.TurnResponse{
			{
				StopReason: "tool_use",
				ToolCalls: []types.ToolCall{
					{ID: "c1", Name: "create_folder", Input: map[string]any{"name": "Kept"}},
				},
			},
		},
		streamChunks: []string{"partial "},
		streamErr:    errors.New("connection reset"),
	}
	c, eng := newTestController(t, client)

	_, err := c.RunTurn(context.Background(), "go", types.TurnOptions{}, Handler{
		OnChunk: func(string) {},
	})
	if err == nil {
		t.Fatal("expected terminal stream error")
	}
	if c.State() != StateFailed {
		t.Fatalf("unexpected state: %s", c.State())
	}
	// Committed tool mutations are not rolled back by a later provider
	// failure.
	if _, ok := eng.FolderByName("Kept"); !ok {
		t.Fatal("committed mutation undone by provider failure")
	}
}

func TestWebSearchTurnCarriesNoTools(t *testing.T) {
	client := &fakeClient{responses: []*types.TurnResponse{
		{
			Text:      "Here is what I found.",
			Citations: []string{"https://example.com/source"},
		},
	}}
	c, _ := newTestController(t, client)

	res, err := c.RunTurn(context.Background(), "search the web", types.TurnOptions{WebSearch: true}, Handler{})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}
	if len(res.Citations) != 1 || res.Citations[0] != "https://example.com/source" {
		t.Fatalf("citations not surfaced: %v", res.Citations)
	}
	if len(client.sentOpts[0].Tools) != 0 {
		t.Fatalf("web-search turn carried %d tool definitions", len(client.sentOpts[0].Tools))
	}
}

func TestProviderErrorIsTerminal(t *testing.T) {
	client := &fakeClient{errs: []error{errors.New("credentials missing")}}
	c, _ := newTestController(t, client)

	_, err := c.RunTurn(context.Background(), "hi", types.TurnOptions{}, Handler{})
	if err == nil {
		t.Fatal("expected terminal provider error")
	}
	if c.State() != StateFailed {
		t.Fatalf("unexpected state: %s", c.State())
	}
	if len(c.History()) != 0 {
		t.Fatalf("failed first pass polluted history: %+v", c.History())
	}
}

func TestExampleScenarioCreateIdeasFolder(t *testing.T) {
	client := &fakeClient{
		responses: []*types.TurnResponse{
			{
				StopReason: "tool_use",
				ToolCalls: []types.ToolCall{
					{ID: "c1", Name: "create_folder", Input: map[string]any{"name": "Ideas"}},
				},
			},
			{Text: "Created the Ideas folder for you.", StopReason: "end_turn"},
		},
	}
	c, eng := newTestController(t, client)

	var results []types.ToolResult
	res, err := c.RunTurn(context.Background(), "create a folder named Ideas", types.TurnOptions{}, Handler{
		OnToolResult: func(r types.ToolResult) { results = append(results, r) },
	})
	if err != nil {
		t.Fatalf("RunTurn failed: %v", err)
	}

	f, ok := eng.FolderByName("Ideas")
	if !ok {
		t.Fatal("folder not created")
	}
	if len(results) != 1 || results[0].IsError {
		t.Fatalf("unexpected tool results: %+v", results)
	}
	// The confirmation names the minted identifier so the model can
	// reference it later in the same turn.
	if want := "Successfully created folder with ID " + f.ID + "."; results[0].Content != want {
		t.Fatalf("confirmation mismatch: %q", results[0].Content)
	}
	if res.Text != "Created the Ideas folder for you." {
		t.Fatalf("unexpected final text: %q", res.Text)
	}
}
