package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mnemo/internal/engine"
	"mnemo/internal/types"
)

// Dispatcher binds the action vocabulary to the update engine. Every
// invocation — including validation failures and unknown tool names —
// produces a text result for the model; nothing propagates past
// Dispatch as an error.
type Dispatcher struct {
	registry *Registry
	engine   *engine.Engine
	logger   *zap.Logger

	// model attributed to proposals created via propose_code_patch.
	model string
}

// NewDispatcher creates a dispatcher with the full tool vocabulary
// registered.
func NewDispatcher(eng *engine.Engine, model string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		registry: NewRegistry(logger),
		engine:   eng,
		logger:   logger,
		model:    model,
	}
	d.registerAll()
	return d
}

// Registry exposes the underlying registry, mainly for Definitions.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Definitions returns the wire-shape tool definitions for a provider
// request.
func (d *Dispatcher) Definitions() []types.ToolDefinition {
	return d.registry.Definitions()
}

// Dispatch executes one tool call and always returns a usable result.
// Validation failures, referential misses, and persistence failures all
// come back as error-flagged text results so the conversation loop can
// feed them to the model.
func (d *Dispatcher) Dispatch(ctx context.Context, call types.ToolCall) types.ToolResult {
	res, err := d.registry.Execute(ctx, call.Name, call.Input)
	if err != nil {
		d.logger.Debug("tool call failed",
			zap.String("tool", call.Name), zap.Error(err))
		return types.ToolResult{
			ToolUseID: call.ID,
			Content:   fmt.Sprintf("Error: %v", err),
			IsError:   true,
		}
	}
	return types.ToolResult{
		ToolUseID: call.ID,
		Content:   res.Result,
	}
}

// stringArg extracts a string argument, tolerating absence.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidArgType, key)
	}
	return s, nil
}

func (d *Dispatcher) registerAll() {
	d.registry.MustRegister(&Tool{
		Name:        "get_note_content",
		Description: "Read the full content of a note by its ID, including title, folder, kind, and body.",
		ReadOnly:    true,
		Schema: ToolSchema{
			Required: []string{"note_id"},
			Properties: map[string]Property{
				"note_id": {Type: "string", Description: "ID of the note to read"},
			},
		},
		Execute: d.getNoteContent,
	})

	d.registry.MustRegister(&Tool{
		Name:        "set_note_metadata",
		Description: "Set a note's content type (text, code, link) and/or language hint for code notes.",
		Schema: ToolSchema{
			Required: []string{"note_id"},
			Properties: map[string]Property{
				"note_id":  {Type: "string", Description: "ID of the note to update"},
				"type":     {Type: "string", Description: "Content type", Enum: []any{"text", "code", "link"}},
				"language": {Type: "string", Description: "Programming language hint for code notes"},
			},
		},
		Execute: d.setNoteMetadata,
	})

	d.registry.MustRegister(&Tool{
		Name:        "create_note",
		Description: "Create a new note with a title and content, optionally inside a folder.",
		Schema: ToolSchema{
			Required: []string{"title", "content"},
			Properties: map[string]Property{
				"title":     {Type: "string", Description: "Title of the new note"},
				"content":   {Type: "string", Description: "Body of the new note"},
				"folder_id": {Type: "string", Description: "Optional ID of an existing folder to place the note in"},
			},
		},
		Execute: d.createNote,
	})

	d.registry.MustRegister(&Tool{
		Name:        "create_folder",
		Description: "Create a new folder. Folder names must be unique.",
		Schema: ToolSchema{
			Required: []string{"name"},
			Properties: map[string]Property{
				"name": {Type: "string", Description: "Name of the new folder"},
			},
		},
		Execute: d.createFolder,
	})

	d.registry.MustRegister(&Tool{
		Name:        "delete_folder",
		Description: "Delete a folder. Its notes are moved to uncategorized, not deleted.",
		Schema: ToolSchema{
			Required: []string{"folder_id"},
			Properties: map[string]Property{
				"folder_id": {Type: "string", Description: "ID of the folder to delete"},
			},
		},
		Execute: d.deleteFolder,
	})

	d.registry.MustRegister(&Tool{
		Name:        "update_folder_description",
		Description: "Replace a folder's description.",
		Schema: ToolSchema{
			Required: []string{"folder_id", "description"},
			Properties: map[string]Property{
				"folder_id":   {Type: "string", Description: "ID of the folder to update"},
				"description": {Type: "string", Description: "New description"},
			},
		},
		Execute: d.updateFolderDescription,
	})

	d.registry.MustRegister(&Tool{
		Name:        "update_note_title",
		Description: "Rename a note.",
		Schema: ToolSchema{
			Required: []string{"note_id", "new_title"},
			Properties: map[string]Property{
				"note_id":   {Type: "string", Description: "ID of the note to rename"},
				"new_title": {Type: "string", Description: "New title"},
			},
		},
		Execute: d.updateNoteTitle,
	})

	d.registry.MustRegister(&Tool{
		Name:        "move_note_to_folder",
		Description: "Move a note into a folder, or to uncategorized when folder_id is omitted.",
		Schema: ToolSchema{
			Required: []string{"note_id"},
			Properties: map[string]Property{
				"note_id":   {Type: "string", Description: "ID of the note to move"},
				"folder_id": {Type: "string", Description: "ID of the destination folder; omit for uncategorized"},
			},
		},
		Execute: d.moveNoteToFolder,
	})

	d.registry.MustRegister(&Tool{
		Name:        "list_folders",
		Description: "List all folders with their IDs, descriptions, and note counts.",
		ReadOnly:    true,
		Schema:      ToolSchema{Required: []string{}, Properties: map[string]Property{}},
		Execute:     d.listFolders,
	})

	d.registry.MustRegister(&Tool{
		Name:        "update_note",
		Description: "Append content to the end of a note, preserving the existing body.",
		Schema: ToolSchema{
			Required: []string{"note_id", "content"},
			Properties: map[string]Property{
				"note_id": {Type: "string", Description: "ID of the note to append to"},
				"content": {Type: "string", Description: "Content to append"},
			},
		},
		Execute: d.updateNote,
	})

	d.registry.MustRegister(&Tool{
		Name:        "write_file",
		Description: "Overwrite a note's entire body with new content. Use update_note to append instead.",
		Schema: ToolSchema{
			Required: []string{"note_id", "content"},
			Properties: map[string]Property{
				"note_id": {Type: "string", Description: "ID of the note to overwrite"},
				"content": {Type: "string", Description: "Replacement body"},
			},
		},
		Execute: d.writeFile,
	})

	d.registry.MustRegister(&Tool{
		Name:        "propose_code_patch",
		Description: "Record a proposed code change for human review. The diff is stored verbatim and never applied automatically.",
		Schema: ToolSchema{
			Required: []string{"title", "description", "code_diff"},
			Properties: map[string]Property{
				"title":       {Type: "string", Description: "Short title for the proposal"},
				"description": {Type: "string", Description: "What the change does and why"},
				"code_diff":   {Type: "string", Description: "The proposed change as a unified diff"},
				"tests":       {Type: "string", Description: "Notes on how the change was or should be tested"},
			},
		},
		Execute: d.proposeCodePatch,
	})

	d.registry.MustRegister(&Tool{
		Name:        "explain_note_connections",
		Description: "List the recorded connections for a note, with each linked note's title and the rationale for the link.",
		ReadOnly:    true,
		Schema: ToolSchema{
			Required: []string{"note_id"},
			Properties: map[string]Property{
				"note_id": {Type: "string", Description: "ID of the note whose connections to explain"},
			},
		},
		Execute: d.explainNoteConnections,
	})
}

func (d *Dispatcher) getNoteContent(ctx context.Context, args map[string]any) (string, error) {
	noteID, err := stringArg(args, "note_id")
	if err != nil {
		return "", err
	}
	n, err := d.engine.GetNote(noteID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Note %s: %q\n", n.ID, n.Title)
	fmt.Fprintf(&b, "Type: %s", n.Kind)
	if n.Language != "" {
		fmt.Fprintf(&b, " (%s)", n.Language)
	}
	b.WriteString("\n")
	if n.FolderID != "" {
		if f, err := d.engine.GetFolder(n.FolderID); err == nil {
			fmt.Fprintf(&b, "Folder: %s (%s)\n", f.Name, f.ID)
		}
	} else {
		b.WriteString("Folder: uncategorized\n")
	}
	if len(n.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(n.Tags, ", "))
	}
	b.WriteString("\n")
	b.WriteString(n.Content)
	return b.String(), nil
}

func (d *Dispatcher) setNoteMetadata(ctx context.Context, args map[string]any) (string, error) {
	noteID, err := stringArg(args, "note_id")
	if err != nil {
		return "", err
	}
	kindStr, err := stringArg(args, "type")
	if err != nil {
		return "", err
	}
	language, err := stringArg(args, "language")
	if err != nil {
		return "", err
	}
	n, err := d.engine.SetNoteMetadata(noteID, types.ContentKind(kindStr), language)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully updated metadata for note %s (type=%s, language=%q).", n.ID, n.Kind, n.Language), nil
}

func (d *Dispatcher) createNote(ctx context.Context, args map[string]any) (string, error) {
	title, err := stringArg(args, "title")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	folderID, err := stringArg(args, "folder_id")
	if err != nil {
		return "", err
	}
	n, err := d.engine.CreateNote(title, content, folderID, types.KindText, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully created note with ID %s.", n.ID), nil
}

func (d *Dispatcher) createFolder(ctx context.Context, args map[string]any) (string, error) {
	name, err := stringArg(args, "name")
	if err != nil {
		return "", err
	}
	f, err := d.engine.CreateFolder(name, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully created folder with ID %s.", f.ID), nil
}

func (d *Dispatcher) deleteFolder(ctx context.Context, args map[string]any) (string, error) {
	folderID, err := stringArg(args, "folder_id")
	if err != nil {
		return "", err
	}
	f, err := d.engine.GetFolder(folderID)
	if err != nil {
		return "", err
	}
	if err := d.engine.DeleteFolder(folderID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully deleted folder %q (%s); its notes are now uncategorized.", f.Name, f.ID), nil
}

func (d *Dispatcher) updateFolderDescription(ctx context.Context, args map[string]any) (string, error) {
	folderID, err := stringArg(args, "folder_id")
	if err != nil {
		return "", err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return "", err
	}
	f, err := d.engine.UpdateFolderDescription(folderID, description)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully updated description of folder %s.", f.ID), nil
}

func (d *Dispatcher) updateNoteTitle(ctx context.Context, args map[string]any) (string, error) {
	noteID, err := stringArg(args, "note_id")
	if err != nil {
		return "", err
	}
	title, err := stringArg(args, "new_title")
	if err != nil {
		return "", err
	}
	n, err := d.engine.UpdateNoteTitle(noteID, title)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully renamed note %s to %q.", n.ID, n.Title), nil
}

func (d *Dispatcher) moveNoteToFolder(ctx context.Context, args map[string]any) (string, error) {
	noteID, err := stringArg(args, "note_id")
	if err != nil {
		return "", err
	}
	folderID, err := stringArg(args, "folder_id")
	if err != nil {
		return "", err
	}
	n, err := d.engine.MoveNote(noteID, folderID)
	if err != nil {
		return "", err
	}
	if folderID == "" {
		return fmt.Sprintf("Successfully moved note %s to uncategorized.", n.ID), nil
	}
	return fmt.Sprintf("Successfully moved note %s to folder %s.", n.ID, folderID), nil
}

func (d *Dispatcher) listFolders(ctx context.Context, args map[string]any) (string, error) {
	folders := d.engine.ListFolders()
	if len(folders) == 0 {
		return "No folders exist yet.", nil
	}

	var b strings.Builder
	b.WriteString("Folders:\n")
	for _, f := range folders {
		count := len(d.engine.NotesInFolder(f.ID))
		fmt.Fprintf(&b, "- %s (%s): %d note(s)", f.Name, f.ID, count)
		if f.Description != "" {
			fmt.Fprintf(&b, " — %s", f.Description)
		}
		b.WriteString("\n")
	}
	if uncategorized := len(d.engine.NotesInFolder("")); uncategorized > 0 {
		fmt.Fprintf(&b, "- uncategorized: %d note(s)\n", uncategorized)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (d *Dispatcher) updateNote(ctx context.Context, args map[string]any) (string, error) {
	noteID, err := stringArg(args, "note_id")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	n, err := d.engine.AppendNoteContent(noteID, content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully appended to note %s.", n.ID), nil
}

func (d *Dispatcher) writeFile(ctx context.Context, args map[string]any) (string, error) {
	noteID, err := stringArg(args, "note_id")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	n, err := d.engine.OverwriteNoteContent(noteID, content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully overwrote content of note %s.", n.ID), nil
}

func (d *Dispatcher) proposeCodePatch(ctx context.Context, args map[string]any) (string, error) {
	title, err := stringArg(args, "title")
	if err != nil {
		return "", err
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return "", err
	}
	diff, err := stringArg(args, "code_diff")
	if err != nil {
		return "", err
	}
	tests, err := stringArg(args, "tests")
	if err != nil {
		return "", err
	}
	p, err := d.engine.CreatePatch(title, description, diff, tests, d.model)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully recorded patch proposal %s with status %s. A human must review it before anything changes.", p.ID, p.Status), nil
}

func (d *Dispatcher) explainNoteConnections(ctx context.Context, args map[string]any) (string, error) {
	noteID, err := stringArg(args, "note_id")
	if err != nil {
		return "", err
	}
	n, err := d.engine.GetNote(noteID)
	if err != nil {
		return "", err
	}
	conns := d.engine.ConnectionsForNote(noteID)
	if len(conns) == 0 {
		return fmt.Sprintf("Note %q (%s) has no recorded connections.", n.Title, n.ID), nil
	}

	type link struct {
		title     string
		id        string
		rationale string
	}
	links := make([]link, 0, len(conns))
	for _, c := range conns {
		other := c.NoteA
		if other == noteID {
			other = c.NoteB
		}
		linked, err := d.engine.GetNote(other)
		if err != nil {
			continue
		}
		links = append(links, link{title: linked.Title, id: linked.ID, rationale: c.Rationale})
	}
	sort.Slice(links, func(i, j int) bool { return links[i].title < links[j].title })

	var b strings.Builder
	fmt.Fprintf(&b, "Note %q (%s) is connected to %d note(s):\n", n.Title, n.ID, len(links))
	for _, l := range links {
		fmt.Fprintf(&b, "- %q (%s): %s\n", l.title, l.id, l.rationale)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
