package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mnemo/internal/types"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List and manage notes directly",
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, most recently updated first",
	RunE:  notesList,
}

var notesShowCmd = &cobra.Command{
	Use:   "show [note-id]",
	Short: "Print a note's full content",
	Args:  cobra.ExactArgs(1),
	RunE:  notesShow,
}

var notesNewCmd = &cobra.Command{
	Use:   "new [title]",
	Short: "Create a note",
	Args:  cobra.MinimumNArgs(1),
	RunE:  notesNew,
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete [note-id]",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE:  notesDelete,
}

var notesMoveCmd = &cobra.Command{
	Use:   "move [note-id] [folder-name]",
	Short: "Move a note into a folder by name (\"\" for uncategorized)",
	Args:  cobra.ExactArgs(2),
	RunE:  notesMove,
}

var (
	notesListFolder string
	notesNewContent string
	notesNewFolder  string
	notesNewKind    string
	notesNewLang    string
)

func init() {
	notesListCmd.Flags().StringVar(&notesListFolder, "folder", "", "Only notes in this folder (by name)")
	notesNewCmd.Flags().StringVar(&notesNewContent, "content", "", "Note body")
	notesNewCmd.Flags().StringVar(&notesNewFolder, "folder", "", "Destination folder name")
	notesNewCmd.Flags().StringVar(&notesNewKind, "kind", "text", "Content kind: text, code, or link")
	notesNewCmd.Flags().StringVar(&notesNewLang, "lang", "", "Language for code notes")

	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesShowCmd)
	notesCmd.AddCommand(notesNewCmd)
	notesCmd.AddCommand(notesDeleteCmd)
	notesCmd.AddCommand(notesMoveCmd)
}

func notesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	notes := a.engine.ListNotes()
	if notesListFolder != "" {
		folder, ok := a.engine.FolderByName(notesListFolder)
		if !ok {
			return fmt.Errorf("no folder named %q", notesListFolder)
		}
		notes = a.engine.NotesInFolder(folder.ID)
	}

	if len(notes) == 0 {
		fmt.Println("No notes.")
		return nil
	}
	for _, n := range notes {
		folderName := "(uncategorized)"
		if n.FolderID != "" {
			if f, err := a.engine.GetFolder(n.FolderID); err == nil {
				folderName = f.Name
			}
		}
		fmt.Printf("%-22s  %-30s  %s\n", n.ID, truncate(n.Title, 30), folderName)
	}
	return nil
}

func notesShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.engine.GetNote(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Title: %s\n", n.Title)
	fmt.Printf("Kind:  %s", n.Kind)
	if n.Language != "" {
		fmt.Printf(" (%s)", n.Language)
	}
	fmt.Println()
	if n.Summary != "" {
		fmt.Printf("Summary: %s\n", n.Summary)
	}
	if len(n.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(n.Tags, ", "))
	}
	fmt.Printf("Updated: %s\n\n", n.UpdatedAt.Format("2006-01-02 15:04"))
	fmt.Println(n.Content)
	return nil
}

func notesNew(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	folderID := ""
	if notesNewFolder != "" {
		folder, ok := a.engine.FolderByName(notesNewFolder)
		if !ok {
			return fmt.Errorf("no folder named %q", notesNewFolder)
		}
		folderID = folder.ID
	}

	kind := types.ContentKind(notesNewKind)
	if !kind.Valid() {
		return fmt.Errorf("invalid kind %q (use text, code, or link)", notesNewKind)
	}

	n, err := a.engine.CreateNote(strings.Join(args, " "), notesNewContent, folderID, kind, notesNewLang)
	if err != nil {
		return err
	}
	fmt.Printf("Created note %s\n", n.ID)
	return nil
}

func notesDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.engine.DeleteNote(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted note %s\n", args[0])
	return nil
}

func notesMove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	folderID := ""
	if args[1] != "" {
		folder, ok := a.engine.FolderByName(args[1])
		if !ok {
			return fmt.Errorf("no folder named %q", args[1])
		}
		folderID = folder.ID
	}

	n, err := a.engine.MoveNote(args[0], folderID)
	if err != nil {
		return err
	}
	fmt.Printf("Moved %s\n", n.ID)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
