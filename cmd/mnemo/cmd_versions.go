package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Browse and restore note version snapshots",
	Long: `mnemo snapshots a note's title and content after edits settle.
Restoring a version is itself a normal edit: the current state is
snapshotted too, so a restore can always be undone.`,
}

var versionsListCmd = &cobra.Command{
	Use:   "list [note-id]",
	Short: "List snapshots for a note, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  versionsList,
}

var versionsRestoreCmd = &cobra.Command{
	Use:   "restore [note-id] [version-id]",
	Short: "Restore a note to a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE:  versionsRestore,
}

func init() {
	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsRestoreCmd)
}

func versionsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.engine.GetNote(args[0]); err != nil {
		return err
	}

	vs, err := a.store.VersionsForNote(args[0])
	if err != nil {
		return err
	}
	if len(vs) == 0 {
		fmt.Println("No snapshots yet.")
		return nil
	}
	for _, v := range vs {
		fmt.Printf("%-38s  %s  %s\n", v.ID, v.CreatedAt.Format("2006-01-02 15:04:05"), truncate(v.Title, 40))
	}
	return nil
}

func versionsRestore(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	v, err := a.store.GetVersion(args[1])
	if err != nil {
		return err
	}
	if v.NoteID != args[0] {
		return fmt.Errorf("version %s belongs to note %s, not %s", v.ID, v.NoteID, args[0])
	}

	n, err := a.engine.RestoreNoteVersion(args[0], v)
	if err != nil {
		return err
	}
	fmt.Printf("Restored %s to snapshot from %s\n", n.ID, v.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}
