package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List and manage folders",
}

var foldersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders with note counts",
	RunE:  foldersList,
}

var foldersNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  foldersNew,
}

var foldersDeleteCmd = &cobra.Command{
	Use:   "delete [folder-id]",
	Short: "Delete a folder; its notes become uncategorized",
	Args:  cobra.ExactArgs(1),
	RunE:  foldersDelete,
}

var foldersNewDescription string

func init() {
	foldersNewCmd.Flags().StringVar(&foldersNewDescription, "description", "", "Folder description")

	foldersCmd.AddCommand(foldersListCmd)
	foldersCmd.AddCommand(foldersNewCmd)
	foldersCmd.AddCommand(foldersDeleteCmd)
}

func foldersList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	for _, f := range a.engine.ListFolders() {
		count := len(a.engine.NotesInFolder(f.ID))
		fmt.Printf("%-22s  %-24s  %d note(s)", f.ID, f.Name, count)
		if f.Description != "" {
			fmt.Printf("  %s", f.Description)
		}
		fmt.Println()
	}
	if n := len(a.engine.NotesInFolder("")); n > 0 {
		fmt.Printf("%-22s  %-24s  %d note(s)\n", "-", "(uncategorized)", n)
	}
	return nil
}

func foldersNew(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	f, err := a.engine.CreateFolder(args[0], foldersNewDescription)
	if err != nil {
		return err
	}
	fmt.Printf("Created folder %s\n", f.ID)
	return nil
}

func foldersDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.engine.DeleteFolder(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted folder %s; member notes are now uncategorized\n", args[0])
	return nil
}
