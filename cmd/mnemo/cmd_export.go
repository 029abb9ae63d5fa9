package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the whole knowledge base as JSON",
	Long:  `Writes every note, folder, connection, patch, version, and flag to a JSON archive. With no file argument the archive goes to stdout.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Replace the knowledge base with a JSON archive",
	Long: `Imports an archive produced by 'mnemo export'. This REPLACES all
current data, so it asks for confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importYes bool

func init() {
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "Skip the confirmation prompt")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	data, err := a.store.ExportJSON()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Printf("Exported to %s\n", args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	if !importYes {
		fmt.Print("This replaces ALL current data. Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.ImportJSON(data); err != nil {
		return err
	}
	// The in-memory mirror predates the import; rebuild it.
	if err := a.engine.Reload(); err != nil {
		return err
	}

	fmt.Printf("Imported %s: %d notes, %d folders\n", args[0], len(a.engine.ListNotes()), len(a.engine.ListFolders()))
	return nil
}
