package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and database status",
	RunE:  showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("mnemo status")
	fmt.Println("============")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("DB:     %s\n", cfg.DBPath)

	if p, _, err := cfg.ActiveProvider(); err == nil {
		fmt.Printf("Provider: %s", p)
		if cfg.Model != "" {
			fmt.Printf(" (%s)", cfg.Model)
		}
		fmt.Println()
	} else {
		fmt.Printf("Provider: none configured (%v)\n", err)
	}

	ec := cfg.EmbeddingConfig()
	fmt.Printf("Embedding: %s\n", ec.Provider)

	a, err := openApp(context.Background())
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Println()
	fmt.Printf("Notes:       %d\n", len(a.engine.ListNotes()))
	fmt.Printf("Folders:     %d\n", len(a.engine.ListFolders()))
	fmt.Printf("Connections: %d\n", len(a.engine.ListConnections()))
	fmt.Printf("Patches:     %d\n", len(a.engine.ListPatches()))
	return nil
}
