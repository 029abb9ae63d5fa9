package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mnemo/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [note-id]",
	Short: "Generate a summary and tags for a note",
	Long: `Asks the model to summarize and tag note content. With --all, every
note that has content but no summary yet is enriched; individual
failures are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnrich,
}

var enrichAll bool

func init() {
	enrichCmd.Flags().BoolVar(&enrichAll, "all", false, "Enrich every unsummarized note")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	if !enrichAll && len(args) == 0 {
		return fmt.Errorf("provide a note ID or --all")
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := newClient()
	if err != nil {
		return err
	}
	enricher := enrich.NewEnricher(a.engine, client, logger.Named("enrich"))

	if enrichAll {
		count, err := enricher.EnrichAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Enriched %d note(s)\n", count)
		return nil
	}

	n, err := enricher.EnrichNote(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Summary: %s\n", n.Summary)
	if len(n.Tags) > 0 {
		fmt.Printf("Tags:    %s\n", strings.Join(n.Tags, ", "))
	}
	return nil
}
