package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mnemo/internal/connect"
	"mnemo/internal/embedding"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Suggest connections between related notes",
	Long: `Embeds every note and ranks pairs by semantic similarity. Pairs above
the threshold are offered as connection suggestions; accepted ones are
stored with a short rationale and surface in explain_note_connections.`,
	RunE: runConnect,
}

var (
	connectLimit  int
	connectAccept bool
)

func init() {
	connectCmd.Flags().IntVar(&connectLimit, "limit", 10, "Maximum suggestions to show")
	connectCmd.Flags().BoolVar(&connectAccept, "accept", false, "Prompt to accept each suggestion")
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	embedder, err := embedding.NewEngine(cfg.EmbeddingConfig())
	if err != nil {
		return err
	}

	// A provider client improves rationales but is not required.
	client, err := newClient()
	if err != nil {
		logger.Warn("no provider available, using similarity rationales", zap.Error(err))
		client = nil
	}

	suggester := connect.NewSuggester(a.engine, embedder, client, logger.Named("connect"))
	if cfg.ConnectionThreshold > 0 {
		suggester.SetThreshold(cfg.ConnectionThreshold)
	}

	suggestions, err := suggester.Suggest(ctx, connectLimit)
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		fmt.Println("No new connections to suggest.")
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	for i, sug := range suggestions {
		fmt.Printf("%d. %q <-> %q (%.2f)\n   %s\n", i+1, sug.NoteA.Title, sug.NoteB.Title, sug.Similarity, sug.Rationale)
		if !connectAccept {
			continue
		}

		fmt.Print("   Accept? [y/N] ")
		line, _ := reader.ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer == "y" || answer == "yes" {
			if _, err := suggester.Accept(sug); err != nil {
				fmt.Fprintf(os.Stderr, "   failed: %v\n", err)
				continue
			}
			fmt.Println("   Connected.")
		}
	}
	return nil
}
