package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mnemo/internal/config"
	"mnemo/internal/turn"
	"mnemo/internal/types"
)

const assistantSystemPrompt = `You are the assistant inside mnemo, the user's personal knowledge base.
You can read, create, and reorganize their notes and folders through tools.
Confirm what you changed. When asked about the notes themselves, read them
before answering. Keep replies short and concrete.`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat with the assistant",
	Long: `Starts a conversational session. The assistant can act on your notes
through tools: reading, creating, moving, and organizing them.

In-session commands:
  /search <question>   answer from the web (with source citations)
  /quit                end the session`,
	RunE: runChat,
}

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var askWeb bool

func init() {
	askCmd.Flags().BoolVar(&askWeb, "web", false, "Answer from the web instead of using tools")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down")
		cancel()
	}()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := newClient()
	if err != nil {
		return err
	}
	controller := a.newController(client)

	// Config edits take effect mid-session: model changes apply to the
	// next turn.
	watcher, err := config.NewWatcher(configPath, logger.Named("config"), func(next *config.Config) {
		cfg = next
		if next.Model != "" {
			client.SetModel(next.Model)
		}
	})
	if err != nil {
		logger.Warn("config watching disabled", zap.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("config watching disabled", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	fmt.Printf("mnemo chat (%s). /search <q> for web answers, /quit to exit.\n", client.GetModel())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		webSearch := false
		if rest, ok := strings.CutPrefix(line, "/search "); ok {
			line = strings.TrimSpace(rest)
			webSearch = true
		}

		if err := runOneTurn(ctx, controller, line, webSearch); err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := newClient()
	if err != nil {
		return err
	}
	controller := a.newController(client)

	return runOneTurn(ctx, controller, strings.Join(args, " "), askWeb)
}

// runOneTurn executes a single conversation turn, streaming prose to
// stdout and reporting tool activity as it happens.
func runOneTurn(ctx context.Context, controller *turn.Controller, message string, webSearch bool) error {
	opts := types.TurnOptions{
		System:         assistantSystemPrompt,
		ThinkingBudget: cfg.ThinkingBudget,
		WebSearch:      webSearch || cfg.WebSearch,
	}

	result, err := controller.RunTurn(ctx, message, opts, turn.Handler{
		OnChunk: func(text string) {
			fmt.Print(text)
		},
		OnToolCall: func(call types.ToolCall) {
			fmt.Printf("  [%s]\n", call.Name)
		},
		OnToolResult: func(res types.ToolResult) {
			if res.IsError {
				fmt.Printf("  [failed: %s]\n", res.Content)
			}
		},
	})
	if err != nil {
		return err
	}
	fmt.Println()

	if len(result.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, url := range result.Citations {
			fmt.Printf("  %s\n", url)
		}
	}
	return nil
}
