package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mnemo/internal/config"
	"mnemo/internal/engine"
	"mnemo/internal/provider"
	"mnemo/internal/store"
	"mnemo/internal/tools"
	"mnemo/internal/turn"
	"mnemo/internal/versions"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "mnemo - personal knowledge base with an LLM assistant",
	Long: `mnemo is a personal knowledge base you converse with.

Notes live in folders in a local SQLite database. A chat assistant can
read and reorganize them through tools, suggest connections between
related notes, and propose code patches for human review. Every
mutation applies locally first and rolls back if persistence fails.

Run without arguments to start the interactive chat.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		path := configPath
		if path == "" {
			path, err = config.DefaultPath()
			if err != nil {
				return err
			}
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		configPath = path

		if !verbose {
			level, lerr := zapcore.ParseLevel(cfg.LogLevel)
			if lerr == nil {
				zcfg.Level.SetLevel(level)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.mnemo/config.json)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(notesCmd)
	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(patchesCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(flagsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app wires the store, engine, and version recorder together for a
// command's lifetime. Commands that talk to a provider add the client
// and controller on top via newClient.
type app struct {
	store    *store.Store
	engine   *engine.Engine
	recorder *versions.Recorder
}

// openApp opens the database, hydrates the engine (seeding on first
// run), and subscribes the version recorder to note changes.
func openApp(ctx context.Context) (*app, error) {
	s, err := store.Open(cfg.DBPath, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	eng := engine.New(s, logger.Named("engine"))
	if err := eng.EnsureInitialized(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	rec := versions.NewRecorder(s, cfg.VersionQuietPeriod(), logger.Named("versions"))
	eng.Subscribe(func(ev engine.Event) {
		switch ev.Kind {
		case engine.EventNoteChanged:
			rec.Observe(ev.Note.ID, ev.Note.Title, ev.Note.Content)
		case engine.EventNoteDeleted:
			rec.ObserveDeleted(ev.Note.ID)
		}
	})

	return &app{store: s, engine: eng, recorder: rec}, nil
}

// close flushes pending version snapshots and closes the database.
func (a *app) close() {
	a.recorder.Flush()
	if err := a.store.Close(); err != nil {
		logger.Warn("error closing store", zap.Error(err))
	}
}

// newClient builds a provider client from the active config.
func newClient() (provider.Client, error) {
	p, key, err := cfg.ActiveProvider()
	if err != nil {
		return nil, err
	}
	return provider.NewClient(p, key, cfg.Model, logger.Named("provider"))
}

// newController builds a turn controller over the app's engine.
func (a *app) newController(client provider.Client) *turn.Controller {
	dispatcher := tools.NewDispatcher(a.engine, client.GetModel(), logger.Named("tools"))
	return turn.NewController(client, dispatcher, logger.Named("turn"))
}
