package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/config"
	"github.com/steveyegge/novelflow/internal/consistency"
	"github.com/steveyegge/novelflow/internal/debug"
	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/storage/memory"
	"github.com/steveyegge/novelflow/internal/storage/sqlite"
	"github.com/steveyegge/novelflow/internal/telemetry"
	"github.com/steveyegge/novelflow/internal/ui"
	"github.com/steveyegge/novelflow/internal/workflow"
)

// newOracle builds the consistency oracle from configuration. Tests swap it
// for a scripted fake.
var newOracle = func() (consistency.Oracle, error) {
	o, err := consistency.NewAnthropicOracle(config.AIAPIKey(), config.DefaultAIModel())
	if err != nil {
		return nil, err
	}
	o.SetRetries(config.GetInt("analysis.max-retries"), time.Second)
	return o, nil
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyVerbosityFlags propagates --verbose and --quiet to the debug package
// and turns off styling when color is unwanted.
func applyVerbosityFlags() {
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
	ui.ApplyColorPreference()
}

// applyViperOverrides fills flags that weren't set on the command line from
// config (file + env). Priority: flags > env > config file > defaults.
func applyViperOverrides(cmd *cobra.Command) {
	if !cmd.Flags().Changed("json") {
		jsonOutput = config.GetBool("json")
	}
	if !cmd.Flags().Changed("db") && dbPath == "" {
		dbPath = config.DatabasePath()
	}
	if !cmd.Flags().Changed("actor") && actor == "" {
		actor = config.GetString("actor")
	}
}

func initTelemetry() {
	if err := telemetry.Init(rootCtx, "nf", Version); err != nil {
		debug.Logf("telemetry disabled: %v\n", err)
	}
}

// openStore opens the configured store and builds the engine and analyzer
// over it.
func openStore() error {
	var s storage.Storage
	if noDb {
		s = memory.New()
	} else {
		sq, err := sqlite.New(rootCtx, dbPath)
		if err != nil {
			return fmt.Errorf("open database %s: %w", dbPath, err)
		}
		debug.Logf("opened %s\n", sq.Path())
		s = sq
	}
	store = telemetry.WrapStorage(s)
	engine = workflow.New(store)

	oracle, err := newOracle()
	if err != nil {
		debug.Logf("consistency oracle unavailable: %v\n", err)
	}
	analyzer = consistency.New(store, oracle, &consistency.Config{
		Concurrency:  config.GetInt("analysis.concurrency"),
		CallTimeout:  config.GetDuration("analysis.call-timeout"),
		ExcerptChars: config.GetInt("analysis.excerpt-chars"),
		AuditEnabled: config.GetBool("audit.enabled"),
		Actor:        getActor(),
	})
	return nil
}

// teardown releases everything PersistentPreRunE set up. It runs after
// every command, including failed ones.
func teardown() {
	if store != nil {
		if err := store.Close(); err != nil {
			debug.Logf("close store: %v\n", err)
		}
		store, engine, analyzer = nil, nil, nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	telemetry.Shutdown(shutdownCtx)
	cancel()
	if rootCancel != nil {
		rootCancel()
		rootCancel = nil
	}
}

// getActor returns the actor for transition metadata.
// Priority: --actor flag > actor config (NF_ACTOR) > $USER > "unknown"
func getActor() string {
	if actor != "" {
		return actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func getRootContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}
