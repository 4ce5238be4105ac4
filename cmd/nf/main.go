package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/config"
	"github.com/steveyegge/novelflow/internal/consistency"
	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/workflow"
)

var (
	dbPath      string
	actor       string
	jsonOutput  bool
	noDb        bool // --no-db: in-memory store, discarded on exit
	verboseFlag bool
	quietFlag   bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	store    storage.Storage
	engine   *workflow.Engine
	analyzer *consistency.Analyzer
)

// noDbCommands never open the store, keyed by path below the root.
var noDbCommands = map[string]bool{
	"version":     true,
	"help":        true,
	"completion":  true,
	"config get":  true,
	"config set":  true,
	"config list": true,
}

func init() {
	rootCmd.PersistentPreRunE = rootPersistentPreRunE

	if err := config.Initialize(); err != nil {
		WarnError("failed to initialize config: %v", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .novelflow/novelflow.db)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor recorded in transition metadata (default: $NF_ACTOR, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noDb, "no-db", false, "Use a throwaway in-memory store")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.AddGroup(&cobra.Group{ID: "entities", Title: "Novels & Chapters:"})
	rootCmd.AddGroup(&cobra.Group{ID: "workflow", Title: "Workflow:"})
	rootCmd.AddGroup(&cobra.Group{ID: "analysis", Title: "Consistency Analysis:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
}

var rootCmd = &cobra.Command{
	Use:           "nf",
	Short:         "nf - novel production workflow tracker",
	Long:          `Track a novel and its chapters through a gated production workflow, with AI-assisted consistency checks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// rootPersistentPreRunE is attached in init to avoid an initialization cycle
// (isNoDbCommand refers to rootCmd).
func rootPersistentPreRunE(cmd *cobra.Command, args []string) error {
	setupSignalContext()
	applyVerbosityFlags()
	applyViperOverrides(cmd)
	initTelemetry()

	if isNoDbCommand(cmd) {
		return nil
	}
	return openStore()
}

func isNoDbCommand(cmd *cobra.Command) bool {
	if cmd == rootCmd {
		return true
	}
	path := strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()+" ")
	return noDbCommands[path] || noDbCommands[strings.SplitN(path, " ", 2)[0]]
}

// run executes the command line and returns the process exit code.
func run(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	teardown()
	if err != nil {
		reportError(rootCmd, err)
		return exitCode(err)
	}
	return 0
}

func main() {
	if name := os.Getenv("NF_NAME"); name != "" {
		rootCmd.Use = name
	}
	os.Exit(run(os.Args[1:]))
}
