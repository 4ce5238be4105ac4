package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/consistency"
	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/workflow"
)

// Exit codes. A refused transition and a missing entity are distinguishable
// from general failures so scripts can branch on them.
const (
	exitError             = 1
	exitInvalidTransition = 2
	exitNotFound          = 3
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidTransition):
		return exitInvalidTransition
	case errors.Is(err, storage.ErrNotFound):
		return exitNotFound
	default:
		return exitError
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrConflict):
		return "conflict"
	case errors.Is(err, consistency.ErrOracleUnavailable):
		return "oracle_unavailable"
	default:
		return ""
	}
}

// reportError writes err to stderr, as JSON when --json is in effect.
func reportError(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()
	if jsonOutput {
		errObj := map[string]string{"error": err.Error()}
		if code := errorCode(err); code != "" {
			errObj["code"] = code
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(errObj) // Best effort: nothing else to report to
		return
	}
	var te *workflow.TransitionError
	if errors.As(err, &te) {
		fmt.Fprintf(w, "Error: %s\n", te.Describe())
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	if errors.Is(err, consistency.ErrOracleUnavailable) {
		fmt.Fprintf(w, "Hint: set ANTHROPIC_API_KEY, or preview prompts with 'nf analyze --dry-run'\n")
	}
}

// WarnError writes a warning message to stderr and returns.
// Use this for optional operations that enhance functionality but aren't required.
func WarnError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}
