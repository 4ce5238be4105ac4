package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/debug"
)

// outputJSON writes v as pretty-printed JSON to the command's stdout.
func outputJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}

// printf writes to the command's stdout unless --quiet is set.
func printf(cmd *cobra.Command, format string, args ...interface{}) {
	if debug.IsQuiet() {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

// out returns the command's stdout for output that --quiet must not hide,
// such as the listing a read command exists to produce.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
