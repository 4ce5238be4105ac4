package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/config"
	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/timeparsing"
	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
)

var historyCmd = &cobra.Command{
	Use:     "history <novel|chapter> <id>",
	GroupID: "workflow",
	Short:   "Show an entity's status history, most recent first",
	Long: `Show committed status transitions for a novel or chapter.

--since accepts compact durations (2d, -6h, 1w), dates (2025-01-31),
RFC3339 timestamps, or phrases like "yesterday" and "last monday".`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, id, _, err := parseTarget(args)
		if err != nil {
			return err
		}
		q := storage.HistoryQuery{Limit: config.GetInt("history.default-limit")}
		if cmd.Flags().Changed("limit") {
			q.Limit, _ = cmd.Flags().GetInt("limit")
		}
		if since, _ := cmd.Flags().GetString("since"); since != "" {
			q.Since, err = timeparsing.ParseSince(since, time.Now())
			if err != nil {
				return err
			}
		}

		hist, err := engine.StatusHistory(getRootContext(), et, id, q)
		if err != nil {
			return err
		}
		if jsonOutput {
			if hist == nil {
				hist = []*types.StatusHistory{}
			}
			return outputJSON(cmd, hist)
		}
		if len(hist) == 0 {
			fmt.Fprintf(out(cmd), "No status changes recorded\n")
			return nil
		}

		var b strings.Builder
		for _, h := range hist {
			fmt.Fprintf(&b, "%s  %s  %s", ui.RenderMuted(h.CreatedAt.Local().Format("2006-01-02 15:04")),
				ui.RenderTransition(h.FromStatus, h.ToStatus), ui.RenderMuted("by "+string(h.TriggeredBy)))
			if h.Reason != "" {
				fmt.Fprintf(&b, "  %s", h.Reason)
			}
			b.WriteString("\n")
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		return ui.ToPager(out(cmd), b.String(), ui.PagerOptions{NoPager: noPager})
	},
}

func init() {
	historyCmd.Flags().Int("limit", 0, "Maximum entries to show (default: history.default-limit)")
	historyCmd.Flags().String("since", "", "Only show changes after this time (e.g. 2d, yesterday, 2025-01-31)")
	historyCmd.Flags().Bool("no-pager", false, "Do not pipe output through a pager")
	rootCmd.AddCommand(historyCmd)
}
