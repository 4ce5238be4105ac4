package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
	"github.com/steveyegge/novelflow/internal/workflow"
)

var batchAdvanceCmd = &cobra.Command{
	Use:     "batch-advance <novel-id> <from-status> <to-status>",
	GroupID: "workflow",
	Short:   "Move every chapter in one status to another, reporting each outcome",
	Long: `Attempt the same chapter transition for every chapter of the novel that is
currently in <from-status>. Chapters are independent: one refusal does not
stop the others. Exits 2 when any chapter was refused.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := types.ParseStatus(types.EntityChapter, args[1])
		if err != nil {
			return err
		}
		to, err := types.ParseStatus(types.EntityChapter, args[2])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		results, err := engine.BatchAdvance(getRootContext(), args[0], from, to, types.TriggeredByUser, reason)
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}

		if jsonOutput {
			if results == nil {
				results = []*workflow.BatchResult{}
			}
			if err := outputJSON(cmd, results); err != nil {
				return err
			}
		} else {
			if len(results) == 0 {
				printf(cmd, "No chapters in %s\n", from)
			}
			for _, r := range results {
				if r.Success {
					printf(cmd, "%s chapter %d %s\n", ui.RenderPassIcon(), r.ChapterNumber, ui.RenderTransition(r.From, r.To))
				} else {
					fmt.Fprintf(out(cmd), "%s chapter %d: %s\n", ui.RenderFailIcon(), r.ChapterNumber, r.Error)
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d chapters could not move to %s: %w", failed, len(results), to, workflow.ErrInvalidTransition)
		}
		return nil
	},
}

var autoAdvanceCmd = &cobra.Command{
	Use:     "auto-advance <novel-id>",
	GroupID: "workflow",
	Short:   "Take every open auto-trigger edge for the novel's chapters, then the novel",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := engine.AutoAdvance(getRootContext(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			if steps == nil {
				steps = []*workflow.SweepStep{}
			}
			return outputJSON(cmd, steps)
		}
		if len(steps) == 0 {
			printf(cmd, "Nothing to advance\n")
			return nil
		}
		for _, s := range steps {
			if s.Error != "" {
				fmt.Fprintf(out(cmd), "%s %s %s: %s\n", ui.RenderWarnIcon(), s.EntityType, s.EntityID, s.Error)
				continue
			}
			printf(cmd, "%s %s %s %s\n", ui.RenderPassIcon(), s.EntityType, ui.RenderMuted(s.EntityID), ui.RenderTransition(s.From, s.To))
		}
		return nil
	},
}

func init() {
	batchAdvanceCmd.Flags().String("reason", "", "Reason recorded in each chapter's history")
	rootCmd.AddCommand(batchAdvanceCmd, autoAdvanceCmd)
}
