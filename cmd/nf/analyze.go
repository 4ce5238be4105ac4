package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/consistency"
	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
)

var analyzeCmd = &cobra.Command{
	Use:     "analyze <chapter-id>",
	GroupID: "analysis",
	Short:   "Check a chapter for consistency issues against earlier chapters",
	Long: `Ask the AI oracle whether the chapter contradicts earlier chapters.

One probe is sent per linked character and world setting that appeared
before, plus one timeline and one logic probe. The chapter's stored issues
are replaced by the result of this run, whatever --types selects.

Probes that fail or time out are skipped and counted as degraded.
With --dry-run the prompts are printed and nothing is sent or written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("types")
		issueTypes, err := types.ParseIssueTypes(names)
		if err != nil {
			return err
		}
		ctx := getRootContext()

		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			chapter, probes, err := analyzer.Plan(ctx, args[0], issueTypes)
			if err != nil {
				return err
			}
			if jsonOutput {
				if probes == nil {
					probes = []*consistency.Probe{}
				}
				return outputJSON(cmd, probes)
			}
			if len(probes) == 0 {
				fmt.Fprintf(out(cmd), "Chapter %d has nothing earlier to compare against\n", chapter.Number)
				return nil
			}
			for i, p := range probes {
				if i > 0 {
					fmt.Fprintf(out(cmd), "\n%s\n", ui.RenderSeparator())
				}
				label := string(p.Type)
				if p.Subject != "" {
					label += ": " + p.Subject
				}
				fmt.Fprintf(out(cmd), "%s\n\n%s\n", ui.RenderCategory(label), p.Prompt)
			}
			return nil
		}

		report, err := analyzer.Analyze(ctx, args[0], issueTypes)
		if err != nil {
			return err
		}
		if jsonOutput {
			if report.Issues == nil {
				report.Issues = []*types.Issue{}
			}
			return outputJSON(cmd, report)
		}
		printf(cmd, "Ran %d probe(s)", report.Probes)
		if report.Degraded > 0 {
			printf(cmd, ", %s", ui.RenderWarn(fmt.Sprintf("%d degraded", report.Degraded)))
		}
		printf(cmd, "\n")
		if len(report.Issues) == 0 {
			printf(cmd, "%s No consistency issues found\n", ui.RenderPassIcon())
			return nil
		}
		renderIssues(out(cmd), report.Issues)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringSlice("types", nil, "Issue types to check: character, setting, timeline, logic (default all)")
	analyzeCmd.Flags().Bool("dry-run", false, "Print the prompts that would be sent; call nothing, write nothing")
	rootCmd.AddCommand(analyzeCmd)
}
