package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
)

var issuesCmd = &cobra.Command{
	Use:     "issues",
	GroupID: "analysis",
	Short:   "Review and resolve consistency issues",
}

func renderIssues(w io.Writer, issues []*types.Issue) {
	for _, i := range issues {
		icon := ui.RenderFailIcon()
		if i.Resolved {
			icon = ui.RenderPassIcon()
		}
		fmt.Fprintf(w, "%s [%s] %s %s\n", icon, ui.RenderSeverity(i.Severity), i.Type, ui.RenderMuted(i.ID))
		fmt.Fprintf(w, "%s\n", ui.Indent(ui.WrapText(i.Description, ui.TerminalWidth()-4), "    "))
		if i.RelatedContent != "" {
			fmt.Fprintf(w, "    %s %s\n", ui.RenderMuted("quote:"), ui.TruncateSimple(i.RelatedContent, 120))
		}
		if len(i.RelatedChapters) > 0 {
			nums := make([]string, len(i.RelatedChapters))
			for k, n := range i.RelatedChapters {
				nums[k] = fmt.Sprint(n)
			}
			fmt.Fprintf(w, "    %s %s\n", ui.RenderMuted("see chapters:"), strings.Join(nums, ", "))
		}
	}
}

var issuesListCmd = &cobra.Command{
	Use:   "list <chapter-id>",
	Short: "List a chapter's issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := getRootContext()
		if _, err := store.GetChapter(ctx, args[0]); err != nil {
			return err
		}
		filter := types.IssueFilter{ChapterID: args[0]}
		filter.Limit, _ = cmd.Flags().GetInt("limit")
		if cmd.Flags().Changed("type") {
			s, _ := cmd.Flags().GetString("type")
			t := types.IssueType(s)
			if !t.IsValid() {
				return fmt.Errorf("unknown issue type %q", s)
			}
			filter.Type = &t
		}
		if cmd.Flags().Changed("severity") {
			s, _ := cmd.Flags().GetString("severity")
			sev := types.Severity(s)
			if !sev.IsValid() {
				return fmt.Errorf("unknown severity %q (valid: low, medium, high)", s)
			}
			filter.Severity = &sev
		}
		all, _ := cmd.Flags().GetBool("all")
		if !all {
			open := false
			filter.Resolved = &open
		}

		issues, err := store.GetIssues(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			if issues == nil {
				issues = []*types.Issue{}
			}
			return outputJSON(cmd, issues)
		}
		if len(issues) == 0 {
			fmt.Fprintf(out(cmd), "No issues\n")
			return nil
		}
		renderIssues(out(cmd), issues)
		return nil
	},
}

func setResolvedCmd(use, short string, resolved bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <issue-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := getRootContext()
			if err := store.SetIssueResolved(ctx, args[0], resolved); err != nil {
				return err
			}
			issue, err := store.GetIssue(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd, issue)
			}
			verb := "Reopened"
			if resolved {
				verb = "Resolved"
			}
			printf(cmd, "%s %s issue %s\n", ui.RenderPassIcon(), verb, ui.RenderAccent(issue.ID))
			return nil
		},
	}
}

var issuesDeleteCmd = &cobra.Command{
	Use:   "delete <issue-id>",
	Short: "Delete an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.DeleteIssue(getRootContext(), args[0]); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]string{"deleted": args[0]})
		}
		printf(cmd, "%s Deleted issue %s\n", ui.RenderPassIcon(), args[0])
		return nil
	},
}

type chapterIssueSummary struct {
	ChapterID string `json:"chapter_id"`
	Number    int    `json:"number"`
	Title     string `json:"title"`
	types.SeverityCounts
}

var issuesSummaryCmd = &cobra.Command{
	Use:   "summary <novel-id>",
	Short: "Count unresolved issues per chapter by severity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := getRootContext()
		if _, err := store.GetNovel(ctx, args[0]); err != nil {
			return err
		}
		chapters, err := store.ListChapters(ctx, args[0])
		if err != nil {
			return err
		}
		summary := make([]*chapterIssueSummary, 0, len(chapters))
		for _, c := range chapters {
			counts, err := store.CountUnresolvedIssues(ctx, c.ID)
			if err != nil {
				return err
			}
			summary = append(summary, &chapterIssueSummary{ChapterID: c.ID, Number: c.Number, Title: c.Title, SeverityCounts: counts})
		}
		if jsonOutput {
			return outputJSON(cmd, summary)
		}
		w := out(cmd)
		for _, s := range summary {
			icon := ui.RenderPassIcon()
			switch {
			case s.High > 0:
				icon = ui.RenderFailIcon()
			case s.Medium > 0:
				icon = ui.RenderWarnIcon()
			}
			fmt.Fprintf(w, "%s %3d  %-40s  high %d  medium %d  low %d\n", icon, s.Number, ui.TruncateSimple(s.Title, 40), s.High, s.Medium, s.Low)
		}
		return nil
	},
}

func init() {
	issuesListCmd.Flags().String("type", "", "Filter by type (character, setting, timeline, logic)")
	issuesListCmd.Flags().String("severity", "", "Filter by severity (low, medium, high)")
	issuesListCmd.Flags().Bool("all", false, "Include resolved issues")
	issuesListCmd.Flags().Int("limit", 0, "Maximum issues to show (0 = all)")

	issuesCmd.AddCommand(
		issuesListCmd,
		setResolvedCmd("resolve", "Mark an issue resolved", true),
		setResolvedCmd("reopen", "Mark a resolved issue open again", false),
		issuesDeleteCmd,
		issuesSummaryCmd,
	)
	rootCmd.AddCommand(issuesCmd)
}
