package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
)

var novelCmd = &cobra.Command{
	Use:     "novel",
	GroupID: "entities",
	Short:   "Create and inspect novels",
}

var novelCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a novel (starts in concept)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		genre, _ := cmd.Flags().GetString("genre")
		target, _ := cmd.Flags().GetInt("target-words")

		n := &types.Novel{Title: title, Description: description, Genre: genre, TargetWordCount: target}
		if err := store.CreateNovel(getRootContext(), n); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, n)
		}
		printf(cmd, "%s Created novel %s: %s\n", ui.RenderPassIcon(), ui.RenderAccent(n.ID), n.Title)
		return nil
	},
}

var novelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List novels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		novels, err := store.ListNovels(getRootContext())
		if err != nil {
			return err
		}
		if jsonOutput {
			if novels == nil {
				novels = []*types.Novel{}
			}
			return outputJSON(cmd, novels)
		}
		if len(novels) == 0 {
			printf(cmd, "No novels yet. Create one with 'nf novel create --title ...'\n")
			return nil
		}
		tw := tabwriter.NewWriter(out(cmd), 0, 2, 2, ' ', 0)
		for _, n := range novels {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", n.ID, ui.RenderStatus(n.Status), ui.TruncateSimple(n.Title, 60))
		}
		return tw.Flush()
	},
}

type novelDetails struct {
	*types.Novel
	DerivedStatus types.Status     `json:"derived_status"`
	Chapters      []*types.Chapter `json:"chapters"`
	Characters    int              `json:"characters"`
	Settings      int              `json:"world_settings"`
}

var novelShowCmd = &cobra.Command{
	Use:   "show <novel-id>",
	Short: "Show a novel with its chapters and derived status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := getRootContext()
		n, err := store.GetNovel(ctx, args[0])
		if err != nil {
			return err
		}
		chapters, err := store.ListChapters(ctx, n.ID)
		if err != nil {
			return err
		}
		chars, err := store.ListCharacters(ctx, n.ID)
		if err != nil {
			return err
		}
		settings, err := store.ListWorldSettings(ctx, n.ID)
		if err != nil {
			return err
		}
		derived, err := engine.CalculateNovelStatus(ctx, n.ID)
		if err != nil {
			return err
		}
		d := &novelDetails{Novel: n, DerivedStatus: derived, Chapters: chapters, Characters: len(chars), Settings: len(settings)}
		if jsonOutput {
			if d.Chapters == nil {
				d.Chapters = []*types.Chapter{}
			}
			return outputJSON(cmd, d)
		}

		w := out(cmd)
		fmt.Fprintf(w, "\n%s: %s\n", ui.RenderAccent(n.ID), n.Title)
		fmt.Fprintf(w, "Status: %s", ui.RenderStatus(n.Status))
		if derived != n.Status {
			fmt.Fprintf(w, " %s", ui.RenderMuted("(derived: "+string(derived)+")"))
		}
		fmt.Fprintln(w)
		if n.Genre != "" {
			fmt.Fprintf(w, "Genre: %s\n", n.Genre)
		}
		fmt.Fprintf(w, "Characters: %d  World settings: %d\n", len(chars), len(settings))
		if n.Description != "" {
			fmt.Fprintf(w, "\n%s\n", ui.WrapText(n.Description, ui.TerminalWidth()))
		}
		fmt.Fprintf(w, "\n%s\n", ui.RenderCategory("Chapters"))
		if len(chapters) == 0 {
			fmt.Fprintf(w, "%s\n", ui.RenderMuted("(none)"))
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
		for _, c := range chapters {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d words\t%s\n", c.Number, ui.RenderStatus(c.Status),
				ui.TruncateSimple(c.Title, 40), c.WordCount, c.EffectiveTargetWords(), ui.RenderMuted(c.ID))
		}
		return tw.Flush()
	},
}

var novelUpdateCmd = &cobra.Command{
	Use:   "update <novel-id>",
	Short: "Update novel fields (status changes go through 'nf transition')",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		updates := make(map[string]interface{})
		for _, f := range []string{"title", "description", "genre"} {
			if cmd.Flags().Changed(f) {
				v, _ := cmd.Flags().GetString(f)
				updates[f] = v
			}
		}
		if cmd.Flags().Changed("target-words") {
			v, _ := cmd.Flags().GetInt("target-words")
			updates["target_word_count"] = v
		}
		if len(updates) == 0 {
			return fmt.Errorf("nothing to update: pass --title, --description, --genre or --target-words")
		}
		ctx := getRootContext()
		if err := store.UpdateNovel(ctx, args[0], updates); err != nil {
			return err
		}
		n, err := store.GetNovel(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, n)
		}
		printf(cmd, "%s Updated novel %s\n", ui.RenderPassIcon(), ui.RenderAccent(n.ID))
		return nil
	},
}

var novelReconcileCmd = &cobra.Command{
	Use:   "reconcile <novel-id>",
	Short: "Move the novel forward to the status its chapters and entities imply",
	Long: `Derive the novel's status from its chapters, characters and settings and
walk it forward along auto-trigger edges. Stops quietly at the first gate
that refuses; never moves backward.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, err := engine.CheckAndUpdateNovelStatus(getRootContext(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			if steps == nil {
				steps = []*types.StatusHistory{}
			}
			return outputJSON(cmd, steps)
		}
		if len(steps) == 0 {
			printf(cmd, "Novel %s is already where its chapters put it\n", args[0])
			return nil
		}
		for _, h := range steps {
			printf(cmd, "%s %s\n", ui.RenderPassIcon(), ui.RenderTransition(h.FromStatus, h.ToStatus))
		}
		return nil
	},
}

func init() {
	novelCreateCmd.Flags().String("title", "", "Novel title (required)")
	novelCreateCmd.Flags().String("description", "", "Premise or blurb")
	novelCreateCmd.Flags().String("genre", "", "Genre")
	novelCreateCmd.Flags().Int("target-words", 0, "Target word count for the whole novel")
	_ = novelCreateCmd.MarkFlagRequired("title")

	novelUpdateCmd.Flags().String("title", "", "New title")
	novelUpdateCmd.Flags().String("description", "", "New description")
	novelUpdateCmd.Flags().String("genre", "", "New genre")
	novelUpdateCmd.Flags().Int("target-words", 0, "New target word count")

	novelCmd.AddCommand(novelCreateCmd, novelListCmd, novelShowCmd, novelUpdateCmd, novelReconcileCmd)
	rootCmd.AddCommand(novelCmd)
}
