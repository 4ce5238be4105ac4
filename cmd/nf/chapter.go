package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
)

var chapterCmd = &cobra.Command{
	Use:     "chapter",
	GroupID: "entities",
	Short:   "Create, edit and link chapters",
}

// readContent resolves --content / --content-file. "-" reads stdin.
func readContent(cmd *cobra.Command) (string, bool, error) {
	if cmd.Flags().Changed("content-file") {
		path, _ := cmd.Flags().GetString("content-file")
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			// #nosec G304 -- path is supplied by the user on the command line
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return "", false, fmt.Errorf("read content: %w", err)
		}
		return string(data), true, nil
	}
	if cmd.Flags().Changed("content") {
		s, _ := cmd.Flags().GetString("content")
		return s, true, nil
	}
	return "", false, nil
}

var chapterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a chapter to a novel (numbered after the last one by default)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		novelID, _ := cmd.Flags().GetString("novel")
		title, _ := cmd.Flags().GetString("title")
		number, _ := cmd.Flags().GetInt("number")
		outline, _ := cmd.Flags().GetString("outline")
		target, _ := cmd.Flags().GetInt("target-words")
		content, _, err := readContent(cmd)
		if err != nil {
			return err
		}

		c := &types.Chapter{NovelID: novelID, Number: number, Title: title, Outline: outline, Content: content, TargetWordCount: target}
		if err := store.CreateChapter(getRootContext(), c); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, c)
		}
		printf(cmd, "%s Created chapter %d %s: %s\n", ui.RenderPassIcon(), c.Number, ui.RenderAccent(c.ID), c.Title)
		return nil
	},
}

var chapterListCmd = &cobra.Command{
	Use:   "list <novel-id>",
	Short: "List a novel's chapters in order",
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
		if jsonOutput {
			if chapters == nil {
				chapters = []*types.Chapter{}
			}
			return outputJSON(cmd, chapters)
		}
		tw := tabwriter.NewWriter(out(cmd), 0, 2, 2, ' ', 0)
		for _, c := range chapters {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d words\t%s\n", c.Number, ui.RenderStatus(c.Status),
				ui.TruncateSimple(c.Title, 40), c.WordCount, ui.RenderMuted(c.ID))
		}
		return tw.Flush()
	},
}

type chapterDetails struct {
	*types.Chapter
	Characters []*types.Character    `json:"characters"`
	Settings   []*types.WorldSetting `json:"world_settings"`
	Issues     types.SeverityCounts  `json:"unresolved_issues"`
}

var chapterShowCmd = &cobra.Command{
	Use:   "show <chapter-id>",
	Short: "Show a chapter with its links and open issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		ctx := getRootContext()
		c, err := store.GetChapter(ctx, args[0])
		if err != nil {
			return err
		}
		chars, err := store.GetChapterCharacters(ctx, c.ID)
		if err != nil {
			return err
		}
		settings, err := store.GetChapterSettings(ctx, c.ID)
		if err != nil {
			return err
		}
		counts, err := store.CountUnresolvedIssues(ctx, c.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, &chapterDetails{Chapter: c, Characters: chars, Settings: settings, Issues: counts})
		}

		var b []byte
		b = fmt.Appendf(b, "\n%s: Chapter %d: %s\n", ui.RenderAccent(c.ID), c.Number, c.Title)
		b = fmt.Appendf(b, "Status: %s\n", ui.RenderStatus(c.Status))
		b = fmt.Appendf(b, "Words: %d / %d\n", c.WordCount, c.EffectiveTargetWords())
		if counts.Total() > 0 {
			b = fmt.Appendf(b, "Open issues: %s high, %s medium, %d low\n",
				ui.RenderFail(strconv.Itoa(counts.High)), ui.RenderWarn(strconv.Itoa(counts.Medium)), counts.Low)
		}
		if len(chars) > 0 {
			b = fmt.Appendf(b, "Characters:")
			for _, ch := range chars {
				b = fmt.Appendf(b, " %s", ch.Name)
			}
			b = append(b, '\n')
		}
		if len(settings) > 0 {
			b = fmt.Appendf(b, "Settings:")
			for _, s := range settings {
				b = fmt.Appendf(b, " %s", s.Name)
			}
			b = append(b, '\n')
		}
		if c.Outline != "" {
			b = fmt.Appendf(b, "\n%s\n%s\n", ui.RenderCategory("Outline"), ui.WrapText(c.Outline, ui.TerminalWidth()))
		}
		if c.Content != "" {
			text := ui.WrapText(c.Content, ui.TerminalWidth())
			if !full {
				text = ui.TruncateLines(text, ui.DefaultMaxLines, ui.DefaultContextLines)
			}
			b = fmt.Appendf(b, "\n%s\n%s\n", ui.RenderCategory("Content"), text)
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		return ui.ToPager(out(cmd), string(b), ui.PagerOptions{NoPager: noPager || !full})
	},
}

var chapterUpdateCmd = &cobra.Command{
	Use:   "update <chapter-id>",
	Short: "Update chapter title, outline, content or target (word count is recomputed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		updates := make(map[string]interface{})
		for _, f := range []string{"title", "outline"} {
			if cmd.Flags().Changed(f) {
				v, _ := cmd.Flags().GetString(f)
				updates[f] = v
			}
		}
		content, ok, err := readContent(cmd)
		if err != nil {
			return err
		}
		if ok {
			updates["content"] = content
		}
		if cmd.Flags().Changed("target-words") {
			v, _ := cmd.Flags().GetInt("target-words")
			updates["target_word_count"] = v
		}
		if len(updates) == 0 {
			return fmt.Errorf("nothing to update: pass --title, --outline, --content, --content-file or --target-words")
		}

		ctx := getRootContext()
		if err := store.UpdateChapter(ctx, args[0], updates); err != nil {
			return err
		}
		c, err := store.GetChapter(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, c)
		}
		printf(cmd, "%s Updated chapter %d (%d words)\n", ui.RenderPassIcon(), c.Number, c.WordCount)
		return nil
	},
}

var chapterLinkCmd = &cobra.Command{
	Use:   "link <chapter-id>",
	Short: "Record which characters and world settings appear in a chapter",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		characters, _ := cmd.Flags().GetStringSlice("character")
		settings, _ := cmd.Flags().GetStringSlice("setting")
		if len(characters) == 0 && len(settings) == 0 {
			return fmt.Errorf("pass at least one --character or --setting")
		}
		ctx := getRootContext()
		for _, id := range characters {
			if err := store.LinkChapterCharacter(ctx, args[0], id); err != nil {
				return fmt.Errorf("link character %s: %w", id, err)
			}
		}
		for _, id := range settings {
			if err := store.LinkChapterSetting(ctx, args[0], id); err != nil {
				return fmt.Errorf("link setting %s: %w", id, err)
			}
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{
				"chapter_id": args[0],
				"characters": characters,
				"settings":   settings,
			})
		}
		printf(cmd, "%s Linked %d character(s) and %d setting(s) to %s\n", ui.RenderPassIcon(), len(characters), len(settings), args[0])
		return nil
	},
}

func addContentFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "Chapter title")
	cmd.Flags().String("outline", "", "Chapter outline")
	cmd.Flags().String("content", "", "Chapter text")
	cmd.Flags().String("content-file", "", "Read chapter text from a file ('-' for stdin)")
	cmd.Flags().Int("target-words", 0, "Word target (default 3000)")
}

func init() {
	addContentFlags(chapterCreateCmd)
	chapterCreateCmd.Flags().String("novel", "", "Owning novel ID (required)")
	chapterCreateCmd.Flags().Int("number", 0, "Chapter number (default: next free)")
	_ = chapterCreateCmd.MarkFlagRequired("novel")

	addContentFlags(chapterUpdateCmd)

	chapterShowCmd.Flags().Bool("full", false, "Show the complete chapter text")
	chapterShowCmd.Flags().Bool("no-pager", false, "Do not pipe --full output through a pager")

	chapterLinkCmd.Flags().StringSlice("character", nil, "Character ID (repeatable)")
	chapterLinkCmd.Flags().StringSlice("setting", nil, "World setting ID (repeatable)")

	chapterCmd.AddCommand(chapterCreateCmd, chapterListCmd, chapterShowCmd, chapterUpdateCmd, chapterLinkCmd)
	rootCmd.AddCommand(chapterCmd)
}
