package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
)

var characterCmd = &cobra.Command{
	Use:     "character",
	GroupID: "entities",
	Short:   "Manage a novel's characters",
}

var characterCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a character to a novel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := &types.Character{}
		c.NovelID, _ = cmd.Flags().GetString("novel")
		c.Name, _ = cmd.Flags().GetString("name")
		c.Role, _ = cmd.Flags().GetString("role")
		c.Description, _ = cmd.Flags().GetString("description")
		c.Personality, _ = cmd.Flags().GetString("personality")
		c.Background, _ = cmd.Flags().GetString("background")
		if err := store.CreateCharacter(getRootContext(), c); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, c)
		}
		printf(cmd, "%s Created character %s: %s\n", ui.RenderPassIcon(), ui.RenderAccent(c.ID), c.Name)
		return nil
	},
}

var characterListCmd = &cobra.Command{
	Use:   "list <novel-id>",
	Short: "List a novel's characters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := getRootContext()
		if _, err := store.GetNovel(ctx, args[0]); err != nil {
			return err
		}
		chars, err := store.ListCharacters(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			if chars == nil {
				chars = []*types.Character{}
			}
			return outputJSON(cmd, chars)
		}
		tw := tabwriter.NewWriter(out(cmd), 0, 2, 2, ' ', 0)
		for _, c := range chars {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Role, ui.TruncateSimple(c.Description, 50), ui.RenderMuted(c.ID))
		}
		return tw.Flush()
	},
}

var settingCmd = &cobra.Command{
	Use:     "setting",
	GroupID: "entities",
	Short:   "Manage a novel's world settings (places, rules, institutions)",
}

var settingCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Add a world setting to a novel",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := &types.WorldSetting{}
		ws.NovelID, _ = cmd.Flags().GetString("novel")
		ws.Name, _ = cmd.Flags().GetString("name")
		ws.Category, _ = cmd.Flags().GetString("category")
		ws.Description, _ = cmd.Flags().GetString("description")
		if err := store.CreateWorldSetting(getRootContext(), ws); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, ws)
		}
		printf(cmd, "%s Created setting %s: %s\n", ui.RenderPassIcon(), ui.RenderAccent(ws.ID), ws.Name)
		return nil
	},
}

var settingListCmd = &cobra.Command{
	Use:   "list <novel-id>",
	Short: "List a novel's world settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := getRootContext()
		if _, err := store.GetNovel(ctx, args[0]); err != nil {
			return err
		}
		settings, err := store.ListWorldSettings(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			if settings == nil {
				settings = []*types.WorldSetting{}
			}
			return outputJSON(cmd, settings)
		}
		tw := tabwriter.NewWriter(out(cmd), 0, 2, 2, ' ', 0)
		for _, s := range settings {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Category, ui.TruncateSimple(s.Description, 50), ui.RenderMuted(s.ID))
		}
		return tw.Flush()
	},
}

func init() {
	characterCreateCmd.Flags().String("novel", "", "Owning novel ID (required)")
	characterCreateCmd.Flags().String("name", "", "Character name (required)")
	characterCreateCmd.Flags().String("role", "", "Role in the story (protagonist, mentor, ...)")
	characterCreateCmd.Flags().String("description", "", "Appearance and defining traits")
	characterCreateCmd.Flags().String("personality", "", "Personality")
	characterCreateCmd.Flags().String("background", "", "Backstory")
	_ = characterCreateCmd.MarkFlagRequired("novel")
	_ = characterCreateCmd.MarkFlagRequired("name")
	characterCmd.AddCommand(characterCreateCmd, characterListCmd)

	settingCreateCmd.Flags().String("novel", "", "Owning novel ID (required)")
	settingCreateCmd.Flags().String("name", "", "Setting name (required)")
	settingCreateCmd.Flags().String("category", "", "Category (place, magic system, faction, ...)")
	settingCreateCmd.Flags().String("description", "", "Description")
	_ = settingCreateCmd.MarkFlagRequired("novel")
	_ = settingCreateCmd.MarkFlagRequired("name")
	settingCmd.AddCommand(settingCreateCmd, settingListCmd)

	rootCmd.AddCommand(characterCmd, settingCmd)
}
