package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/storage"
	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
	"github.com/steveyegge/novelflow/internal/workflow"
)

var transitionCmd = &cobra.Command{
	Use:     "transition",
	GroupID: "workflow",
	Short:   "Check and apply gated status transitions",
	Long: `Move a novel or chapter along its workflow graph.

Every transition must follow an edge of the novel's workflow and pass the
edge's conditions. Completing a chapter transition also moves the owning
novel forward when its chapters now justify it.`,
}

// parseTarget parses "<novel|chapter> <id> [status]" arguments.
func parseTarget(args []string) (types.EntityType, string, types.Status, error) {
	et, err := types.ParseEntityType(args[0])
	if err != nil {
		return "", "", "", err
	}
	if len(args) < 3 {
		return et, args[1], "", nil
	}
	to, err := types.ParseStatus(et, args[2])
	if err != nil {
		return "", "", "", err
	}
	return et, args[1], to, nil
}

var transitionCheckCmd = &cobra.Command{
	Use:   "check <novel|chapter> <id> <status>",
	Short: "Report whether a transition would be allowed, without changing anything",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, id, to, err := parseTarget(args)
		if err != nil {
			return err
		}
		chk, err := engine.CanTransition(getRootContext(), et, id, to)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, chk)
		}
		fmt.Fprintf(out(cmd), "%s %s", ui.RenderCheck(chk.Allowed), ui.RenderTransition(chk.From, chk.To))
		if !chk.Allowed {
			fmt.Fprintf(out(cmd), ": %s", chk.Reason)
		}
		fmt.Fprintln(out(cmd))
		return nil
	},
}

var transitionApplyCmd = &cobra.Command{
	Use:   "apply <novel|chapter> <id> <status>",
	Short: "Move an entity to a new status",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, id, to, err := parseTarget(args)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		meta, err := parseMetadata(cmd)
		if err != nil {
			return err
		}
		meta["actor"] = getActor()

		res, err := engine.TransitionStatus(getRootContext(), workflow.TransitionRequest{
			EntityType:  et,
			EntityID:    id,
			ToStatus:    to,
			TriggeredBy: types.TriggeredByUser,
			Reason:      reason,
			Metadata:    meta,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, res)
		}
		printf(cmd, "%s %s %s %s\n", ui.RenderPassIcon(), et, ui.RenderAccent(id), ui.RenderTransition(res.FromStatus, res.ToStatus))
		for _, h := range res.Cascade {
			printf(cmd, "%s%s novel %s\n", ui.TreeIndent, ui.TreeLast, ui.RenderTransition(h.FromStatus, h.ToStatus))
		}
		return nil
	},
}

// parseMetadata turns repeated --meta key=value flags into a map.
func parseMetadata(cmd *cobra.Command) (map[string]any, error) {
	pairs, _ := cmd.Flags().GetStringArray("meta")
	meta := make(map[string]any, len(pairs)+1)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --meta %q: want key=value", p)
		}
		if err := storage.ValidateMetadataKey(k); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, nil
}

var transitionAvailableCmd = &cobra.Command{
	Use:   "available <novel|chapter> <id>",
	Short: "List the edges leaving the entity's current status and whether each is open",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, id, _, err := parseTarget(args)
		if err != nil {
			return err
		}
		avail, err := engine.AvailableTransitions(getRootContext(), et, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			if avail == nil {
				avail = []*workflow.Available{}
			}
			return outputJSON(cmd, avail)
		}
		if len(avail) == 0 {
			fmt.Fprintf(out(cmd), "No transitions leave the current status\n")
			return nil
		}
		for _, a := range avail {
			kind := "manual"
			if a.AutoTrigger {
				kind = "auto"
			}
			fmt.Fprintf(out(cmd), "%s %s %s", ui.RenderCheck(a.Allowed), ui.RenderStatus(a.To), ui.RenderMuted("("+kind+")"))
			if !a.Allowed {
				fmt.Fprintf(out(cmd), ": %s", a.Reason)
			}
			fmt.Fprintln(out(cmd))
		}
		return nil
	},
}

func init() {
	transitionApplyCmd.Flags().String("reason", "", "Reason recorded in the status history")
	transitionApplyCmd.Flags().StringArray("meta", nil, "Extra history metadata as key=value (repeatable)")

	transitionCmd.AddCommand(transitionCheckCmd, transitionApplyCmd, transitionAvailableCmd)
	rootCmd.AddCommand(transitionCmd)
}
