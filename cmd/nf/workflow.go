package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/types"
	"github.com/steveyegge/novelflow/internal/ui"
	"github.com/steveyegge/novelflow/internal/workflow"
)

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	GroupID: "workflow",
	Short:   "Inspect or customize a novel's transition graphs",
}

func describeConditions(conds []types.ConditionSpec) string {
	if len(conds) == 0 {
		return ""
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = string(c.Type)
		if c.Value != nil {
			parts[i] += fmt.Sprintf("(%g)", *c.Value)
		}
		if !c.Type.IsKnown() {
			parts[i] += "?"
		}
	}
	return strings.Join(parts, ", ")
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <novel-id> <novel|chapter>",
	Short: "Show the effective transition graph",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, err := types.ParseEntityType(args[1])
		if err != nil {
			return err
		}
		cfg, err := engine.Workflow(getRootContext(), args[0], et)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, cfg)
		}
		if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
			data, err := workflow.MarshalDefinition(cfg)
			if err != nil {
				return err
			}
			_, err = out(cmd).Write(data)
			return err
		}

		w := out(cmd)
		fmt.Fprintf(w, "%s %s\n", ui.RenderCategory(string(et)+" workflow"), ui.RenderMuted(fmt.Sprintf("v%d", cfg.Version)))
		for _, e := range cfg.Transitions {
			kind := ui.RenderMuted("manual")
			if e.AutoTrigger {
				kind = ui.RenderAccent("auto")
			}
			fmt.Fprintf(w, "  %-10s %s", kind, ui.RenderTransition(e.From, e.To))
			if c := describeConditions(e.Conditions); c != "" {
				fmt.Fprintf(w, "  %s", ui.RenderMuted("when "+c))
			}
			fmt.Fprintln(w)
		}
		return nil
	},
}

var workflowImportCmd = &cobra.Command{
	Use:   "import <novel-id> <file>",
	Short: "Replace a graph with one read from .yaml, .yml, .json or .toml",
	Long: `Replace the novel's transition graph for the entity type named in the file.

Statuses must belong to the entity type. Condition types the evaluator does
not know are stored, but they always fail, which closes their edges.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// #nosec G304 -- path is supplied by the user on the command line
		data, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("read workflow: %w", err)
		}
		def, err := workflow.ParseDefinition(args[1], data)
		if err != nil {
			return err
		}
		cfg, err := engine.ImportWorkflow(getRootContext(), args[0], def)
		if err != nil {
			return err
		}
		unknown := workflow.UnknownConditions(def)
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{
				"workflow":           cfg,
				"unknown_conditions": unknown,
			})
		}
		printf(cmd, "%s Imported %s workflow v%d (%d transitions)\n", ui.RenderPassIcon(), cfg.EntityType, cfg.Version, len(cfg.Transitions))
		for _, c := range unknown {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s unknown condition %q: edges using it will never open\n", ui.RenderWarnIcon(), c)
		}
		return nil
	},
}

var workflowResetCmd = &cobra.Command{
	Use:   "reset <novel-id> <novel|chapter>",
	Short: "Restore the built-in graph",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		et, err := types.ParseEntityType(args[1])
		if err != nil {
			return err
		}
		cfg, err := engine.ResetWorkflow(getRootContext(), args[0], et)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, cfg)
		}
		printf(cmd, "%s Reset %s workflow to defaults (v%d)\n", ui.RenderPassIcon(), et, cfg.Version)
		return nil
	},
}

func init() {
	workflowShowCmd.Flags().Bool("yaml", false, "Print as an importable YAML definition")
	workflowCmd.AddCommand(workflowShowCmd, workflowImportCmd, workflowResetCmd)
	rootCmd.AddCommand(workflowCmd)
}
