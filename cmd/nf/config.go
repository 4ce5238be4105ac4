package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/steveyegge/novelflow/internal/config"
	"github.com/steveyegge/novelflow/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Manage configuration settings",
	Long: `Manage nf configuration.

Settings are read from flags, NF_* environment variables, the nearest
.novelflow/config.yaml, and ~/.config/novelflow/config.yaml, in that order.
'nf config set' writes to the project's .novelflow/config.yaml.

Examples:
  nf config set ai.model claude-haiku-4-5
  nf config set analysis.concurrency 3
  nf config get analysis.call-timeout
  nf config list`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in .novelflow/config.yaml",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		path, err := config.SetYamlConfig(key, value)
		if err != nil {
			return fmt.Errorf("setting config: %w", err)
		}
		shown := value
		if k := config.LookupKey(key); k != nil && k.Secret {
			shown = "********"
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{
				"key":      key,
				"value":    shown,
				"location": path,
			})
		}
		printf(cmd, "Set %s = %s (in %s)\n", key, shown, path)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get the effective value of a configuration key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		k := config.LookupKey(key)
		if k == nil {
			return fmt.Errorf("unknown config key %q (see 'nf config list')", key)
		}
		value := config.GetString(key)
		if k.Secret && value != "" {
			value = "********"
		}
		if jsonOutput {
			return outputJSON(cmd, map[string]interface{}{
				"key":    key,
				"value":  value,
				"source": sourceOf(k),
			})
		}
		fmt.Fprintf(out(cmd), "%s\n", value)
		return nil
	},
}

// sourceOf names where a key's effective value comes from.
func sourceOf(k *config.Key) string {
	if _, ok := os.LookupEnv(k.EnvVar()); ok {
		return "env " + k.EnvVar()
	}
	switch {
	case config.ConfigFileUsed() != "" && config.IsSet(k.Key):
		return config.ConfigFileUsed()
	default:
		return "default"
	}
}

type configEntry struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Source      string `json:"source"`
	Description string `json:"description"`
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known key with its effective value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := make([]configEntry, 0, len(config.Keys))
		for i := range config.Keys {
			k := &config.Keys[i]
			value := config.GetString(k.Key)
			if k.Secret && value != "" {
				value = "********"
			}
			entries = append(entries, configEntry{Key: k.Key, Value: value, Source: sourceOf(k), Description: k.Description})
		}
		if jsonOutput {
			return outputJSON(cmd, entries)
		}
		if f := config.ConfigFileUsed(); f != "" {
			fmt.Fprintf(out(cmd), "%s\n", ui.RenderMuted("config file: "+f))
		}
		tw := tabwriter.NewWriter(out(cmd), 0, 2, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, e.Value, ui.RenderMuted(e.Source))
		}
		return tw.Flush()
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configGetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
