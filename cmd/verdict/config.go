package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hyperengineering/verdict"
	"github.com/hyperengineering/verdict/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key=value>...",
	Short: "Persist tunable settings to the config file",
	Long: `Apply dotted-key overrides to the config file. The result is validated
before it is written; an invalid update leaves the file untouched.

Keys:
  ` + strings.Join(verdict.ConfigUpdateKeys(), "\n  "),
	Example: `  verdict config set quick_reply.threshold=0.7
  verdict config set escalation.budget=45s decision.cooldown=1m`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if outputJSON {
		return outputAsJSON(cmd, cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if path := configPath(); path != "" {
		printMuted(cmd.OutOrStdout(), "# %s", path)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid setting %q: expected key=value", arg)
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	update, err := verdict.ParseConfigUpdate(values)
	if err != nil {
		if errors.Is(err, verdict.ErrUnknownConfigKey) {
			return fmt.Errorf("%w (see 'verdict config set --help')", err)
		}
		return err
	}

	path := configPath()
	if path == "" {
		path = defaultConfigPath()
	}

	// Only file and environment values are persisted, never flag overrides.
	cfg, err := verdict.LoadConfig(configPath())
	if err != nil {
		return err
	}
	next, err := cfg.Apply(update)
	if err != nil {
		return err
	}
	if next.DataPath == store.ProfileDBPath(next.Profile) {
		next.DataPath = ""
	}

	data, err := yaml.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if outputJSON {
		return outputAsJSON(cmd, map[string]any{"path": path, "updated": values})
	}
	printSuccess(cmd.OutOrStdout(), "Updated %d settings in %s", len(values), path)
	return nil
}
