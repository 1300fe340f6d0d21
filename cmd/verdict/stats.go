package main

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/verdict"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outcome store statistics",
	Long:  `Display statistics about the outcome store of the active profile.`,
	Example: `  verdict stats
  verdict stats --health`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var statsHealth bool

func init() {
	statsCmd.Flags().BoolVar(&statsHealth, "health", false, "Include health check")
	rootCmd.AddCommand(statsCmd)
}

type statsOutput struct {
	Profile string                `json:"profile"`
	Path    string                `json:"path"`
	Stats   verdict.StoreStats    `json:"stats"`
	Health  *verdict.HealthStatus `json:"health,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	stats, err := client.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	cfg := client.Config()
	result := statsOutput{Profile: cfg.Profile, Path: cfg.DataPath, Stats: stats}
	if statsHealth {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		health := client.HealthCheck(ctx)
		result.Health = &health
	}

	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	printInfo(out, "Outcome store (%s)", result.Profile)
	printField(out, "Path", "%s", result.Path)
	printField(out, "Outcomes", "%d", stats.OutcomeCount)
	printField(out, "Runs", "%d", stats.RunCount)
	printField(out, "Feedback", "%d", stats.FeedbackCount)
	printField(out, "Schema version", "%s", stats.SchemaVersion)
	if stats.LastPrune.IsZero() {
		printField(out, "Last prune", "never")
	} else {
		printField(out, "Last prune", "%s (%s ago)", stats.LastPrune.Format(time.RFC3339),
			time.Since(stats.LastPrune).Round(time.Minute))
	}

	if result.Health != nil {
		fmt.Fprintln(out)
		if result.Health.Healthy {
			printSuccess(out, "Healthy")
		} else {
			printError(out, "Unhealthy: %s", result.Health.Error)
		}
		printField(out, "Store OK", "%v", result.Health.StoreOK)
		printField(out, "Capabilities", "%d", result.Health.Capabilities)
	}
	return nil
}
