package main

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/verdict"
	"github.com/spf13/cobra"
)

var rankingsCmd = &cobra.Command{
	Use:   "rankings",
	Short: "Rank capabilities by learned effectiveness",
	Example: `  verdict rankings
  verdict rankings --strategy deep-reason --complexity expert`,
	Args: cobra.NoArgs,
	RunE: runRankings,
}

var thresholdsCmd = &cobra.Command{
	Use:   "thresholds <user-id>",
	Short: "Show the adaptive thresholds for a user",
	Example: `  verdict thresholds u1
  verdict thresholds u1 --complexity complex --json`,
	Args: cobra.ExactArgs(1),
	RunE: runThresholds,
}

var metricsCmd = &cobra.Command{
	Use:   "metrics [capability]",
	Short: "Show capability performance metrics",
	Example: `  verdict metrics
  verdict metrics gpt-small`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMetrics,
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Summarize what the learning engine has observed",
	Args:  cobra.NoArgs,
	RunE:  runInsights,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete outcomes older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

var (
	rankingsStrategy string
	learnComplexity  string
)

func init() {
	rankingsCmd.Flags().StringVar(&rankingsStrategy, "strategy", string(verdict.StrategyQuickReply), "Strategy: quick-reply, deep-reason, defer")
	rankingsCmd.Flags().StringVar(&learnComplexity, "complexity", "", "Message complexity: simple, complex, expert")
	thresholdsCmd.Flags().StringVar(&learnComplexity, "complexity", "", "Message complexity: simple, complex, expert")

	rootCmd.AddCommand(rankingsCmd, thresholdsCmd, metricsCmd, insightsCmd, pruneCmd)
}

func parseFactors() (*verdict.ContextFactors, error) {
	if learnComplexity == "" {
		return nil, nil
	}
	tier := verdict.Tier(strings.ToLower(learnComplexity))
	if !tier.IsValid() {
		return nil, fmt.Errorf("invalid complexity %q: must be simple, complex or expert", learnComplexity)
	}
	return &verdict.ContextFactors{Complexity: tier}, nil
}

func runRankings(cmd *cobra.Command, args []string) error {
	strategy := verdict.Strategy(strings.ToLower(rankingsStrategy))
	if !strategy.IsValid() || strategy == verdict.StrategyIgnore {
		return fmt.Errorf("invalid strategy %q: must be quick-reply, deep-reason or defer", rankingsStrategy)
	}
	factors, err := parseFactors()
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	ranked := client.Rankings(cmd.Context(), strategy, factors)
	if outputJSON {
		return outputAsJSON(cmd, ranked)
	}

	out := cmd.OutOrStdout()
	if len(ranked) == 0 {
		printMuted(out, "No capabilities configured.")
		return nil
	}
	for i, id := range ranked {
		if m, ok := client.Metrics(id); ok {
			fmt.Fprintf(out, "%2d. %-20s score %.2f  success %.0f%%  (%d samples)\n",
				i+1, id, m.PerformanceScore, m.SuccessRate*100, m.Samples)
		} else {
			fmt.Fprintf(out, "%2d. %-20s %s\n", i+1, id, "no history")
		}
	}
	return nil
}

func runThresholds(cmd *cobra.Command, args []string) error {
	factors, err := parseFactors()
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	th := client.Thresholds(cmd.Context(), args[0], factors)
	if outputJSON {
		return outputAsJSON(cmd, th)
	}

	out := cmd.OutOrStdout()
	printInfo(out, "Thresholds for %s", th.UserID)
	printField(out, "Confidence", "%.2f", th.Confidence)
	printField(out, "Escalation", "%.2f", th.Escalation)
	printField(out, "Deferral", "%.2f", th.Deferral)
	printField(out, "Samples", "%d", th.SampleSize)
	if th.Adapted {
		printField(out, "Success rate", "%.0f%%", th.SuccessRate*100)
		printField(out, "Offset", "%+.2f", th.Offset)
	}
	printField(out, "Reason", "%s", th.AdaptationReason)
	return nil
}

func runMetrics(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 1 {
		m, ok := client.Metrics(args[0])
		if !ok {
			return fmt.Errorf("no outcomes recorded for capability %q", args[0])
		}
		return outputMetrics(cmd, []verdict.ServicePerformanceMetrics{m})
	}
	return outputMetrics(cmd, client.AllMetrics())
}

func runInsights(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	insights, err := client.Insights(cmd.Context())
	if err != nil {
		return fmt.Errorf("generate insights: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, insights)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderMarkdown(insightsMarkdown(insights)))
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	n, err := client.Prune(cmd.Context())
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]int{"pruned": n})
	}
	printSuccess(cmd.OutOrStdout(), "Pruned %d outcomes older than %s", n, client.Config().Learning.Retention)
	return nil
}
