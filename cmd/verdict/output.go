package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperengineering/verdict"
	"github.com/spf13/cobra"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to stderr, ensuring no API keys are leaked.
func outputError(w io.Writer, err error) {
	printError(w, "%s", scrubSensitiveData(err.Error()))
}

// scrubSensitiveData removes the capability API key from messages.
func scrubSensitiveData(msg string) string {
	if key := apiKey(); key != "" && strings.Contains(msg, key) {
		msg = strings.ReplaceAll(msg, key, "[REDACTED]")
	}
	return msg
}

func outputDecision(cmd *cobra.Command, d verdict.DecisionResult) error {
	if outputJSON {
		return outputAsJSON(cmd, d)
	}
	writeDecision(cmd.OutOrStdout(), d)
	return nil
}

func writeDecision(out io.Writer, d verdict.DecisionResult) {
	if d.ShouldRespond {
		printSuccess(out, "Respond with %s", d.Strategy)
	} else {
		printWarning(out, "Stay silent")
	}
	printField(out, "Confidence", "%.2f", d.Confidence)
	printField(out, "Token estimate", "%d", d.TokenEstimate)
	if len(d.Reason) > 0 {
		printField(out, "Signals", "%s", strings.Join(d.Reason, ", "))
	}
}

func outputRespond(cmd *cobra.Command, r verdict.RespondResult) error {
	if outputJSON {
		return outputAsJSON(cmd, r)
	}

	out := cmd.OutOrStdout()
	writeDecision(out, r.Decision)
	if r.Escalation == nil {
		return nil
	}

	fmt.Fprintln(out)
	writeEscalation(out, *r.Escalation)
	return nil
}

func writeEscalation(out io.Writer, esc verdict.EscalationResult) {
	if !esc.Triggered {
		printInfo(out, "No escalation: %s", esc.Reason)
	} else {
		printInfo(out, "Escalated: %s", esc.Reason)
		printField(out, "Confidence", "%s -> %s (threshold %.2f)",
			renderConfidence(esc.OriginalConfidence, esc.Threshold),
			renderConfidence(esc.FinalConfidence, esc.Threshold),
			esc.Threshold)
		printField(out, "Attempts", "%d (%d successful)", esc.TotalAttempts, esc.SuccessfulAttempts)
		printField(out, "Stopped", "%s", esc.StopReason)
		printField(out, "Next action", "%s", esc.RecommendNextAction)
		printField(out, "Elapsed", "%s", esc.TotalExecutionTime.Round(time.Millisecond))

		for _, a := range esc.EscalationPath {
			status := "ok"
			if !a.Success {
				status = "failed"
				if a.Error != "" {
					status += ": " + a.Error
				}
			}
			printMuted(out, "    %d. %-16s %.2f  %s  (%s)", a.Number, a.Capability, a.Confidence,
				a.ExecutionTime.Round(time.Millisecond), status)
		}
		if esc.BestResult != nil {
			fmt.Fprintln(out)
			printField(out, "Best", "%s", esc.BestResult.Capability)
			fmt.Fprintln(out, renderMarkdown(esc.BestResult.Text))
		}
	}

	for _, adj := range esc.Adjustments {
		printMuted(out, "  adjusted: %s", adj)
	}
	if esc.OutcomeID != "" {
		printMuted(out, "  outcome: %s", esc.OutcomeID)
	}
}

func outputFeedback(cmd *cobra.Command, r *verdict.FeedbackResult) error {
	if outputJSON {
		return outputAsJSON(cmd, r)
	}

	out := cmd.OutOrStdout()
	if !r.Applied {
		printWarning(out, "Outcome %s not found; no feedback recorded", r.OutcomeID)
		return nil
	}
	printSuccess(out, "Feedback recorded for %s", r.OutcomeID)
	printField(out, "Rating", "%d", r.Rating)
	printField(out, "Satisfaction", "%.2f", r.Satisfaction)
	return nil
}

func outputMetrics(cmd *cobra.Command, metrics []verdict.ServicePerformanceMetrics) error {
	if outputJSON {
		return outputAsJSON(cmd, metrics)
	}

	out := cmd.OutOrStdout()
	if len(metrics) == 0 {
		printMuted(out, "No capability outcomes recorded yet.")
		return nil
	}

	fmt.Fprintf(out, "%-20s %8s %8s %8s %10s %8s\n", "CAPABILITY", "SCORE", "SUCCESS", "SATISF.", "AVG TIME", "SAMPLES")
	for _, m := range metrics {
		fmt.Fprintf(out, "%-20s %8.2f %7.0f%% %8.2f %10s %8d\n",
			m.Capability, m.PerformanceScore, m.SuccessRate*100, m.AvgSatisfaction,
			m.AvgExecutionTime.Round(time.Millisecond), m.Samples)
	}
	return nil
}

// insightsMarkdown renders insights as a markdown report.
func insightsMarkdown(in verdict.LearningInsights) string {
	var sb strings.Builder
	sb.WriteString("# Learning insights\n\n")
	if in.TotalOutcomes == 0 {
		sb.WriteString("No outcomes recorded yet.\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("- **Outcomes:** %d (%d runs, %d users)\n", in.TotalOutcomes, in.TotalRuns, in.UniqueUsers))
	sb.WriteString(fmt.Sprintf("- **Success rate:** %.0f%%\n", in.OverallSuccessRate*100))
	sb.WriteString(fmt.Sprintf("- **Escalation rate:** %.0f%%\n", in.EscalationRate*100))
	if in.FeedbackCount > 0 {
		sb.WriteString(fmt.Sprintf("- **Satisfaction:** %.2f over %d ratings\n", in.AvgSatisfaction, in.FeedbackCount))
	}

	if len(in.PreferredStrategies) > 0 {
		sb.WriteString("\n## Strategies\n\n| Strategy | Runs | Success |\n|---|---:|---:|\n")
		for _, u := range in.PreferredStrategies {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.0f%% |\n", u.Strategy, u.Count, u.SuccessRate*100))
		}
	}
	if len(in.EffectiveCapabilities) > 0 {
		sb.WriteString("\n## Most effective capabilities\n\n| Capability | Score | Success | Samples |\n|---|---:|---:|---:|\n")
		for _, m := range in.EffectiveCapabilities {
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %.0f%% | %d |\n", m.Capability, m.PerformanceScore, m.SuccessRate*100, m.Samples))
		}
	}
	if len(in.UserSegments) > 0 {
		sb.WriteString("\n## User segments\n\n| Relationship | Users | Success | Satisfaction |\n|---|---:|---:|---:|\n")
		for _, seg := range in.UserSegments {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.0f%% | %.2f |\n", seg.Bucket, seg.Users, seg.SuccessRate*100, seg.AvgSatisfaction))
		}
	}
	if len(in.ImprovementOpportunities) > 0 {
		sb.WriteString("\n## Improvement opportunities\n\n")
		for _, op := range in.ImprovementOpportunities {
			sb.WriteString(fmt.Sprintf("- **%s** (%s priority): %s\n", op.Capability, op.Priority, op.Suggestion))
		}
	}
	return sb.String()
}
