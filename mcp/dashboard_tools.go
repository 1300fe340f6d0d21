package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperengineering/verdict"
)

// handleRankings handles the verdict_rankings tool call.
func (s *Server) handleRankings(ctx context.Context, args map[string]any) (*ToolResult, error) {
	var strategy verdict.Strategy
	if raw := argString(args, "strategy"); raw != "" {
		strategy = verdict.Strategy(raw)
		if !strategy.IsValid() || strategy == verdict.StrategyIgnore {
			return errorResult("invalid strategy: %s", raw), nil
		}
	}
	factors, err := parseFactors(args)
	if err != nil {
		return errorResult("%v", err), nil
	}

	ranked := s.client.Rankings(ctx, strategy, factors)
	if len(ranked) == 0 {
		return &ToolResult{Content: "No capabilities registered."}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Capability rankings (%d):\n\n", len(ranked)))
	for i, id := range ranked {
		m, ok := s.client.Metrics(id)
		if !ok {
			sb.WriteString(fmt.Sprintf("  %d. %s (no history)\n", i+1, id))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %d. %s  success %.0f%% | satisfaction %.2f | samples %d\n",
			i+1, id, m.SuccessRate*100, m.AvgSatisfaction, m.Samples))
	}
	return &ToolResult{Content: sb.String()}, nil
}

// handleThresholds handles the verdict_thresholds tool call.
func (s *Server) handleThresholds(ctx context.Context, args map[string]any) (*ToolResult, error) {
	userID := argString(args, "user_id")
	if userID == "" {
		return errorResult("user_id is required"), nil
	}
	factors, err := parseFactors(args)
	if err != nil {
		return errorResult("%v", err), nil
	}

	t := s.client.Thresholds(ctx, userID, factors)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Thresholds for %s:\n", t.UserID))
	sb.WriteString(fmt.Sprintf("  Confidence: %.2f\n", t.Confidence))
	sb.WriteString(fmt.Sprintf("  Escalation: %.2f\n", t.Escalation))
	sb.WriteString(fmt.Sprintf("  Deferral:   %.2f\n", t.Deferral))
	sb.WriteString(fmt.Sprintf("  Samples:    %d\n", t.SampleSize))
	sb.WriteString(fmt.Sprintf("  Reason:     %s\n", t.AdaptationReason))
	return &ToolResult{Content: sb.String()}, nil
}

// handleInsights handles the verdict_insights tool call.
func (s *Server) handleInsights(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	insights, err := s.client.Insights(ctx)
	if err != nil {
		return errorResult("insights failed: %v", err), nil
	}
	return &ToolResult{Content: formatInsights(insights)}, nil
}

// handleStats handles the verdict_stats tool call.
func (s *Server) handleStats(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	stats, err := s.client.Stats(ctx)
	if err != nil {
		return errorResult("stats failed: %v", err), nil
	}

	var sb strings.Builder
	sb.WriteString("Outcome store:\n")
	sb.WriteString(fmt.Sprintf("  Outcomes: %d (%d runs)\n", stats.OutcomeCount, stats.RunCount))
	sb.WriteString(fmt.Sprintf("  Feedback: %d\n", stats.FeedbackCount))
	sb.WriteString(fmt.Sprintf("  Last prune: %s\n", formatRelativeTime(stats.LastPrune)))
	sb.WriteString(fmt.Sprintf("  Schema: %s\n", stats.SchemaVersion))

	metrics := s.client.AllMetrics()
	if len(metrics) > 0 {
		sb.WriteString("\nCapabilities:\n")
		for _, m := range metrics {
			sb.WriteString(fmt.Sprintf("  %-20s score %.2f | success %.0f%% | avg %s | samples %d\n",
				m.Capability, m.PerformanceScore, m.SuccessRate*100, m.AvgExecutionTime.Round(time.Millisecond), m.Samples))
		}
	}
	return &ToolResult{Content: sb.String()}, nil
}

// handleConfigure handles the verdict_configure tool call.
func (s *Server) handleConfigure(_ context.Context, args map[string]any) (*ToolResult, error) {
	updates, ok := args["updates"].(map[string]any)
	if !ok || len(updates) == 0 {
		return errorResult("updates is required; known keys: %s", strings.Join(verdict.ConfigUpdateKeys(), ", ")), nil
	}

	cfg, err := s.client.UpdateConfig(updates)
	if err != nil {
		return errorResult("configuration unchanged: %v", err), nil
	}

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	effective, err := json.MarshalIndent(struct {
		Decision   verdict.DecisionConfig   `json:"decision"`
		Escalation verdict.EscalationConfig `json:"escalation"`
	}{cfg.Decision, cfg.Escalation}, "", "  ")
	if err != nil {
		return errorResult("encode configuration: %v", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf("Updated %s\n\n%s", strings.Join(keys, ", "), effective)}, nil
}

func formatInsights(in verdict.LearningInsights) string {
	if in.TotalOutcomes == 0 {
		return "No outcomes recorded yet."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Outcomes: %d (%d runs, %d users)\n", in.TotalOutcomes, in.TotalRuns, in.UniqueUsers))
	sb.WriteString(fmt.Sprintf("Success rate: %.0f%%\n", in.OverallSuccessRate*100))
	sb.WriteString(fmt.Sprintf("Escalation rate: %.0f%%\n", in.EscalationRate*100))
	if in.FeedbackCount > 0 {
		sb.WriteString(fmt.Sprintf("Satisfaction: %.2f (%d ratings)\n", in.AvgSatisfaction, in.FeedbackCount))
	}

	if len(in.PreferredStrategies) > 0 {
		sb.WriteString("\nStrategies:\n")
		for _, u := range in.PreferredStrategies {
			sb.WriteString(fmt.Sprintf("  %-12s %d runs | success %.0f%%\n", u.Strategy, u.Count, u.SuccessRate*100))
		}
	}
	if len(in.EffectiveCapabilities) > 0 {
		sb.WriteString("\nMost effective capabilities:\n")
		for _, m := range in.EffectiveCapabilities {
			sb.WriteString(fmt.Sprintf("  %-20s score %.2f\n", m.Capability, m.PerformanceScore))
		}
	}
	if len(in.UserSegments) > 0 {
		sb.WriteString("\nUser segments:\n")
		for _, seg := range in.UserSegments {
			sb.WriteString(fmt.Sprintf("  %-8s %d users | success %.0f%%\n", seg.Bucket, seg.Users, seg.SuccessRate*100))
		}
	}
	if len(in.ImprovementOpportunities) > 0 {
		sb.WriteString("\nImprovement opportunities:\n")
		for _, op := range in.ImprovementOpportunities {
			sb.WriteString(fmt.Sprintf("  [%s] %s (%d samples): %s\n", op.Priority, op.Capability, op.Samples, op.Suggestion))
		}
	}
	return sb.String()
}

// formatRelativeTime formats a timestamp as relative time (e.g., "2h ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	duration := time.Since(t)
	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	default:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
