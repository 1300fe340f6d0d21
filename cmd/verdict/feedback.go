package main

import (
	"fmt"

	"github.com/hyperengineering/verdict"
	"github.com/spf13/cobra"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <outcome-id>",
	Short: "Rate the outcome of a response",
	Long: `Record a 1-5 user rating for an escalation outcome. The rating feeds the
capability performance scores and per-user adaptive thresholds.

Outcome IDs are printed by "verdict respond". Session references such as
D1 only resolve within a long-running process like "verdict mcp".`,
	Example: `  verdict feedback 01JBX2... --rating 5
  verdict feedback 01JBX2... --rating 2 --details "too slow"`,
	Args: cobra.ExactArgs(1),
	RunE: runFeedback,
}

var (
	feedbackRating  int
	feedbackDetails string
)

func init() {
	feedbackCmd.Flags().IntVar(&feedbackRating, "rating", 0, "Rating from 1 (bad) to 5 (great) (required)")
	feedbackCmd.Flags().StringVar(&feedbackDetails, "details", "", "Free-form feedback details")
	_ = feedbackCmd.MarkFlagRequired("rating")

	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(cmd *cobra.Command, args []string) error {
	if feedbackRating < verdict.RatingMin || feedbackRating > verdict.RatingMax {
		return fmt.Errorf("rating must be between %d and %d, got %d", verdict.RatingMin, verdict.RatingMax, feedbackRating)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.Feedback(cmd.Context(), verdict.FeedbackParams{
		Ref:     args[0],
		Rating:  feedbackRating,
		Details: feedbackDetails,
	})
	if err != nil {
		return err
	}
	return outputFeedback(cmd, result)
}
