package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/verdict"
	"github.com/spf13/cobra"
)

var respondCmd = &cobra.Command{
	Use:   "respond <message>",
	Short: "Decide and escalate a response through capabilities",
	Long: `Analyze a message and, when the bot should respond, escalate through the
configured capabilities until the confidence threshold is met or the
attempt and time budgets run out. The run is recorded as an outcome
that feedback can rate later.`,
	Example: `  verdict respond "why does my build fail?" --user u1 --mention
  verdict respond "explain goroutines" --user u1 --channel direct --mood curious
  verdict respond "urgent: prod down" --user u1 --channel direct --load 0.9`,
	Args: cobra.ExactArgs(1),
	RunE: runRespond,
}

var (
	respondFlags          messageFlags
	respondUser           string
	respondMood           string
	respondRelationship   float64
	respondSupportiveness float64
	respondLoad           float64
)

func init() {
	respondFlags.register(respondCmd)
	respondCmd.Flags().StringVar(&respondUser, "user", "", "User id the outcome is recorded for (required)")
	respondCmd.Flags().StringVar(&respondMood, "mood", "", "User mood: neutral, happy, frustrated, curious")
	respondCmd.Flags().Float64Var(&respondRelationship, "relationship", -1, "Relationship strength in [0,1]")
	respondCmd.Flags().Float64Var(&respondSupportiveness, "supportiveness", -1, "Persona supportiveness in [0,1]")
	respondCmd.Flags().Float64Var(&respondLoad, "load", -1, "System load in [0,1]")
	_ = respondCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(respondCmd)
}

func runRespond(cmd *cobra.Command, args []string) error {
	msg, dc, err := respondFlags.build(args[0])
	if err != nil {
		return err
	}
	if strings.TrimSpace(respondUser) == "" {
		return errors.New("--user is required")
	}

	personality, err := respondPersonality()
	if err != nil {
		return err
	}

	req := verdict.RespondRequest{
		UserID:      respondUser,
		Message:     msg,
		Context:     dc,
		Personality: personality,
	}
	if respondLoad >= 0 {
		if respondLoad > 1 {
			return fmt.Errorf("--load must be in [0,1], got %v", respondLoad)
		}
		load := respondLoad
		req.SystemLoad = &load
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if client.Registry().Len() == 0 {
		printWarning(cmd.ErrOrStderr(), "No capabilities configured; escalation will stop immediately")
	}

	var result verdict.RespondResult
	err = runWithSpinner(cmd.ErrOrStderr(), "Escalating...", func() error {
		result = client.Respond(cmd.Context(), req)
		return nil
	})
	if err != nil {
		return err
	}

	return outputRespond(cmd, result)
}

func respondPersonality() (*verdict.PersonalityContext, error) {
	if respondMood == "" && respondRelationship < 0 && respondSupportiveness < 0 {
		return nil, nil
	}

	pc := &verdict.PersonalityContext{Mood: verdict.MoodNeutral}
	switch m := verdict.Mood(strings.ToLower(respondMood)); m {
	case "":
	case verdict.MoodNeutral, verdict.MoodHappy, verdict.MoodFrustrated, verdict.MoodCurious:
		pc.Mood = m
	default:
		return nil, fmt.Errorf("invalid mood %q: must be neutral, happy, frustrated or curious", respondMood)
	}
	if respondRelationship >= 0 {
		if respondRelationship > 1 {
			return nil, fmt.Errorf("--relationship must be in [0,1], got %v", respondRelationship)
		}
		pc.RelationshipStrength = respondRelationship
	}
	if respondSupportiveness >= 0 {
		if respondSupportiveness > 1 {
			return nil, fmt.Errorf("--supportiveness must be in [0,1], got %v", respondSupportiveness)
		}
		pc.Traits.Supportiveness = respondSupportiveness
	}
	return pc, nil
}
