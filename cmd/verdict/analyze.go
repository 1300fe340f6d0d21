package main

import (
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <message>",
	Short: "Decide whether to respond to a message",
	Long: `Run the decision engine on one message and print the verdict,
strategy, confidence and contributing signals. Nothing is recorded.`,
	Example: `  verdict analyze "can you help me with this error?" --mention
  verdict analyze "hello" --channel direct
  verdict analyze "deploy is down" --last-reply 30s --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var analyzeFlags messageFlags

func init() {
	analyzeFlags.register(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	msg, dc, err := analyzeFlags.build(args[0])
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	return outputDecision(cmd, client.Analyze(msg, dc))
}
