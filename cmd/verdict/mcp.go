package main

import (
	verdictmcp "github.com/hyperengineering/verdict/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

The server exposes analyze, respond, feedback and the learning dashboards
as tools. Outcomes recorded during the session can be rated by their
session reference (D1, D2, ...).

Example client configuration:

  {
    "mcpServers": {
      "verdict": {
        "command": "verdict",
        "args": ["mcp"],
        "env": {
          "VERDICT_PROFILE": "support-bot",
          "VERDICT_API_KEY": "..."
        }
      }
    }
  }

Environment variables:
  VERDICT_DB_PATH    Path to the outcome database (overrides profile)
  VERDICT_PROFILE    Profile name (default: "default")
  VERDICT_HOME       Root directory (default: ~/.verdict)
  VERDICT_API_KEY    Bearer token for HTTP capabilities
  VERDICT_LOG_PATH   Log file (stdout is reserved for the protocol)`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	// The client persists for the server lifetime.
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	return verdictmcp.NewServer(client.Client).Run()
}
