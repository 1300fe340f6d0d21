package main

import (
	"fmt"

	"github.com/hyperengineering/verdict/internal/store"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List profiles with an outcome database",
	Args:  cobra.NoArgs,
	RunE:  runProfiles,
}

func init() {
	rootCmd.AddCommand(profilesCmd)
}

func runProfiles(cmd *cobra.Command, args []string) error {
	root := store.DefaultRoot()
	profiles, err := store.ListProfiles(root)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	if profiles == nil {
		profiles = []string{}
	}

	if outputJSON {
		return outputAsJSON(cmd, map[string]any{"root": root, "profiles": profiles})
	}

	out := cmd.OutOrStdout()
	if len(profiles) == 0 {
		printMuted(out, "No profiles under %s", root)
		return nil
	}

	active, _ := store.ResolveProfile(cfgProfile)
	for _, p := range profiles {
		marker := " "
		if p == active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, p)
	}
	return nil
}
