package store

import (
	"os"
	"path/filepath"
	"sort"
)

// DBFileName is the outcome database file inside a profile directory.
const DBFileName = "outcomes.db"

// HomeEnv overrides the verdict home directory.
const HomeEnv = "VERDICT_HOME"

// DefaultRoot returns the root directory for all profiles.
// Uses $VERDICT_HOME/profiles when set, otherwise ~/.verdict/profiles,
// falling back to ./.verdict/profiles if home dir unavailable.
func DefaultRoot() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return filepath.Join(dir, "profiles")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".verdict", "profiles")
	}
	return filepath.Join(home, ".verdict", "profiles")
}

// ProfileDBPath returns the full path to a profile's database file.
// Example: ProfileDBPath("support-bot") -> ~/.verdict/profiles/support-bot/outcomes.db
func ProfileDBPath(profile string) string {
	return filepath.Join(DefaultRoot(), profile, DBFileName)
}

// ListProfiles returns the profiles under root that contain a database,
// sorted by name. A missing root yields an empty list.
func ListProfiles(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var profiles []string
	for _, e := range entries {
		if !e.IsDir() || ValidateProfileID(e.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), DBFileName)); err == nil {
			profiles = append(profiles, e.Name())
		}
	}
	sort.Strings(profiles)
	return profiles, nil
}
