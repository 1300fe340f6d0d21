package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperengineering/verdict"
	"github.com/hyperengineering/verdict/internal/capability"
	"github.com/hyperengineering/verdict/internal/store"
	"github.com/spf13/cobra"
)

// APIKeyEnv supplies the bearer token for HTTP capabilities.
const APIKeyEnv = "VERDICT_API_KEY"

var (
	cfgFile     string
	cfgProfile  string
	cfgDBPath   string
	cfgAPIKey   string
	cfgLogLevel string
	outputJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "verdict",
	Short: "Verdict - response decision and confidence escalation",
	Long: `Verdict decides whether a bot should answer a message, escalates
low-confidence replies through ranked reasoning capabilities, and learns
from the outcomes and user feedback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ~/.verdict/config.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&cfgProfile, "profile", "", "Profile name (default: $VERDICT_PROFILE or \"default\")")
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to the outcome database (overrides profile)")
	rootCmd.PersistentFlags().StringVar(&cfgAPIKey, "api-key", "", "Bearer token for HTTP capabilities (default: $"+APIKeyEnv+")")
	rootCmd.PersistentFlags().StringVar(&cfgLogLevel, "log-level", "", "Log level: debug, info, warn, error (default: warn)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")
}

// defaultConfigPath returns ~/.verdict/config.yaml, next to the profiles root.
func defaultConfigPath() string {
	return filepath.Join(filepath.Dir(store.DefaultRoot()), "config.yaml")
}

// configPath returns the config file to read, or "" when none exists.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := defaultConfigPath(); fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// loadConfig layers flags over the config file and VERDICT_* environment.
func loadConfig() (verdict.Config, error) {
	cfg, err := verdict.LoadConfig(configPath())
	if err != nil {
		return verdict.Config{}, err
	}

	if cfgProfile != "" {
		if err := store.ValidateProfileID(cfgProfile); err != nil {
			return verdict.Config{}, fmt.Errorf("invalid profile %q: %w", cfgProfile, err)
		}
		cfg.Profile = cfgProfile
		if cfgDBPath == "" && os.Getenv("VERDICT_DB_PATH") == "" {
			cfg.DataPath = store.ProfileDBPath(cfgProfile)
		}
	}
	if cfgDBPath != "" {
		cfg.DataPath = cfgDBPath
	}

	switch {
	case cfgLogLevel != "":
		cfg.LogLevel = cfgLogLevel
	case os.Getenv("VERDICT_LOG_LEVEL") == "":
		cfg.LogLevel = "warn"
	}

	return cfg, nil
}

func loadAndValidateConfig() (verdict.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func apiKey() string {
	if cfgAPIKey != "" {
		return cfgAPIKey
	}
	return os.Getenv(APIKeyEnv)
}

// cliClient owns a verdict client and the logger it writes to.
type cliClient struct {
	*verdict.Client
	logger *verdict.Logger
}

func (c *cliClient) Close() error {
	err := c.Client.Close()
	_ = c.logger.Close()
	return err
}

// newClient opens the configured profile and binds HTTP capabilities.
func newClient() (*cliClient, error) {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return nil, err
	}

	logger, err := verdict.NewLogger(cfg.LogLevel, cfg.LogPath, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	client, err := verdict.New(cfg, verdict.WithLogger(logger.Logger))
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("initialize client: %w", err)
	}

	if _, err := capability.BindEndpoints(client.Registry(), apiKey()); err != nil {
		_ = client.Close()
		_ = logger.Close()
		return nil, fmt.Errorf("bind capabilities: %w", err)
	}

	return &cliClient{Client: client, logger: logger}, nil
}
