package verdict

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hyperengineering/verdict/internal/store"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config configures the verdict client.
type Config struct {
	// DataPath is the path to the SQLite outcome database.
	// If empty, DataPath is derived from Profile.
	DataPath string `mapstructure:"data_path" yaml:"data_path"`

	// Profile selects a named outcome database (one per bot deployment).
	// If empty, resolved using profile resolution (explicit > VERDICT_PROFILE env > "default").
	Profile string `mapstructure:"profile" yaml:"profile"`

	// Ephemeral keeps outcomes in memory only. DataPath is ignored.
	Ephemeral bool `mapstructure:"ephemeral" yaml:"ephemeral"`

	Decision   DecisionConfig   `mapstructure:"decision" yaml:"decision"`
	Escalation EscalationConfig `mapstructure:"escalation" yaml:"escalation"`
	Learning   LearningConfig   `mapstructure:"learning" yaml:"learning"`

	// Capabilities is the static capability registry, in declared order.
	Capabilities []CapabilityConfig `mapstructure:"capabilities" yaml:"capabilities"`

	// LogLevel is a zerolog level name. Defaults to "info".
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// LogPath is the file to write logs to. Defaults to stderr if empty.
	LogPath string `mapstructure:"log_path" yaml:"log_path,omitempty"`

	// LogFormat is "console" or "json". Defaults to "console".
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// DecisionConfig holds the signal weights and limits of the decision engine.
type DecisionConfig struct {
	AmbientThreshold      int           `mapstructure:"ambient_threshold" yaml:"ambient_threshold"`
	MinMessageLength      int           `mapstructure:"min_message_length" yaml:"min_message_length"`
	Cooldown              time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	UserBurstThreshold    int           `mapstructure:"user_burst_threshold" yaml:"user_burst_threshold"`
	ChannelBurstThreshold int           `mapstructure:"channel_burst_threshold" yaml:"channel_burst_threshold"`
	MaxMentions           int           `mapstructure:"max_mentions" yaml:"max_mentions"`
	ModelTokenBudget      int           `mapstructure:"model_token_budget" yaml:"model_token_budget"`
	AttachmentTokens      int           `mapstructure:"attachment_tokens" yaml:"attachment_tokens"`
}

// StrategyPolicy bounds escalation for one strategy.
type StrategyPolicy struct {
	Threshold     float64 `mapstructure:"threshold" yaml:"threshold"`
	CriticalFloor float64 `mapstructure:"critical_floor" yaml:"critical_floor"`
	MaxAttempts   int     `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// EscalationConfig configures the escalation controller.
type EscalationConfig struct {
	QuickReply StrategyPolicy `mapstructure:"quick_reply" yaml:"quick_reply"`
	DeepReason StrategyPolicy `mapstructure:"deep_reason" yaml:"deep_reason"`
	Defer      StrategyPolicy `mapstructure:"defer" yaml:"defer"`

	// Budget bounds the wall-clock time of a whole escalation run.
	Budget time.Duration `mapstructure:"budget" yaml:"budget"`

	// AttemptTimeout bounds a single capability invocation.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`

	// SkipAttemptRecords suppresses the per-invocation attempt outcomes; the
	// run outcome then carries the capability that answered.
	SkipAttemptRecords bool `mapstructure:"skip_attempt_records" yaml:"skip_attempt_records"`
}

// Policy returns the policy for a strategy. Ignore never escalates.
func (c EscalationConfig) Policy(s Strategy) StrategyPolicy {
	switch s {
	case StrategyQuickReply:
		return c.QuickReply
	case StrategyDeepReason:
		return c.DeepReason
	case StrategyDefer:
		return c.Defer
	default:
		return StrategyPolicy{}
	}
}

// LearningConfig configures the learning engine.
type LearningConfig struct {
	// Retention is how long outcomes are kept. Defaults to 30 days.
	Retention time.Duration `mapstructure:"retention" yaml:"retention"`

	// MinSamples is the number of user outcomes required before thresholds adapt.
	MinSamples int `mapstructure:"min_samples" yaml:"min_samples"`

	// PruneInterval throttles automatic pruning on write.
	PruneInterval time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`

	// ImprovementFloor is the recent success rate below which a capability is
	// flagged as an improvement opportunity.
	ImprovementFloor float64 `mapstructure:"improvement_floor" yaml:"improvement_floor"`

	// RecentWindow is the window used for improvement opportunities.
	RecentWindow time.Duration `mapstructure:"recent_window" yaml:"recent_window"`

	// AutoPrune runs a background prune every PruneInterval.
	AutoPrune bool `mapstructure:"auto_prune" yaml:"auto_prune"`
}

// DefaultDecisionConfig returns the stock signal weights and limits.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		AmbientThreshold:      25,
		MinMessageLength:      10,
		Cooldown:              2 * time.Minute,
		UserBurstThreshold:    5,
		ChannelBurstThreshold: 8,
		MaxMentions:           5,
		ModelTokenBudget:      8192,
		AttachmentTokens:      512,
	}
}

// DefaultEscalationConfig returns the stock strategy policies and budgets.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		QuickReply:     StrategyPolicy{Threshold: 0.6, CriticalFloor: 0.2, MaxAttempts: 2},
		DeepReason:     StrategyPolicy{Threshold: 0.7, CriticalFloor: 0.3, MaxAttempts: 4},
		Defer:          StrategyPolicy{Threshold: 0.65, CriticalFloor: 0.25, MaxAttempts: 3},
		Budget:         30 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// DefaultLearningConfig returns the stock learning settings.
func DefaultLearningConfig() LearningConfig {
	return LearningConfig{
		Retention:        30 * 24 * time.Hour,
		MinSamples:       5,
		PruneInterval:    time.Hour,
		ImprovementFloor: 0.6,
		RecentWindow:     7 * 24 * time.Hour,
	}
}

// DefaultConfig returns a Config with sensible defaults.
// Profile defaults to "default", and DataPath is derived from Profile.
func DefaultConfig() Config {
	return Config{
		Profile:    "default",
		DataPath:   store.ProfileDBPath("default"),
		Decision:   DefaultDecisionConfig(),
		Escalation: DefaultEscalationConfig(),
		Learning:   DefaultLearningConfig(),
		LogLevel:   "info",
		LogFormat:  "console",
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	VERDICT_DB_PATH    → DataPath
//	VERDICT_PROFILE    → Profile
//	VERDICT_LOG_LEVEL  → LogLevel
//	VERDICT_LOG_PATH   → LogPath
//	VERDICT_LOG_FORMAT → LogFormat
func ConfigFromEnv() Config {
	return Config{
		DataPath:  os.Getenv("VERDICT_DB_PATH"),
		Profile:   os.Getenv("VERDICT_PROFILE"),
		LogLevel:  os.Getenv("VERDICT_LOG_LEVEL"),
		LogPath:   os.Getenv("VERDICT_LOG_PATH"),
		LogFormat: os.Getenv("VERDICT_LOG_FORMAT"),
	}
}

// LoadConfig reads a YAML config file (optional) layered over DefaultConfig,
// with VERDICT_* environment variables taking precedence. The result has
// defaults applied but is not validated.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VERDICT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setConfigDefaults(v, DefaultConfig())

	for key, env := range map[string]string{
		"data_path":  "VERDICT_DB_PATH",
		"profile":    "VERDICT_PROFILE",
		"log_level":  "VERDICT_LOG_LEVEL",
		"log_path":   "VERDICT_LOG_PATH",
		"log_format": "VERDICT_LOG_FORMAT",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("config: bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	cfg.DataPath = ""
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg.WithDefaults(), nil
}

// setConfigDefaults registers every nested key so AutomaticEnv can override
// it during Unmarshal. data_path stays unset so it is derived from the profile.
func setConfigDefaults(v *viper.Viper, c Config) {
	policies := map[string]StrategyPolicy{
		"quick_reply": c.Escalation.QuickReply,
		"deep_reason": c.Escalation.DeepReason,
		"defer":       c.Escalation.Defer,
	}
	for name, p := range policies {
		v.SetDefault("escalation."+name+".threshold", p.Threshold)
		v.SetDefault("escalation."+name+".critical_floor", p.CriticalFloor)
		v.SetDefault("escalation."+name+".max_attempts", p.MaxAttempts)
	}
	v.SetDefault("escalation.budget", c.Escalation.Budget)
	v.SetDefault("escalation.attempt_timeout", c.Escalation.AttemptTimeout)
	v.SetDefault("escalation.skip_attempt_records", c.Escalation.SkipAttemptRecords)

	v.SetDefault("decision.ambient_threshold", c.Decision.AmbientThreshold)
	v.SetDefault("decision.min_message_length", c.Decision.MinMessageLength)
	v.SetDefault("decision.cooldown", c.Decision.Cooldown)
	v.SetDefault("decision.user_burst_threshold", c.Decision.UserBurstThreshold)
	v.SetDefault("decision.channel_burst_threshold", c.Decision.ChannelBurstThreshold)
	v.SetDefault("decision.max_mentions", c.Decision.MaxMentions)
	v.SetDefault("decision.model_token_budget", c.Decision.ModelTokenBudget)
	v.SetDefault("decision.attachment_tokens", c.Decision.AttachmentTokens)

	v.SetDefault("learning.retention", c.Learning.Retention)
	v.SetDefault("learning.min_samples", c.Learning.MinSamples)
	v.SetDefault("learning.prune_interval", c.Learning.PruneInterval)
	v.SetDefault("learning.improvement_floor", c.Learning.ImprovementFloor)
	v.SetDefault("learning.recent_window", c.Learning.RecentWindow)
	v.SetDefault("learning.auto_prune", c.Learning.AutoPrune)

	v.SetDefault("ephemeral", c.Ephemeral)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_format", c.LogFormat)
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.DataPath == "" && !c.Ephemeral {
		return &ValidationError{Field: "DataPath", Message: "required: path to SQLite database"}
	}

	if c.Profile != "" {
		if err := store.ValidateProfileID(c.Profile); err != nil {
			return &ValidationError{Field: "Profile", Message: err.Error()}
		}
	}

	if err := c.Decision.validate(); err != nil {
		return err
	}
	if err := c.Escalation.validate(); err != nil {
		return err
	}
	if err := c.Learning.validate(); err != nil {
		return err
	}
	if err := validateRegistry(c.Capabilities); err != nil {
		return err
	}

	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return &ValidationError{Field: "LogLevel", Message: err.Error()}
		}
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return &ValidationError{Field: "LogFormat", Message: `must be "console" or "json"`}
	}

	return nil
}

func (d DecisionConfig) validate() error {
	if d.MinMessageLength < 0 {
		return &ValidationError{Field: "Decision.MinMessageLength", Message: "must be non-negative"}
	}
	if d.Cooldown < 0 {
		return &ValidationError{Field: "Decision.Cooldown", Message: "must be non-negative"}
	}
	if d.UserBurstThreshold < 1 {
		return &ValidationError{Field: "Decision.UserBurstThreshold", Message: "must be at least 1"}
	}
	if d.ChannelBurstThreshold < 1 {
		return &ValidationError{Field: "Decision.ChannelBurstThreshold", Message: "must be at least 1"}
	}
	if d.MaxMentions < 1 {
		return &ValidationError{Field: "Decision.MaxMentions", Message: "must be at least 1"}
	}
	if d.ModelTokenBudget < 1 {
		return &ValidationError{Field: "Decision.ModelTokenBudget", Message: "must be positive"}
	}
	if d.AttachmentTokens < 0 {
		return &ValidationError{Field: "Decision.AttachmentTokens", Message: "must be non-negative"}
	}
	return nil
}

func (e EscalationConfig) validate() error {
	policies := []struct {
		name   string
		policy StrategyPolicy
	}{
		{"QuickReply", e.QuickReply},
		{"DeepReason", e.DeepReason},
		{"Defer", e.Defer},
	}
	for _, p := range policies {
		field := "Escalation." + p.name
		if !inUnitRange(p.policy.Threshold) {
			return &ValidationError{Field: field + ".Threshold", Message: "must be between 0 and 1"}
		}
		if !inUnitRange(p.policy.CriticalFloor) || p.policy.CriticalFloor == 0 {
			return &ValidationError{Field: field + ".CriticalFloor", Message: "must be in (0, 1]"}
		}
		if p.policy.MaxAttempts < 1 {
			return &ValidationError{Field: field + ".MaxAttempts", Message: "must be at least 1"}
		}
	}
	if e.Budget <= 0 {
		return &ValidationError{Field: "Escalation.Budget", Message: "must be positive"}
	}
	if e.AttemptTimeout <= 0 {
		return &ValidationError{Field: "Escalation.AttemptTimeout", Message: "must be positive"}
	}
	return nil
}

func (l LearningConfig) validate() error {
	if l.Retention <= 0 {
		return &ValidationError{Field: "Learning.Retention", Message: "must be positive"}
	}
	if l.MinSamples < 1 {
		return &ValidationError{Field: "Learning.MinSamples", Message: "must be at least 1"}
	}
	if l.PruneInterval < 0 {
		return &ValidationError{Field: "Learning.PruneInterval", Message: "must be non-negative"}
	}
	if !inUnitRange(l.ImprovementFloor) {
		return &ValidationError{Field: "Learning.ImprovementFloor", Message: "must be between 0 and 1"}
	}
	if l.AutoPrune && l.PruneInterval <= 0 {
		return &ValidationError{Field: "Learning.PruneInterval", Message: "must be positive when AutoPrune is set"}
	}
	if l.RecentWindow <= 0 {
		return &ValidationError{Field: "Learning.RecentWindow", Message: "must be positive"}
	}
	return nil
}

func validateRegistry(caps []CapabilityConfig) error {
	seen := make(map[string]bool, len(caps))
	for i, c := range caps {
		field := fmt.Sprintf("Capabilities[%d]", i)
		if strings.TrimSpace(c.ID) == "" {
			return &ValidationError{Field: field + ".ID", Message: "required"}
		}
		if seen[c.ID] {
			return &ValidationError{Field: field + ".ID", Message: fmt.Sprintf("duplicate capability %q", c.ID)}
		}
		seen[c.ID] = true
		if !inUnitRange(c.MinConfidence) {
			return &ValidationError{Field: field + ".MinConfidence", Message: "must be between 0 and 1"}
		}
		if c.Tier != "" && !c.Tier.IsValid() {
			return &ValidationError{Field: field + ".Tier", Message: fmt.Sprintf("unknown tier %q", c.Tier)}
		}
	}
	for i, c := range caps {
		for _, fb := range c.Fallbacks {
			if !seen[fb] {
				return &ValidationError{
					Field:   fmt.Sprintf("Capabilities[%d].Fallbacks", i),
					Message: fmt.Sprintf("unknown capability %q", fb),
				}
			}
		}
	}
	return nil
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// WithDefaults fills in default values for unset fields.
// Profile resolution: explicit Profile field > VERDICT_PROFILE env > "default".
// DataPath is derived from the resolved profile if not explicitly set.
func (c Config) WithDefaults() Config {
	if c.Profile == "" {
		resolved, err := store.ResolveProfile("")
		if err == nil {
			c.Profile = resolved
		} else {
			c.Profile = "default"
		}
	}

	if c.DataPath == "" && !c.Ephemeral {
		c.DataPath = store.ProfileDBPath(c.Profile)
	}

	d := DefaultDecisionConfig()
	if c.Decision == (DecisionConfig{}) {
		c.Decision = d
	}

	e := DefaultEscalationConfig()
	if c.Escalation.QuickReply == (StrategyPolicy{}) {
		c.Escalation.QuickReply = e.QuickReply
	}
	if c.Escalation.DeepReason == (StrategyPolicy{}) {
		c.Escalation.DeepReason = e.DeepReason
	}
	if c.Escalation.Defer == (StrategyPolicy{}) {
		c.Escalation.Defer = e.Defer
	}
	if c.Escalation.Budget == 0 {
		c.Escalation.Budget = e.Budget
	}
	if c.Escalation.AttemptTimeout == 0 {
		c.Escalation.AttemptTimeout = e.AttemptTimeout
	}

	l := DefaultLearningConfig()
	if c.Learning.Retention == 0 {
		c.Learning.Retention = l.Retention
	}
	if c.Learning.MinSamples == 0 {
		c.Learning.MinSamples = l.MinSamples
	}
	if c.Learning.PruneInterval == 0 {
		c.Learning.PruneInterval = l.PruneInterval
	}
	if c.Learning.ImprovementFloor == 0 {
		c.Learning.ImprovementFloor = l.ImprovementFloor
	}
	if c.Learning.RecentWindow == 0 {
		c.Learning.RecentWindow = l.RecentWindow
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}

	return c
}

// PolicyUpdate is a partial override of a StrategyPolicy.
type PolicyUpdate struct {
	Threshold     *float64 `json:"threshold,omitempty"`
	CriticalFloor *float64 `json:"critical_floor,omitempty"`
	MaxAttempts   *int     `json:"max_attempts,omitempty"`
}

// ConfigUpdate is a partial override of the tunable configuration surface.
// Nil fields are left unchanged.
type ConfigUpdate struct {
	AmbientThreshold      *int           `json:"ambient_threshold,omitempty"`
	UserBurstThreshold    *int           `json:"user_burst_threshold,omitempty"`
	ChannelBurstThreshold *int           `json:"channel_burst_threshold,omitempty"`
	MaxMentions           *int           `json:"max_mentions,omitempty"`
	Cooldown              *time.Duration `json:"cooldown,omitempty"`
	QuickReply            PolicyUpdate   `json:"quick_reply"`
	DeepReason            PolicyUpdate   `json:"deep_reason"`
	Defer                 PolicyUpdate   `json:"defer"`
	Budget                *time.Duration `json:"budget,omitempty"`
	AttemptTimeout        *time.Duration `json:"attempt_timeout,omitempty"`
}

// ConfigUpdateKeys lists the dotted keys accepted by ParseConfigUpdate.
func ConfigUpdateKeys() []string {
	keys := []string{
		"decision.ambient_threshold",
		"decision.user_burst_threshold",
		"decision.channel_burst_threshold",
		"decision.max_mentions",
		"decision.cooldown",
		"escalation.budget",
		"escalation.attempt_timeout",
	}
	for _, s := range []string{"quick_reply", "deep_reason", "defer"} {
		keys = append(keys, s+".threshold", s+".critical_floor", s+".max_attempts")
	}
	sort.Strings(keys)
	return keys
}

// ParseConfigUpdate converts loosely typed key/value overrides (from JSON,
// flags or MCP arguments) into a ConfigUpdate. Unknown keys are rejected with
// ErrUnknownConfigKey; values that cannot be converted return *ValidationError.
// Durations accept Go duration strings ("45s") or numbers of seconds.
func ParseConfigUpdate(values map[string]any) (ConfigUpdate, error) {
	var u ConfigUpdate
	var errs []error

	for key, raw := range values {
		if err := u.set(key, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return ConfigUpdate{}, err
	}
	return u, nil
}

func (u *ConfigUpdate) set(key string, raw any) error {
	section, field, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
	}

	var policy *PolicyUpdate
	switch section {
	case "quick_reply":
		policy = &u.QuickReply
	case "deep_reason":
		policy = &u.DeepReason
	case "defer":
		policy = &u.Defer
	}

	if policy != nil {
		switch field {
		case "threshold":
			return setFloat(key, raw, &policy.Threshold)
		case "critical_floor":
			return setFloat(key, raw, &policy.CriticalFloor)
		case "max_attempts":
			return setInt(key, raw, &policy.MaxAttempts)
		}
		return fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
	}

	switch key {
	case "decision.ambient_threshold":
		return setInt(key, raw, &u.AmbientThreshold)
	case "decision.user_burst_threshold":
		return setInt(key, raw, &u.UserBurstThreshold)
	case "decision.channel_burst_threshold":
		return setInt(key, raw, &u.ChannelBurstThreshold)
	case "decision.max_mentions":
		return setInt(key, raw, &u.MaxMentions)
	case "decision.cooldown":
		return setDuration(key, raw, &u.Cooldown)
	case "escalation.budget":
		return setDuration(key, raw, &u.Budget)
	case "escalation.attempt_timeout":
		return setDuration(key, raw, &u.AttemptTimeout)
	}
	return fmt.Errorf("%w: %q", ErrUnknownConfigKey, key)
}

func setFloat(key string, raw any, dst **float64) error {
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return &ValidationError{Field: key, Message: err.Error()}
	}
	*dst = &v
	return nil
}

func setInt(key string, raw any, dst **int) error {
	v, err := cast.ToIntE(raw)
	if err != nil {
		return &ValidationError{Field: key, Message: err.Error()}
	}
	*dst = &v
	return nil
}

func setDuration(key string, raw any, dst **time.Duration) error {
	var d time.Duration
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return &ValidationError{Field: key, Message: err.Error()}
		}
		d = parsed
	case time.Duration:
		d = v
	default:
		secs, err := cast.ToFloat64E(raw)
		if err != nil {
			return &ValidationError{Field: key, Message: err.Error()}
		}
		d = time.Duration(secs * float64(time.Second))
	}
	*dst = &d
	return nil
}

// IsEmpty reports whether the update changes nothing.
func (u ConfigUpdate) IsEmpty() bool {
	return u == (ConfigUpdate{})
}

// Apply returns a copy of c with the update applied. The result is validated;
// on error c is returned unchanged alongside the error.
func (c Config) Apply(u ConfigUpdate) (Config, error) {
	next := c
	next.Capabilities = append([]CapabilityConfig(nil), c.Capabilities...)

	if u.AmbientThreshold != nil {
		next.Decision.AmbientThreshold = *u.AmbientThreshold
	}
	if u.UserBurstThreshold != nil {
		next.Decision.UserBurstThreshold = *u.UserBurstThreshold
	}
	if u.ChannelBurstThreshold != nil {
		next.Decision.ChannelBurstThreshold = *u.ChannelBurstThreshold
	}
	if u.MaxMentions != nil {
		next.Decision.MaxMentions = *u.MaxMentions
	}
	if u.Cooldown != nil {
		next.Decision.Cooldown = *u.Cooldown
	}
	next.Escalation.QuickReply = u.QuickReply.apply(next.Escalation.QuickReply)
	next.Escalation.DeepReason = u.DeepReason.apply(next.Escalation.DeepReason)
	next.Escalation.Defer = u.Defer.apply(next.Escalation.Defer)
	if u.Budget != nil {
		next.Escalation.Budget = *u.Budget
	}
	if u.AttemptTimeout != nil {
		next.Escalation.AttemptTimeout = *u.AttemptTimeout
	}

	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

func (p PolicyUpdate) apply(policy StrategyPolicy) StrategyPolicy {
	if p.Threshold != nil {
		policy.Threshold = *p.Threshold
	}
	if p.CriticalFloor != nil {
		policy.CriticalFloor = *p.CriticalFloor
	}
	if p.MaxAttempts != nil {
		policy.MaxAttempts = *p.MaxAttempts
	}
	return policy
}
