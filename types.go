package verdict

import "time"

// Strategy is the intended response approach for a message.
type Strategy string

const (
	StrategyQuickReply Strategy = "quick-reply"
	StrategyDeepReason Strategy = "deep-reason"
	StrategyDefer      Strategy = "defer"
	StrategyIgnore     Strategy = "ignore"
)

// ValidStrategies returns all strategies in escalation-priority order.
func ValidStrategies() []Strategy {
	return []Strategy{
		StrategyQuickReply,
		StrategyDeepReason,
		StrategyDefer,
		StrategyIgnore,
	}
}

// IsValid checks if the strategy is a known strategy.
func (s Strategy) IsValid() bool {
	for _, valid := range ValidStrategies() {
		if s == valid {
			return true
		}
	}
	return false
}

// ChannelKind classifies where a message was posted.
type ChannelKind string

const (
	ChannelDirect         ChannelKind = "direct"
	ChannelAmbient        ChannelKind = "ambient"
	ChannelPersonalThread ChannelKind = "personal-thread"
)

// Message is the shallow view of an inbound message the decision engine needs.
type Message struct {
	Text             string `json:"text"`
	AttachmentCount  int    `json:"attachment_count,omitempty"`
	MentionCount     int    `json:"mention_count,omitempty"`
	MentionsEveryone bool   `json:"mentions_everyone,omitempty"`
}

// DecisionContext carries the situational signals for a single message.
// Missing fields are treated as their zero value (no burst, no cooldown).
type DecisionContext struct {
	OptedIn               bool        `json:"opted_in"`
	Channel               ChannelKind `json:"channel"`
	MentionedBot          bool        `json:"mentioned_bot,omitempty"`
	ReplyToBot            bool        `json:"reply_to_bot,omitempty"`
	LastReplyAt           time.Time   `json:"last_reply_at,omitempty"`
	RecentUserMessages    int         `json:"recent_user_messages,omitempty"`
	RecentChannelMessages int         `json:"recent_channel_messages,omitempty"`
	// Now is the evaluation instant. Zero means "use the engine clock".
	Now time.Time `json:"now,omitempty"`
}

// DecisionResult is the verdict of the decision engine for one message.
type DecisionResult struct {
	ShouldRespond bool     `json:"should_respond"`
	Strategy      Strategy `json:"strategy"`
	Confidence    float64  `json:"confidence"`
	TokenEstimate int      `json:"token_estimate"`
	Reason        []string `json:"reason"`
}

// HasReason reports whether the given signal tag contributed to the decision.
func (d DecisionResult) HasReason(tag string) bool {
	for _, r := range d.Reason {
		if r == tag {
			return true
		}
	}
	return false
}

// Tier is the complexity class a capability can handle.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierComplex Tier = "complex"
	TierExpert  Tier = "expert"
)

// Rank orders tiers from simple (0) to expert (2). Unknown tiers rank as simple.
func (t Tier) Rank() int {
	switch t {
	case TierComplex:
		return 1
	case TierExpert:
		return 2
	default:
		return 0
	}
}

// IsValid checks if the tier is known.
func (t Tier) IsValid() bool {
	return t == TierSimple || t == TierComplex || t == TierExpert
}

// Complexity is the estimated difficulty of a message, on the same ladder as Tier.
type Complexity = Tier

// Mood is the personalization collaborator's read on the user's current state.
type Mood string

const (
	MoodNeutral    Mood = "neutral"
	MoodHappy      Mood = "happy"
	MoodFrustrated Mood = "frustrated"
	MoodCurious    Mood = "curious"
)

// CapabilityConfig is a registry entry describing a reasoning capability.
type CapabilityConfig struct {
	ID            string   `json:"id" yaml:"id" mapstructure:"id"`
	MinConfidence float64  `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`
	Tier          Tier     `json:"tier" yaml:"tier" mapstructure:"tier"`
	Fallbacks     []string `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty" mapstructure:"fallbacks"`
	// Endpoint binds the entry to an HTTP capability. Empty means the
	// implementation is registered in code.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
}

// ServicePerformanceMetrics summarizes recorded outcomes for one capability.
type ServicePerformanceMetrics struct {
	Capability       string        `json:"capability"`
	Strategy         Strategy      `json:"strategy,omitempty"`
	Samples          int           `json:"samples"`
	SuccessRate      float64       `json:"success_rate"`
	AvgConfidence    float64       `json:"avg_confidence"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	AvgSatisfaction  float64       `json:"avg_satisfaction"`
	FeedbackCount    int           `json:"feedback_count"`
	PerformanceScore float64       `json:"performance_score"`
}

// InvokeParams carries the strategy-specific parameters passed to a capability.
// The concrete type identifies the strategy; only the variants below implement it.
type InvokeParams interface {
	Strategy() Strategy
	isInvokeParams()
}

// QuickReplyParams are passed for quick-reply escalations.
type QuickReplyParams struct {
	MaxTokens int `json:"max_tokens"`
}

// DeepReasonParams are passed for deep-reason escalations.
type DeepReasonParams struct {
	MaxTokens int `json:"max_tokens"`
	Depth     int `json:"depth"`
}

// DeferParams are passed when the reply is deferred and may be produced later.
type DeferParams struct {
	MaxTokens int           `json:"max_tokens"`
	Deadline  time.Duration `json:"deadline"`
}

func (QuickReplyParams) Strategy() Strategy { return StrategyQuickReply }
func (DeepReasonParams) Strategy() Strategy { return StrategyDeepReason }
func (DeferParams) Strategy() Strategy      { return StrategyDefer }

func (QuickReplyParams) isInvokeParams() {}
func (DeepReasonParams) isInvokeParams() {}
func (DeferParams) isInvokeParams()      {}

// CapabilityResult is what a capability returns for one invocation.
type CapabilityResult struct {
	Success       bool          `json:"success"`
	Output        string        `json:"output"`
	Confidence    float64       `json:"confidence"`
	ExecutionTime time.Duration `json:"execution_time"`
}

// CapabilityOutput is a successful capability result kept as a candidate answer.
type CapabilityOutput struct {
	Capability string  `json:"capability"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// EscalationAttempt records one capability invocation inside an escalation run.
type EscalationAttempt struct {
	Number        int           `json:"number"`
	Capability    string        `json:"capability"`
	StartedAt     time.Time     `json:"started_at"`
	Success       bool          `json:"success"`
	Confidence    float64       `json:"confidence"`
	ExecutionTime time.Duration `json:"execution_time"`
	Error         string        `json:"error,omitempty"`
}

// NextAction tells the dispatch layer how to use an escalation result.
type NextAction string

const (
	ActionProceed            NextAction = "proceed"
	ActionProceedWithBest    NextAction = "proceed_with_best"
	ActionProceedWithCaution NextAction = "proceed_with_caution"
	ActionFallbackToBasic    NextAction = "fallback_to_basic"
	ActionManualReview       NextAction = "manual_review_recommended"
)

// StopReason records which terminal state an escalation run reached.
type StopReason string

const (
	StopNotTriggered        StopReason = "not_triggered"
	StopAccepted            StopReason = "accepted"
	StopMaxAttempts         StopReason = "max_attempts"
	StopBudgetExhausted     StopReason = "budget_exhausted"
	StopCandidatesExhausted StopReason = "candidates_exhausted"
	StopCanceled            StopReason = "canceled"
)

// EscalationResult is the terminal result of one escalation run.
type EscalationResult struct {
	Triggered            bool                `json:"triggered"`
	Reason               string              `json:"reason"`
	Strategy             Strategy            `json:"strategy"`
	OriginalConfidence   float64             `json:"original_confidence"`
	FinalConfidence      float64             `json:"final_confidence"`
	Threshold            float64             `json:"threshold"`
	BestResult           *CapabilityOutput   `json:"best_result,omitempty"`
	BestResultConfidence *float64            `json:"best_result_confidence,omitempty"`
	TotalAttempts        int                 `json:"total_attempts"`
	SuccessfulAttempts   int                 `json:"successful_attempts"`
	EscalationPath       []EscalationAttempt `json:"escalation_path"`
	TotalExecutionTime   time.Duration       `json:"total_execution_time"`
	StopReason           StopReason          `json:"stop_reason"`
	RecommendNextAction  NextAction          `json:"recommend_next_action"`
	Adjustments          []string            `json:"adjustments,omitempty"`
	OutcomeID            string              `json:"outcome_id,omitempty"`
	SessionRef           string              `json:"session_ref,omitempty"`
}

// OutcomeKind distinguishes whole-run outcomes from per-attempt outcomes.
type OutcomeKind string

const (
	OutcomeRun     OutcomeKind = "run"
	OutcomeAttempt OutcomeKind = "attempt"
)

// ContextFactors are the situational factors recorded with an outcome.
type ContextFactors struct {
	Complexity           Complexity `json:"complexity,omitempty"`
	TokenEstimate        int        `json:"token_estimate,omitempty"`
	SystemLoad           float64    `json:"system_load,omitempty"`
	RelationshipStrength float64    `json:"relationship_strength,omitempty"`
	Mood                 Mood       `json:"mood,omitempty"`
}

// OutcomeResult is the observed result of a decision.
type OutcomeResult struct {
	Success         bool    `json:"success"`
	Escalated       bool    `json:"escalated"`
	FinalConfidence float64 `json:"final_confidence"`
}

// DecisionOutcome is an append-only learning record.
type DecisionOutcome struct {
	ID   string      `json:"id"`
	Kind OutcomeKind `json:"kind"`
	// RunID links an attempt outcome to the run outcome it belongs to.
	RunID           string         `json:"run_id,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	UserID          string         `json:"user_id"`
	Strategy        Strategy       `json:"strategy"`
	Capability      string         `json:"capability,omitempty"`
	Confidence      float64        `json:"confidence"`
	ExecutionTime   time.Duration  `json:"execution_time"`
	Factors         ContextFactors `json:"factors"`
	Result          OutcomeResult  `json:"result"`
	Satisfaction    *float64       `json:"satisfaction,omitempty"`
	FeedbackDetails string         `json:"feedback_details,omitempty"`
}

// AdaptiveThresholds are the per-user thresholds derived from outcome history.
type AdaptiveThresholds struct {
	UserID           string  `json:"user_id"`
	Confidence       float64 `json:"confidence"`
	Escalation       float64 `json:"escalation"`
	Deferral         float64 `json:"deferral"`
	Offset           float64 `json:"offset"`
	SampleSize       int     `json:"sample_size"`
	SuccessRate      float64 `json:"success_rate,omitempty"`
	Adapted          bool    `json:"adapted"`
	AdaptationReason string  `json:"adaptation_reason"`
}

// Base learning thresholds returned until enough history exists.
const (
	BaseConfidenceThreshold = 0.6
	BaseEscalationThreshold = 0.4
	BaseDeferralThreshold   = 0.8
)

// Feedback rating scale.
const (
	RatingMin = 1
	RatingMax = 5
)

// Confidence bounds.
const (
	ConfidenceMin = 0.0
	ConfidenceMax = 1.0
)

// StoreStats contains statistics about the outcome store.
type StoreStats struct {
	OutcomeCount  int       `json:"outcome_count"`
	RunCount      int       `json:"run_count"`
	FeedbackCount int       `json:"feedback_count"`
	LastPrune     time.Time `json:"last_prune"`
	SchemaVersion string    `json:"schema_version"`
}

// HealthStatus represents the health of the client.
type HealthStatus struct {
	Healthy      bool   `json:"healthy"`
	StoreOK      bool   `json:"store_ok"`
	Capabilities int    `json:"capabilities"`
	Error        string `json:"error,omitempty"`
}

func clampConfidence(v float64) float64 {
	if v < ConfidenceMin {
		return ConfidenceMin
	}
	if v > ConfidenceMax {
		return ConfidenceMax
	}
	return v
}
