package verdict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// thresholdEpsilon absorbs float rounding in threshold comparisons.
const thresholdEpsilon = 1e-9

// Improvement deltas that pick the recommended next action.
const (
	improvementBest    = 0.2
	improvementCaution = 0.1
)

// Default invocation parameters per strategy.
const (
	quickReplyMaxTokens = 512
	deepReasonMaxTokens = 2048
	deepReasonDepth     = 3
	deferMaxTokens      = 4096
)

// EscalationRequest is the input to EscalationController.Escalate.
type EscalationRequest struct {
	UserID      string
	Prompt      string
	Decision    DecisionResult
	Personality *PersonalityContext
	SystemLoad  *float64
	// Complexity overrides the estimate derived from Prompt and Decision.
	Complexity Complexity
	// Params overrides the default invocation parameters for the strategy.
	Params InvokeParams
}

// EscalationController retries low-confidence decisions through ranked
// capabilities, one attempt at a time, within per-attempt and per-run budgets.
type EscalationController struct {
	cfg      EscalationConfig
	selector *Selector
	learner  *LearningEngine
	log      zerolog.Logger
	now      func() time.Time
}

// EscalationOption configures an EscalationController.
type EscalationOption func(*EscalationController)

// WithEscalationLogger sets the controller's logger.
func WithEscalationLogger(l zerolog.Logger) EscalationOption {
	return func(c *EscalationController) { c.log = l }
}

// WithEscalationClock sets the clock used for budgets and timestamps.
func WithEscalationClock(now func() time.Time) EscalationOption {
	return func(c *EscalationController) { c.now = now }
}

// NewEscalationController creates a controller. learner may be nil, in which
// case thresholds are not adapted and no outcomes are recorded.
func NewEscalationController(cfg EscalationConfig, sel *Selector, learner *LearningEngine, opts ...EscalationOption) *EscalationController {
	c := &EscalationController{
		cfg:      cfg,
		selector: sel,
		learner:  learner,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the controller's configuration.
func (c *EscalationController) Config() EscalationConfig {
	return c.cfg
}

// DefaultParams returns the invocation parameters used for a strategy when
// the request does not carry its own.
func DefaultParams(s Strategy, budget time.Duration) InvokeParams {
	switch s {
	case StrategyDeepReason:
		return DeepReasonParams{MaxTokens: deepReasonMaxTokens, Depth: deepReasonDepth}
	case StrategyDefer:
		return DeferParams{MaxTokens: deferMaxTokens, Deadline: budget}
	default:
		return QuickReplyParams{MaxTokens: quickReplyMaxTokens}
	}
}

// run holds the mutable state of one escalation.
type run struct {
	id         string
	req        EscalationRequest
	params     InvokeParams
	start      time.Time
	original   float64
	adj        ThresholdAdjustment
	plan       Plan
	factors    ContextFactors
	attempted  map[string]bool
	best       float64
	bestOutput *CapabilityOutput
	successes  int
	path       []EscalationAttempt
}

// Escalate evaluates req.Decision against the strategy threshold and, when it
// falls short, invokes capabilities until one is good enough, the attempt
// limit or budget is reached, the candidates run out, or ctx is canceled.
// It never returns an error; capability failures become failed attempts.
func (c *EscalationController) Escalate(ctx context.Context, req EscalationRequest) EscalationResult {
	r := &run{
		id:        ulid.Make().String(),
		req:       req,
		start:     c.now(),
		original:  req.Decision.Confidence,
		attempted: make(map[string]bool),
	}
	if math.IsNaN(r.original) {
		r.original = 0
	}
	r.original = clampConfidence(r.original)
	r.best = r.original

	strategy := req.Decision.Strategy
	result := EscalationResult{
		Strategy:           strategy,
		OriginalConfidence: r.original,
		FinalConfidence:    r.original,
	}

	if strategy == StrategyIgnore || !strategy.IsValid() {
		result.Reason = fmt.Sprintf("strategy %q does not escalate", strategy)
		result.StopReason = StopNotTriggered
		result.RecommendNextAction = ActionProceed
		result.TotalExecutionTime = c.now().Sub(r.start)
		return result
	}

	r.factors = ContextFactors{
		Complexity:    req.Complexity,
		TokenEstimate: req.Decision.TokenEstimate,
	}
	if r.factors.Complexity == "" {
		r.factors.Complexity = EstimateComplexity(req.Prompt, req.Decision)
	}
	if req.SystemLoad != nil {
		r.factors.SystemLoad = *req.SystemLoad
	}
	if req.Personality != nil {
		r.factors.RelationshipStrength = req.Personality.RelationshipStrength
		r.factors.Mood = req.Personality.Mood
	}

	policy := c.cfg.Policy(strategy)
	base := policy.Threshold
	if c.learner != nil && req.UserID != "" {
		t := c.learner.AdaptiveThresholds(ctx, req.UserID, &r.factors)
		base = clampConfidence(base + t.Offset)
		if t.Adapted {
			result.Adjustments = append(result.Adjustments, t.AdaptationReason)
		}
	}
	r.adj = c.selector.AdjustThresholds(base, policy.MaxAttempts, req.Personality, req.SystemLoad)
	result.Adjustments = append(result.Adjustments, r.adj.Reasons...)
	result.Threshold = r.adj.Trigger

	// Evaluate
	belowFloor := below(r.original, policy.CriticalFloor)
	if !below(r.original, r.adj.Trigger) && !belowFloor {
		result.Reason = fmt.Sprintf("confidence %.2f at or above threshold %.2f", r.original, r.adj.Trigger)
		result.StopReason = StopNotTriggered
		result.RecommendNextAction = ActionProceed
		result.TotalExecutionTime = c.now().Sub(r.start)
		result.OutcomeID = c.recordRun(ctx, r, result, true)
		return result
	}

	result.Triggered = true
	if belowFloor {
		result.Reason = fmt.Sprintf("confidence %.2f below critical floor %.2f", r.original, policy.CriticalFloor)
	} else {
		result.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", r.original, r.adj.Trigger)
	}

	r.params = req.Params
	if r.params == nil || r.params.Strategy() != strategy {
		if r.params != nil {
			c.log.Warn().
				Str("strategy", string(strategy)).
				Str("params_strategy", string(r.params.Strategy())).
				Msg("invoke params do not match strategy, using defaults")
		}
		r.params = DefaultParams(strategy, c.cfg.Budget)
	}

	r.plan = c.selector.Plan(SelectionRequest{
		Decision:    req.Decision,
		Prompt:      req.Prompt,
		Personality: req.Personality,
		SystemLoad:  req.SystemLoad,
		Complexity:  r.factors.Complexity,
		PreferCheap: r.adj.PreferCheap,
	})

	c.log.Debug().
		Str("run_id", r.id).
		Str("strategy", string(strategy)).
		Float64("confidence", r.original).
		Float64("trigger", r.adj.Trigger).
		Float64("accept", r.adj.Accept).
		Int("max_attempts", r.adj.MaxAttempts).
		Strs("plan", r.plan.Candidates).
		Msg("escalation triggered")

	result.StopReason = c.loop(ctx, r)

	// Finalize
	result.FinalConfidence = r.best
	best := r.best
	result.BestResultConfidence = &best
	result.BestResult = r.bestOutput
	result.TotalAttempts = len(r.path)
	result.SuccessfulAttempts = r.successes
	result.EscalationPath = r.path
	result.TotalExecutionTime = c.now().Sub(r.start)
	result.RecommendNextAction = nextAction(r.best-r.original, r.successes)

	accepted := !below(r.best, r.adj.Accept)
	result.OutcomeID = c.recordRun(ctx, r, result, accepted)

	c.log.Info().
		Str("run_id", r.id).
		Str("strategy", string(strategy)).
		Str("stop", string(result.StopReason)).
		Str("action", string(result.RecommendNextAction)).
		Int("attempts", result.TotalAttempts).
		Int("successes", result.SuccessfulAttempts).
		Float64("original", r.original).
		Float64("final", r.best).
		Dur("elapsed", result.TotalExecutionTime).
		Msg("escalation finished")

	return result
}

// loop runs the Escalate → Execute → CheckStop cycle and returns why it stopped.
func (c *EscalationController) loop(ctx context.Context, r *run) StopReason {
	for {
		if ctx.Err() != nil {
			return StopCanceled
		}
		if len(r.path) >= r.adj.MaxAttempts {
			return StopMaxAttempts
		}
		if c.now().Sub(r.start) >= c.cfg.Budget {
			return StopBudgetExhausted
		}

		id, err := r.plan.Next(r.attempted)
		if err != nil {
			return StopCandidatesExhausted
		}
		r.attempted[id] = true

		attempt, output := c.execute(ctx, r, id, len(r.path)+1)
		r.path = append(r.path, attempt)
		if attempt.Success {
			r.successes++
			if attempt.Confidence > r.best {
				r.best = attempt.Confidence
				r.bestOutput = output
			}
		}
		c.recordAttempt(ctx, r, attempt)

		if !below(r.best, r.adj.Accept) {
			return StopAccepted
		}
	}
}

// execute invokes one capability with the per-attempt timeout. Errors,
// panics, late results, reported failures and invalid confidences all
// produce a failed attempt.
func (c *EscalationController) execute(ctx context.Context, r *run, id string, number int) (EscalationAttempt, *CapabilityOutput) {
	attempt := EscalationAttempt{Number: number, Capability: id, StartedAt: c.now()}

	capability, ok := c.selector.Registry().Capability(id)
	if !ok {
		attempt.Error = fmt.Errorf("%w: %s", ErrUnknownCapability, id).Error()
		return attempt, nil
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	res, err := invokeSafely(actx, capability, r.req.Prompt, r.params)
	attempt.ExecutionTime = c.now().Sub(attempt.StartedAt)

	switch {
	case err == nil && actx.Err() != nil:
		err = actx.Err()
	case err == nil && !res.Success:
		err = errors.New("capability reported failure")
	case err == nil && !inUnitRange(res.Confidence):
		err = fmt.Errorf("invalid confidence %v", res.Confidence)
	}
	if err != nil {
		capErr := &CapabilityError{Capability: id, Err: err}
		attempt.Error = capErr.Error()
		c.log.Warn().
			Str("run_id", r.id).
			Str("capability", id).
			Int("attempt", number).
			Dur("elapsed", attempt.ExecutionTime).
			Err(capErr).
			Msg("capability attempt failed")
		return attempt, nil
	}

	attempt.Success = true
	attempt.Confidence = res.Confidence
	c.log.Debug().
		Str("run_id", r.id).
		Str("capability", id).
		Int("attempt", number).
		Float64("confidence", res.Confidence).
		Dur("elapsed", attempt.ExecutionTime).
		Str("output", truncateForLog(res.Output, 200)).
		Msg("capability attempt succeeded")

	return attempt, &CapabilityOutput{Capability: id, Text: res.Output, Confidence: res.Confidence}
}

func invokeSafely(ctx context.Context, capability Capability, prompt string, params InvokeParams) (res CapabilityResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return capability.Invoke(ctx, prompt, params)
}

func (c *EscalationController) recordAttempt(ctx context.Context, r *run, a EscalationAttempt) {
	if c.learner == nil || c.cfg.SkipAttemptRecords || r.req.UserID == "" {
		return
	}
	c.learner.RecordDecisionOutcome(ctx, DecisionOutcome{
		ID:            ulid.Make().String(),
		Kind:          OutcomeAttempt,
		RunID:         r.id,
		Timestamp:     a.StartedAt.UTC(),
		UserID:        r.req.UserID,
		Strategy:      r.req.Decision.Strategy,
		Capability:    a.Capability,
		Confidence:    a.Confidence,
		ExecutionTime: a.ExecutionTime,
		Factors:       r.factors,
		Result: OutcomeResult{
			Success:         a.Success,
			Escalated:       true,
			FinalConfidence: a.Confidence,
		},
	})
}

// recordRun emits the run outcome and returns its id, or "" if none was recorded.
func (c *EscalationController) recordRun(ctx context.Context, r *run, result EscalationResult, success bool) string {
	if c.learner == nil || r.req.UserID == "" {
		return ""
	}

	// Without per-attempt outcomes the run carries the capability sample.
	var capability string
	if c.cfg.SkipAttemptRecords {
		switch {
		case r.bestOutput != nil:
			capability = r.bestOutput.Capability
		case len(r.path) > 0:
			capability = r.path[len(r.path)-1].Capability
		}
	}

	id, ok := c.learner.RecordDecisionOutcome(ctx, DecisionOutcome{
		ID:            r.id,
		Kind:          OutcomeRun,
		Timestamp:     r.start.UTC(),
		UserID:        r.req.UserID,
		Strategy:      r.req.Decision.Strategy,
		Capability:    capability,
		Confidence:    r.original,
		ExecutionTime: result.TotalExecutionTime,
		Factors:       r.factors,
		Result: OutcomeResult{
			Success:         success,
			Escalated:       result.Triggered,
			FinalConfidence: result.FinalConfidence,
		},
	})
	if !ok {
		return ""
	}
	return id
}

func nextAction(improvement float64, successes int) NextAction {
	switch {
	case !below(improvement, improvementBest):
		return ActionProceedWithBest
	case !below(improvement, improvementCaution):
		return ActionProceedWithCaution
	case successes == 0:
		return ActionFallbackToBasic
	default:
		return ActionManualReview
	}
}

// below reports whether v is below limit beyond float rounding.
func below(v, limit float64) bool {
	return v < limit-thresholdEpsilon
}
