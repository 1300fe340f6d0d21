package verdict

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Threshold adjustment deltas applied by the selector.
const (
	relationshipStrongAbove = 0.8
	relationshipDelta       = 0.10
	supportiveAbove         = 0.7
	supportiveDelta         = 0.05
	frustratedTriggerDelta  = 0.05
	frustratedAcceptDelta   = -0.10
	frustratedMaxAttempts   = 1
	highLoadAbove           = 0.8
	highLoadDelta           = -0.10
)

// neutralPerformanceScore ranks capabilities that have no recorded history.
const neutralPerformanceScore = 0.5

// PersonaTraits are the persona characteristics supplied by the
// personalization collaborator, each in [0,1].
type PersonaTraits struct {
	Supportiveness float64 `json:"supportiveness,omitempty"`
	Formality      float64 `json:"formality,omitempty"`
}

// PersonalityContext is the personalization collaborator's view of a user.
type PersonalityContext struct {
	RelationshipStrength float64       `json:"relationship_strength"`
	Mood                 Mood          `json:"mood,omitempty"`
	Traits               PersonaTraits `json:"traits"`
}

// PerformanceSource reports the learned performance score of a capability.
type PerformanceSource interface {
	PerformanceScore(capability string, strategy Strategy) (float64, bool)
}

// ThresholdAdjustment is the outcome of applying personality and load rules
// to a strategy's base threshold.
type ThresholdAdjustment struct {
	// Trigger is the bar the original confidence must meet to skip escalation.
	Trigger float64 `json:"trigger"`
	// Accept is the bar an escalation result must meet to stop early.
	Accept      float64  `json:"accept"`
	MaxAttempts int      `json:"max_attempts"`
	PreferCheap bool     `json:"prefer_cheap,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
}

// SelectionRequest is the input to Selector.Plan.
type SelectionRequest struct {
	Decision    DecisionResult
	Prompt      string
	Personality *PersonalityContext
	SystemLoad  *float64
	// Complexity overrides the estimate derived from Prompt and Decision.
	Complexity Complexity
	// PreferCheap orders candidates by ascending tier before score.
	PreferCheap bool
}

// Plan is an ordered list of capability ids to try.
type Plan struct {
	Candidates []string   `json:"candidates"`
	Complexity Complexity `json:"complexity"`
}

// Next returns the first candidate not in attempted.
// Returns ErrNoCandidates when every candidate has been tried.
func (p Plan) Next(attempted map[string]bool) (string, error) {
	for _, id := range p.Candidates {
		if !attempted[id] {
			return id, nil
		}
	}
	return "", ErrNoCandidates
}

// Selector ranks capabilities for an escalation.
type Selector struct {
	registry *Registry
	perf     PerformanceSource
	log      zerolog.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithSelectorLogger sets the selector's logger.
func WithSelectorLogger(l zerolog.Logger) SelectorOption {
	return func(s *Selector) { s.log = l }
}

// NewSelector creates a selector over registry. perf may be nil, in which
// case every capability scores neutrally and declared order decides.
func NewSelector(registry *Registry, perf PerformanceSource, opts ...SelectorOption) *Selector {
	s := &Selector{registry: registry, perf: perf, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the selector's registry.
func (s *Selector) Registry() *Registry {
	return s.registry
}

// AdjustThresholds applies personality and load rules to base.
func (s *Selector) AdjustThresholds(base float64, maxAttempts int, pc *PersonalityContext, load *float64) ThresholdAdjustment {
	adj := ThresholdAdjustment{Trigger: base, Accept: base, MaxAttempts: maxAttempts}

	if pc != nil {
		if pc.RelationshipStrength > relationshipStrongAbove {
			adj.Trigger += relationshipDelta
			adj.Accept += relationshipDelta
			adj.Reasons = append(adj.Reasons, fmt.Sprintf("strong relationship (%.2f): +%.2f", pc.RelationshipStrength, relationshipDelta))
		}
		if pc.Traits.Supportiveness > supportiveAbove {
			adj.Trigger += supportiveDelta
			adj.Accept += supportiveDelta
			adj.Reasons = append(adj.Reasons, fmt.Sprintf("supportive persona (%.2f): +%.2f", pc.Traits.Supportiveness, supportiveDelta))
		}
		if pc.Mood == MoodFrustrated {
			adj.Trigger += frustratedTriggerDelta
			adj.Accept += frustratedAcceptDelta
			if adj.MaxAttempts > frustratedMaxAttempts {
				adj.MaxAttempts = frustratedMaxAttempts
			}
			adj.Reasons = append(adj.Reasons, "frustrated user: accept sooner, single attempt")
		}
	}

	if load != nil && *load > highLoadAbove {
		adj.Trigger += highLoadDelta
		adj.Accept += highLoadDelta
		adj.PreferCheap = true
		adj.Reasons = append(adj.Reasons, fmt.Sprintf("high system load (%.2f): %.2f, prefer cheaper capabilities", *load, highLoadDelta))
	}

	adj.Trigger = clampConfidence(adj.Trigger)
	adj.Accept = clampConfidence(adj.Accept)
	return adj
}

// Plan filters and ranks the registry for req.
//
// A capability is a candidate when its MinConfidence is at or below the
// decision's confidence, its tier can handle the message complexity, and an
// implementation is bound. Candidates are ordered by performance score (ties
// by declared order); the plan is the top candidate, then its declared
// fallback chain, then the remaining candidates.
func (s *Selector) Plan(req SelectionRequest) Plan {
	complexity := req.Complexity
	if complexity == "" {
		complexity = EstimateComplexity(req.Prompt, req.Decision)
	}

	type candidate struct {
		cfg   CapabilityConfig
		order int
		score float64
	}

	var cands []candidate
	for i, e := range s.registry.Entries() {
		if e.MinConfidence > req.Decision.Confidence+thresholdEpsilon {
			continue
		}
		if e.Tier.Rank() < complexity.Rank() {
			continue
		}
		if _, ok := s.registry.Capability(e.ID); !ok {
			continue
		}
		score := neutralPerformanceScore
		if s.perf != nil {
			if v, ok := s.perf.PerformanceScore(e.ID, req.Decision.Strategy); ok {
				score = v
			}
		}
		cands = append(cands, candidate{cfg: e, order: i, score: score})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if req.PreferCheap && cands[i].cfg.Tier.Rank() != cands[j].cfg.Tier.Rank() {
			return cands[i].cfg.Tier.Rank() < cands[j].cfg.Tier.Rank()
		}
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].order < cands[j].order
	})

	plan := Plan{Complexity: complexity}
	if len(cands) == 0 {
		s.log.Debug().
			Str("strategy", string(req.Decision.Strategy)).
			Str("complexity", string(complexity)).
			Float64("confidence", req.Decision.Confidence).
			Msg("no capability candidates")
		return plan
	}

	eligible := make(map[string]bool, len(cands))
	for _, c := range cands {
		eligible[c.cfg.ID] = true
	}
	seen := make(map[string]bool, len(cands))
	push := func(id string) {
		if eligible[id] && !seen[id] {
			seen[id] = true
			plan.Candidates = append(plan.Candidates, id)
		}
	}

	top := cands[0].cfg
	push(top.ID)
	for _, fb := range top.Fallbacks {
		push(fb)
	}
	for _, c := range cands[1:] {
		push(c.cfg.ID)
	}
	return plan
}

// EstimateComplexity classifies a message for tier matching. Deferred and
// very long code-bearing prompts are expert; deep-reason, code, multi-question
// or long prompts are complex; everything else is simple.
func EstimateComplexity(prompt string, d DecisionResult) Complexity {
	length := utf8.RuneCountInString(prompt)
	hasCode := d.HasReason(TagCode) || looksLikeCode(prompt)

	switch {
	case d.Strategy == StrategyDefer:
		return TierExpert
	case hasCode && length > 1500:
		return TierExpert
	case d.Strategy == StrategyDeepReason,
		hasCode,
		strings.Count(prompt, "?") >= 2,
		len(strings.Fields(prompt)) > 60:
		return TierComplex
	default:
		return TierSimple
	}
}
