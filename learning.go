package verdict

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Performance and ranking weights.
const (
	scoreSuccessWeight      = 0.6
	scoreSatisfactionWeight = 0.25
	scoreSpeedWeight        = 0.15
	rankSuccessWeight       = 0.7
	rankSatisfactionWeight  = 0.3
	neutralSatisfaction     = 0.5
	speedReference          = 10 * time.Second
)

// Adaptive threshold shifts.
const (
	highSuccessAbove = 0.8
	maxShiftDown     = 0.15
	lowSuccessBelow  = 0.4
	maxShiftUp       = 0.10
)

// Relationship buckets for user segmentation.
const (
	SegmentLow    = "low"
	SegmentMedium = "medium"
	SegmentHigh   = "high"

	segmentMediumFrom = 0.3
	segmentHighFrom   = 0.7
)

// PriorityHigh marks an improvement opportunity that needs attention.
const PriorityHigh = "high"

// maxEffectiveCapabilities bounds LearningInsights.EffectiveCapabilities.
const maxEffectiveCapabilities = 5

// StrategyUsage summarizes run outcomes for one strategy.
type StrategyUsage struct {
	Strategy    Strategy `json:"strategy"`
	Count       int      `json:"count"`
	SuccessRate float64  `json:"success_rate"`
}

// UserSegment summarizes users in one relationship-strength bucket.
type UserSegment struct {
	Bucket          string  `json:"bucket"`
	Users           int     `json:"users"`
	Outcomes        int     `json:"outcomes"`
	SuccessRate     float64 `json:"success_rate"`
	AvgSatisfaction float64 `json:"avg_satisfaction"`
	FeedbackCount   int     `json:"feedback_count"`
}

// ImprovementOpportunity flags a capability whose recent success rate is low.
type ImprovementOpportunity struct {
	Capability        string  `json:"capability"`
	RecentSuccessRate float64 `json:"recent_success_rate"`
	Samples           int     `json:"samples"`
	Priority          string  `json:"priority"`
	Suggestion        string  `json:"suggestion"`
}

// LearningInsights is an aggregate report over the retained outcome log.
type LearningInsights struct {
	GeneratedAt              time.Time                   `json:"generated_at"`
	TotalOutcomes            int                         `json:"total_outcomes"`
	TotalRuns                int                         `json:"total_runs"`
	UniqueUsers              int                         `json:"unique_users"`
	OverallSuccessRate       float64                     `json:"overall_success_rate"`
	EscalationRate           float64                     `json:"escalation_rate"`
	AvgSatisfaction          float64                     `json:"avg_satisfaction"`
	FeedbackCount            int                         `json:"feedback_count"`
	PreferredStrategies      []StrategyUsage             `json:"preferred_strategies"`
	EffectiveCapabilities    []ServicePerformanceMetrics `json:"effective_capabilities"`
	UserSegments             []UserSegment               `json:"user_segments"`
	ImprovementOpportunities []ImprovementOpportunity    `json:"improvement_opportunities"`
}

// aggKey identifies a rolling aggregate. Empty fields aggregate across values.
type aggKey struct {
	capability string
	strategy   Strategy
	complexity Complexity
}

type capAgg struct {
	samples   int
	successes int
	confSum   float64
	execSum   time.Duration
	satSum    float64
	satCount  int
}

func (a *capAgg) addSample(o DecisionOutcome) {
	a.samples++
	if o.Result.Success {
		a.successes++
	}
	a.confSum += o.Result.FinalConfidence
	a.execSum += o.ExecutionTime
}

func (a *capAgg) addSatisfaction(v float64, sign int) {
	a.satSum += float64(sign) * v
	a.satCount += sign
}

func (a *capAgg) successRate() float64 {
	if a.samples == 0 {
		return 0
	}
	return float64(a.successes) / float64(a.samples)
}

func (a *capAgg) satisfaction() float64 {
	if a.satCount <= 0 {
		return neutralSatisfaction
	}
	return a.satSum / float64(a.satCount)
}

func (a *capAgg) metrics(capability string, strategy Strategy) ServicePerformanceMetrics {
	m := ServicePerformanceMetrics{
		Capability:      capability,
		Strategy:        strategy,
		Samples:         a.samples,
		SuccessRate:     a.successRate(),
		AvgSatisfaction: a.satisfaction(),
		FeedbackCount:   a.satCount,
	}
	if a.samples > 0 {
		m.AvgConfidence = a.confSum / float64(a.samples)
		m.AvgExecutionTime = a.execSum / time.Duration(a.samples)
	}
	speed := clampConfidence(1 - float64(m.AvgExecutionTime)/float64(speedReference))
	m.PerformanceScore = scoreSuccessWeight*m.SuccessRate +
		scoreSatisfactionWeight*m.AvgSatisfaction +
		scoreSpeedWeight*speed
	return m
}

func aggKeysFor(o DecisionOutcome) []aggKey {
	keys := []aggKey{
		{capability: o.Capability},
		{capability: o.Capability, strategy: o.Strategy},
	}
	if o.Factors.Complexity != "" {
		keys = append(keys, aggKey{capability: o.Capability, strategy: o.Strategy, complexity: o.Factors.Complexity})
	}
	return keys
}

type cachedThresholds struct {
	thresholds AdaptiveThresholds
	gen        uint64
}

// LearningEngine records decision outcomes and user feedback and derives
// capability rankings and per-user adaptive thresholds from them.
// All methods are safe for concurrent use.
type LearningEngine struct {
	repo     OutcomeRepository
	cfg      LearningConfig
	registry *Registry
	log      zerolog.Logger
	now      func() time.Time

	// writeMu orders log writes against Rebuild so an outcome applied to the
	// live aggregates is never dropped by the swap.
	writeMu sync.Mutex

	mu        sync.RWMutex
	aggs      map[aggKey]*capAgg
	lastPrune time.Time

	// gens holds a generation per user invalidated since the last reset;
	// other users are at epoch. Both maps are reset on every prune.
	cacheMu sync.Mutex
	cache   map[string]cachedThresholds
	gens    map[string]uint64
	epoch   uint64
	seq     uint64
	flight  singleflight.Group
}

// LearningOption configures a LearningEngine.
type LearningOption func(*LearningEngine)

// WithLearningLogger sets the engine's logger.
func WithLearningLogger(l zerolog.Logger) LearningOption {
	return func(e *LearningEngine) { e.log = l }
}

// WithLearningClock sets the engine's clock.
func WithLearningClock(now func() time.Time) LearningOption {
	return func(e *LearningEngine) { e.now = now }
}

// WithRegistry sets the registry whose declared order is the ranking fallback.
func WithRegistry(r *Registry) LearningOption {
	return func(e *LearningEngine) { e.registry = r }
}

// NewLearningEngine creates a learning engine over repo and loads its
// aggregates from the retained outcome log.
func NewLearningEngine(ctx context.Context, repo OutcomeRepository, cfg LearningConfig, opts ...LearningOption) (*LearningEngine, error) {
	e := &LearningEngine{
		repo:  repo,
		cfg:   cfg,
		log:   zerolog.Nop(),
		now:   time.Now,
		aggs:  make(map[aggKey]*capAgg),
		cache: make(map[string]cachedThresholds),
		gens:  make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("learning: read store stats: %w", err)
	}
	e.lastPrune = stats.LastPrune

	if err := e.Rebuild(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Rebuild recomputes all aggregates from the repository and drops cached thresholds.
func (e *LearningEngine) Rebuild(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	aggs := make(map[aggKey]*capAgg)
	err := e.repo.ScanOutcomes(ctx, OutcomeFilter{}, func(o DecisionOutcome) error {
		applyOutcome(aggs, o)
		return nil
	})
	if err != nil {
		return fmt.Errorf("learning: rebuild aggregates: %w", err)
	}

	e.mu.Lock()
	e.aggs = aggs
	e.mu.Unlock()

	e.resetThresholdCache()
	return nil
}

func applyOutcome(aggs map[aggKey]*capAgg, o DecisionOutcome) {
	if o.Capability == "" {
		return
	}
	for _, k := range aggKeysFor(o) {
		a := aggs[k]
		if a == nil {
			a = &capAgg{}
			aggs[k] = a
		}
		a.addSample(o)
		if o.Satisfaction != nil {
			a.addSatisfaction(*o.Satisfaction, 1)
		}
	}
}

// RecordDecisionOutcome appends an outcome to the log. Missing ID, Kind and
// Timestamp are filled in. Malformed or duplicate outcomes are dropped with a
// warning; the returned bool reports whether the outcome was recorded.
func (e *LearningEngine) RecordDecisionOutcome(ctx context.Context, o DecisionOutcome) (string, bool) {
	if o.ID == "" {
		o.ID = ulid.Make().String()
	}
	if o.Kind == "" {
		o.Kind = OutcomeRun
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = e.now().UTC()
	}

	if err := ValidateOutcome(o); err != nil {
		e.log.Warn().Err(err).Str("outcome_id", o.ID).Str("user_id", o.UserID).Msg("dropping malformed outcome")
		return "", false
	}

	if !e.storeOutcome(ctx, o) {
		return "", false
	}
	e.invalidate(o.UserID)
	e.maybePrune(ctx)

	e.log.Debug().
		Str("outcome_id", o.ID).
		Str("kind", string(o.Kind)).
		Str("user_id", o.UserID).
		Str("strategy", string(o.Strategy)).
		Str("capability", o.Capability).
		Bool("success", o.Result.Success).
		Msg("outcome recorded")
	return o.ID, true
}

func (e *LearningEngine) storeOutcome(ctx context.Context, o DecisionOutcome) bool {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.repo.GetOutcome(ctx, o.ID); err == nil {
		e.log.Warn().Str("outcome_id", o.ID).Msg("dropping duplicate outcome")
		return false
	} else if !errors.Is(err, ErrNotFound) {
		e.log.Error().Err(err).Str("outcome_id", o.ID).Msg("check outcome")
		return false
	}

	if err := e.repo.PutOutcome(ctx, o); err != nil {
		e.log.Error().Err(err).Str("outcome_id", o.ID).Msg("store outcome")
		return false
	}

	e.mu.Lock()
	applyOutcome(e.aggs, o)
	e.mu.Unlock()
	return true
}

// SatisfactionFromRating maps a rating on the RatingMin..RatingMax scale to
// [0,1]. Out-of-range ratings are clamped.
func SatisfactionFromRating(rating int) float64 {
	if rating < RatingMin {
		rating = RatingMin
	}
	if rating > RatingMax {
		rating = RatingMax
	}
	return float64(rating-RatingMin) / float64(RatingMax-RatingMin)
}

// RecordUserFeedback attaches a satisfaction score to a prior outcome. A run
// outcome's feedback is also attributed to its best successful attempt so the
// capability that produced the answer is credited. Unknown ids are a no-op;
// the returned bool reports whether feedback was stored.
func (e *LearningEngine) RecordUserFeedback(ctx context.Context, outcomeID string, rating int, details string) bool {
	satisfaction := SatisfactionFromRating(rating)

	e.writeMu.Lock()
	o, err := e.repo.GetOutcome(ctx, outcomeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.log.Debug().Str("outcome_id", outcomeID).Msg("feedback for unknown outcome ignored")
		} else {
			e.log.Warn().Err(err).Str("outcome_id", outcomeID).Msg("load outcome for feedback")
		}
		e.writeMu.Unlock()
		return false
	}

	if !e.applyFeedback(ctx, o, satisfaction, details) {
		e.writeMu.Unlock()
		return false
	}

	if o.Kind == OutcomeRun && o.Capability == "" {
		if best, ok := e.bestAttempt(ctx, o.ID); ok {
			e.applyFeedback(ctx, best, satisfaction, details)
		}
	}
	e.writeMu.Unlock()

	e.invalidate(o.UserID)
	e.log.Debug().
		Str("outcome_id", outcomeID).
		Int("rating", rating).
		Float64("satisfaction", satisfaction).
		Msg("feedback recorded")
	return true
}

func (e *LearningEngine) applyFeedback(ctx context.Context, o DecisionOutcome, satisfaction float64, details string) bool {
	if err := e.repo.UpdateFeedback(ctx, o.ID, satisfaction, details); err != nil {
		e.log.Warn().Err(err).Str("outcome_id", o.ID).Msg("store feedback")
		return false
	}
	if o.Capability == "" {
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range aggKeysFor(o) {
		a := e.aggs[k]
		if a == nil {
			continue
		}
		if o.Satisfaction != nil {
			a.addSatisfaction(*o.Satisfaction, -1)
		}
		a.addSatisfaction(satisfaction, 1)
	}
	return true
}

func (e *LearningEngine) bestAttempt(ctx context.Context, runID string) (DecisionOutcome, bool) {
	var (
		best  DecisionOutcome
		found bool
	)
	err := e.repo.ScanOutcomes(ctx, OutcomeFilter{Kind: OutcomeAttempt, RunID: runID}, func(o DecisionOutcome) error {
		if !o.Result.Success {
			return nil
		}
		if !found || o.Confidence > best.Confidence {
			best, found = o, true
		}
		return nil
	})
	if err != nil {
		e.log.Warn().Err(err).Str("run_id", runID).Msg("scan attempts for feedback")
		return DecisionOutcome{}, false
	}
	return best, found
}

// PerformanceScore returns the learned score of a capability for a strategy,
// falling back to its overall score. Reports false when there is no history.
func (e *LearningEngine) PerformanceScore(capability string, strategy Strategy) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if a := e.aggs[aggKey{capability: capability, strategy: strategy}]; a != nil && a.samples > 0 {
		return a.metrics(capability, strategy).PerformanceScore, true
	}
	if a := e.aggs[aggKey{capability: capability}]; a != nil && a.samples > 0 {
		return a.metrics(capability, "").PerformanceScore, true
	}
	return 0, false
}

// Metrics returns the performance metrics of a capability across strategies.
func (e *LearningEngine) Metrics(capability string) (ServicePerformanceMetrics, bool) {
	return e.MetricsFor(capability, "")
}

// MetricsFor returns the performance metrics of a capability for one
// strategy. An empty strategy aggregates across strategies.
func (e *LearningEngine) MetricsFor(capability string, strategy Strategy) (ServicePerformanceMetrics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a := e.aggs[aggKey{capability: capability, strategy: strategy}]
	if a == nil {
		return ServicePerformanceMetrics{Capability: capability, Strategy: strategy}, false
	}
	return a.metrics(capability, strategy), true
}

// AllMetrics returns overall metrics for every capability with history,
// in registry order followed by unregistered capabilities by name.
func (e *LearningEngine) AllMetrics() []ServicePerformanceMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []ServicePerformanceMetrics
	for _, id := range e.capabilityOrderLocked() {
		if a := e.aggs[aggKey{capability: id}]; a != nil {
			out = append(out, a.metrics(id, ""))
		}
	}
	return out
}

// capabilityOrderLocked returns registry ids followed by any other
// capability seen in the aggregates, sorted by name. Callers hold e.mu.
func (e *LearningEngine) capabilityOrderLocked() []string {
	var order []string
	known := make(map[string]bool)
	if e.registry != nil {
		for _, id := range e.registry.IDs() {
			order = append(order, id)
			known[id] = true
		}
	}
	var extra []string
	for k := range e.aggs {
		if k.strategy == "" && k.complexity == "" && !known[k.capability] {
			extra = append(extra, k.capability)
			known[k.capability] = true
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

// ServiceRankings orders capabilities for a strategy by a blend of success
// rate and satisfaction. When factors carry a complexity with history, that
// slice of history is used. Capabilities without history follow in registry
// order, so with no data at all the result is the registry order.
func (e *LearningEngine) ServiceRankings(_ context.Context, strategy Strategy, factors *ContextFactors) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	type ranked struct {
		id    string
		order int
		blend float64
	}
	var withData []ranked
	var without []string

	for i, id := range e.capabilityOrderLocked() {
		var a *capAgg
		if factors != nil && factors.Complexity != "" && strategy != "" {
			a = e.aggs[aggKey{capability: id, strategy: strategy, complexity: factors.Complexity}]
		}
		if a == nil || a.samples == 0 {
			a = e.aggs[aggKey{capability: id, strategy: strategy}]
		}
		if a == nil || a.samples == 0 {
			without = append(without, id)
			continue
		}
		blend := rankSuccessWeight*a.successRate() + rankSatisfactionWeight*a.satisfaction()
		withData = append(withData, ranked{id: id, order: i, blend: blend})
	}

	sort.SliceStable(withData, func(i, j int) bool {
		if withData[i].blend != withData[j].blend {
			return withData[i].blend > withData[j].blend
		}
		return withData[i].order < withData[j].order
	})

	out := make([]string, 0, len(withData)+len(without))
	for _, r := range withData {
		out = append(out, r.id)
	}
	return append(out, without...)
}

// DefaultThresholds returns the base thresholds for a user.
func DefaultThresholds(userID string) AdaptiveThresholds {
	return AdaptiveThresholds{
		UserID:     userID,
		Confidence: BaseConfidenceThreshold,
		Escalation: BaseEscalationThreshold,
		Deferral:   BaseDeferralThreshold,
	}
}

// AdaptiveThresholds returns the thresholds for a user. Until the user has
// MinSamples retained run outcomes the base thresholds are returned unchanged.
// Results are cached per user until the user's next outcome or feedback, and
// concurrent recomputations for the same user share one scan.
func (e *LearningEngine) AdaptiveThresholds(ctx context.Context, userID string, factors *ContextFactors) AdaptiveThresholds {
	var complexity Complexity
	if factors != nil && factors.Complexity.IsValid() {
		complexity = factors.Complexity
	}
	cacheKey := thresholdCacheKey(userID, complexity)

	e.cacheMu.Lock()
	gen := e.genLocked(userID)
	if c, ok := e.cache[cacheKey]; ok && c.gen == gen {
		e.cacheMu.Unlock()
		return c.thresholds
	}
	e.cacheMu.Unlock()

	flightKey := fmt.Sprintf("%s\x00%d", cacheKey, gen)
	v, err, _ := e.flight.Do(flightKey, func() (any, error) {
		t, err := e.computeThresholds(ctx, userID, complexity)
		if err != nil {
			return nil, err
		}
		e.cacheMu.Lock()
		e.cache[cacheKey] = cachedThresholds{thresholds: t, gen: gen}
		e.cacheMu.Unlock()
		return t, nil
	})
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("compute adaptive thresholds")
		t := DefaultThresholds(userID)
		t.AdaptationReason = "history unavailable: using base thresholds"
		return t
	}
	return v.(AdaptiveThresholds)
}

func (e *LearningEngine) computeThresholds(ctx context.Context, userID string, complexity Complexity) (AdaptiveThresholds, error) {
	var all, matching, allOK, matchingOK int
	filter := OutcomeFilter{
		UserID: userID,
		Kind:   OutcomeRun,
		Since:  e.now().Add(-e.cfg.Retention),
	}
	err := e.repo.ScanOutcomes(ctx, filter, func(o DecisionOutcome) error {
		all++
		if o.Result.Success {
			allOK++
		}
		if complexity != "" && o.Factors.Complexity == complexity {
			matching++
			if o.Result.Success {
				matchingOK++
			}
		}
		return nil
	})
	if err != nil {
		return AdaptiveThresholds{}, err
	}

	samples, successes, scope := all, allOK, ""
	if complexity != "" && matching >= e.cfg.MinSamples {
		samples, successes, scope = matching, matchingOK, fmt.Sprintf(" on %s messages", complexity)
	}

	t := DefaultThresholds(userID)
	t.SampleSize = samples
	if samples < e.cfg.MinSamples {
		t.AdaptationReason = fmt.Sprintf("insufficient history: %d of %d outcomes", samples, e.cfg.MinSamples)
		return t, nil
	}

	rate := float64(successes) / float64(samples)
	offset := thresholdOffset(rate)
	t.SuccessRate = rate
	t.Offset = offset
	t.Confidence = clampConfidence(BaseConfidenceThreshold + offset)
	t.Escalation = clampConfidence(BaseEscalationThreshold + offset)
	t.Deferral = clampConfidence(BaseDeferralThreshold + offset)
	t.Adapted = offset != 0

	switch {
	case offset < 0:
		t.AdaptationReason = fmt.Sprintf("high success rate %.0f%% over %d outcomes%s: thresholds lowered by %.2f",
			rate*100, samples, scope, -offset)
	case offset > 0:
		t.AdaptationReason = fmt.Sprintf("low success rate %.0f%% over %d outcomes%s: thresholds raised by %.2f",
			rate*100, samples, scope, offset)
	default:
		t.AdaptationReason = fmt.Sprintf("success rate %.0f%% over %d outcomes%s: no adjustment",
			rate*100, samples, scope)
	}
	return t, nil
}

// thresholdOffset scales the shift linearly: zero at the boundary, full at
// a success rate of 1 (down) or 0 (up).
func thresholdOffset(rate float64) float64 {
	switch {
	case rate > highSuccessAbove:
		return -maxShiftDown * (rate - highSuccessAbove) / (1 - highSuccessAbove)
	case rate < lowSuccessBelow:
		return maxShiftUp * (lowSuccessBelow - rate) / lowSuccessBelow
	default:
		return 0
	}
}

func thresholdCacheKey(userID string, complexity Complexity) string {
	return userID + "\x00" + string(complexity)
}

func (e *LearningEngine) genLocked(userID string) uint64 {
	if g, ok := e.gens[userID]; ok {
		return g
	}
	return e.epoch
}

// invalidate moves the user to a fresh generation and drops their cached
// thresholds. Results still in flight carry the old generation and miss.
func (e *LearningEngine) invalidate(userID string) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	e.seq++
	e.gens[userID] = e.seq
	for _, c := range []Complexity{"", TierSimple, TierComplex, TierExpert} {
		delete(e.cache, thresholdCacheKey(userID, c))
	}
}

func (e *LearningEngine) resetThresholdCache() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	e.seq++
	e.epoch = e.seq
	e.gens = make(map[string]uint64)
	e.cache = make(map[string]cachedThresholds)
}

func (e *LearningEngine) maybePrune(ctx context.Context) {
	e.mu.RLock()
	due := e.now().Sub(e.lastPrune) >= e.cfg.PruneInterval
	e.mu.RUnlock()
	if !due {
		return
	}
	if _, err := e.Prune(ctx); err != nil {
		e.log.Warn().Err(err).Msg("prune outcomes")
	}
}

// Prune deletes outcomes older than the retention window and rebuilds the
// aggregates when anything was removed. Cached thresholds are dropped either way.
func (e *LearningEngine) Prune(ctx context.Context) (int, error) {
	now := e.now()
	e.mu.Lock()
	e.lastPrune = now
	e.mu.Unlock()

	n, err := e.repo.PruneOutcomes(ctx, now.Add(-e.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("learning: prune: %w", err)
	}
	if n == 0 {
		e.resetThresholdCache()
		return 0, nil
	}
	e.log.Info().Int("pruned", n).Dur("retention", e.cfg.Retention).Msg("pruned outcomes")
	if err := e.Rebuild(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// GenerateLearningInsights aggregates the retained outcome log.
func (e *LearningEngine) GenerateLearningInsights(ctx context.Context) (LearningInsights, error) {
	now := e.now()
	insights := LearningInsights{GeneratedAt: now.UTC()}

	type userAcc struct {
		runs, successes int
		relSum          float64
		satSum          float64
		satCount        int
	}
	type strategyAcc struct{ count, successes int }
	type recentAcc struct{ samples, successes int }

	users := make(map[string]*userAcc)
	strategies := make(map[Strategy]*strategyAcc)
	recent := make(map[string]*recentAcc)
	var runSuccesses, escalated int
	var satSum float64
	recentSince := now.Add(-e.cfg.RecentWindow)

	err := e.repo.ScanOutcomes(ctx, OutcomeFilter{Since: now.Add(-e.cfg.Retention)}, func(o DecisionOutcome) error {
		insights.TotalOutcomes++
		if o.Satisfaction != nil && o.Kind == OutcomeRun {
			satSum += *o.Satisfaction
			insights.FeedbackCount++
		}

		if o.Capability != "" && !o.Timestamp.Before(recentSince) {
			r := recent[o.Capability]
			if r == nil {
				r = &recentAcc{}
				recent[o.Capability] = r
			}
			r.samples++
			if o.Result.Success {
				r.successes++
			}
		}

		if o.Kind != OutcomeRun {
			return nil
		}
		insights.TotalRuns++
		if o.Result.Success {
			runSuccesses++
		}
		if o.Result.Escalated {
			escalated++
		}

		s := strategies[o.Strategy]
		if s == nil {
			s = &strategyAcc{}
			strategies[o.Strategy] = s
		}
		s.count++
		if o.Result.Success {
			s.successes++
		}

		u := users[o.UserID]
		if u == nil {
			u = &userAcc{}
			users[o.UserID] = u
		}
		u.runs++
		if o.Result.Success {
			u.successes++
		}
		u.relSum += o.Factors.RelationshipStrength
		if o.Satisfaction != nil {
			u.satSum += *o.Satisfaction
			u.satCount++
		}
		return nil
	})
	if err != nil {
		return LearningInsights{}, fmt.Errorf("learning: scan outcomes: %w", err)
	}

	insights.UniqueUsers = len(users)
	if insights.TotalRuns > 0 {
		insights.OverallSuccessRate = float64(runSuccesses) / float64(insights.TotalRuns)
		insights.EscalationRate = float64(escalated) / float64(insights.TotalRuns)
	}
	if insights.FeedbackCount > 0 {
		insights.AvgSatisfaction = satSum / float64(insights.FeedbackCount)
	}

	for _, st := range ValidStrategies() {
		s := strategies[st]
		if s == nil {
			continue
		}
		insights.PreferredStrategies = append(insights.PreferredStrategies, StrategyUsage{
			Strategy:    st,
			Count:       s.count,
			SuccessRate: float64(s.successes) / float64(s.count),
		})
	}
	sort.SliceStable(insights.PreferredStrategies, func(i, j int) bool {
		return insights.PreferredStrategies[i].Count > insights.PreferredStrategies[j].Count
	})

	effective := e.AllMetrics()
	sort.SliceStable(effective, func(i, j int) bool {
		return effective[i].PerformanceScore > effective[j].PerformanceScore
	})
	if len(effective) > maxEffectiveCapabilities {
		effective = effective[:maxEffectiveCapabilities]
	}
	insights.EffectiveCapabilities = effective

	segments := map[string]*UserSegment{
		SegmentLow:    {Bucket: SegmentLow},
		SegmentMedium: {Bucket: SegmentMedium},
		SegmentHigh:   {Bucket: SegmentHigh},
	}
	segSuccesses := make(map[string]int)
	segSat := make(map[string]float64)
	for _, u := range users {
		bucket := relationshipBucket(u.relSum / float64(u.runs))
		seg := segments[bucket]
		seg.Users++
		seg.Outcomes += u.runs
		segSuccesses[bucket] += u.successes
		segSat[bucket] += u.satSum
		seg.FeedbackCount += u.satCount
	}
	for _, bucket := range []string{SegmentLow, SegmentMedium, SegmentHigh} {
		seg := segments[bucket]
		if seg.Outcomes > 0 {
			seg.SuccessRate = float64(segSuccesses[bucket]) / float64(seg.Outcomes)
		}
		if seg.FeedbackCount > 0 {
			seg.AvgSatisfaction = segSat[bucket] / float64(seg.FeedbackCount)
		}
		insights.UserSegments = append(insights.UserSegments, *seg)
	}

	for capability, r := range recent {
		rate := float64(r.successes) / float64(r.samples)
		if rate >= e.cfg.ImprovementFloor {
			continue
		}
		insights.ImprovementOpportunities = append(insights.ImprovementOpportunities, ImprovementOpportunity{
			Capability:        capability,
			RecentSuccessRate: rate,
			Samples:           r.samples,
			Priority:          PriorityHigh,
			Suggestion: fmt.Sprintf("success rate %.0f%% over the last %s is below %.0f%%; review %s or demote it in the fallback chain",
				rate*100, formatWindow(e.cfg.RecentWindow), e.cfg.ImprovementFloor*100, capability),
		})
	}
	sort.Slice(insights.ImprovementOpportunities, func(i, j int) bool {
		a, b := insights.ImprovementOpportunities[i], insights.ImprovementOpportunities[j]
		if a.RecentSuccessRate != b.RecentSuccessRate {
			return a.RecentSuccessRate < b.RecentSuccessRate
		}
		return a.Capability < b.Capability
	})

	return insights, nil
}

func relationshipBucket(strength float64) string {
	switch {
	case strength >= segmentHighFrom:
		return SegmentHigh
	case strength >= segmentMediumFrom:
		return SegmentMedium
	default:
		return SegmentLow
	}
}

func formatWindow(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return strings.TrimSuffix(d.String(), "0s")
}
