package verdict

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client wires the decision engine, escalation controller and learning
// engine over one outcome repository.
type Client struct {
	repo     OutcomeRepository
	registry *Registry
	learner  *LearningEngine
	selector *Selector
	session  *Session
	log      zerolog.Logger
	logger   *Logger
	now      func() time.Time

	mu         sync.RWMutex
	config     Config
	decision   *DecisionEngine
	escalation *EscalationController

	closeMu   sync.Mutex
	closed    bool
	pruning   bool
	stopPrune chan struct{}
	pruneDone chan struct{}
}

type clientOptions struct {
	log          *zerolog.Logger
	repo         OutcomeRepository
	now          func() time.Time
	capabilities []Capability
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the client's logger. It overrides Config.LogPath.
func WithLogger(l zerolog.Logger) Option {
	return func(o *clientOptions) { o.log = &l }
}

// WithRepository uses repo instead of opening a store from the config.
// The client takes ownership and closes it on Close.
func WithRepository(repo OutcomeRepository) Option {
	return func(o *clientOptions) { o.repo = repo }
}

// WithClock sets the clock shared by all engines.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) { o.now = now }
}

// WithCapability binds impl to the registry entry with the same id.
func WithCapability(impl Capability) Option {
	return func(o *clientOptions) { o.capabilities = append(o.capabilities, impl) }
}

// New creates a new verdict client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		session:   NewSession(),
		config:    cfg,
		now:       o.now,
		log:       zerolog.Nop(),
		stopPrune: make(chan struct{}),
		pruneDone: make(chan struct{}),
	}

	switch {
	case o.log != nil:
		c.log = *o.log
	case cfg.LogPath != "":
		logger, err := NewLogger(cfg.LogLevel, cfg.LogPath, cfg.LogFormat)
		if err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
		c.logger = logger
		c.log = logger.Logger
	}

	registry, err := NewRegistry(cfg.Capabilities...)
	if err != nil {
		c.closeLogger()
		return nil, fmt.Errorf("client: %w", err)
	}
	for _, impl := range o.capabilities {
		if err := registry.Bind(impl.ID(), impl); err != nil {
			c.closeLogger()
			return nil, fmt.Errorf("client: %w", err)
		}
	}
	c.registry = registry

	switch {
	case o.repo != nil:
		c.repo = o.repo
	case cfg.Ephemeral:
		c.repo = NewMemoryStore()
	default:
		store, err := NewStore(cfg.DataPath)
		if err != nil {
			c.closeLogger()
			return nil, fmt.Errorf("client: %w", err)
		}
		c.repo = store
	}

	learner, err := NewLearningEngine(context.Background(), c.repo, cfg.Learning,
		WithLearningLogger(c.log),
		WithLearningClock(c.now),
		WithRegistry(registry),
	)
	if err != nil {
		c.repo.Close()
		c.closeLogger()
		return nil, fmt.Errorf("client: %w", err)
	}
	c.learner = learner
	c.selector = NewSelector(registry, learner, WithSelectorLogger(c.log))
	c.decision = NewDecisionEngine(cfg.Decision, WithDecisionClock(c.now))
	c.escalation = c.newController(cfg.Escalation)

	if cfg.Learning.AutoPrune {
		c.pruning = true
		go c.backgroundPrune(cfg.Learning.PruneInterval)
	}

	c.log.Debug().
		Str("profile", cfg.Profile).
		Bool("ephemeral", cfg.Ephemeral).
		Int("capabilities", registry.Len()).
		Msg("client ready")

	return c, nil
}

func (c *Client) newController(cfg EscalationConfig) *EscalationController {
	return NewEscalationController(cfg, c.selector, c.learner,
		WithEscalationLogger(c.log),
		WithEscalationClock(c.now),
	)
}

// RespondRequest is the input to Client.Respond.
type RespondRequest struct {
	UserID      string
	Message     Message
	Context     DecisionContext
	Personality *PersonalityContext
	SystemLoad  *float64
	Params      InvokeParams
}

// RespondResult is the decision for a message and, when the bot responds,
// the escalation result.
type RespondResult struct {
	Decision   DecisionResult    `json:"decision"`
	Escalation *EscalationResult `json:"escalation,omitempty"`
	SessionRef string            `json:"session_ref,omitempty"`
}

// Respond analyzes a message and escalates the decision when the bot
// should respond. It never returns an error.
func (c *Client) Respond(ctx context.Context, req RespondRequest) RespondResult {
	d := c.Analyze(req.Message, req.Context)
	result := RespondResult{Decision: d}
	if !d.ShouldRespond {
		return result
	}

	esc := c.Escalate(ctx, EscalationRequest{
		UserID:      req.UserID,
		Prompt:      req.Message.Text,
		Decision:    d,
		Personality: req.Personality,
		SystemLoad:  req.SystemLoad,
		Params:      req.Params,
	})
	result.Escalation = &esc
	result.SessionRef = esc.SessionRef
	return result
}

// Analyze runs the decision engine on one message.
func (c *Client) Analyze(msg Message, dc DecisionContext) DecisionResult {
	c.mu.RLock()
	engine := c.decision
	c.mu.RUnlock()
	return engine.Analyze(msg, dc)
}

// Escalate runs the escalation controller and tracks the recorded run
// outcome in the session so feedback can name it by reference.
func (c *Client) Escalate(ctx context.Context, req EscalationRequest) EscalationResult {
	c.mu.RLock()
	ctl := c.escalation
	c.mu.RUnlock()

	res := ctl.Escalate(ctx, req)
	if res.OutcomeID != "" {
		res.SessionRef = c.session.Track(res.OutcomeID)
	}
	return res
}

// FeedbackParams names an outcome by session reference (D1) or outcome ID.
type FeedbackParams struct {
	Ref     string `json:"ref"`
	Rating  int    `json:"rating"`
	Details string `json:"details,omitempty"`
}

// FeedbackResult reports how feedback was applied.
type FeedbackResult struct {
	OutcomeID    string  `json:"outcome_id"`
	Ref          string  `json:"ref,omitempty"`
	Rating       int     `json:"rating"`
	Satisfaction float64 `json:"satisfaction"`
	Applied      bool    `json:"applied"`
}

// Feedback records a user rating for an outcome. An unknown session
// reference returns ErrSessionRefNotFound; an unknown outcome ID is a no-op
// reported as Applied=false.
func (c *Client) Feedback(ctx context.Context, params FeedbackParams) (*FeedbackResult, error) {
	id, ok := c.session.Lookup(params.Ref)
	if !ok {
		if IsSessionRef(params.Ref) {
			return nil, fmt.Errorf("%w: %s", ErrSessionRefNotFound, params.Ref)
		}
		id = params.Ref
	}
	if id == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrNotFound)
	}

	ref, _ := c.session.ResolveByID(id)
	applied := c.learner.RecordUserFeedback(ctx, id, params.Rating, params.Details)
	return &FeedbackResult{
		OutcomeID:    id,
		Ref:          ref,
		Rating:       params.Rating,
		Satisfaction: SatisfactionFromRating(params.Rating),
		Applied:      applied,
	}, nil
}

// Rankings returns capability ids ordered by learned effectiveness.
func (c *Client) Rankings(ctx context.Context, strategy Strategy, factors *ContextFactors) []string {
	return c.learner.ServiceRankings(ctx, strategy, factors)
}

// Thresholds returns the adaptive thresholds for a user.
func (c *Client) Thresholds(ctx context.Context, userID string, factors *ContextFactors) AdaptiveThresholds {
	return c.learner.AdaptiveThresholds(ctx, userID, factors)
}

// Insights aggregates the retained outcome log.
func (c *Client) Insights(ctx context.Context) (LearningInsights, error) {
	return c.learner.GenerateLearningInsights(ctx)
}

// Metrics returns the aggregate metrics of one capability.
func (c *Client) Metrics(capability string) (ServicePerformanceMetrics, bool) {
	return c.learner.Metrics(capability)
}

// AllMetrics returns the aggregate metrics of every capability with samples.
func (c *Client) AllMetrics() []ServicePerformanceMetrics {
	return c.learner.AllMetrics()
}

// UpdateConfig applies a dotted-key configuration update. Invalid updates
// leave the running configuration unchanged.
func (c *Client) UpdateConfig(values map[string]any) (Config, error) {
	update, err := ParseConfigUpdate(values)
	if err != nil {
		return c.Config(), err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.config.Apply(update)
	if err != nil {
		return c.config, err
	}
	c.config = next
	c.decision = NewDecisionEngine(next.Decision, WithDecisionClock(c.now))
	c.escalation = c.newController(next.Escalation)

	c.log.Info().Interface("update", values).Msg("configuration updated")
	return next, nil
}

// Config returns the running configuration.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Registry returns the capability registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Session returns the session tracker.
func (c *Client) Session() *Session {
	return c.session
}

// Prune deletes outcomes older than the retention window.
func (c *Client) Prune(ctx context.Context) (int, error) {
	return c.learner.Prune(ctx)
}

// Stats returns store statistics.
func (c *Client) Stats(ctx context.Context) (StoreStats, error) {
	return c.repo.Stats(ctx)
}

// Export streams the outcome log as JSON to w.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	return ExportJSON(ctx, c.repo, c.Config().Profile, w)
}

// ExportSQLite copies the outcome database to destPath.
func (c *Client) ExportSQLite(ctx context.Context, destPath string) error {
	store, ok := c.repo.(*Store)
	if !ok {
		return errors.New("sqlite export requires a sqlite store")
	}
	return store.ExportSQLite(ctx, destPath)
}

// Import reads a JSON export into the outcome log and reloads the learning
// aggregates.
func (c *Client) Import(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	result, err := ImportJSON(ctx, c.repo, r, strategy, dryRun)
	if err != nil {
		return result, err
	}
	if !dryRun && result.Created+result.Replaced > 0 {
		if err := c.learner.Rebuild(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// HealthCheck returns the health status of the client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:      true,
		StoreOK:      true,
		Capabilities: c.registry.Len(),
	}

	if _, err := c.repo.Stats(ctx); err != nil {
		status.StoreOK = false
		status.Healthy = false
		status.Error = err.Error()
	}
	return status
}

// Close stops background pruning and closes the outcome repository.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	close(c.stopPrune)
	if c.pruning {
		select {
		case <-c.pruneDone:
		case <-time.After(5 * time.Second):
		}
	}

	err := c.repo.Close()
	c.closeLogger()
	return err
}

func (c *Client) closeLogger() {
	if c.logger != nil {
		c.logger.Close()
	}
}

func (c *Client) backgroundPrune(interval time.Duration) {
	defer close(c.pruneDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopPrune:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := c.learner.Prune(ctx); err != nil {
				c.log.Warn().Err(err).Msg("background prune")
			}
			cancel()
		}
	}
}
