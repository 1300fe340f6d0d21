package verdict

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Signal tags appended to DecisionResult.Reason.
const (
	TagNotOptedIn      = "not_opted_in"
	TagDM              = "dm"
	TagMention         = "mention"
	TagReply           = "reply"
	TagPersonalThread  = "personal_thread"
	TagQuestion        = "question"
	TagCode            = "code"
	TagUrgent          = "urgent"
	TagShortMessage    = "short_message"
	TagCooldown        = "cooldown"
	TagUserBurst       = "user_burst"
	TagChannelBusy     = "channel_busy"
	TagChannelVeryBusy = "channel_very_busy"
	TagMassMention     = "mass_mention"
	TagMentionSpam     = "mention_spam"
	TagRefused         = "refused"
	TagTokenBudget     = "token_budget"
)

// Signal weights.
const (
	weightDM             = 100
	weightMention        = 95
	weightReply          = 90
	weightPersonalThread = 50
	weightQuestion       = 25
	weightCode           = 15
	weightUrgent         = 10
	penaltyShort         = -20
	penaltyCooldown      = -30
	penaltyUserBurst     = -15
	penaltyChannelBusy   = -10
	penaltyChannelVery   = -20
	penaltyMassMention   = -40
	penaltyMentionSpam   = -25
)

// Token budget fractions that pick the strategy.
const (
	deepReasonBudgetFraction = 0.5
	deferBudgetFraction      = 0.9
)

var (
	codePatterns = []*regexp.Regexp{
		regexp.MustCompile("```"),
		regexp.MustCompile("`[^`\n]+`"),
		regexp.MustCompile(`\b(func|def|class|fn|import|return|const|let|var)\s+\w+`),
		regexp.MustCompile(`\w+\([^)]*\)\s*[{;]`),
		regexp.MustCompile(`=>|:=|!==|===|->`),
		regexp.MustCompile(`(?m)^\s*[\w.]+\s*=\s*[\w."'\[{(]`),
	}

	urgentPattern = regexp.MustCompile(`(?i)\b(urgent|urgently|asap|emergency|immediately|critical|right now|help me)\b`)
)

// DecisionEngine scores an inbound message and picks an initial strategy.
// It holds no mutable state and is safe for concurrent use.
type DecisionEngine struct {
	cfg DecisionConfig
	now func() time.Time
}

// DecisionOption configures a DecisionEngine.
type DecisionOption func(*DecisionEngine)

// WithDecisionClock sets the clock used when DecisionContext.Now is zero.
func WithDecisionClock(now func() time.Time) DecisionOption {
	return func(e *DecisionEngine) { e.now = now }
}

// NewDecisionEngine creates a decision engine with the given weights and limits.
func NewDecisionEngine(cfg DecisionConfig, opts ...DecisionOption) *DecisionEngine {
	e := &DecisionEngine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's configuration.
func (e *DecisionEngine) Config() DecisionConfig {
	return e.cfg
}

// Analyze decides whether to respond to msg and with which strategy.
func (e *DecisionEngine) Analyze(msg Message, dc DecisionContext) DecisionResult {
	tokens := e.EstimateTokens(msg)

	if !dc.OptedIn {
		return DecisionResult{
			ShouldRespond: false,
			Strategy:      StrategyIgnore,
			Confidence:    1,
			TokenEstimate: tokens,
			Reason:        []string{TagNotOptedIn},
		}
	}

	var (
		score   int
		reasons []string
	)
	add := func(weight int, tag string) {
		score += weight
		reasons = append(reasons, tag)
	}

	if dc.Channel == ChannelDirect {
		add(weightDM, TagDM)
	}
	if dc.MentionedBot {
		add(weightMention, TagMention)
	}
	if dc.ReplyToBot {
		add(weightReply, TagReply)
	}
	if dc.Channel == ChannelPersonalThread {
		add(weightPersonalThread, TagPersonalThread)
	}
	direct := len(reasons) > 0

	text := strings.TrimSpace(msg.Text)
	if strings.Contains(text, "?") {
		add(weightQuestion, TagQuestion)
	}
	if looksLikeCode(text) {
		add(weightCode, TagCode)
	}
	if urgentPattern.MatchString(text) {
		add(weightUrgent, TagUrgent)
	}

	if !direct && utf8.RuneCountInString(text) < e.cfg.MinMessageLength {
		add(penaltyShort, TagShortMessage)
	}

	now := dc.Now
	if now.IsZero() {
		now = e.now()
	}
	if !dc.LastReplyAt.IsZero() && now.Sub(dc.LastReplyAt) < e.cfg.Cooldown {
		add(penaltyCooldown, TagCooldown)
	}

	if dc.RecentUserMessages >= e.cfg.UserBurstThreshold {
		add(penaltyUserBurst, TagUserBurst)
	}
	if !direct {
		switch {
		case dc.RecentChannelMessages >= 2*e.cfg.ChannelBurstThreshold:
			add(penaltyChannelVery, TagChannelVeryBusy)
		case dc.RecentChannelMessages >= e.cfg.ChannelBurstThreshold:
			add(penaltyChannelBusy, TagChannelBusy)
		}
	}

	abuse := false
	if msg.MentionsEveryone {
		add(penaltyMassMention, TagMassMention)
		abuse = true
	}
	if msg.MentionCount > e.cfg.MaxMentions {
		add(penaltyMentionSpam, TagMentionSpam)
		abuse = true
	}

	if direct && abuse {
		reasons = append(reasons, TagRefused)
		return DecisionResult{
			ShouldRespond: false,
			Strategy:      StrategyIgnore,
			Confidence:    1,
			TokenEstimate: tokens,
			Reason:        reasons,
		}
	}

	respond := direct || score >= e.cfg.AmbientThreshold

	var confidence float64
	if direct {
		confidence = clampConfidence(0.8 + float64(score)/200)
	} else {
		confidence = clampConfidence(0.5 + float64(score-e.cfg.AmbientThreshold)/100)
	}

	strategy := StrategyIgnore
	if respond {
		strategy = e.strategyFor(tokens)
		if strategy == StrategyDefer {
			reasons = append(reasons, TagTokenBudget)
		}
	}

	return DecisionResult{
		ShouldRespond: respond,
		Strategy:      strategy,
		Confidence:    confidence,
		TokenEstimate: tokens,
		Reason:        reasons,
	}
}

// EstimateTokens approximates the prompt size of msg: one token per four
// characters plus a fixed surcharge per attachment.
func (e *DecisionEngine) EstimateTokens(msg Message) int {
	n := (utf8.RuneCountInString(msg.Text) + 3) / 4
	if msg.AttachmentCount > 0 {
		n += msg.AttachmentCount * e.cfg.AttachmentTokens
	}
	return n
}

func (e *DecisionEngine) strategyFor(tokens int) Strategy {
	budget := float64(e.cfg.ModelTokenBudget)
	switch {
	case float64(tokens) > deferBudgetFraction*budget:
		return StrategyDefer
	case float64(tokens) > deepReasonBudgetFraction*budget:
		return StrategyDeepReason
	default:
		return StrategyQuickReply
	}
}

func looksLikeCode(text string) bool {
	for _, p := range codePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
