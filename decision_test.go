package verdict_test

import (
	"testing"
	"time"

	"github.com/hyperengineering/verdict"
	"github.com/stretchr/testify/assert"
)

func TestDecisionEngine_Analyze(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := verdict.NewDecisionEngine(verdict.DefaultDecisionConfig(),
		verdict.WithDecisionClock(func() time.Time { return now }))

	ambient := verdict.DecisionContext{OptedIn: true, Channel: verdict.ChannelAmbient}
	direct := verdict.DecisionContext{OptedIn: true, Channel: verdict.ChannelDirect}
	with := func(dc verdict.DecisionContext, fn func(*verdict.DecisionContext)) verdict.DecisionContext {
		fn(&dc)
		return dc
	}

	tests := []struct {
		name       string
		msg        verdict.Message
		dc         verdict.DecisionContext
		respond    bool
		strategy   verdict.Strategy
		confidence float64
		tags       []string
		reason     []string
	}{
		{
			name:       "not opted in",
			msg:        verdict.Message{Text: "hello there, anyone around?"},
			dc:         with(direct, func(dc *verdict.DecisionContext) { dc.OptedIn = false }),
			strategy:   verdict.StrategyIgnore,
			confidence: 1,
			tags:       []string{verdict.TagNotOptedIn},
		},
		{
			name:       "direct message",
			msg:        verdict.Message{Text: "hi"},
			dc:         direct,
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 1,
			tags:       []string{verdict.TagDM},
		},
		{
			name:       "mention in ambient channel",
			msg:        verdict.Message{Text: "thoughts"},
			dc:         with(ambient, func(dc *verdict.DecisionContext) { dc.MentionedBot = true }),
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 1,
			tags:       []string{verdict.TagMention},
		},
		{
			name:       "personal thread",
			msg:        verdict.Message{Text: "and another thing"},
			dc:         verdict.DecisionContext{OptedIn: true, Channel: verdict.ChannelPersonalThread},
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 1,
			tags:       []string{verdict.TagPersonalThread},
		},
		{
			name:       "ambient question at threshold",
			msg:        verdict.Message{Text: "does anyone know how to rotate logs?"},
			dc:         ambient,
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 0.5,
			tags:       []string{verdict.TagQuestion},
		},
		{
			name:       "ambient urgent question",
			msg:        verdict.Message{Text: "help me please, is the build broken?"},
			dc:         ambient,
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 0.6,
			tags:       []string{verdict.TagQuestion, verdict.TagUrgent},
		},
		{
			name:       "ambient code question",
			msg:        verdict.Message{Text: "why does `make build` fail here?"},
			dc:         ambient,
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 0.65,
			tags:       []string{verdict.TagQuestion, verdict.TagCode},
		},
		{
			name:       "ambient chatter",
			msg:        verdict.Message{Text: "lol nice one everybody"},
			dc:         ambient,
			strategy:   verdict.StrategyIgnore,
			confidence: 0.25,
		},
		{
			name:       "short ambient message",
			msg:        verdict.Message{Text: "ok"},
			dc:         ambient,
			strategy:   verdict.StrategyIgnore,
			confidence: 0.05,
			tags:       []string{verdict.TagShortMessage},
		},
		{
			name:       "cooldown suppresses ambient question",
			msg:        verdict.Message{Text: "does anyone know how to rotate logs?"},
			dc:         with(ambient, func(dc *verdict.DecisionContext) { dc.LastReplyAt = now.Add(-30 * time.Second) }),
			strategy:   verdict.StrategyIgnore,
			confidence: 0.2,
			tags:       []string{verdict.TagQuestion, verdict.TagCooldown},
		},
		{
			name:       "cooldown does not silence direct message",
			msg:        verdict.Message{Text: "hi"},
			dc:         with(direct, func(dc *verdict.DecisionContext) { dc.LastReplyAt = now.Add(-30 * time.Second) }),
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 1,
			reason:     []string{verdict.TagDM, verdict.TagCooldown},
		},
		{
			name:       "cooldown expired",
			msg:        verdict.Message{Text: "does anyone know how to rotate logs?"},
			dc:         with(ambient, func(dc *verdict.DecisionContext) { dc.LastReplyAt = now.Add(-5 * time.Minute) }),
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 0.5,
			tags:       []string{verdict.TagQuestion},
		},
		{
			name:       "busy channel",
			msg:        verdict.Message{Text: "help me please, is the build broken?"},
			dc:         with(ambient, func(dc *verdict.DecisionContext) { dc.RecentChannelMessages = 8 }),
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 0.5,
			tags:       []string{verdict.TagChannelBusy},
		},
		{
			name:       "very busy channel",
			msg:        verdict.Message{Text: "help me please, is the build broken?"},
			dc:         with(ambient, func(dc *verdict.DecisionContext) { dc.RecentChannelMessages = 16 }),
			strategy:   verdict.StrategyIgnore,
			confidence: 0.4,
			tags:       []string{verdict.TagChannelVeryBusy},
		},
		{
			name:       "busy channel ignored for direct",
			msg:        verdict.Message{Text: "are you there?"},
			dc:         with(direct, func(dc *verdict.DecisionContext) { dc.RecentChannelMessages = 40 }),
			respond:    true,
			strategy:   verdict.StrategyQuickReply,
			confidence: 1,
		},
		{
			name:       "user burst",
			msg:        verdict.Message{Text: "does anyone know how to rotate logs?"},
			dc:         with(ambient, func(dc *verdict.DecisionContext) { dc.RecentUserMessages = 5 }),
			strategy:   verdict.StrategyIgnore,
			confidence: 0.35,
			tags:       []string{verdict.TagUserBurst},
		},
		{
			name:       "direct mass mention refused",
			msg:        verdict.Message{Text: "everyone look at this", MentionsEveryone: true},
			dc:         direct,
			strategy:   verdict.StrategyIgnore,
			confidence: 1,
			tags:       []string{verdict.TagMassMention, verdict.TagRefused},
		},
		{
			name:       "direct mention spam refused",
			msg:        verdict.Message{Text: "ping ping ping", MentionCount: 6},
			dc:         direct,
			strategy:   verdict.StrategyIgnore,
			confidence: 1,
			tags:       []string{verdict.TagMentionSpam, verdict.TagRefused},
		},
		{
			name:       "large attachments deep reason",
			msg:        verdict.Message{Text: "please review", AttachmentCount: 9},
			dc:         direct,
			respond:    true,
			strategy:   verdict.StrategyDeepReason,
			confidence: 1,
		},
		{
			name:       "over token budget defers",
			msg:        verdict.Message{Text: "please review", AttachmentCount: 15},
			dc:         direct,
			respond:    true,
			strategy:   verdict.StrategyDefer,
			confidence: 1,
			tags:       []string{verdict.TagTokenBudget},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Analyze(tt.msg, tt.dc)

			assert.Equal(t, tt.respond, got.ShouldRespond, "ShouldRespond (reasons %v)", got.Reason)
			assert.Equal(t, tt.strategy, got.Strategy)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			for _, tag := range tt.tags {
				assert.True(t, got.HasReason(tag), "missing reason %q in %v", tag, got.Reason)
			}
			if tt.reason != nil {
				assert.Equal(t, tt.reason, got.Reason)
			}
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 1.0)
		})
	}
}

func TestDecisionEngine_UsesContextNow(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := verdict.NewDecisionEngine(verdict.DefaultDecisionConfig(),
		verdict.WithDecisionClock(func() time.Time { return clock }))

	// LastReplyAt is an hour before the engine clock but 30s before dc.Now.
	dc := verdict.DecisionContext{
		OptedIn:     true,
		Channel:     verdict.ChannelAmbient,
		LastReplyAt: clock.Add(-time.Hour),
		Now:         clock.Add(-time.Hour + 30*time.Second),
	}
	got := engine.Analyze(verdict.Message{Text: "does anyone know how to rotate logs?"}, dc)
	assert.True(t, got.HasReason(verdict.TagCooldown))
}

func TestDecisionEngine_AmbientThreshold(t *testing.T) {
	cfg := verdict.DefaultDecisionConfig()
	cfg.AmbientThreshold = 40
	engine := verdict.NewDecisionEngine(cfg)

	got := engine.Analyze(verdict.Message{Text: "help me please, is the build broken?"},
		verdict.DecisionContext{OptedIn: true, Channel: verdict.ChannelAmbient})
	assert.False(t, got.ShouldRespond)
	assert.InDelta(t, 0.45, got.Confidence, 1e-9)
}

func TestDecisionEngine_EstimateTokens(t *testing.T) {
	engine := verdict.NewDecisionEngine(verdict.DefaultDecisionConfig())

	assert.Equal(t, 0, engine.EstimateTokens(verdict.Message{}))
	assert.Equal(t, 2, engine.EstimateTokens(verdict.Message{Text: "abcdefgh"}))
	assert.Equal(t, 3, engine.EstimateTokens(verdict.Message{Text: "abcdefghi"}))
	assert.Equal(t, 2+2*512, engine.EstimateTokens(verdict.Message{Text: "abcdefgh", AttachmentCount: 2}))
}
