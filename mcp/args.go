package mcp

import (
	"fmt"
	"strings"

	"github.com/hyperengineering/verdict"
	"github.com/spf13/cast"
)

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// argFloat returns nil when key is absent.
func argFloat(args map[string]any, key string) (*float64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &v, nil
}

func argInt(args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func argBool(args map[string]any, key string, def bool) (bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// parseMessage builds the message and decision context shared by
// verdict_analyze and verdict_respond.
func parseMessage(args map[string]any) (verdict.Message, verdict.DecisionContext, error) {
	var msg verdict.Message
	var dc verdict.DecisionContext

	text, ok := args["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return msg, dc, fmt.Errorf("text is required")
	}
	msg.Text = text

	var err error
	if msg.MentionCount, err = argInt(args, "mention_count"); err != nil {
		return msg, dc, err
	}
	if msg.AttachmentCount, err = argInt(args, "attachment_count"); err != nil {
		return msg, dc, err
	}
	if msg.MentionsEveryone, err = argBool(args, "mentions_everyone", false); err != nil {
		return msg, dc, err
	}

	dc.Channel = verdict.ChannelAmbient
	if ch := argString(args, "channel"); ch != "" {
		switch kind := verdict.ChannelKind(ch); kind {
		case verdict.ChannelDirect, verdict.ChannelAmbient, verdict.ChannelPersonalThread:
			dc.Channel = kind
		default:
			return msg, dc, fmt.Errorf("invalid channel: %s", ch)
		}
	}
	if dc.OptedIn, err = argBool(args, "opted_in", true); err != nil {
		return msg, dc, err
	}
	if dc.MentionedBot, err = argBool(args, "mentioned_bot", false); err != nil {
		return msg, dc, err
	}
	if dc.ReplyToBot, err = argBool(args, "reply_to_bot", false); err != nil {
		return msg, dc, err
	}
	if dc.RecentUserMessages, err = argInt(args, "recent_user_messages"); err != nil {
		return msg, dc, err
	}
	if dc.RecentChannelMessages, err = argInt(args, "recent_channel_messages"); err != nil {
		return msg, dc, err
	}
	if raw := argString(args, "last_reply_at"); raw != "" {
		t, err := cast.ToTimeE(raw)
		if err != nil {
			return msg, dc, fmt.Errorf("last_reply_at: %w", err)
		}
		dc.LastReplyAt = t
	}
	return msg, dc, nil
}

// parsePersonality returns nil when no personality field is present.
func parsePersonality(args map[string]any) (*verdict.PersonalityContext, error) {
	strength, err := argFloat(args, "relationship_strength")
	if err != nil {
		return nil, err
	}
	supportiveness, err := argFloat(args, "supportiveness")
	if err != nil {
		return nil, err
	}
	mood := argString(args, "mood")
	if strength == nil && supportiveness == nil && mood == "" {
		return nil, nil
	}

	pc := &verdict.PersonalityContext{Mood: verdict.MoodNeutral}
	if strength != nil {
		pc.RelationshipStrength = *strength
	}
	if supportiveness != nil {
		pc.Traits.Supportiveness = *supportiveness
	}
	if mood != "" {
		switch m := verdict.Mood(mood); m {
		case verdict.MoodNeutral, verdict.MoodHappy, verdict.MoodFrustrated, verdict.MoodCurious:
			pc.Mood = m
		default:
			return nil, fmt.Errorf("invalid mood: %s", mood)
		}
	}
	return pc, nil
}

func parseFactors(args map[string]any) (*verdict.ContextFactors, error) {
	raw := argString(args, "complexity")
	if raw == "" {
		return nil, nil
	}
	c := verdict.Complexity(raw)
	if !c.IsValid() {
		return nil, fmt.Errorf("invalid complexity: %s", raw)
	}
	return &verdict.ContextFactors{Complexity: c}, nil
}
