package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/verdict"
	"github.com/spf13/cobra"
)

// messageFlags are the decision inputs shared by analyze and respond.
type messageFlags struct {
	channel        string
	mentioned      bool
	reply          bool
	notOptedIn     bool
	mentions       int
	everyone       bool
	attachments    int
	lastReply      time.Duration
	userMessages   int
	channelMessage int
}

func (f *messageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.channel, "channel", string(verdict.ChannelAmbient), "Channel kind: direct, ambient, personal-thread")
	cmd.Flags().BoolVar(&f.mentioned, "mention", false, "Message mentions the bot")
	cmd.Flags().BoolVar(&f.reply, "reply", false, "Message replies to the bot")
	cmd.Flags().BoolVar(&f.notOptedIn, "not-opted-in", false, "User has not opted in to replies")
	cmd.Flags().IntVar(&f.mentions, "mentions", 0, "Number of users mentioned")
	cmd.Flags().BoolVar(&f.everyone, "everyone", false, "Message mentions everyone")
	cmd.Flags().IntVar(&f.attachments, "attachments", 0, "Number of attachments")
	cmd.Flags().DurationVar(&f.lastReply, "last-reply", 0, "Time since the bot last replied to this user (e.g. 30s)")
	cmd.Flags().IntVar(&f.userMessages, "user-messages", 0, "Recent messages from this user")
	cmd.Flags().IntVar(&f.channelMessage, "channel-messages", 0, "Recent messages in the channel")
}

func (f *messageFlags) reset() {
	*f = messageFlags{channel: string(verdict.ChannelAmbient)}
}

func (f *messageFlags) build(text string) (verdict.Message, verdict.DecisionContext, error) {
	kind := verdict.ChannelKind(strings.ToLower(f.channel))
	switch kind {
	case verdict.ChannelDirect, verdict.ChannelAmbient, verdict.ChannelPersonalThread:
	default:
		return verdict.Message{}, verdict.DecisionContext{}, fmt.Errorf("invalid channel %q: must be direct, ambient or personal-thread", f.channel)
	}

	msg := verdict.Message{
		Text:             text,
		AttachmentCount:  f.attachments,
		MentionCount:     f.mentions,
		MentionsEveryone: f.everyone,
	}
	now := time.Now()
	dc := verdict.DecisionContext{
		OptedIn:               !f.notOptedIn,
		Channel:               kind,
		MentionedBot:          f.mentioned,
		ReplyToBot:            f.reply,
		RecentUserMessages:    f.userMessages,
		RecentChannelMessages: f.channelMessage,
		Now:                   now,
	}
	if f.lastReply > 0 {
		dc.LastReplyAt = now.Add(-f.lastReply)
	}
	return msg, dc, nil
}
