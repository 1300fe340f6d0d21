package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperengineering/verdict"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with verdict tools.
type Server struct {
	client    *verdict.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with verdict tools registered.
func NewServer(client *verdict.Client) *Server {
	s := &Server{client: client}

	s.mcpServer = server.NewMCPServer(
		"verdict",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "verdict_analyze", Description: "Decide whether and how the bot should respond to a message"},
		{Name: "verdict_respond", Description: "Analyze a message and escalate low-confidence replies through ranked capabilities"},
		{Name: "verdict_feedback", Description: "Rate a reply produced this session to train capability rankings"},
		{Name: "verdict_rankings", Description: "List capabilities ordered by learned effectiveness"},
		{Name: "verdict_thresholds", Description: "Show the adaptive confidence thresholds for a user"},
		{Name: "verdict_insights", Description: "Summarize the outcome log: success, strategies, segments and opportunities"},
		{Name: "verdict_stats", Description: "Show outcome store statistics and capability metrics"},
		{Name: "verdict_configure", Description: "Update tunable thresholds and budgets at runtime"},
	}
}

// CallTool executes a tool by name with the given arguments.
// This is used for testing and direct invocation.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "verdict_analyze":
		return s.handleAnalyze(ctx, args)
	case "verdict_respond":
		return s.handleRespond(ctx, args)
	case "verdict_feedback":
		return s.handleFeedback(ctx, args)
	case "verdict_rankings":
		return s.handleRankings(ctx, args)
	case "verdict_thresholds":
		return s.handleThresholds(ctx, args)
	case "verdict_insights":
		return s.handleInsights(ctx, args)
	case "verdict_stats":
		return s.handleStats(ctx, args)
	case "verdict_configure":
		return s.handleConfigure(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func messageOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("text",
			mcp.Description("The message text"),
			mcp.Required(),
		),
		mcp.WithString("channel",
			mcp.Description("Where the message was posted: direct, ambient or personal-thread (default: ambient)"),
			mcp.Enum(string(verdict.ChannelDirect), string(verdict.ChannelAmbient), string(verdict.ChannelPersonalThread)),
		),
		mcp.WithBoolean("opted_in",
			mcp.Description("Whether the user has opted in to bot replies (default: true)"),
		),
		mcp.WithBoolean("mentioned_bot",
			mcp.Description("Whether the message mentions the bot"),
		),
		mcp.WithBoolean("reply_to_bot",
			mcp.Description("Whether the message replies to a bot message"),
		),
		mcp.WithNumber("mention_count",
			mcp.Description("Number of users mentioned in the message"),
		),
		mcp.WithBoolean("mentions_everyone",
			mcp.Description("Whether the message mentions everyone"),
		),
		mcp.WithNumber("attachment_count",
			mcp.Description("Number of attachments"),
		),
		mcp.WithString("last_reply_at",
			mcp.Description("RFC3339 time of the bot's last reply to this user"),
		),
		mcp.WithNumber("recent_user_messages",
			mcp.Description("Messages from this user in the recent window"),
		),
		mcp.WithNumber("recent_channel_messages",
			mcp.Description("Messages in the channel in the recent window"),
		),
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("verdict_analyze",
		append([]mcp.ToolOption{
			mcp.WithDescription("Decide whether and how the bot should respond to a message. Returns the strategy (quick-reply, deep-reason, defer, ignore), a confidence and the signals that contributed."),
		}, messageOptions()...)...,
	), s.mcpHandler(s.handleAnalyze))

	s.mcpServer.AddTool(mcp.NewTool("verdict_respond",
		append([]mcp.ToolOption{
			mcp.WithDescription("Analyze a message and, when the bot should respond with low confidence, escalate through ranked capabilities. Returns the best reply and a session reference (D1, D2, ...) for feedback."),
			mcp.WithString("user_id",
				mcp.Description("Stable id of the message author"),
				mcp.Required(),
			),
			mcp.WithNumber("relationship_strength",
				mcp.Description("Relationship strength with the user, 0.0-1.0"),
			),
			mcp.WithString("mood",
				mcp.Description("User mood: neutral, happy, frustrated or curious"),
			),
			mcp.WithNumber("supportiveness",
				mcp.Description("Persona supportiveness trait, 0.0-1.0"),
			),
			mcp.WithNumber("system_load",
				mcp.Description("Current system load, 0.0-1.0"),
			),
		}, messageOptions()...)...,
	), s.mcpHandler(s.handleRespond))

	s.mcpServer.AddTool(mcp.NewTool("verdict_feedback",
		mcp.WithDescription("Rate a reply produced this session. Use the session reference (D1, D2, ...) from verdict_respond or a raw outcome id."),
		mcp.WithString("ref",
			mcp.Description("Session reference (D1) or outcome id"),
			mcp.Required(),
		),
		mcp.WithNumber("rating",
			mcp.Description("Rating from 1 (poor) to 5 (excellent)"),
			mcp.Required(),
		),
		mcp.WithString("details",
			mcp.Description("Optional free-form feedback"),
		),
	), s.mcpHandler(s.handleFeedback))

	s.mcpServer.AddTool(mcp.NewTool("verdict_rankings",
		mcp.WithDescription("List capabilities ordered by learned effectiveness (success rate and satisfaction)."),
		mcp.WithString("strategy",
			mcp.Description("Rank for one strategy: quick-reply, deep-reason or defer"),
		),
		mcp.WithString("complexity",
			mcp.Description("Rank for one complexity: simple, complex or expert"),
		),
	), s.mcpHandler(s.handleRankings))

	s.mcpServer.AddTool(mcp.NewTool("verdict_thresholds",
		mcp.WithDescription("Show the adaptive confidence thresholds derived from a user's outcome history."),
		mcp.WithString("user_id",
			mcp.Description("User id"),
			mcp.Required(),
		),
		mcp.WithString("complexity",
			mcp.Description("Restrict history to one complexity"),
		),
	), s.mcpHandler(s.handleThresholds))

	s.mcpServer.AddTool(mcp.NewTool("verdict_insights",
		mcp.WithDescription("Summarize the outcome log: overall success, preferred strategies, effective capabilities, user segments and improvement opportunities."),
	), s.mcpHandler(s.handleInsights))

	s.mcpServer.AddTool(mcp.NewTool("verdict_stats",
		mcp.WithDescription("Show outcome store statistics and per-capability metrics."),
	), s.mcpHandler(s.handleStats))

	s.mcpServer.AddTool(mcp.NewTool("verdict_configure",
		mcp.WithDescription("Update tunable thresholds and budgets at runtime. Keys are dotted, e.g. quick_reply.threshold, escalation.budget, decision.ambient_threshold. Invalid updates leave the configuration unchanged."),
		mcp.WithObject("updates",
			mcp.Description("Map of dotted configuration keys to new values"),
			mcp.Required(),
		),
	), s.mcpHandler(s.handleConfigure))
}

type toolHandler func(ctx context.Context, args map[string]any) (*ToolResult, error)

func (s *Server) mcpHandler(h toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

func errorResult(format string, args ...any) *ToolResult {
	return &ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Internal handlers

func (s *Server) handleAnalyze(_ context.Context, args map[string]any) (*ToolResult, error) {
	msg, dc, err := parseMessage(args)
	if err != nil {
		return errorResult("%v", err), nil
	}

	d := s.client.Analyze(msg, dc)
	return &ToolResult{Content: formatDecision(d)}, nil
}

func (s *Server) handleRespond(ctx context.Context, args map[string]any) (*ToolResult, error) {
	userID := argString(args, "user_id")
	if userID == "" {
		return errorResult("user_id is required"), nil
	}

	msg, dc, err := parseMessage(args)
	if err != nil {
		return errorResult("%v", err), nil
	}
	personality, err := parsePersonality(args)
	if err != nil {
		return errorResult("%v", err), nil
	}
	load, err := argFloat(args, "system_load")
	if err != nil {
		return errorResult("%v", err), nil
	}

	result := s.client.Respond(ctx, verdict.RespondRequest{
		UserID:      userID,
		Message:     msg,
		Context:     dc,
		Personality: personality,
		SystemLoad:  load,
	})
	return &ToolResult{Content: formatRespondResult(result)}, nil
}

func (s *Server) handleFeedback(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ref := argString(args, "ref")
	if ref == "" {
		return errorResult("ref is required"), nil
	}
	if _, ok := args["rating"]; !ok {
		return errorResult("rating is required"), nil
	}
	rating, err := argInt(args, "rating")
	if err != nil {
		return errorResult("%v", err), nil
	}

	result, err := s.client.Feedback(ctx, verdict.FeedbackParams{
		Ref:     ref,
		Rating:  rating,
		Details: argString(args, "details"),
	})
	if err != nil {
		return errorResult("feedback failed: %v", err), nil
	}
	return &ToolResult{Content: formatFeedbackResult(result)}, nil
}

// Formatting functions

func formatDecision(d verdict.DecisionResult) string {
	var sb strings.Builder
	if d.ShouldRespond {
		sb.WriteString(fmt.Sprintf("Decision: respond (%s)\n", d.Strategy))
	} else {
		sb.WriteString(fmt.Sprintf("Decision: stay silent (%s)\n", d.Strategy))
	}
	sb.WriteString(fmt.Sprintf("  Confidence: %.2f\n", d.Confidence))
	sb.WriteString(fmt.Sprintf("  Token estimate: %d\n", d.TokenEstimate))
	if len(d.Reason) > 0 {
		sb.WriteString(fmt.Sprintf("  Signals: %s\n", strings.Join(d.Reason, ", ")))
	}
	return sb.String()
}

func formatRespondResult(r verdict.RespondResult) string {
	var sb strings.Builder
	sb.WriteString(formatDecision(r.Decision))

	esc := r.Escalation
	if esc == nil {
		return sb.String()
	}

	sb.WriteString("\n")
	if !esc.Triggered {
		sb.WriteString(fmt.Sprintf("Escalation: not needed (%s)\n", esc.Reason))
	} else {
		sb.WriteString(fmt.Sprintf("Escalation: %s, next action %s\n", esc.StopReason, esc.RecommendNextAction))
		sb.WriteString(fmt.Sprintf("  Confidence: %.2f -> %.2f (threshold %.2f)\n",
			esc.OriginalConfidence, esc.FinalConfidence, esc.Threshold))
		sb.WriteString(fmt.Sprintf("  Attempts: %d (%d successful)\n", esc.TotalAttempts, esc.SuccessfulAttempts))
		for _, a := range esc.EscalationPath {
			status := "ok"
			if !a.Success {
				status = "failed"
				if a.Error != "" {
					status = "failed: " + a.Error
				}
			}
			sb.WriteString(fmt.Sprintf("    %d. %s %.2f (%s)\n", a.Number, a.Capability, a.Confidence, status))
		}
		if esc.BestResult != nil {
			sb.WriteString(fmt.Sprintf("  Best [%s]: %s\n", esc.BestResult.Capability, truncate(esc.BestResult.Text, 200)))
		}
		for _, adj := range esc.Adjustments {
			sb.WriteString(fmt.Sprintf("  Adjustment: %s\n", adj))
		}
	}

	if r.SessionRef != "" {
		sb.WriteString(fmt.Sprintf("\nOutcome: %s\n", r.SessionRef))
		sb.WriteString("Use verdict_feedback with the session ref (D1, D2, ...) to rate the reply.")
	}
	return sb.String()
}

func formatFeedbackResult(r *verdict.FeedbackResult) string {
	name := r.OutcomeID
	if r.Ref != "" {
		name = r.Ref
	}
	if !r.Applied {
		return fmt.Sprintf("Feedback not applied: outcome %s not found.", name)
	}
	return fmt.Sprintf("Feedback recorded for %s:\n  Rating: %d\n  Satisfaction: %.2f", name, r.Rating, r.Satisfaction)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
