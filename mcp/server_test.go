package mcp_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/verdict"
	verdictmcp "github.com/hyperengineering/verdict/mcp"
)

func newTestClient(t *testing.T, confidence float64) *verdict.Client {
	t.Helper()

	cfg := verdict.Config{
		DataPath: filepath.Join(t.TempDir(), "test.db"),
		Capabilities: []verdict.CapabilityConfig{
			{ID: "fast", Tier: verdict.TierSimple},
		},
	}
	fast := verdict.CapabilityFunc{
		Name: "fast",
		Fn: func(context.Context, string, verdict.InvokeParams) (verdict.CapabilityResult, error) {
			return verdict.CapabilityResult{Success: true, Output: "goroutines are green threads", Confidence: confidence}, nil
		},
	}

	client, err := verdict.New(cfg, verdict.WithCapability(fast))
	if err != nil {
		t.Fatalf("verdict.New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// =============================================================================
// Server Initialization Tests
// =============================================================================

func TestServer_NewServer(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))
	if server == nil {
		t.Fatal("NewServer() returned nil")
	}
}

func TestServer_ToolsList(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))
	tools := server.ListTools()

	expectedTools := []string{
		"verdict_analyze", "verdict_respond", "verdict_feedback", "verdict_rankings",
		"verdict_thresholds", "verdict_insights", "verdict_stats", "verdict_configure",
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("ListTools() returned %d tools, want %d", len(tools), len(expectedTools))
	}

	toolNames := make(map[string]bool)
	for _, tool := range tools {
		toolNames[tool.Name] = true
	}
	for _, expected := range expectedTools {
		if !toolNames[expected] {
			t.Errorf("Tool %q not found in registered tools", expected)
		}
	}
}

// =============================================================================
// Tool Execution Tests
// =============================================================================

func TestTool_Analyze_Mention(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_analyze", map[string]any{
		"text":          "hey bot, can you help me with this?",
		"mentioned_bot": true,
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "Decision: respond (quick-reply)") {
		t.Errorf("content = %q, want respond decision", result.Content)
	}
	if !strings.Contains(result.Content, "mention") {
		t.Errorf("content = %q, want mention signal", result.Content)
	}
}

func TestTool_Analyze_NotOptedIn(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_analyze", map[string]any{
		"text":     "hello there, anyone around?",
		"opted_in": false,
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !strings.Contains(result.Content, "stay silent") {
		t.Errorf("content = %q, want silent decision", result.Content)
	}
	if !strings.Contains(result.Content, "not_opted_in") {
		t.Errorf("content = %q, want not_opted_in signal", result.Content)
	}
}

func TestTool_Analyze_MissingText(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_analyze", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for missing text")
	}
}

func TestTool_Analyze_InvalidChannel(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_analyze", map[string]any{
		"text":    "how does this work?",
		"channel": "carrier-pigeon",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for invalid channel")
	}
}

func TestTool_Respond_Escalates(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_respond", map[string]any{
		"user_id": "u1",
		"text":    "can anyone explain how goroutines work?",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content)
	}

	for _, want := range []string{"accepted", "proceed_with_best", "fast", "Outcome: D1"} {
		if !strings.Contains(result.Content, want) {
			t.Errorf("content missing %q:\n%s", want, result.Content)
		}
	}
}

func TestTool_Respond_MissingUser(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_respond", map[string]any{
		"text": "can anyone explain how goroutines work?",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for missing user_id")
	}
}

func TestTool_Respond_InvalidMood(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_respond", map[string]any{
		"user_id": "u1",
		"text":    "can anyone explain how goroutines work?",
		"mood":    "hangry",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for invalid mood")
	}
}

func TestTool_Feedback_InvalidRef(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_feedback", map[string]any{
		"ref":    "D99",
		"rating": float64(4),
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for unknown session ref")
	}
}

func TestTool_Feedback_MissingRating(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_feedback", map[string]any{
		"ref": "D1",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for missing rating")
	}
}

func TestTool_Thresholds_InsufficientHistory(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_thresholds", map[string]any{
		"user_id": "nobody",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !strings.Contains(result.Content, "Confidence: 0.60") {
		t.Errorf("content = %q, want base confidence threshold", result.Content)
	}
	if !strings.Contains(result.Content, "insufficient history") {
		t.Errorf("content = %q, want insufficient history reason", result.Content)
	}
}

func TestTool_Rankings_NoHistory(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_rankings", map[string]any{})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !strings.Contains(result.Content, "1. fast (no history)") {
		t.Errorf("content = %q, want fast without history", result.Content)
	}
}

func TestTool_Rankings_InvalidStrategy(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_rankings", map[string]any{
		"strategy": "ignore",
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for ignore strategy")
	}
}

func TestTool_Insights_Empty(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_insights", nil)
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.Content != "No outcomes recorded yet." {
		t.Errorf("content = %q", result.Content)
	}
}

func TestTool_Configure(t *testing.T) {
	client := newTestClient(t, 0.9)
	server := verdictmcp.NewServer(client)

	result, err := server.CallTool(context.Background(), "verdict_configure", map[string]any{
		"updates": map[string]any{
			"quick_reply.threshold": 0.7,
			"escalation.budget":     "45s",
		},
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content)
	}

	cfg := client.Config()
	if cfg.Escalation.QuickReply.Threshold != 0.7 {
		t.Errorf("QuickReply.Threshold = %v, want 0.7", cfg.Escalation.QuickReply.Threshold)
	}
	if cfg.Escalation.Budget.String() != "45s" {
		t.Errorf("Budget = %v, want 45s", cfg.Escalation.Budget)
	}
}

func TestTool_Configure_UnknownKey(t *testing.T) {
	client := newTestClient(t, 0.9)
	server := verdictmcp.NewServer(client)

	result, err := server.CallTool(context.Background(), "verdict_configure", map[string]any{
		"updates": map[string]any{"quick_reply.threshold": 0.7, "bogus.key": 1},
	})
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError for unknown key")
	}
	if got := client.Config().Escalation.QuickReply.Threshold; got != 0.6 {
		t.Errorf("QuickReply.Threshold = %v, want unchanged 0.6", got)
	}
}

func TestTool_Unknown(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	result, err := server.CallTool(context.Background(), "verdict_nope", nil)
	if err != nil {
		t.Fatalf("CallTool() returned error: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError for unknown tool")
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestIntegration_RespondThenFeedback(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))
	ctx := context.Background()

	if _, err := server.CallTool(ctx, "verdict_respond", map[string]any{
		"user_id": "u1",
		"text":    "can anyone explain how goroutines work?",
	}); err != nil {
		t.Fatalf("respond: %v", err)
	}

	result, err := server.CallTool(ctx, "verdict_feedback", map[string]any{
		"ref":     "d1",
		"rating":  float64(5),
		"details": "spot on",
	})
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "Satisfaction: 1.00") {
		t.Errorf("content = %q, want satisfaction 1.00", result.Content)
	}

	stats, err := server.CallTool(ctx, "verdict_stats", nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(stats.Content, "Feedback: 1") {
		t.Errorf("stats = %q, want one feedback", stats.Content)
	}
}

// =============================================================================
// Registry Pattern Tests
// =============================================================================

type recordingRegistry struct {
	tools map[string]verdictmcp.Tool
}

func (r *recordingRegistry) Register(tool verdictmcp.Tool) {
	r.tools[tool.Name] = tool
}

func TestRegisterTools(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))
	reg := &recordingRegistry{tools: map[string]verdictmcp.Tool{}}

	verdictmcp.RegisterTools(reg, server)

	for _, name := range []string{"verdict_analyze", "verdict_respond", "verdict_feedback"} {
		if _, ok := reg.tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
	if !reg.tools["verdict_respond"].Parameters["text"].Required {
		t.Error("verdict_respond should inherit the required text parameter")
	}

	out, err := reg.tools["verdict_analyze"].Handler(context.Background(), json.RawMessage(`{"text":"hey bot?","mentioned_bot":true}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if s, _ := out.(string); !strings.Contains(s, "Decision: respond") {
		t.Errorf("output = %v, want respond decision", out)
	}

	if _, err := reg.tools["verdict_feedback"].Handler(context.Background(), json.RawMessage(`{"ref":"D42","rating":3}`)); err == nil {
		t.Error("expected error for unknown session ref")
	}
}

// =============================================================================
// Protocol-Level Tests
// =============================================================================

func TestProtocol_Initialize(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	initRequest := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test-client","version":"1.0.0"}}}`

	response := server.HandleMessage(context.Background(), []byte(initRequest))
	if response == nil {
		t.Fatal("HandleMessage() returned nil response for initialize request")
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	var respMap map[string]any
	if err := json.Unmarshal(respBytes, &respMap); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	if _, hasError := respMap["error"]; hasError {
		t.Errorf("Initialize response has error: %v", respMap["error"])
	}

	result, ok := respMap["result"].(map[string]any)
	if !ok {
		t.Fatalf("Initialize response missing result")
	}

	serverInfo, ok := result["serverInfo"].(map[string]any)
	if !ok {
		t.Fatal("Initialize result missing serverInfo")
	}
	if serverInfo["name"] != "verdict" {
		t.Errorf("serverInfo.name = %v, want 'verdict'", serverInfo["name"])
	}

	capabilities, ok := result["capabilities"].(map[string]any)
	if !ok {
		t.Fatal("Initialize result missing capabilities")
	}
	if _, hasTools := capabilities["tools"]; !hasTools {
		t.Error("Capabilities should include tools")
	}
}

func TestProtocol_InvalidMethod(t *testing.T) {
	server := verdictmcp.NewServer(newTestClient(t, 0.9))

	response := server.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"unknown/method","params":{}}`))
	if response == nil {
		t.Fatal("HandleMessage() returned nil response for invalid method request")
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	var respMap map[string]any
	if err := json.Unmarshal(respBytes, &respMap); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}

	errorObj, hasError := respMap["error"].(map[string]any)
	if !hasError {
		t.Fatal("Response should have error for unknown method")
	}
	errorCode, ok := errorObj["code"].(float64)
	if !ok {
		t.Fatalf("Error missing code field")
	}
	if int(errorCode) != -32601 {
		t.Errorf("Error code = %v, want -32601 (METHOD_NOT_FOUND)", errorCode)
	}
}
