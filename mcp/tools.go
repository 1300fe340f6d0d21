// Package mcp provides optional MCP (Model Context Protocol) tool adapters for verdict.
//
// This package offers two approaches:
//
//  1. Full MCP Server (server.go) - RECOMMENDED
//     Use NewServer() for a complete MCP server implementation using mcp-go
//     with stdio transport.
//
//  2. Registry Pattern (tools.go)
//     Use RegisterTools() for framework-agnostic integration where the host
//     already has its own MCP registry.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Registry is an interface for MCP tool registration.
// Implement this interface to integrate verdict with your MCP framework.
type Registry interface {
	Register(tool Tool)
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema defines the JSON schema for tool parameters.
type Schema map[string]ParameterDef

// ParameterDef defines a single parameter.
type ParameterDef struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Default     interface{}       `json:"default,omitempty"`
	Items       map[string]string `json:"items,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
}

// Handler is a function that handles tool invocations.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// RegisterTools registers the message-path tools of s with an external
// registry. Handlers return the tool's text output; tool-level failures are
// returned as errors.
func RegisterTools(registry Registry, s *Server) {
	message := Schema{
		"text":                    {Type: "string", Description: "The message text", Required: true},
		"channel":                 {Type: "string", Description: "Where the message was posted", Default: "ambient", Enum: []string{"direct", "ambient", "personal-thread"}},
		"opted_in":                {Type: "boolean", Description: "Whether the user has opted in", Default: true},
		"mentioned_bot":           {Type: "boolean", Description: "Whether the message mentions the bot"},
		"reply_to_bot":            {Type: "boolean", Description: "Whether the message replies to the bot"},
		"mention_count":           {Type: "integer", Description: "Number of users mentioned"},
		"mentions_everyone":       {Type: "boolean", Description: "Whether the message mentions everyone"},
		"attachment_count":        {Type: "integer", Description: "Number of attachments"},
		"last_reply_at":           {Type: "string", Description: "RFC3339 time of the last bot reply to this user"},
		"recent_user_messages":    {Type: "integer", Description: "Recent messages from this user"},
		"recent_channel_messages": {Type: "integer", Description: "Recent messages in the channel"},
	}

	registry.Register(Tool{
		Name:        "verdict_analyze",
		Description: "Decide whether and how the bot should respond to a message",
		Parameters:  message,
		Handler:     makeHandler(s.handleAnalyze),
	})

	respond := Schema{
		"user_id":               {Type: "string", Description: "Stable id of the message author", Required: true},
		"relationship_strength": {Type: "number", Description: "Relationship strength (0.0-1.0)"},
		"mood":                  {Type: "string", Description: "User mood", Enum: []string{"neutral", "happy", "frustrated", "curious"}},
		"supportiveness":        {Type: "number", Description: "Persona supportiveness (0.0-1.0)"},
		"system_load":           {Type: "number", Description: "Current system load (0.0-1.0)"},
	}
	for name, def := range message {
		respond[name] = def
	}
	registry.Register(Tool{
		Name:        "verdict_respond",
		Description: "Analyze a message and escalate low-confidence replies",
		Parameters:  respond,
		Handler:     makeHandler(s.handleRespond),
	})

	registry.Register(Tool{
		Name:        "verdict_feedback",
		Description: "Rate a reply produced this session",
		Parameters: Schema{
			"ref":     {Type: "string", Description: "Session reference (D1) or outcome id", Required: true},
			"rating":  {Type: "integer", Description: "Rating from 1 to 5", Required: true},
			"details": {Type: "string", Description: "Optional free-form feedback"},
		},
		Handler: makeHandler(s.handleFeedback),
	})
}

func makeHandler(h toolHandler) Handler {
	return func(ctx context.Context, rawParams json.RawMessage) (interface{}, error) {
		args := map[string]any{}
		if len(rawParams) > 0 {
			if err := json.Unmarshal(rawParams, &args); err != nil {
				return nil, fmt.Errorf("parse params: %w", err)
			}
		}

		result, err := h(ctx, args)
		if err != nil {
			return nil, err
		}
		if result.IsError {
			return nil, errors.New(result.Content)
		}
		return result.Content, nil
	}
}
