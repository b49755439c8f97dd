package mcp

import (
	"context"
	"encoding/json"
)

// Tool argument structs.

type userArgs struct {
	User string `json:"user"`
}

type conversationDetailArgs struct {
	ConversationID string `json:"conversation_id"`
}

// adminHandler handles one of the built-in introspection tools.
type adminHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// adminHandlers maps built-in tool names to their handlers. Device tools
// are dispatched through the registry instead.
var adminHandlers = map[string]adminHandler{
	"droidpilot_cache_stats":         handleCacheStats,
	"droidpilot_conversations":       handleConversations,
	"droidpilot_conversation_detail": handleConversationDetail,
	"droidpilot_budget":              handleBudget,
}

// adminTools is appended to the device tool definitions in tools/list.
var adminTools = []ToolDefinition{
	{
		Name:        "droidpilot_cache_stats",
		Description: "Show response cache statistics (entries, hits, misses, hit rate).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "droidpilot_conversations",
		Description: "List recorded agent conversations, optionally filtered by user.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user": map[string]any{
					"type":        "string",
					"description": "Filter by user (optional, omit for all users)",
				},
			},
		},
	},
	{
		Name:        "droidpilot_conversation_detail",
		Description: "Show per-turn detail for one conversation, including cache tier and token usage.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"conversation_id"},
			"properties": map[string]any{
				"conversation_id": map[string]any{
					"type":        "string",
					"description": "The conversation ID to inspect",
				},
			},
		},
	},
	{
		Name:        "droidpilot_budget",
		Description: "Show token budget status (usage vs limits) for a user's applicable policies.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"user"},
			"properties": map[string]any{
				"user": map[string]any{
					"type":        "string",
					"description": "The user to report budget status for",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.cache == nil {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats()
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleConversations(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.history == nil {
		return textResult("History is not configured.")
	}
	var args userArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	convs, err := s.history.ListConversations(ctx, args.User)
	if err != nil {
		return errorResult("Error fetching conversations: " + err.Error())
	}
	return textResult(formatConversations(convs))
}

func handleConversationDetail(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.history == nil {
		return textResult("History is not configured.")
	}
	var args conversationDetailArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.ConversationID == "" {
		return errorResult("conversation_id is required")
	}
	turns, err := s.history.ConversationTurns(ctx, args.ConversationID)
	if err != nil {
		return errorResult("Error fetching conversation detail: " + err.Error())
	}
	return textResult(formatTurns(turns))
}

func handleBudget(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.enforcer == nil {
		return textResult("Budget enforcement is not configured.")
	}
	var args userArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.User == "" {
		return errorResult("user is required")
	}
	statuses, err := s.enforcer.Status(ctx, args.User)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(statuses))
}
