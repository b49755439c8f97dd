package models

import "time"

// Conversation groups the turns of one agent conversation.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	TurnCount    int       `json:"turn_count"`
	CacheHits    int       `json:"cache_hits"`
	TotalTokens  int       `json:"total_tokens"`
}

// Turn records a single request/response exchange within a conversation.
type Turn struct {
	ID               int64     `json:"id"`
	ConversationID   string    `json:"conversation_id"`
	Seq              int       `json:"seq"`
	Query            string    `json:"query"`
	Response         string    `json:"response,omitempty"`
	Action           string    `json:"action"`
	Scope            string    `json:"scope,omitempty"`
	CacheTier        string    `json:"cache_tier,omitempty"` // "context", "content", or "" on miss
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}
