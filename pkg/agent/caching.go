// Package agent wires the caching middleware between the decision loop and
// the model producer. The middleware owns one conversation's bounded history
// window and implements the hybrid read/write protocol: precise context-key
// lookups first, shared content-key lookups second, and scope-dependent
// writes on miss.
package agent

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/droidpilot-ai/droidpilot/pkg/cache/keys"
	"github.com/droidpilot-ai/droidpilot/pkg/cache/sqlite"
	"github.com/droidpilot-ai/droidpilot/pkg/metrics"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// Cache key tiers, for diagnostics and metrics.
const (
	TierContext = "context"
	TierContent = "content"
)

// sharedWriteConfidence is the confidence at or above which a shared-scope
// answer is also written to its context key, so the exact follow-up hits
// the precise slot next time.
const sharedWriteConfidence = 0.7

// assistantWindowLimit bounds how much of an answer enters the window; the
// window exists for fingerprinting, not replay.
const assistantWindowLimit = 200

// Config controls a CachingProducer instance.
type Config struct {
	UserID        string
	SystemPrompt  string
	HistoryWindow int // turns kept in the conversation window
	MaxEntries    int // cache rows retained after pruning; 0 disables pruning
	Metrics       *metrics.Metrics
	Recorder      Recorder
}

// CachingProducer wraps a Producer with the semantic response cache. One
// instance serves one logical conversation at a time; the in-memory window
// is owned by a single caller. The underlying store is safe to share.
type CachingProducer struct {
	producer Producer
	store    *sqlite.Cache
	keys     *keys.Generator
	metrics  *metrics.Metrics
	recorder Recorder

	userID         string
	conversationID string
	window         []models.ChatMessage
	windowSize     int
	promptHash     string
	turnSeq        int
}

// NewCachingProducer creates the middleware and prunes the store once at
// startup. The store handle is injected so tests can use a temporary
// database per test; a nil store turns the middleware into a passthrough
// that still maintains the window and recording.
func NewCachingProducer(p Producer, store *sqlite.Cache, cfg Config) *CachingProducer {
	windowSize := cfg.HistoryWindow
	if windowSize <= 0 {
		windowSize = keys.DefaultHistoryWindow
	}
	userID := cfg.UserID
	if userID == "" {
		userID = "default"
	}

	c := &CachingProducer{
		producer:       p,
		store:          store,
		keys:           keys.New(windowSize),
		metrics:        cfg.Metrics,
		recorder:       cfg.Recorder,
		userID:         userID,
		conversationID: newConversationID(),
		windowSize:     windowSize,
		promptHash:     keys.HashPrompt(cfg.SystemPrompt),
	}

	if store != nil && cfg.MaxEntries > 0 {
		c.prune(cfg.MaxEntries)
	}
	return c
}

func newConversationID() string {
	return uuid.NewString()[:8]
}

func (c *CachingProducer) prune(maxEntries int) {
	if err := c.store.Cleanup(); err != nil {
		log.Printf("agent: cache cleanup: %v", err)
	}
	deleted, err := c.store.PruneToLimit(maxEntries)
	if err != nil {
		log.Printf("agent: cache prune: %v", err)
	} else if deleted > 0 {
		log.Printf("agent: pruned %d old cache entries", deleted)
	}
}

// ConversationID returns the current conversation identifier.
func (c *CachingProducer) ConversationID() string {
	return c.conversationID
}

// Window returns a copy of the current conversation window.
func (c *CachingProducer) Window() []models.ChatMessage {
	out := make([]models.ChatMessage, len(c.window))
	copy(out, c.window)
	return out
}

// Reset clears the window and mints a new conversation identifier.
// Persisted cache entries stay valid under their existing keys.
func (c *CachingProducer) Reset() {
	c.conversationID = newConversationID()
	c.window = nil
	c.turnSeq = 0
}

// SetSystemPrompt re-fingerprints the system prompt. Every future content
// key changes, which retires old shared entries without a sweep; they age
// out through TTL and pruning.
func (c *CachingProducer) SetSystemPrompt(prompt string) {
	c.promptHash = keys.HashPrompt(prompt)
}

// Think answers a query from cache when safe, calling the wrapped producer
// otherwise. Producer errors pass through unchanged and are never cached.
func (c *CachingProducer) Think(ctx context.Context, req Request) (models.ThinkResult, error) {
	kr := c.keys.Generate(c.userID, c.conversationID, req.Query, c.window, c.promptHash)
	c.metrics.RecordScope(string(kr.Scope))

	// With no store attached the middleware still owns the window and
	// history recording; it just never serves or saves answers.
	if c.store == nil {
		result, elapsed, err := c.callProducer(ctx, req)
		if err != nil {
			return models.ThinkResult{}, err
		}
		c.record(ctx, req.Query, result, kr, "", elapsed)
		return result, nil
	}

	// Time-sensitive queries skip the cache entirely, reads and writes both.
	if kr.Scope == keys.ScopeBlacklisted {
		result, _, err := c.callProducer(ctx, req)
		if err != nil {
			return models.ThinkResult{}, err
		}
		c.record(ctx, req.Query, result, kr, "", 0)
		return result, nil
	}

	// Context key first: a precise per-conversation hit beats the shared slot.
	if kr.ContextKey != "" {
		if result, ok := c.lookup(kr.ContextKey); ok {
			c.metrics.RecordCacheHit(TierContext)
			c.record(ctx, req.Query, result, kr, TierContext, 0)
			return result, nil
		}
	}
	if kr.Scope == keys.ScopeShared && kr.ContentKey != "" {
		if result, ok := c.lookup(kr.ContentKey); ok {
			c.metrics.RecordCacheHit(TierContent)
			c.record(ctx, req.Query, result, kr, TierContent, 0)
			return result, nil
		}
	}

	c.metrics.RecordCacheMiss(string(kr.Scope))
	result, elapsed, err := c.callProducer(ctx, req)
	if err != nil {
		return models.ThinkResult{}, err
	}

	c.write(kr, req.Query, result)
	c.record(ctx, req.Query, result, kr, "", elapsed)
	return result, nil
}

// lookup reads one key and deserializes the stored result. Corrupt values
// count as misses; the row is dropped so it cannot poison later reads.
func (c *CachingProducer) lookup(key string) (models.ThinkResult, bool) {
	data, ok := c.store.Get(key)
	if !ok {
		return models.ThinkResult{}, false
	}
	var result models.ThinkResult
	if err := json.Unmarshal(data, &result); err != nil {
		log.Printf("agent: cache deserialize %s: %v", key, err)
		if delErr := c.store.Delete(key); delErr != nil {
			log.Printf("agent: cache drop %s: %v", key, delErr)
		}
		return models.ThinkResult{}, false
	}
	return result, true
}

// callProducer invokes the wrapped producer and appends the exchange to the
// conversation window. The producer call happens outside any store
// transaction.
func (c *CachingProducer) callProducer(ctx context.Context, req Request) (models.ThinkResult, int64, error) {
	req.History = c.Window()

	start := time.Now()
	result, err := c.producer.Produce(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.RecordProducer("error", elapsed.Seconds())
		return models.ThinkResult{}, 0, err
	}
	c.metrics.RecordProducer("ok", elapsed.Seconds())

	c.appendWindow(models.ChatMessage{Role: "user", Content: req.Query})
	c.appendWindow(models.ChatMessage{Role: "assistant", Content: truncate(result.Content, assistantWindowLimit)})

	return result, elapsed.Milliseconds(), nil
}

func (c *CachingProducer) appendWindow(msg models.ChatMessage) {
	c.window = append(c.window, msg)
	if len(c.window) > c.windowSize {
		c.window = c.window[len(c.window)-c.windowSize:]
	}
}

// write applies the scope-specific write policy. Only final answers are
// cached; tool calls and errors never persist. Write failures are logged
// and swallowed: a missed write only costs a future producer call.
func (c *CachingProducer) write(kr keys.KeyResult, query string, result models.ThinkResult) {
	if !result.Cacheable() {
		return
	}

	// Usage belongs to the call that produced the answer, not to replays.
	cached := result
	cached.Usage = nil

	data, err := json.Marshal(cached)
	if err != nil {
		log.Printf("agent: cache serialize: %v", err)
		return
	}

	metadata := map[string]string{
		"user_id": c.userID,
		"scope":   string(kr.Scope),
		"query":   truncate(query, 50),
	}

	switch kr.Scope {
	case keys.ScopeShared:
		if kr.ContentKey != "" {
			if err := c.store.Set(kr.ContentKey, data, 0, metadata); err != nil {
				log.Printf("agent: cache write content: %v", err)
			}
		}
		// A high-confidence shared answer also serves as a precise
		// context hit for the exact same follow-up.
		if kr.Confidence >= sharedWriteConfidence && kr.ContextKey != "" {
			if err := c.store.Set(kr.ContextKey, data, 0, metadata); err != nil {
				log.Printf("agent: cache write context: %v", err)
			}
		}
	case keys.ScopeContextual:
		// Never populate the shared slot with something personal.
		if kr.ContextKey != "" {
			if err := c.store.Set(kr.ContextKey, data, 0, metadata); err != nil {
				log.Printf("agent: cache write context: %v", err)
			}
		}
	}
}

func (c *CachingProducer) record(ctx context.Context, query string, result models.ThinkResult, kr keys.KeyResult, tier string, latencyMs int64) {
	if c.recorder == nil {
		return
	}

	turn := models.Turn{
		ConversationID: c.conversationID,
		Query:          query,
		Response:       truncate(result.Content, 2000),
		Action:         result.Action,
		Scope:          string(kr.Scope),
		CacheTier:      tier,
		LatencyMs:      latencyMs,
		CreatedAt:      time.Now().UTC(),
	}
	if tier == "" && result.Usage != nil {
		turn.PromptTokens = result.Usage.PromptTokens
		turn.CompletionTokens = result.Usage.CompletionTokens
	}

	if err := c.recorder.RecordTurn(ctx, turn); err != nil {
		log.Printf("agent: record turn: %v", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
