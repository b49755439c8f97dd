// Package keys decides whether a query is safe to answer from cache and
// under which identity scope, and derives the cache keys for it.
//
// Two keys are produced per request. The content key hashes only the
// normalized query and the system-prompt fingerprint, so identical factual
// questions from different users land in the same slot. The context key
// additionally hashes user, conversation, and a fingerprint of recent
// history, giving a precise per-conversation slot.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// Scope classifies a query's cache-sharing eligibility.
type Scope string

const (
	ScopeShared      Scope = "shared"
	ScopeContextual  Scope = "contextual"
	ScopeBlacklisted Scope = "blacklisted"
)

// blacklistKeywords force a cache skip: time-, price-, weather- and
// live-data queries are wrong to cache, not just low-value. Bilingual
// (Vietnamese + English) per the original deployment.
var blacklistKeywords = []string{
	// time
	"mấy giờ", "thời gian", "hôm nay", "hôm qua", "bây giờ",
	"what time", "current time", "today", "now", "yesterday",
	// price / stock
	"giá", "bitcoin", "stock", "price", "crypto", "exchange rate", "tỷ giá",
	// weather
	"thời tiết", "weather", "nhiệt độ", "temperature",
	// real-time
	"news", "tin tức", "live", "stream", "real-time", "trending",
}

// personalIndicators mark queries that reference the asking user; sharing
// their answers across users would leak or mismatch personal context.
var personalIndicators = []string{
	"tôi", "của mình", "của tao", "tài khoản", "lịch sử", "profile",
	"my", "mine", "i ", "i'", "me ", "account", "history", "favorite",
}

// factualIndicators mark technical or definitional queries that are safe
// for the shared cache.
var factualIndicators = []string{
	// programming
	"python", "javascript", "rust", "golang", "java", "c++", "typescript",
	"function", "class", "method", "algorithm", "code", "syntax", "error",
	"html", "css", "api", "database", "sql", "json", "regex",
	// definitions
	"là gì", "what is", "how to", "explain", "define", "tutorial",
	"giải thích", "hướng dẫn", "cách", "làm sao", "tại sao",
}

var (
	trailingPunct = regexp.MustCompile(`[.?!,;:]+$`)
	innerSpace    = regexp.MustCompile(`\s+`)
)

// KeyResult holds the derived keys and scope for one request. Both keys
// are empty when the scope is blacklisted.
type KeyResult struct {
	ContentKey string
	ContextKey string
	Scope      Scope
	Confidence float64
}

// Generator derives cache scopes and keys. The zero value is not usable;
// construct with New.
type Generator struct {
	historyWindow int
}

// DefaultHistoryWindow is the number of recent turns fingerprinted into
// the context key.
const DefaultHistoryWindow = 5

// New creates a Generator. A window of 0 or less falls back to the default.
func New(historyWindow int) *Generator {
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Generator{historyWindow: historyWindow}
}

// Normalize lowercases, strips trailing punctuation, and collapses internal
// whitespace. Idempotent.
func Normalize(query string) string {
	s := strings.ToLower(strings.TrimSpace(query))
	s = trailingPunct.ReplaceAllString(s, "")
	s = innerSpace.ReplaceAllString(s, " ")
	return s
}

// Blacklisted reports whether the query contains a time-sensitive keyword.
func Blacklisted(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range blacklistKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func countMatches(lower string, indicators []string) int {
	n := 0
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			n++
		}
	}
	return n
}

// DetectScope classifies a query against the keyword heuristics and returns
// the scope with a confidence in [0,1]. The heuristics are a policy, not a
// law; the blacklist check dominates everything else.
func (g *Generator) DetectScope(query string, history []models.ChatMessage) (Scope, float64) {
	if Blacklisted(query) {
		return ScopeBlacklisted, 1.0
	}

	lower := strings.ToLower(query)
	personal := countMatches(lower, personalIndicators)
	factual := countMatches(lower, factualIndicators)

	if personal > 0 {
		return ScopeContextual, min(0.9+0.05*float64(personal), 1.0)
	}
	if factual >= 2 {
		return ScopeShared, min(0.7+0.1*float64(factual), 1.0)
	}

	// Short query with prior turns reads like a follow-up ("tell me more").
	if len(strings.Fields(query)) <= 5 && len(history) > 0 {
		return ScopeContextual, 0.8
	}
	if factual == 1 {
		return ScopeShared, 0.6
	}

	// No signal: default to shared. The dominant workload is factual
	// automation queries, so absent evidence of personalization we share.
	return ScopeShared, 0.5
}

// emptyFingerprint is the sentinel for "no history". It keeps the absence
// of history distinguishable from any hashed value.
const emptyFingerprint = "empty"

// HistoryFingerprint digests the shape of the most recent turns: the role
// initial sequence, the turn count, and the first 20 normalized characters
// of each turn. Full content never enters the key.
func (g *Generator) HistoryFingerprint(history []models.ChatMessage) string {
	if len(history) == 0 {
		return emptyFingerprint
	}

	recent := history
	if len(recent) > g.historyWindow {
		recent = recent[len(recent)-g.historyWindow:]
	}

	var roleSeq strings.Builder
	parts := make([]string, 0, len(recent))
	for _, msg := range recent {
		role := "?"
		if msg.Role != "" {
			role = strings.ToLower(msg.Role[:1])
		}
		roleSeq.WriteString(role)

		snippet := msg.Content
		if len(snippet) > 20 {
			snippet = snippet[:20]
		}
		parts = append(parts, innerSpace.ReplaceAllString(strings.TrimSpace(strings.ToLower(snippet)), " "))
	}

	material := roleSeq.String() + "|" + strconv.Itoa(len(recent)) + "|" + strings.Join(parts, "|")
	return shortHash(material, 12)
}

// Generate derives the content and context keys for a request. Blacklisted
// queries get no keys at all.
func (g *Generator) Generate(userID, conversationID, query string, history []models.ChatMessage, systemPromptHash string) KeyResult {
	scope, confidence := g.DetectScope(query, history)
	if scope == ScopeBlacklisted {
		return KeyResult{Scope: scope, Confidence: confidence}
	}

	normalized := Normalize(query)

	promptPrefix := systemPromptHash
	if len(promptPrefix) > 8 {
		promptPrefix = promptPrefix[:8]
	}
	contentKey := "content:" + shortHash(promptPrefix+"|"+normalized, 16)

	fp := g.HistoryFingerprint(history)
	contextKey := "context:" + shortHash(userID+"|"+conversationID+"|"+fp+"|"+normalized, 16)

	return KeyResult{
		ContentKey: contentKey,
		ContextKey: contextKey,
		Scope:      scope,
		Confidence: confidence,
	}
}

// HashPrompt returns the fingerprint of a system prompt used in content
// keys. Changing the prompt changes every future content key, which retires
// old shared entries without an explicit invalidation sweep.
func HashPrompt(prompt string) string {
	h := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(h[:])
}

func shortHash(material string, n int) string {
	h := sha256.Sum256([]byte(material))
	return hex.EncodeToString(h[:])[:n]
}
