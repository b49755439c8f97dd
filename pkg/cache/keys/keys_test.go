package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "foo", Normalize("  Foo?  "))
	assert.Equal(t, "how to center a div", Normalize("How  to center\ta div?!"))
	assert.Equal(t, "hello world", Normalize("Hello World..."))

	// Idempotence
	for _, s := range []string{"  Foo?  ", "WHAT IS  Go", "xin chào!!!"} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "normalize must be idempotent for %q", s)
	}
}

func TestBlacklisted(t *testing.T) {
	for _, q := range []string{
		"What time is it?",
		"Mấy giờ rồi?",
		"bitcoin price today",
		"Thời tiết Hà Nội",
		"any trending news?",
	} {
		assert.True(t, Blacklisted(q), "expected blacklisted: %q", q)
	}
	assert.False(t, Blacklisted("How to center a div in CSS?"))
}

func TestDetectScope(t *testing.T) {
	g := New(5)
	history := []models.ChatMessage{{Role: "user", Content: "previous question"}}

	tests := []struct {
		name    string
		query   string
		history []models.ChatMessage
		scope   Scope
		minConf float64
	}{
		{"css factual", "How to center a div in CSS?", nil, ScopeShared, 0.6},
		{"python factual", "Python function to sort a list", nil, ScopeShared, 0.6},
		{"personal", "Show my account history", nil, ScopeContextual, 0.9},
		{"personal vietnamese", "Tài khoản của tôi thế nào?", nil, ScopeContextual, 0.9},
		{"blacklisted time", "What time is it?", nil, ScopeBlacklisted, 1.0},
		{"blacklisted with history", "what time is it", history, ScopeBlacklisted, 1.0},
		{"short follow-up", "tell me more", history, ScopeContextual, 0.8},
		{"single factual", "explain quicksort", nil, ScopeShared, 0.6},
		{"no signal", "open the settings screen and enable dark mode", nil, ScopeShared, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, conf := g.DetectScope(tt.query, tt.history)
			assert.Equal(t, tt.scope, scope)
			assert.GreaterOrEqual(t, conf, tt.minConf)
			assert.LessOrEqual(t, conf, 1.0)
		})
	}
}

func TestHistoryFingerprint(t *testing.T) {
	g := New(5)

	assert.Equal(t, "empty", g.HistoryFingerprint(nil))
	assert.Equal(t, "empty", g.HistoryFingerprint([]models.ChatMessage{}))

	h1 := []models.ChatMessage{
		{Role: "user", Content: "open settings"},
		{Role: "assistant", Content: "done"},
	}
	h2 := []models.ChatMessage{
		{Role: "user", Content: "open settings"},
		{Role: "assistant", Content: "done"},
	}
	fp1 := g.HistoryFingerprint(h1)
	fp2 := g.HistoryFingerprint(h2)
	require.Equal(t, fp1, fp2, "identical histories must fingerprint identically")
	assert.Len(t, fp1, 12)
	assert.NotEqual(t, "empty", fp1)

	h3 := append(h1, models.ChatMessage{Role: "user", Content: "and wifi"})
	assert.NotEqual(t, fp1, g.HistoryFingerprint(h3))
}

func TestHistoryFingerprintWindow(t *testing.T) {
	g := New(2)

	old := []models.ChatMessage{
		{Role: "user", Content: "ancient turn"},
		{Role: "user", Content: "recent one"},
		{Role: "assistant", Content: "recent two"},
	}
	// Turns outside the window must not affect the fingerprint.
	trimmed := old[1:]
	assert.Equal(t, g.HistoryFingerprint(trimmed), g.HistoryFingerprint(old))
}

func TestGenerateDeterministic(t *testing.T) {
	g := New(5)
	history := []models.ChatMessage{{Role: "user", Content: "hi"}}

	r1 := g.Generate("u1", "c1", "How to center a div in CSS?", history, "abcdef1234567890")
	r2 := g.Generate("u1", "c1", "How to center a div in CSS?", history, "abcdef1234567890")
	assert.Equal(t, r1, r2)

	require.NotEmpty(t, r1.ContentKey)
	require.NotEmpty(t, r1.ContextKey)
	assert.True(t, len(r1.ContentKey) > 8 && r1.ContentKey[:8] == "content:")
	assert.True(t, len(r1.ContextKey) > 8 && r1.ContextKey[:8] == "context:")
}

func TestGenerateNormalizationCollapses(t *testing.T) {
	g := New(5)

	r1 := g.Generate("u1", "c1", "how to center a div in css", nil, "hash")
	r2 := g.Generate("u1", "c1", "  How to center a div in CSS?  ", nil, "hash")
	assert.Equal(t, r1.ContentKey, r2.ContentKey)
	assert.Equal(t, r1.ContextKey, r2.ContextKey)
}

func TestGenerateUserIsolation(t *testing.T) {
	g := New(5)

	r1 := g.Generate("alice", "c1", "show my account history", nil, "hash")
	r2 := g.Generate("bob", "c2", "show my account history", nil, "hash")

	assert.Equal(t, ScopeContextual, r1.Scope)
	assert.Equal(t, ScopeContextual, r2.Scope)
	assert.NotEqual(t, r1.ContextKey, r2.ContextKey, "different users must get different context keys")
	assert.Equal(t, r1.ContentKey, r2.ContentKey, "content key is identity-free by construction")
}

func TestGenerateBlacklisted(t *testing.T) {
	g := New(5)

	r := g.Generate("u1", "c1", "What time is it?", nil, "hash")
	assert.Equal(t, ScopeBlacklisted, r.Scope)
	assert.Equal(t, 1.0, r.Confidence)
	assert.Empty(t, r.ContentKey)
	assert.Empty(t, r.ContextKey)
}

func TestGeneratePromptHashChangesContentKey(t *testing.T) {
	g := New(5)

	r1 := g.Generate("u1", "c1", "explain quicksort", nil, HashPrompt("prompt one"))
	r2 := g.Generate("u1", "c1", "explain quicksort", nil, HashPrompt("prompt two"))
	assert.NotEqual(t, r1.ContentKey, r2.ContentKey)
}

func TestHashPrompt(t *testing.T) {
	h1 := HashPrompt("you are an android automation agent")
	h2 := HashPrompt("you are an android automation agent")
	h3 := HashPrompt("something else")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
