package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droidpilot-ai/droidpilot/pkg/agent"
	"github.com/droidpilot-ai/droidpilot/pkg/config"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
	"github.com/droidpilot-ai/droidpilot/pkg/router"
	"github.com/droidpilot-ai/droidpilot/pkg/tools"
)

// fakeCompletion serves a canned chat completion response and captures the
// request body for assertions.
func fakeCompletion(t *testing.T, response map[string]any) (*httptest.Server, *map[string]any) {
	t.Helper()
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func completionBody(message map[string]any) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"model":   "gemma3:12b",
		"choices": []map[string]any{{"index": 0, "message": message, "finish_reason": "stop"}},
		"usage":   map[string]any{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
	}
}

func TestProduceFinalAnswer(t *testing.T) {
	srv, captured := fakeCompletion(t, completionBody(map[string]any{
		"role":    "assistant",
		"content": "Use flexbox with justify-content and align-items set to center.",
	}))

	p := NewOpenAI(config.ProviderConfig{Name: "local", URL: srv.URL + "/v1"}, "gemma3:12b", "you are a helper", nil)
	result, err := p.Produce(context.Background(), agent.Request{
		Query:   "How to center a div in CSS?",
		History: []models.ChatMessage{{Role: "user", Content: "earlier"}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ActionFinalAnswer, result.Action)
	assert.Contains(t, result.Content, "flexbox")
	require.NotNil(t, result.Usage)
	assert.Equal(t, 19, result.Usage.TotalTokens)

	// System prompt, history, and query must all reach the wire.
	msgs := (*captured)["messages"].([]any)
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "earlier", msgs[1].(map[string]any)["content"])
}

func TestProduceToolCall(t *testing.T) {
	srv, captured := fakeCompletion(t, completionBody(map[string]any{
		"role": "assistant",
		"tool_calls": []map[string]any{{
			"id":   "call_1",
			"type": "function",
			"function": map[string]any{
				"name":      "tap",
				"arguments": `{"x": 540, "y": 960}`,
			},
		}},
	}))

	registry := tools.Default(t.TempDir())
	p := NewOpenAI(config.ProviderConfig{Name: "local", URL: srv.URL + "/v1"}, "gemma3:12b", "prompt", registry)
	result, err := p.Produce(context.Background(), agent.Request{Query: "tap the center of the screen"})
	require.NoError(t, err)

	assert.Equal(t, models.ActionToolCall, result.Action)
	assert.Equal(t, "tap", result.ToolName)
	assert.Equal(t, 540.0, result.ToolArgs["x"])

	// The registry's schemas must be advertised as tools.
	wireTools := (*captured)["tools"].([]any)
	require.Len(t, wireTools, len(registry.Specs()))
}

func TestProduceMalformedToolArguments(t *testing.T) {
	srv, _ := fakeCompletion(t, completionBody(map[string]any{
		"role": "assistant",
		"tool_calls": []map[string]any{{
			"id":       "call_1",
			"type":     "function",
			"function": map[string]any{"name": "tap", "arguments": `{"x": `},
		}},
	}))

	p := NewOpenAI(config.ProviderConfig{Name: "local", URL: srv.URL + "/v1"}, "gemma3:12b", "", nil)
	result, err := p.Produce(context.Background(), agent.Request{Query: "tap something"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionError, result.Action)
	assert.Contains(t, result.Content, "malformed tool arguments")
}

func TestProduceUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAI(config.ProviderConfig{Name: "local", URL: srv.URL + "/v1"}, "gemma3:12b", "", nil)
	_, err := p.Produce(context.Background(), agent.Request{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local")
}

func TestFallbackTriesNextTarget(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(bad.Close)

	good, _ := fakeCompletion(t, completionBody(map[string]any{
		"role":    "assistant",
		"content": "fallback answer",
	}))

	cfg := &config.Config{
		Providers: []config.ProviderConfig{
			{Name: "primary", URL: bad.URL + "/v1"},
			{Name: "secondary", URL: good.URL + "/v1"},
		},
		Router: config.RouterConfig{
			Routes: []config.RouteConfig{{
				Model: "fast",
				Targets: []config.RouteTarget{
					{Provider: "primary", Model: "gemma3:4b"},
					{Provider: "secondary", Model: "gemma3:4b"},
				},
			}},
		},
	}

	f, err := NewFallback(router.New(cfg), "fast", "prompt", nil)
	require.NoError(t, err)

	result, err := f.Produce(context.Background(), agent.Request{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", result.Content)
}

func TestFallbackAllTargetsFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(bad.Close)

	cfg := &config.Config{
		Providers: []config.ProviderConfig{{Name: "only", URL: bad.URL + "/v1"}},
	}

	f, err := NewFallback(router.New(cfg), "gemma3:12b", "", nil)
	require.NoError(t, err)

	_, err = f.Produce(context.Background(), agent.Request{Query: "anything"})
	require.Error(t, err)
}
