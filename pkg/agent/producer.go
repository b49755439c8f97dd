package agent

import (
	"context"

	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// Request carries one query plus optional device context to a producer.
type Request struct {
	Query      string               `json:"query"`
	Screenshot string               `json:"screenshot,omitempty"` // path to current screenshot
	UITree     string               `json:"ui_tree,omitempty"`    // serialized UI hierarchy
	History    []models.ChatMessage `json:"history,omitempty"`
}

// Producer turns a request into a think result, normally by calling a
// model. Implementations live in pkg/provider; the caching middleware
// depends only on this interface.
type Producer interface {
	Produce(ctx context.Context, req Request) (models.ThinkResult, error)
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, req Request) (models.ThinkResult, error)

// Produce implements Producer.
func (f ProducerFunc) Produce(ctx context.Context, req Request) (models.ThinkResult, error) {
	return f(ctx, req)
}

// Recorder observes completed think exchanges, e.g. for persisted
// conversation history. Implementations must tolerate partial turns.
type Recorder interface {
	RecordTurn(ctx context.Context, turn models.Turn) error
}
