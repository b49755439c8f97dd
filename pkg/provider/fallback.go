package provider

import (
	"context"
	"fmt"
	"log"

	"github.com/droidpilot-ai/droidpilot/pkg/agent"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
	"github.com/droidpilot-ai/droidpilot/pkg/router"
	"github.com/droidpilot-ai/droidpilot/pkg/tools"
)

// Fallback tries an ordered chain of producers until one succeeds.
type Fallback struct {
	producers []agent.Producer
}

// NewFallback resolves the requested model through the router and builds
// one OpenAI producer per target.
func NewFallback(r *router.Router, model, systemPrompt string, registry *tools.Registry) (*Fallback, error) {
	routes, err := r.Resolve(model)
	if err != nil {
		return nil, fmt.Errorf("resolve model %q: %w", model, err)
	}

	producers := make([]agent.Producer, 0, len(routes))
	for _, route := range routes {
		producers = append(producers, NewOpenAI(route.Provider, route.Model, systemPrompt, registry))
	}
	return &Fallback{producers: producers}, nil
}

// Produce tries each producer in order, returning the first success. The
// last error is returned when every target fails.
func (f *Fallback) Produce(ctx context.Context, req agent.Request) (models.ThinkResult, error) {
	var lastErr error
	for i, p := range f.producers {
		result, err := p.Produce(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i < len(f.producers)-1 {
			log.Printf("provider: target %d failed, trying next: %v", i, err)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no producers configured")
	}
	return models.ThinkResult{}, lastErr
}
