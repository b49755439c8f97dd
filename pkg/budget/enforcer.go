// Package budget enforces per-user token limits over daily or monthly
// windows, using recorded conversation history as the usage source.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/droidpilot-ai/droidpilot/pkg/agent"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// ErrBudgetExceeded is returned when a request exceeds the budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Usage reports tokens consumed by a user since a point in time.
type Usage interface {
	TotalTokensSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// Enforcer checks token usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	usage    Usage
}

// New creates an Enforcer with the given policies and usage source.
func New(policies []models.BudgetPolicy, u Usage) *Enforcer {
	return &Enforcer{policies: policies, usage: u}
}

// Check returns ErrBudgetExceeded if the user has exhausted any applicable policy.
func (e *Enforcer) Check(ctx context.Context, userID string) error {
	for _, p := range e.policiesForUser(userID) {
		used, err := e.usage.TotalTokensSince(ctx, userID, periodStart(p.Period))
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return ErrBudgetExceeded
		}
	}
	return nil
}

// Status returns the budget status for a user across all applicable policies.
func (e *Enforcer) Status(ctx context.Context, userID string) ([]models.BudgetStatus, error) {
	policies := e.policiesForUser(userID)
	statuses := make([]models.BudgetStatus, 0, len(policies))

	for _, p := range policies {
		used, err := e.usage.TotalTokensSince(ctx, userID, periodStart(p.Period))
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		remaining := p.MaxTokens - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func (e *Enforcer) policiesForUser(userID string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policies {
		if p.User == "*" || p.User == userID {
			result = append(result, p)
		}
	}
	return result
}

func periodStart(period models.BudgetPeriod) time.Time {
	now := time.Now().UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Guard wraps a producer and rejects calls once a user's budget is spent.
// Placed beneath the cache layer, it lets cache hits through for free.
type Guard struct {
	next     agent.Producer
	enforcer *Enforcer
	userID   string
}

// NewGuard wraps next with budget enforcement for userID.
func NewGuard(next agent.Producer, e *Enforcer, userID string) *Guard {
	return &Guard{next: next, enforcer: e, userID: userID}
}

// Produce checks the budget before delegating to the wrapped producer.
func (g *Guard) Produce(ctx context.Context, req agent.Request) (models.ThinkResult, error) {
	if err := g.enforcer.Check(ctx, g.userID); err != nil {
		return models.ThinkResult{}, err
	}
	return g.next.Produce(ctx, req)
}
