package budget

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/droidpilot-ai/droidpilot/pkg/agent"
	"github.com/droidpilot-ai/droidpilot/pkg/history"
	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

func setup(t *testing.T) (*history.Store, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "budget_test.db")
	hs, err := history.New(dbPath, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hs.Close() })
	return hs, context.Background()
}

func recordUsage(t *testing.T, ctx context.Context, hs *history.Store, userID string, tokens int) {
	t.Helper()
	err := hs.ForUser(userID).RecordTurn(ctx, models.Turn{
		ConversationID: "conv-" + userID,
		Query:          "open settings",
		Action:         models.ActionFinalAnswer,
		PromptTokens:     tokens - tokens/3,
		CompletionTokens: tokens / 3,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCheckUnderBudget(t *testing.T) {
	hs, ctx := setup(t)
	recordUsage(t, ctx, hs, "alice", 150)

	e := New([]models.BudgetPolicy{
		{User: "*", MaxTokens: 1000, Period: models.BudgetDaily},
	}, hs)

	if err := e.Check(ctx, "alice"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckExceeded(t *testing.T) {
	hs, ctx := setup(t)
	recordUsage(t, ctx, hs, "alice", 1200)

	e := New([]models.BudgetPolicy{
		{User: "*", MaxTokens: 1000, Period: models.BudgetDaily},
	}, hs)

	err := e.Check(ctx, "alice")
	if err == nil {
		t.Fatal("expected budget exceeded error")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	hs, ctx := setup(t)
	recordUsage(t, ctx, hs, "alice", 150)

	e := New([]models.BudgetPolicy{
		{User: "*", MaxTokens: 1000, Period: models.BudgetDaily},
	}, hs)

	statuses, err := e.Status(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if statuses[0].Used != 150 {
		t.Errorf("expected 150 used, got %d", statuses[0].Used)
	}
	if statuses[0].Remaining != 850 {
		t.Errorf("expected 850 remaining, got %d", statuses[0].Remaining)
	}
}

func TestSpecificUserPolicy(t *testing.T) {
	hs, ctx := setup(t)

	e := New([]models.BudgetPolicy{
		{User: "alice", MaxTokens: 500, Period: models.BudgetDaily},
		{User: "*", MaxTokens: 10000, Period: models.BudgetDaily},
	}, hs)

	// bob only matches the wildcard
	statuses, err := e.Status(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status for bob, got %d", len(statuses))
	}

	// alice matches both
	statuses, err = e.Status(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses for alice, got %d", len(statuses))
	}
}

func TestMonthlyWindowIgnoresLastMonth(t *testing.T) {
	hs, ctx := setup(t)

	err := hs.ForUser("alice").RecordTurn(ctx, models.Turn{
		ConversationID: "c1", Query: "q", Action: models.ActionFinalAnswer,
		PromptTokens: 900, CompletionTokens: 200,
		CreatedAt: time.Now().UTC().AddDate(0, -1, 0),
	})
	if err != nil {
		t.Fatal(err)
	}

	e := New([]models.BudgetPolicy{
		{User: "alice", MaxTokens: 1000, Period: models.BudgetMonthly},
	}, hs)

	if err := e.Check(ctx, "alice"); err != nil {
		t.Errorf("last month's usage should not count, got %v", err)
	}
}

func TestGuardBlocksProducer(t *testing.T) {
	hs, ctx := setup(t)
	recordUsage(t, ctx, hs, "alice", 2000)

	e := New([]models.BudgetPolicy{
		{User: "alice", MaxTokens: 1000, Period: models.BudgetDaily},
	}, hs)

	calls := 0
	inner := agent.ProducerFunc(func(ctx context.Context, req agent.Request) (models.ThinkResult, error) {
		calls++
		return models.ThinkResult{Action: models.ActionFinalAnswer, Content: "ok"}, nil
	})

	g := NewGuard(inner, e, "alice")
	if _, err := g.Produce(ctx, agent.Request{Query: "hello"}); !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	if calls != 0 {
		t.Errorf("producer called %d times, want 0", calls)
	}

	g = NewGuard(inner, e, "bob")
	if _, err := g.Produce(ctx, agent.Request{Query: "hello"}); err != nil {
		t.Fatalf("unrestricted user: %v", err)
	}
	if calls != 1 {
		t.Errorf("producer called %d times, want 1", calls)
	}
}
