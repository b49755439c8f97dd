package mcp

import (
	"fmt"
	"strings"

	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// formatConversations formats conversations as a text table.
func formatConversations(convs []models.Conversation) string {
	if len(convs) == 0 {
		return "No conversations found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-16s %-20s %-20s %6s %6s %10s\n",
		"ID", "User", "Started", "Last Activity", "Turns", "Hits", "Tokens")
	b.WriteString(strings.Repeat("-", 96) + "\n")
	for _, c := range convs {
		fmt.Fprintf(&b, "%-12s %-16s %-20s %-20s %6d %6d %10d\n",
			c.ID, c.UserID,
			c.StartedAt.Format("2006-01-02 15:04:05"),
			c.LastActivity.Format("2006-01-02 15:04:05"),
			c.TurnCount, c.CacheHits, c.TotalTokens)
	}
	return b.String()
}

// formatTurns formats per-turn detail as a text table.
func formatTurns(turns []models.Turn) string {
	if len(turns) == 0 {
		return "No turns found for this conversation."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4s  %-20s %-12s %-10s %-8s %8s %10s %8s\n",
		"Seq", "Time", "Action", "Scope", "Tier", "Prompt", "Completion", "Latency")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, t := range turns {
		tier := t.CacheTier
		if tier == "" {
			tier = "miss"
		}
		fmt.Fprintf(&b, "%4d  %-20s %-12s %-10s %-8s %8d %10d %6dms\n",
			t.Seq,
			t.CreatedAt.Format("2006-01-02 15:04:05"),
			t.Action, t.Scope, tier,
			t.PromptTokens, t.CompletionTokens, t.LatencyMs)
	}
	return b.String()
}

// formatBudgetStatus formats budget statuses as a text table.
func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-8s %12s %12s %12s %6s\n",
		"User", "Period", "Max Tokens", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 72) + "\n")
	for _, s := range statuses {
		pct := float64(0)
		if s.Policy.MaxTokens > 0 {
			pct = float64(s.Used) / float64(s.Policy.MaxTokens) * 100
		}
		fmt.Fprintf(&b, "%-16s %-8s %12d %12d %12d %5.1f%%\n",
			s.Policy.User, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining, pct)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Size:     %d bytes\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.TotalBytes, stats.Hits, stats.Misses, hitRate)
}
