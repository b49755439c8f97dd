// Package history persists conversation transcripts and per-turn usage in
// SQLite. It backs the budget enforcer's token totals and the history CLI.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/droidpilot-ai/droidpilot/pkg/models"
)

// Store records and queries conversation history.
type Store struct {
	db            *sql.DB
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
}

const createConversationsTable = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	last_activity DATETIME NOT NULL,
	turn_count INTEGER NOT NULL DEFAULT 0,
	cache_hits INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
`

const createTurnsTable = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	query TEXT NOT NULL,
	response TEXT,
	action TEXT NOT NULL,
	scope TEXT,
	cache_tier TEXT,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_conv ON turns(conversation_id, seq);
CREATE INDEX IF NOT EXISTS idx_turns_user_time ON turns(user_id, created_at);
`

// New opens the history database and runs auto-migration. A positive
// retentionDays starts a background sweep of old turns. WAL plus a busy
// timeout lets concurrent writers queue instead of failing with
// SQLITE_BUSY; the cache may hold a second pool on the same file.
func New(dbPath string, retentionDays int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(createConversationsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate conversations table: %w", err)
	}
	if _, err := db.Exec(createTurnsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate turns table: %w", err)
	}

	s := &Store{db: db, retentionDays: retentionDays, done: make(chan struct{})}
	if retentionDays > 0 {
		s.wg.Add(1)
		go s.retentionLoop()
	}
	return s, nil
}

// UserRecorder binds a Store to one user so turns can be recorded through
// the agent's Recorder interface, which has no identity parameter.
type UserRecorder struct {
	store  *Store
	userID string
}

// ForUser returns a recorder that attributes turns to userID.
func (s *Store) ForUser(userID string) *UserRecorder {
	return &UserRecorder{store: s, userID: userID}
}

// RecordTurn stores one exchange and updates the conversation counters.
func (r *UserRecorder) RecordTurn(ctx context.Context, turn models.Turn) error {
	return r.store.recordTurn(ctx, r.userID, turn)
}

func (s *Store) recordTurn(ctx context.Context, userID string, turn models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record turn: %w", err)
	}
	defer tx.Rollback()

	now := turn.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hit := 0
	if turn.CacheTier != "" {
		hit = 1
	}
	tokens := turn.PromptTokens + turn.CompletionTokens

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, started_at, last_activity, turn_count, cache_hits, total_tokens)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			last_activity = excluded.last_activity,
			turn_count = turn_count + 1,
			cache_hits = cache_hits + excluded.cache_hits,
			total_tokens = total_tokens + excluded.total_tokens`,
		turn.ConversationID, userID, now, now, hit, tokens,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT turn_count FROM conversations WHERE id = ?`, turn.ConversationID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("read turn count: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (conversation_id, user_id, seq, query, response, action, scope, cache_tier,
			prompt_tokens, completion_tokens, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ConversationID, userID, seq, turn.Query, turn.Response, turn.Action, turn.Scope, turn.CacheTier,
		turn.PromptTokens, turn.CompletionTokens, turn.LatencyMs, now,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return tx.Commit()
}

// ListConversations returns all conversations, optionally filtered by user.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT id, user_id, started_at, last_activity, turn_count, cache_hits, total_tokens FROM conversations`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.StartedAt, &c.LastActivity, &c.TurnCount, &c.CacheHits, &c.TotalTokens); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// ConversationTurns returns per-turn detail for one conversation in order.
func (s *Store) ConversationTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, seq, query, response, action, scope, cache_tier,
			prompt_tokens, completion_tokens, latency_ms, created_at
		 FROM turns WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var response, scope, tier sql.NullString
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Seq, &t.Query, &response, &t.Action, &scope, &tier,
			&t.PromptTokens, &t.CompletionTokens, &t.LatencyMs, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Response = response.String
		t.Scope = scope.String
		t.CacheTier = tier.String
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// TotalTokensSince returns the tokens a user has consumed since a given
// time. Cache hits recorded zero tokens, so replays are free here too.
func (s *Store) TotalTokensSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(prompt_tokens + completion_tokens), 0) FROM turns
		 WHERE user_id = ? AND created_at >= ?`,
		userID, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total tokens: %w", err)
	}
	return total, nil
}

// Cleanup deletes turns and conversations older than the retention period
// and returns the number of turns removed.
func (s *Store) Cleanup(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history cleanup: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE last_activity < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("history cleanup conversations: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) retentionLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_, _ = s.Cleanup(context.Background())
		}
	}
}

// Close stops the retention goroutine and closes the database.
func (s *Store) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}
