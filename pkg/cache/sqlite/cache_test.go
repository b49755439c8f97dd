package sqlite

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t, time.Hour)

	if err := c.Set("content:abc", []byte(`{"action":"final_answer"}`), 0, nil); err != nil {
		t.Fatal(err)
	}

	data, ok := c.Get("content:abc")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != `{"action":"final_answer"}` {
		t.Errorf("unexpected value: %s", data)
	}

	if _, ok := c.Get("content:missing"); ok {
		t.Error("expected cache miss for unknown key")
	}
}

func TestSetReplacesSameKey(t *testing.T) {
	c := newTestCache(t, time.Hour)

	_ = c.Set("k", []byte("old"), 0, nil)
	if err := c.Set("k", []byte("new"), 0, nil); err != nil {
		t.Fatal(err)
	}

	data, ok := c.Get("k")
	if !ok || string(data) != "new" {
		t.Errorf("expected replaced value, got %q (hit=%v)", data, ok)
	}

	stats, _ := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry after replace, got %d", stats.Entries)
	}
}

func TestLazyExpiry(t *testing.T) {
	c := newTestCache(t, time.Hour)

	if err := c.Set("k", []byte("data"), time.Millisecond, nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL expiry")
	}

	// The expired row must be deleted by the read itself.
	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 0 {
		t.Errorf("expected expired row removed on read, got %d entries", stats.Entries)
	}
}

func TestCleanup(t *testing.T) {
	c := newTestCache(t, time.Hour)

	_ = c.Set("expired1", []byte("x"), time.Millisecond, nil)
	_ = c.Set("expired2", []byte("x"), time.Millisecond, nil)
	_ = c.Set("alive", []byte("x"), time.Hour, nil)
	time.Sleep(10 * time.Millisecond)

	if err := c.Cleanup(); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := c.Cleanup(); err != nil {
		t.Fatal(err)
	}

	stats, _ := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", stats.Entries)
	}
	if _, ok := c.Get("alive"); !ok {
		t.Error("cleanup removed a live entry")
	}
}

func TestPruneToLimit(t *testing.T) {
	c := newTestCache(t, time.Hour)

	for i := 0; i < 10; i++ {
		if err := c.Set(fmt.Sprintf("key-%02d", i), []byte("data"), time.Hour, nil); err != nil {
			t.Fatal(err)
		}
		// created_at must strictly increase for deterministic eviction order.
		time.Sleep(2 * time.Millisecond)
	}

	deleted, err := c.PruneToLimit(4)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 6 {
		t.Errorf("expected 6 deleted, got %d", deleted)
	}

	stats, _ := c.Stats()
	if stats.Entries != 4 {
		t.Errorf("expected 4 entries, got %d", stats.Entries)
	}

	// Oldest rows go first: only the newest four survive.
	for i := 0; i < 6; i++ {
		if _, ok := c.Get(fmt.Sprintf("key-%02d", i)); ok {
			t.Errorf("key-%02d should have been pruned", i)
		}
	}
	for i := 6; i < 10; i++ {
		if _, ok := c.Get(fmt.Sprintf("key-%02d", i)); !ok {
			t.Errorf("key-%02d should have survived pruning", i)
		}
	}
}

func TestPruneToLimitUnderLimit(t *testing.T) {
	c := newTestCache(t, time.Hour)

	_ = c.Set("k1", []byte("x"), time.Hour, nil)
	_ = c.Set("k2", []byte("x"), time.Hour, nil)

	deleted, err := c.PruneToLimit(10)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("expected no deletions under limit, got %d", deleted)
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Hour)

	_ = c.Set("k1", []byte("1234"), time.Hour, map[string]string{"scope": "shared"})
	c.Get("k1") // hit
	c.Get("k2") // miss

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.TotalBytes != 4 {
		t.Errorf("expected 4 bytes, got %d", stats.TotalBytes)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, time.Hour)

	_ = c.Set("k1", []byte("x"), time.Hour, nil)
	_ = c.Set("k2", []byte("x"), time.Hour, nil)

	if err := c.Clear(false); err != nil {
		t.Fatal(err)
	}

	stats, _ := c.Stats()
	if stats.Entries != 0 {
		t.Errorf("expected 0 entries after clear, got %d", stats.Entries)
	}
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	c := newTestCache(t, time.Hour)

	const workers = 10
	const rounds = 20

	errCh := make(chan error, workers*rounds)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				key := fmt.Sprintf("k-%d-%d", w, i)
				if err := c.Set(key, []byte("v"), time.Hour, nil); err != nil {
					errCh <- err
					continue
				}
				if _, ok := c.Get(key); !ok {
					errCh <- fmt.Errorf("lost write for %s", key)
				}
				if err := c.Cleanup(); err != nil {
					errCh <- err
				}
				if _, err := c.PruneToLimit(workers * rounds); err != nil {
					errCh <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent access: %v", err)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != workers*rounds {
		t.Errorf("expected %d entries, got %d", workers*rounds, stats.Entries)
	}
}
