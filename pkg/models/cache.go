package models

import "time"

// CacheEntry stores a cached think result.
type CacheEntry struct {
	Key       string            `json:"key"`
	Value     []byte            `json:"value"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CacheStats reports cache size and performance metrics.
type CacheStats struct {
	Entries    int64 `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
}
