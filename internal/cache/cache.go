package cache

import (
	"context"
	"time"
)

// Entry is a cached value and the time it was stored.
type Entry struct {
	Value    []byte    `json:"v"`
	StoredAt time.Time `json:"t"`
}

// Store keeps entries with a hard expiry.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
