// Package kvstore defines the key-value contract backing draft sessions,
// chat history, and the approval ledger, plus a SQLite implementation.
// Keys carry an optional TTL enforced by the store; callers must tolerate
// a key disappearing between reads.
package kvstore

import (
	"context"
	"time"
)

// Store is the key-value collaborator contract. Get returns a not-found
// error from the errs taxonomy when the key is absent or expired.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set writes the value, replacing any previous one. A positive ttl
	// sets the expiry; zero or negative keeps the key forever.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// ScanKeys returns keys matching a glob pattern ('*' and '?'),
	// sorted ascending.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Sorted-set operations used for session indexing.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key, member string) error
	// ZRevRangeByScore returns up to limit members ordered by score
	// descending. A non-positive limit returns all members.
	ZRevRangeByScore(ctx context.Context, key string, limit int) ([]string, error)

	Close() error
}
