// Package store provides the TTL key-value storage used for session
// records and pending QR entries. Two backends implement the same
// contract: an in-process map and a Redis-backed store that degrades to
// the in-process map when Redis is unreachable.
package store

import (
	"context"
	"time"
)

// Store is a key-value store with per-entry TTL. A zero or negative TTL
// means the entry does not expire.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
