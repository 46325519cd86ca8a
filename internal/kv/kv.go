// Package kv provides the key-value store contract the coordination layer is
// built on. Supports both Redis (for multi-instance deployments) and an
// in-memory backend for tests and single-node development.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kv: key not found")

// Store defines the operations the cache, lock, and idempotency layers
// require from the shared key-value substrate. All mutations are single-key
// atomic; there are no multi-key transactions.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX atomically stores value at key only if the key does not exist.
	// Returns true if the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes the given keys. Deleting an absent key is a no-op.
	Del(ctx context.Context, keys ...string) error

	// SAdd adds members to the set stored at key, creating it if absent.
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key. An absent set is empty.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Expire sets the remaining time-to-live of key. Returns false if the key
	// does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining time-to-live of key. Returns -1 for a key with
	// no expiry and ErrNotFound for an absent key.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Close releases any resources held by the store.
	Close() error
}
