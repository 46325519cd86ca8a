// Package lock provides the short-TTL distributed mutual-exclusion lease used
// to serialize concurrent edits to the same complaint. A lease is keyed by
// resource ID, held by exactly one owner token at a time, and self-expires so
// an abandoned lock (crashed client, closed tab) heals without intervention.
//
// There are no fencing tokens: a lease that expires mid-operation cannot stop
// a second acquirer from proceeding concurrently with a slow first writer.
// This is an accepted trade-off given the default lease (minutes) is long
// relative to typical operation latency.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"civiq/internal/kv"
	"civiq/internal/observability"
)

const keyPrefix = "lock:"

// DefaultTTL is the default lease duration.
const DefaultTTL = 5 * time.Minute

// Manager acquires and releases resource leases against the shared KV store.
// Unlike the cache, it fails closed: a KV error is surfaced to the caller so
// a mutation never proceeds without its exclusion guarantee.
type Manager struct {
	store kv.Store
	ttl   time.Duration
}

// NewManager creates a lock manager with the given default lease TTL.
// A zero ttl selects DefaultTTL.
func NewManager(store kv.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

// TTL returns the configured lease duration.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Acquire attempts to take the lease on resourceID for holder. Returns true
// on success. A live lease held by the same holder is refreshed and treated
// as success (reentrant by holder identity, not call depth); a lease held by
// anyone else returns false.
func (m *Manager) Acquire(ctx context.Context, resourceID, holder string) (bool, error) {
	key := keyPrefix + resourceID

	ok, err := m.store.SetNX(ctx, key, []byte(holder), m.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", resourceID, err)
	}
	if ok {
		slog.Debug("lock acquired", "resource", resourceID, "holder", holder)
		return true, nil
	}

	current, err := m.store.Get(ctx, key)
	if err == kv.ErrNotFound {
		// Lease expired between SetNX and Get; take it now.
		ok, err = m.store.SetNX(ctx, key, []byte(holder), m.ttl)
		if err != nil {
			return false, fmt.Errorf("acquire lock %s: %w", resourceID, err)
		}
		if !ok {
			observability.LockConflicts.Inc()
		}
		return ok, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lock holder %s: %w", resourceID, err)
	}

	if string(current) == holder {
		// Renewal: refresh the lease.
		if err := m.store.Set(ctx, key, []byte(holder), m.ttl); err != nil {
			return false, fmt.Errorf("renew lock %s: %w", resourceID, err)
		}
		slog.Debug("lock renewed", "resource", resourceID, "holder", holder)
		return true, nil
	}

	observability.LockConflicts.Inc()
	return false, nil
}

// Release drops the lease on resourceID if holder still owns it. Returns
// false without error when the lease is absent or owned by someone else, so a
// delayed duplicate release cannot steal a lease legitimately re-acquired
// after natural expiry.
func (m *Manager) Release(ctx context.Context, resourceID, holder string) (bool, error) {
	key := keyPrefix + resourceID

	current, err := m.store.Get(ctx, key)
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lock holder %s: %w", resourceID, err)
	}
	if string(current) != holder {
		return false, nil
	}

	if err := m.store.Del(ctx, key); err != nil {
		return false, fmt.Errorf("release lock %s: %w", resourceID, err)
	}
	slog.Debug("lock released", "resource", resourceID, "holder", holder)
	return true, nil
}

// CurrentHolder returns the owner of the live lease on resourceID, or "" when
// the resource is unlocked.
func (m *Manager) CurrentHolder(ctx context.Context, resourceID string) (string, error) {
	current, err := m.store.Get(ctx, keyPrefix+resourceID)
	if err == kv.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lock holder %s: %w", resourceID, err)
	}
	return string(current), nil
}
