// Package cache provides the tagged read-through cache that fronts the
// complaint store. Entries are stored in the shared key-value store under
// deterministic keys and tracked under zero or more tags; tags exist solely
// for bulk invalidation and are never used for lookup.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"civiq/internal/kv"
	"civiq/internal/observability"
)

const (
	// entryPrefix namespaces cache entries in the KV store.
	entryPrefix = "cache:"
	// tagPrefix namespaces tag index sets in the KV store.
	tagPrefix = "tag:"

	// tagGrace is added to a tag set's TTL beyond its longest-lived member so
	// the index does not drop keys before they expire under clock or
	// propagation skew.
	tagGrace = 5 * time.Minute
)

// Entry is a cached response payload.
type Entry struct {
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// Tagged is the tag-indexed cache. All KV failures on the read/write path
// degrade to a miss or a skipped write (fail-open): staleness bounded by the
// entry TTL is preferable to a failed user-facing read.
type Tagged struct {
	store   kv.Store
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewTagged creates a tagged cache over the given store. A circuit breaker
// wraps entry reads and writes so that a dead store costs an immediate miss
// instead of a network timeout per request.
func NewTagged(store kv.Store) *Tagged {
	settings := gobreaker.Settings{
		Name:    "cache-kv",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("cache breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Tagged{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Get returns the entry stored at key, or (nil, nil) on a miss. Store errors
// are logged and reported as a miss.
func (t *Tagged) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := t.breaker.Execute(func() ([]byte, error) {
		b, err := t.store.Get(ctx, entryPrefix+key)
		if err == kv.ErrNotFound {
			// A miss is not a store failure; don't feed it to the breaker.
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		slog.Warn("cache get degraded to miss", "key", key, "error", err)
		observability.CacheMisses.Inc()
		return nil, nil
	}
	if data == nil {
		observability.CacheMisses.Inc()
		return nil, nil
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt entry: drop it and treat as miss.
		slog.Warn("cache entry corrupt, removing", "key", key, "error", err)
		_ = t.store.Del(ctx, entryPrefix+key)
		observability.CacheMisses.Inc()
		return nil, nil
	}
	observability.CacheHits.Inc()
	return &e, nil
}

// Set stores entry at key with the given TTL and registers it under each tag.
// The tag index is written before the entry so a crash between the two leaves
// an orphan tag reference (harmless, self-healing on the next invalidation)
// rather than an entry invisible to bulk invalidation.
func (t *Tagged) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration, tags []string) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	for _, tag := range tags {
		tagKey := tagPrefix + tag
		if err := t.store.SAdd(ctx, tagKey, key); err != nil {
			return fmt.Errorf("register tag %s: %w", tag, err)
		}
		if err := t.extendTagTTL(ctx, tagKey, ttl+tagGrace); err != nil {
			return fmt.Errorf("extend tag %s ttl: %w", tag, err)
		}
	}

	_, err = t.breaker.Execute(func() ([]byte, error) {
		return nil, t.store.Set(ctx, entryPrefix+key, data, ttl)
	})
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

// extendTagTTL bumps the tag set's expiry to at least want, never shortening
// an existing longer lease held for another member.
func (t *Tagged) extendTagTTL(ctx context.Context, tagKey string, want time.Duration) error {
	current, err := t.store.TTL(ctx, tagKey)
	if err != nil && err != kv.ErrNotFound {
		return err
	}
	// A fresh SAdd leaves the set with no expiry (TTL -1); it must be bounded
	// like an absent one, or the index outlives its members unboundedly. Only
	// a finite remaining TTL already covering want is left alone.
	if err == nil && current >= want {
		return nil
	}
	_, err = t.store.Expire(ctx, tagKey, want)
	return err
}

// InvalidateByTag removes every entry registered under each tag, plus the tag
// sets themselves. Safe to call on tags with zero members; stale references
// to already-expired keys delete as no-ops.
func (t *Tagged) InvalidateByTag(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tagKey := tagPrefix + tag
		members, err := t.store.SMembers(ctx, tagKey)
		if err != nil {
			return fmt.Errorf("read tag %s: %w", tag, err)
		}

		keys := make([]string, 0, len(members)+1)
		for _, m := range members {
			keys = append(keys, entryPrefix+m)
		}
		keys = append(keys, tagKey)

		if err := t.store.Del(ctx, keys...); err != nil {
			return fmt.Errorf("invalidate tag %s: %w", tag, err)
		}
		observability.CacheInvalidations.WithLabelValues(tag).Add(float64(len(members)))
		slog.Debug("cache tag invalidated", "tag", tag, "keys", len(members))
	}
	return nil
}

// Remove deletes a single entry directly, bypassing tags.
func (t *Tagged) Remove(ctx context.Context, key string) error {
	if err := t.store.Del(ctx, entryPrefix+key); err != nil {
		return fmt.Errorf("remove cache entry: %w", err)
	}
	return nil
}
