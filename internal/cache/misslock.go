package cache

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"
)

const missLockShards = 64

// MissLock is the advisory in-process lock taken around a cache miss so that
// concurrent misses for the same key on the same instance produce one origin
// fetch instead of a thundering herd. It is best-effort only: keys share
// shards by hash, other instances are invisible to it, and a caller that
// cannot acquire a shard within the bounded wait proceeds uncached rather
// than blocking (fail-open under contention).
type MissLock struct {
	shards [missLockShards]*semaphore.Weighted
	wait   time.Duration
}

// NewMissLock creates a miss lock with the given bounded wait per acquisition.
func NewMissLock(wait time.Duration) *MissLock {
	ml := &MissLock{wait: wait}
	for i := range ml.shards {
		ml.shards[i] = semaphore.NewWeighted(1)
	}
	return ml
}

// Acquire tries to take the shard covering key, waiting at most the
// configured bound. On success it returns a release function and true; on
// timeout or context cancellation it returns false and the caller should
// proceed without the lock.
func (ml *MissLock) Acquire(ctx context.Context, key string) (release func(), ok bool) {
	shard := ml.shards[xxhash.Sum64String(key)%missLockShards]

	waitCtx, cancel := context.WithTimeout(ctx, ml.wait)
	defer cancel()

	if err := shard.Acquire(waitCtx, 1); err != nil {
		return nil, false
	}
	return func() { shard.Release(1) }, true
}
