package protect

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"civiq/internal/cache"
	"civiq/internal/core"
	"civiq/internal/idempotency"
	"civiq/internal/lock"
)

// IdempotencyKeyHeader carries the client-supplied deduplication token.
const IdempotencyKeyHeader = "Idempotency-Key"

// defaultMissWait bounds how long a request waits for the advisory miss lock
// before falling through to an uncached read.
const defaultMissWait = 5 * time.Second

// Result is a domain operation's captured response.
type Result struct {
	Status      int
	Payload     []byte
	ContentType string
}

// Success reports whether the status class is 2xx, which gates cache
// invalidation and ledger persistence.
func (r *Result) Success() bool {
	return r.Status >= 200 && r.Status <= 299
}

// Operation is the uniform signature domain operations expose to the
// coordinator. The coordinator never inspects domain semantics beyond the
// status class and owner-identifier fields in the payload.
type Operation func(ctx context.Context) (*Result, error)

// Coordinator composes caching, locking, and idempotency around domain
// operations per each route's Policy.
type Coordinator struct {
	cache  *cache.Tagged
	miss   *cache.MissLock
	locks  *lock.Manager
	ledger *idempotency.Ledger
}

// NewCoordinator wires the three protection mechanisms together.
func NewCoordinator(tagged *cache.Tagged, locks *lock.Manager, ledger *idempotency.Ledger) *Coordinator {
	return &Coordinator{
		cache:  tagged,
		miss:   cache.NewMissLock(defaultMissWait),
		locks:  locks,
		ledger: ledger,
	}
}

// CachedRead runs op through the read-through protocol: deterministic key,
// ETag/conditional handling on a hit, advisory miss lock with double-checked
// repopulation on a miss, and a bounded fall-through to an uncached read
// under contention.
func (co *Coordinator) CachedRead(c echo.Context, pol Policy, op Operation) error {
	ctx := c.Request().Context()
	identity := core.IdentityFrom(ctx)

	if pol.Cache == nil {
		result, err := op(ctx)
		if err != nil {
			return err
		}
		return writeResult(c, result)
	}

	scope := cache.SharedScope
	if !pol.Cache.Shared {
		scope = identity.CacheScope()
	}
	key := cache.BuildKey(c.Request().URL.Path, c.QueryParams(), scope)

	if entry, _ := co.cache.Get(ctx, key); entry != nil {
		return co.serveCached(c, pol, entry)
	}

	// Prevent a local thundering herd on the same key. Losing the race for
	// the shard is not an error: serve uncached rather than queue up.
	if release, ok := co.miss.Acquire(ctx, key); ok {
		defer release()

		// Double-checked: the previous holder may have repopulated the entry.
		if entry, _ := co.cache.Get(ctx, key); entry != nil {
			return co.serveCached(c, pol, entry)
		}

		result, err := op(ctx)
		if err != nil {
			return err
		}
		if result.Status == http.StatusOK {
			entry := &cache.Entry{Body: result.Payload, ContentType: result.ContentType}
			if err := co.cache.Set(ctx, key, entry, pol.Cache.TTL, co.readTags(c, pol, identity)); err != nil {
				// Fail open: an uncached response beats a failed one.
				slog.Warn("cache write skipped", "key", key, "error", err)
			}
			return co.serveFresh(c, pol, result)
		}
		return writeResult(c, result)
	}

	slog.Debug("miss lock contended, serving uncached", "key", key)
	result, err := op(ctx)
	if err != nil {
		return err
	}
	return writeResult(c, result)
}

// readTags derives the tags a cached response is registered under: the base
// resource tags, a per-instance tag when the route addresses one resource,
// and the acting user's tag for user-scoped responses.
func (co *Coordinator) readTags(c echo.Context, pol Policy, identity core.Identity) []string {
	tags := append([]string(nil), pol.Tags...)
	if id := c.Param("id"); id != "" && len(pol.Tags) > 0 {
		tags = append(tags, cache.ResourceTag(pol.Tags[0], id))
	}
	if pol.Cache != nil && !pol.Cache.Shared && !identity.IsAnonymous() {
		tags = append(tags, cache.UserTag(identity.UserID))
	}
	return tags
}

func (co *Coordinator) serveCached(c echo.Context, pol Policy, entry *cache.Entry) error {
	etag := cache.ETagFor(entry.Body)
	setCacheHeaders(c, pol, etag)
	if match := c.Request().Header.Get("If-None-Match"); match != "" && match == etag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, entry.ContentType, entry.Body)
}

func (co *Coordinator) serveFresh(c echo.Context, pol Policy, result *Result) error {
	setCacheHeaders(c, pol, cache.ETagFor(result.Payload))
	return writeResult(c, result)
}

func setCacheHeaders(c echo.Context, pol Policy, etag string) {
	c.Response().Header().Set("ETag", etag)
	if pol.Cache == nil {
		return
	}
	if pol.Cache.ClientMaxAge > 0 {
		visibility := "private"
		if pol.Cache.Shared {
			visibility = "public"
		}
		c.Response().Header().Set("Cache-Control",
			visibility+", max-age="+strconv.Itoa(int(pol.Cache.ClientMaxAge.Seconds())))
		return
	}
	c.Response().Header().Set("Cache-Control", "no-cache, private")
}

// Mutate runs op under the route's mutation protections. The mandated order:
// idempotency check outermost (it decides whether op runs at all), then lock
// acquire, domain operation, cache invalidation only after a confirmed 2xx,
// lock release guaranteed last, and ledger persistence only after both the
// write and the (best-effort) invalidation.
func (co *Coordinator) Mutate(c echo.Context, pol Policy, resourceID string, body []byte, op Operation) error {
	ctx := c.Request().Context()
	identity := core.IdentityFrom(ctx)

	var (
		idemKey     string
		fingerprint string
		begun       *idempotency.BeginResult
	)

	if pol.Idempotent {
		idemKey = c.Request().Header.Get(IdempotencyKeyHeader)
		if idemKey == "" {
			return core.NewValidationError("missing required Idempotency-Key header", nil)
		}
		fingerprint = idempotency.Fingerprint(body)

		var err error
		begun, err = co.ledger.Begin(ctx, identity.CacheScope(), idemKey, fingerprint)
		if err != nil {
			// Fail closed: without the ledger we cannot rule out a duplicate.
			return core.NewUnavailableError("idempotency store unavailable", err)
		}
		switch begun.State {
		case idempotency.StateReplay:
			return c.Blob(begun.Record.Status, begun.Record.ContentType, begun.Record.Body)
		case idempotency.StateConflict:
			return core.NewConflictError("idempotency key reused with a different payload", core.DoNotRetry)
		case idempotency.StateInProgress:
			return core.NewConflictError("request with this idempotency key is already being processed", core.RetryLater)
		}
		defer begun.Release()
	}

	var holder string
	if pol.Lock && resourceID != "" {
		holder = identity.UserID
		if holder == "" {
			holder = uuid.NewString()
		}
		acquired, err := co.locks.Acquire(ctx, resourceID, holder)
		if err != nil {
			return core.NewUnavailableError("lock store unavailable", err)
		}
		if !acquired {
			current, herr := co.locks.CurrentHolder(ctx, resourceID)
			if herr != nil {
				current = "another user"
			}
			return core.NewLockHeldError(resourceID, current)
		}
		// Guaranteed release regardless of the mutation's outcome; runs after
		// invalidation below even if invalidation panics.
		defer func() {
			if _, rerr := co.locks.Release(context.WithoutCancel(ctx), resourceID, holder); rerr != nil {
				slog.Warn("lock release failed, lease will expire naturally",
					"resource", resourceID, "holder", holder, "error", rerr)
			}
		}()
	}

	result, err := op(ctx)
	if err != nil {
		// Domain failure propagates unchanged: no invalidation, no ledger
		// record; the deferred release still runs.
		return err
	}

	if result.Success() {
		tags := co.mutationTags(c, pol, identity, result.Payload)
		if err := co.cache.InvalidateByTag(ctx, tags...); err != nil {
			// A stale entry bounded by its own TTL beats failing a mutation
			// that already committed.
			slog.Warn("cache invalidation failed after mutation", "tags", tags, "error", err)
		}
	}

	if pol.Idempotent {
		if err := co.ledger.Complete(ctx, identity.CacheScope(), idemKey, fingerprint, result.Status, result.ContentType, result.Payload); err != nil {
			// The mutation is durable; losing the record only forfeits
			// duplicate protection for this one request.
			slog.Warn("idempotency record not persisted", "key", idemKey, "error", err)
		}
	}

	return writeResult(c, result)
}

// mutationTags derives the tags a successful mutation invalidates: the base
// tags, the per-instance tag, the acting user's tag, and any owner tags
// extracted from identifying fields of the result payload, so a third party's
// cached view of a resource they own is busted even though someone else
// performed the mutation.
func (co *Coordinator) mutationTags(c echo.Context, pol Policy, identity core.Identity, payload []byte) []string {
	tags := append([]string(nil), pol.Tags...)
	if id := c.Param("id"); id != "" && len(pol.Tags) > 0 {
		tags = append(tags, cache.ResourceTag(pol.Tags[0], id))
	}
	if !identity.IsAnonymous() {
		tags = append(tags, cache.UserTag(identity.UserID))
	}
	for _, path := range pol.OwnerPaths {
		if v := gjson.GetBytes(payload, path); v.Exists() && v.String() != "" {
			tags = append(tags, cache.UserTag(v.String()))
		}
	}
	return dedupe(tags)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func writeResult(c echo.Context, result *Result) error {
	if len(result.Payload) == 0 {
		return c.NoContent(result.Status)
	}
	return c.Blob(result.Status, result.ContentType, result.Payload)
}
