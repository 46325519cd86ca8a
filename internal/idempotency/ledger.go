// Package idempotency provides the request-deduplication ledger that makes
// unsafe HTTP verbs safely retryable. A client-supplied idempotency key,
// scoped by acting user, maps to the fingerprint of the request body and the
// captured response of its first successful execution; network-level retries
// replay that response instead of re-executing side effects.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"civiq/internal/kv"
	"civiq/internal/observability"
)

const (
	keyPrefix = "idempotency:"

	// DefaultTTL is how long a completed record shields against duplicates.
	DefaultTTL = 24 * time.Hour

	// DefaultProcessingTTL bounds how long a crashed in-flight request can
	// keep duplicates waiting.
	DefaultProcessingTTL = 30 * time.Second

	// DefaultMaxBodyBytes is the largest response body persisted to the
	// ledger. Larger responses forgo duplicate protection rather than bloat
	// the store.
	DefaultMaxBodyBytes = 256 * 1024
)

// State classifies what Begin found for a key.
type State int

const (
	// StateNew: no record exists; the caller should execute the operation and
	// Complete, then call the returned release function.
	StateNew State = iota
	// StateReplay: a record exists with a matching fingerprint; serve it.
	StateReplay
	// StateConflict: a record exists with a different fingerprint; reject.
	StateConflict
	// StateInProgress: a concurrent duplicate holds the processing lock; the
	// client should retry later.
	StateInProgress
)

// Record is a completed idempotent execution.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// BeginResult is the outcome of Begin.
type BeginResult struct {
	State  State
	Record *Record
	// Release drops the processing lock; non-nil only for StateNew and must
	// be called regardless of the operation's outcome.
	Release func()
}

// Config holds ledger tunables.
type Config struct {
	TTL           time.Duration
	ProcessingTTL time.Duration
	MaxBodyBytes  int
}

// Ledger records request fingerprints and captured responses in the shared
// KV store. Like the resource lock it fails closed: a KV error during Begin
// surfaces to the caller so a duplicate can never slip through unverified.
type Ledger struct {
	store kv.Store
	cfg   Config
}

// NewLedger creates a ledger over the given store. Zero config fields take
// the package defaults.
func NewLedger(store kv.Store, cfg Config) *Ledger {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = DefaultProcessingTTL
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Ledger{store: store, cfg: cfg}
}

// Fingerprint computes the request-body hash stored alongside a key to detect
// "same key, different payload" misuse.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func recordKey(scope, key string) string {
	return keyPrefix + scope + ":" + key
}

func processingKey(scope, key string) string {
	return recordKey(scope, key) + ":lock"
}

// Begin inspects the ledger for scope/key before an operation executes.
func (l *Ledger) Begin(ctx context.Context, scope, key, fingerprint string) (*BeginResult, error) {
	// Fast path: an already-completed record replays without contending on
	// the processing lock.
	if res, err := l.check(ctx, scope, key, fingerprint); err != nil || res != nil {
		return res, err
	}

	// Serialize concurrent duplicates behind a short-lived processing marker.
	lockKey := processingKey(scope, key)
	ok, err := l.store.SetNX(ctx, lockKey, []byte("1"), l.cfg.ProcessingTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire processing lock %s: %w", key, err)
	}
	if !ok {
		observability.IdempotencyConflicts.Inc()
		return &BeginResult{State: StateInProgress}, nil
	}

	release := func() {
		// Cleanup is best effort; the marker self-expires.
		if err := l.store.Del(context.WithoutCancel(ctx), lockKey); err != nil {
			slog.Warn("failed to release processing lock", "key", key, "error", err)
		}
	}

	// A racing duplicate may have completed between the first check and the
	// lock; re-check while holding it.
	res, err := l.check(ctx, scope, key, fingerprint)
	if err != nil {
		release()
		return nil, err
	}
	if res != nil {
		release()
		return res, nil
	}

	return &BeginResult{State: StateNew, Release: release}, nil
}

// check reads the record for scope/key. Returns nil when no record exists.
func (l *Ledger) check(ctx context.Context, scope, key, fingerprint string) (*BeginResult, error) {
	data, err := l.store.Get(ctx, recordKey(scope, key))
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency record %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse idempotency record %s: %w", key, err)
	}

	if rec.Fingerprint != fingerprint {
		observability.IdempotencyConflicts.Inc()
		return &BeginResult{State: StateConflict, Record: &rec}, nil
	}
	observability.IdempotencyReplays.Inc()
	return &BeginResult{State: StateReplay, Record: &rec}, nil
}

// Complete persists the captured response for scope/key. Only successful
// (2xx) responses are recorded; oversized bodies are skipped with a warning,
// foregoing duplicate protection for that request.
func (l *Ledger) Complete(ctx context.Context, scope, key, fingerprint string, status int, contentType string, body []byte) error {
	if status < 200 || status > 299 {
		return nil
	}
	if len(body) > l.cfg.MaxBodyBytes {
		slog.Warn("idempotent response too large to persist, duplicate protection foregone",
			"key", key, "size", len(body), "limit", l.cfg.MaxBodyBytes)
		return nil
	}

	rec := Record{
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: contentType,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}

	if err := l.store.Set(ctx, recordKey(scope, key), data, l.cfg.TTL); err != nil {
		return fmt.Errorf("persist idempotency record %s: %w", key, err)
	}
	return nil
}
