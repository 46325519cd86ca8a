package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	defer rl.Stop()
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("alice"), "request %d within burst should pass", i)
	}
	assert.False(t, rl.allow("alice"), "request beyond burst should be limited")
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Stop()
	assert.True(t, rl.allow("alice"))
	assert.False(t, rl.allow("alice"))
	assert.True(t, rl.allow("bob"), "a second client has its own bucket")
}

func TestRateLimiterStopTerminatesEviction(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Stop()
	rl.Stop() // idempotent

	select {
	case <-rl.done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after Stop")
	}

	// The limiter still serves requests after Stop; only eviction halts.
	assert.True(t, rl.allow("alice"))
}
