package kv

import (
	"context"
	"sync"
	"time"
)

type memValue struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

type memSet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// Memory implements Store with an in-process map. Intended for tests and
// single-node development; it provides the same single-key atomicity as Redis
// but shares nothing across processes.
type Memory struct {
	mu     sync.Mutex
	values map[string]memValue
	sets   map[string]memSet
	// now is swappable in tests to exercise expiry without sleeping.
	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]memValue),
		sets:   make(map[string]memSet),
		now:    time.Now,
	}
}

func (m *Memory) expired(at time.Time) bool {
	return !at.IsZero() && m.now().After(at)
}

// Get returns the value at key.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok || m.expired(v.expiresAt) {
		delete(m.values, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out, nil
}

// Set stores value at key.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = memValue{data: dup(value), expiresAt: m.deadline(ttl)}
	return nil
}

// SetNX stores value at key only if absent (or expired).
func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.values[key]; ok && !m.expired(v.expiresAt) {
		return false, nil
	}
	m.values[key] = memValue{data: dup(value), expiresAt: m.deadline(ttl)}
	return true, nil
}

// Del removes the given keys and any sets stored under them.
func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.values, k)
		delete(m.sets, k)
	}
	return nil
}

// SAdd adds members to the set at key.
func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[key]
	if !ok || m.expired(s.expiresAt) {
		s = memSet{members: make(map[string]struct{})}
	}
	for _, mem := range members {
		s.members[mem] = struct{}{}
	}
	m.sets[key] = s
	return nil
}

// SMembers returns all members of the set at key.
func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[key]
	if !ok || m.expired(s.expiresAt) {
		delete(m.sets, key)
		return nil, nil
	}
	out := make([]string, 0, len(s.members))
	for mem := range s.members {
		out = append(out, mem)
	}
	return out, nil
}

// Expire sets the remaining TTL of key.
func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.values[key]; ok && !m.expired(v.expiresAt) {
		v.expiresAt = m.deadline(ttl)
		m.values[key] = v
		return true, nil
	}
	if s, ok := m.sets[key]; ok && !m.expired(s.expiresAt) {
		s.expiresAt = m.deadline(ttl)
		m.sets[key] = s
		return true, nil
	}
	return false, nil
}

// TTL returns the remaining TTL of key.
func (m *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var at time.Time
	if v, ok := m.values[key]; ok && !m.expired(v.expiresAt) {
		at = v.expiresAt
	} else if s, ok := m.sets[key]; ok && !m.expired(s.expiresAt) {
		at = s.expiresAt
	} else {
		return 0, ErrNotFound
	}
	if at.IsZero() {
		return -1, nil
	}
	return at.Sub(m.now()), nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}

// SetClock replaces the store's time source. Test helper.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func dup(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
