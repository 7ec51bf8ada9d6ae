package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process cache with a TTL and a maximum size. When full,
// the least recently accessed entry is evicted.
type Memory struct {
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	probs      []float32
	expiresAt  time.Time
	lastAccess time.Time
}

func NewMemory(ttl time.Duration, maxSize int) *Memory {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Memory{
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	now := m.now()
	if m.ttl > 0 && now.After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	e.lastAccess = now
	return clone(e.probs), true, nil
}

func (m *Memory) Set(_ context.Context, key string, probs []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range m.entries {
			if oldestKey == "" || v.lastAccess.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.lastAccess
			}
		}
		delete(m.entries, oldestKey)
	}

	now := m.now()
	m.entries[key] = &entry{
		probs:      clone(probs),
		expiresAt:  now.Add(m.ttl),
		lastAccess: now,
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func clone(probs []float32) []float32 {
	out := make([]float32, len(probs))
	copy(out, probs)
	return out
}
