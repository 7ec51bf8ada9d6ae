package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key([]byte("abc")), Key([]byte("abc")))
	assert.NotEqual(t, Key([]byte("abc")), Key([]byte("abd")))
	assert.Len(t, Key(nil), 64)
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute, 4)

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	probs := []float32{0.2, 0.8}
	require.NoError(t, m.Set(ctx, "k", probs))
	probs[0] = 99

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.2, 0.8}, got)

	got[1] = 42
	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, float32(0.8), again[1])
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute, 4)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", []float32{1}))
	now = now.Add(2 * time.Minute)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Hour, 2)
	m.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	require.NoError(t, m.Set(ctx, "a", []float32{1}))
	require.NoError(t, m.Set(ctx, "b", []float32{2}))
	_, ok, _ := m.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, m.Set(ctx, "c", []float32{3}))
	assert.Equal(t, 2, m.Len())

	_, ok, _ = m.Get(ctx, "b")
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, "a")
	assert.True(t, ok)
	_, ok, _ = m.Get(ctx, "c")
	assert.True(t, ok)
}

func TestNewBackends(t *testing.T) {
	c, err := New(Options{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(Options{Backend: "memory", TTL: time.Minute, MaxSize: 8})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New(Options{Backend: "memcached"})
	assert.Error(t, err)
}
