package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)

	m.Set(ctx, "a", "1")
	m.Set(ctx, "b", "2")
	m.Set(ctx, "c", "3")

	// touch "a" so "b" becomes the eviction candidate
	_, ok := m.Get(ctx, "a")
	require.True(t, ok)

	m.Set(ctx, "d", "4")
	assert.Equal(t, 3, m.Len())

	_, ok = m.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry should be evicted")
	for _, key := range []string{"a", "c", "d"} {
		_, ok := m.Get(ctx, key)
		assert.True(t, ok, "key %s should survive", key)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	m.SetEx(ctx, "short", 10*time.Millisecond, "v")
	m.Set(ctx, "forever", "v")

	_, ok := m.Get(ctx, "short")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = m.Get(ctx, "short")
	assert.False(t, ok)
	_, ok = m.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemoryKeysPatternAndDel(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	for i := 0; i < 3; i++ {
		m.Set(ctx, fmt.Sprintf("screener:result:%d", i), "v")
	}
	m.Set(ctx, "other", "v")

	keys := m.Keys(ctx, "screener:result:*")
	assert.Len(t, keys, 3)

	m.Del(ctx, keys...)
	assert.Empty(t, m.Keys(ctx, "screener:result:*"))
	_, ok := m.Get(ctx, "other")
	assert.True(t, ok)
}

func TestMemoryMGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10)

	m.Set(ctx, "x", "1")
	m.Set(ctx, "z", "3")

	values := m.MGet(ctx, "x", "y", "z")
	require.Len(t, values, 3)
	assert.Equal(t, Value{Data: "1", OK: true}, values[0])
	assert.False(t, values[1].OK)
	assert.Equal(t, Value{Data: "3", OK: true}, values[2])
}

func TestTieredFallsBackToLocal(t *testing.T) {
	ctx := context.Background()

	// no remote tier configured: everything lands locally
	tiered := NewTiered(nil, NewMemory(10))
	tiered.Set(ctx, "k", "v")

	v, ok := tiered.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	values := tiered.MGet(ctx, "k", "missing")
	assert.True(t, values[0].OK)
	assert.False(t, values[1].OK)

	tiered.Del(ctx, "k")
	_, ok = tiered.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTieredPrefersRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewMemory(10)
	local := NewMemory(10)
	tiered := NewTiered(remote, local)

	// value present only in the remote tier
	remote.Set(ctx, "k", "remote")
	local.Set(ctx, "k", "stale-local")

	v, ok := tiered.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "remote", v)

	// remote miss falls back to local
	local.Set(ctx, "only-local", "v")
	v, ok = tiered.Get(ctx, "only-local")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}
