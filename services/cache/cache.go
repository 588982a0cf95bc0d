package cache

import (
	"context"
	"time"
)

// Cache is the shared cache contract. Implementations never return
// errors to callers: an unreachable backend degrades to a miss, so
// "missing" is an explicit, testable branch rather than a swallowed
// exception.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	SetEx(ctx context.Context, key string, ttl time.Duration, value string)
	Keys(ctx context.Context, pattern string) []string
	// MGet returns one entry per key; ok is false for misses.
	MGet(ctx context.Context, keys ...string) []Value
	Del(ctx context.Context, keys ...string)
}

// Value is an optional cache result
type Value struct {
	Data string
	OK   bool
}

// Tiered layers the shared Redis cache over a bounded in-process
// fallback. Writes go to both; reads prefer the shared tier and fall
// back to local when the shared tier misses or is down.
type Tiered struct {
	remote Cache
	local  Cache
}

// NewTiered creates a tiered cache. remote may be nil, in which case
// only the local tier is used.
func NewTiered(remote, local Cache) *Tiered {
	return &Tiered{remote: remote, local: local}
}

func (t *Tiered) Get(ctx context.Context, key string) (string, bool) {
	if t.remote != nil {
		if v, ok := t.remote.Get(ctx, key); ok {
			return v, true
		}
	}
	return t.local.Get(ctx, key)
}

func (t *Tiered) Set(ctx context.Context, key, value string) {
	if t.remote != nil {
		t.remote.Set(ctx, key, value)
	}
	t.local.Set(ctx, key, value)
}

func (t *Tiered) SetEx(ctx context.Context, key string, ttl time.Duration, value string) {
	if t.remote != nil {
		t.remote.SetEx(ctx, key, ttl, value)
	}
	t.local.SetEx(ctx, key, ttl, value)
}

func (t *Tiered) Keys(ctx context.Context, pattern string) []string {
	if t.remote != nil {
		if keys := t.remote.Keys(ctx, pattern); len(keys) > 0 {
			return keys
		}
	}
	return t.local.Keys(ctx, pattern)
}

func (t *Tiered) Del(ctx context.Context, keys ...string) {
	if t.remote != nil {
		t.remote.Del(ctx, keys...)
	}
	t.local.Del(ctx, keys...)
}

func (t *Tiered) MGet(ctx context.Context, keys ...string) []Value {
	values := make([]Value, len(keys))
	if t.remote != nil {
		values = t.remote.MGet(ctx, keys...)
	}
	for i, v := range values {
		if !v.OK {
			if data, ok := t.local.Get(ctx, keys[i]); ok {
				values[i] = Value{Data: data, OK: true}
			}
		}
	}
	return values
}
