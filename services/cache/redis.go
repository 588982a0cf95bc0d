package cache

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the shared Redis cache. Backend failures are logged once
// per outage and surface to callers as plain misses, never as errors.
type Redis struct {
	client *redis.Client

	mu         sync.Mutex
	downLogged bool
}

// NewRedis creates a Redis-backed cache
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		r.markUp()
		return "", false
	}
	if err != nil {
		r.markDown(err)
		return "", false
	}
	r.markUp()
	return val, true
}

func (r *Redis) Set(ctx context.Context, key, value string) {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		r.markDown(err)
		return
	}
	r.markUp()
}

func (r *Redis) SetEx(ctx context.Context, key string, ttl time.Duration, value string) {
	if err := r.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		r.markDown(err)
		return
	}
	r.markUp()
}

func (r *Redis) Keys(ctx context.Context, pattern string) []string {
	keys, err := r.client.Keys(ctx, pattern).Result()
	if err != nil {
		r.markDown(err)
		return nil
	}
	r.markUp()
	return keys
}

func (r *Redis) MGet(ctx context.Context, keys ...string) []Value {
	values := make([]Value, len(keys))
	if len(keys) == 0 {
		return values
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		r.markDown(err)
		return values
	}
	r.markUp()

	for i, res := range results {
		if s, ok := res.(string); ok {
			values[i] = Value{Data: s, OK: true}
		}
	}
	return values
}

func (r *Redis) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.markDown(err)
		return
	}
	r.markUp()
}

// Ping verifies connectivity for health endpoints
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) markDown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.downLogged {
		log.Printf("Redis cache unavailable, degrading to local cache: %v", err)
		r.downLogged = true
	}
}

func (r *Redis) markUp() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.downLogged {
		log.Printf("Redis cache reachable again")
		r.downLogged = false
	}
}
