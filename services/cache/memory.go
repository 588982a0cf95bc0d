package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

// Memory is a fixed-capacity in-process LRU cache. It backs the
// screener when the shared cache is unreachable and is a drop-in
// implementation of the same Cache contract.
type Memory struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
}

type memoryEntry struct {
	key       string
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates an LRU cache holding at most capacity entries
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return "", false
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.removeLocked(el)
		return "", false
	}
	m.order.MoveToFront(el)
	return entry.value, true
}

func (m *Memory) Set(ctx context.Context, key, value string) {
	m.SetEx(ctx, key, 0, value)
}

func (m *Memory) SetEx(_ context.Context, key string, ttl time.Duration, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if el, ok := m.entries[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		m.order.MoveToFront(el)
		return
	}

	el := m.order.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
	m.entries[key] = el

	for m.order.Len() > m.capacity {
		m.removeLocked(m.order.Back())
	}
}

func (m *Memory) Keys(_ context.Context, pattern string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var keys []string
	for key, el := range m.entries {
		entry := el.Value.(*memoryEntry)
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

func (m *Memory) MGet(ctx context.Context, keys ...string) []Value {
	values := make([]Value, len(keys))
	for i, key := range keys {
		if data, ok := m.Get(ctx, key); ok {
			values[i] = Value{Data: data, OK: true}
		}
	}
	return values
}

func (m *Memory) Del(_ context.Context, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.removeLocked(m.entries[key])
	}
}

// Len reports the current entry count
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// removeLocked must be called with the mutex held
func (m *Memory) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	entry := el.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.order.Remove(el)
}
