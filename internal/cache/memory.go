package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implements Client over patrickmn/go-cache.
type memoryClient struct {
	c      *gocache.Cache
	prefix string

	// go-cache has no atomic SetNX with TTL, so guard it with a mutex.
	nxMu sync.Mutex
}

// NewMemory creates an in-process cache client.
func NewMemory(prefix string, defaultTTL time.Duration) Client {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &memoryClient{
		c:      gocache.New(defaultTTL, time.Minute),
		prefix: prefix,
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func (m *memoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *memoryClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.nxMu.Lock()
	defer m.nxMu.Unlock()

	if _, ok := m.c.Get(m.key(key)); ok {
		return false, nil
	}
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return true, nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }
func (m *memoryClient) Close() error                   { return nil }
