// Package cache provides a small multi-backend cache.
//
// mailgrant uses it for two things: the single-use replay guard on OAuth
// state nonces, and short-lived coordination keys around token refresh.
// Memory is fine for a single process; Redis makes both work across
// replicas.
package cache

import (
	"context"
	"time"
)

// Client defines the cache operations.
type Client interface {
	// Get returns the value, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value. ttl of 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores a value only if the key does not exist yet. Returns
	// whether the write won. This is the primitive behind single-use
	// nonces and refresh locks.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Kind     string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string
	// DefaultTTL applies to memory entries stored with ttl 0.
	DefaultTTL time.Duration
}

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "cache: key not found" }

// New builds a Client for the configured backend. Unknown kinds fall back
// to memory.
func New(cfg Config) (Client, error) {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}
