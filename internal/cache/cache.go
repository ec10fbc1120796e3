package cache

import (
	"context"
	"errors"
	"time"

	"github.com/marcogenualdo/edge-bridge/internal/config"
)

var ErrNotFound = errors.New("key not found")

// Cache is the shared short-lived state store: sessions, OIDC state, CSRF
// tokens and consumed bridge-token nonces.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Take deletes key and reports whether it was present. At most one
	// concurrent caller sees true for the same key.
	Take(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, errors.New("redis config is required for redis cache type")
		}
		return NewRedisCache(*cfg.Redis)
	default:
		return nil, errors.New("unsupported cache type: " + cfg.Type)
	}
}
