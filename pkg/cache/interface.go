package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or expired
var ErrNotFound = errors.New("cache: key not found")

// Cache defines the interface for cache operations
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}
