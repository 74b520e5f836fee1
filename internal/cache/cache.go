// Package cache provides the raster cache used by the page renderer.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/config"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// New builds the client selected by cfg.Driver.
func New(cfg config.CacheConfig) (Client, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryClient(cfg.MaxEntries), nil
	case "redis":
		return NewRedisClient(RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// Key joins key components with ":".
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// DocumentPrefix is the prefix shared by every raster of one document.
func DocumentPrefix(fingerprint string) string {
	return Key("raster", fingerprint) + ":"
}

// RasterKey identifies one rendered page raster.
func RasterKey(fingerprint string, page int, scale, factor float64) string {
	return Key("raster", fingerprint,
		strconv.Itoa(page),
		strconv.FormatFloat(scale, 'f', 4, 64),
		strconv.FormatFloat(factor, 'f', 4, 64))
}
