// Package cache memoises model outputs keyed by the hash of the uploaded
// image bytes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, probs []float32) error
}

// Key is the cache key of an upload.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type Options struct {
	Backend       string
	TTL           time.Duration
	MaxSize       int
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
}

// New builds the configured cache. The "none" backend returns a nil Cache.
func New(opts Options) (Cache, error) {
	switch opts.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(opts.TTL, opts.MaxSize), nil
	case "redis":
		r, err := NewRedis(opts.RedisHost, opts.RedisPort, opts.RedisPassword, opts.RedisDB, opts.TTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
