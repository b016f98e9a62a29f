// Package blobstore holds file bytes between the producer that stages them and
// the relay that consumes them.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-relay/internal/config"
)

var (
	// ErrNotFound means the key was never staged or has already expired or
	// been deleted.
	ErrNotFound = errors.New("blob not found")

	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("blob store unavailable")
)

// Store is a transient key/value store for staged files. Keys are the
// caller's identifiers; each backend applies its own prefix.
type Store interface {
	// Get returns the bytes under key, ErrNotFound or ErrUnavailable.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Put stages data under key. Redis expires each key after ttl. Object
	// store backends ignore ttl and expire by a bucket rule built from the
	// configured TTL when they open.
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error

	Close() error
}

// Open connects the backend selected in cfg.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			Prefix:   cfg.KeyPrefix,
		})
	case config.BackendGCS:
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.KeyPrefix, cfg.TTL)
	case config.BackendMinio:
		return NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioBucket,
			Prefix:    cfg.KeyPrefix,
			TTL:       cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("blobstore.Open: unknown backend %q", cfg.Backend)
	}
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, key, err)
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}
