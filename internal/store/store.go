// Package store builds the artifact store and writer lock selected by
// configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/supplylink/supplylink-ml/internal/config"
	"github.com/supplylink/supplylink-ml/pkg/storage"
)

// Backend bundles the artifact store with the lock that serializes writes to
// it. Close releases any connections either of them holds.
type Backend struct {
	Store  storage.Store
	Locker storage.Locker

	closers []func() error
}

// Close releases backend connections.
func (b *Backend) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// New creates the store and locker described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{}

	switch cfg.Storage {
	case "memory":
		logger.Info("using in-memory artifact store")
		b.Store = storage.NewMemoryStore()

	case "file", "":
		fs, err := storage.NewFileStore(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		logger.Info("using file artifact store", "dir", cfg.ModelPath)
		b.Store = fs

	case "redis":
		rs, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, err
		}
		logger.Info("using redis artifact store", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		b.Store = rs
		b.closers = append(b.closers, rs.Close)

	case "minio":
		ms, err := storage.NewMinIOStore(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("using minio artifact store", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucket)
		b.Store = ms

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}

	if err := b.initLocker(cfg, logger); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) initLocker(cfg *config.Config, logger *slog.Logger) error {
	switch cfg.Lock {
	case "memory", "":
		b.Locker = storage.NewMemoryLocker()
		return nil

	case "redis":
		if rs, ok := b.Store.(*storage.RedisStore); ok {
			b.Locker = rs.Locker()
			logger.Info("using redis writer lock on the store connection")
			return nil
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		b.closers = append(b.closers, client.Close)
		b.Locker = storage.NewRedisLocker(client)
		logger.Info("using redis writer lock", "addr", cfg.RedisAddr)
		return nil

	default:
		return fmt.Errorf("unknown lock backend %q", cfg.Lock)
	}
}
