package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisArtifactPrefix = "supplylink:artifact:"
	redisLockPrefix     = "supplylink:lock:"
)

// unlockScript deletes the lock key only if it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore implements Store using Redis as a backend.
// It lets several forecaster instances share one artifact without a shared
// filesystem. A single SET replaces the value, so readers never see a
// partial artifact.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore creates a new Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: artifact expiration (0 keeps artifacts until overwritten)
//
// Returns an error if the connection to Redis fails or if parameters are invalid.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}
	if ttl < 0 {
		return nil, errors.New("redis ttl must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("redis store is closed")

func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, ErrStoreClosed
	}
	return r.client, nil
}

// Put stores the artifact under "supplylink:artifact:{path}".
func (r *RedisStore) Put(ctx context.Context, path string, data []byte) error {
	key, err := cleanPath(path)
	if err != nil {
		return err
	}
	client, err := r.conn()
	if err != nil {
		return err
	}

	if err := client.Set(ctx, redisArtifactPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store artifact in redis: %w", err)
	}
	return nil
}

// Get retrieves the artifact at path, or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	key, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	client, err := r.conn()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, redisArtifactPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact from redis: %w", err)
	}
	return data, nil
}

// Locker returns a Locker sharing this store's connection pool. The locker
// fails with ErrStoreClosed once the store is closed.
func (r *RedisStore) Locker() *RedisLocker {
	client, _ := r.conn()
	return NewRedisLocker(client)
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

// RedisLocker implements Locker with SET NX PX and a random token, so that
// independent forecaster processes serialize their artifact writes.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Locker on an existing client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock for key for at most ttl, or returns ErrLocked.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	if ttl <= 0 {
		return nil, errors.New("redis lock ttl must be > 0")
	}
	if l.client == nil {
		return nil, ErrStoreClosed
	}

	redisKey := redisLockPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire redis lock %q: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := unlockScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("release redis lock %q: %w", key, err)
		}
		return nil
	}, nil
}
