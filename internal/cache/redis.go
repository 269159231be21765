package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements a redis-backed cache. It is selected when the server
// is configured with a redis address, so multiple instances share one
// response cache.
type Redis struct {
	client *redis.Client
	config Config
}

// RedisConfig holds redis-specific configuration.
type RedisConfig struct {
	// Addr is the redis server address (host:port).
	Addr string
	// Password is the redis password (optional).
	Password string
	// DB is the redis database number.
	DB int
	// Config holds common cache configuration.
	Config Config
}

// DefaultRedisConfig returns the stock redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:   "localhost:6379",
		Config: DefaultConfig(),
	}
}

// NewRedis creates a redis cache and verifies the connection.
func NewRedis(config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Redis{client: client, config: config.Config}, nil
}

// NewRedisWithClient creates a redis cache over an existing client.
func NewRedisWithClient(client *redis.Client, config Config) *Redis {
	return &Redis{client: client, config: config}
}

// Get retrieves a value from the cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.config.Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss{Key: key}
		}
		return nil, err
	}
	return value, nil
}

// Set stores a value in the cache with a TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = r.config.DefaultTTL
	}
	return r.client.Set(ctx, r.config.Prefix+key, value, ttl).Err()
}

// Delete removes a value from the cache.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.config.Prefix+key).Err()
}

// DeletePrefix removes every key sharing the given prefix.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	return r.deleteMatching(ctx, r.config.Prefix+prefix+"*")
}

// Clear removes all values written by this cache.
func (r *Redis) Clear(ctx context.Context) error {
	return r.deleteMatching(ctx, r.config.Prefix+"*")
}

func (r *Redis) deleteMatching(ctx context.Context, pattern string) error {
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
