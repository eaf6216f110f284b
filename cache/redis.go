package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// scanCount is the COUNT hint of the SCAN calls issued by DeletePrefix.
const scanCount = 100

// Redis is a cache backed by a Redis server. Every key it writes lives
// under the "mirrorm:" namespace, which Clear removes.
type Redis struct {
	client *redis.Client
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// DialTimeout bounds connection attempts. Zero keeps the client default.
	DialTimeout time.Duration
}

// NewRedis returns a Redis cache with its own client.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          opts.DB,
			DialTimeout: opts.DialTimeout,
			MaxRetries:  -1,
		}),
	}
}

// NewRedisClient wraps an existing client. Close closes it.
func NewRedisClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the value stored under key, or nil, nil.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores value under key. A zero ttl never expires.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// DeletePrefix removes every key starting with prefix.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", scanCount).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanCount {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return r.client.Del(ctx, keys...).Err()
	}
	return nil
}

// Clear removes every mirrorm key. Other keys of the database are kept.
func (r *Redis) Clear(ctx context.Context) error {
	return r.DeletePrefix(ctx, "mirrorm:")
}

// Close closes the client connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
