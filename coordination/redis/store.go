// Package redis provides a Redis-backed coordination store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/getpup/pupsourcing-migrator/coordination"
)

// compareAndDelete deletes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndExpire resets the ttl of KEYS[1] to ARGV[2] milliseconds only while it still holds ARGV[1].
var compareAndExpire = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Config configures the Redis connection.
type Config struct {
	// Addr is the Redis server address (default: "localhost:6379").
	Addr string

	// Password is the optional Redis password.
	Password string

	// DB is the Redis database number (default: 0).
	DB int

	// Prefix is prepended to every key (default: "").
	Prefix string

	// DialTimeout bounds connection establishment (default: 5s).
	DialTimeout time.Duration
}

// Store implements coordination.Store on Redis.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

var _ coordination.Store = (*Store)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient creates a store over an existing client.
func NewWithClient(client goredis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

// SetNX sets key to value with ttl only if key does not exist.
func (s *Store) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return ok, nil
}

// Get returns the value of key.
// Returns coordination.ErrKeyNotFound if the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", coordination.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}

// Set sets key to value. A ttl of zero means the key does not expire.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// CompareAndDelete atomically deletes key if its value equals expected.
func (s *Store) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.client, []string{s.key(key)}, expected).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-delete %s: %w", key, err)
	}
	return n == 1, nil
}

// CompareAndExpire atomically resets the ttl of key if its value equals expected.
func (s *Store) CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error) {
	n, err := compareAndExpire.Run(ctx, s.client, []string{s.key(key)}, expected, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-expire %s: %w", key, err)
	}
	return n == 1, nil
}

// HSet sets the given fields of the hash at key.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}

	if err := s.client.HSet(ctx, s.key(key), values...).Err(); err != nil {
		return fmt.Errorf("failed to hset %s: %w", key, err)
	}
	return nil
}

// HGetAll returns every field of the hash at key.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to hgetall %s: %w", key, err)
	}
	return fields, nil
}

// Del removes the given keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}

	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}
