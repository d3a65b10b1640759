// Package coordination defines the key/value store shared by concurrent
// migrator invocations for leases, the maintenance flag and live status.
package coordination

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound indicates the key does not exist or has expired.
var ErrKeyNotFound = errors.New("key not found")

// Store is a shared key/value store with expiring keys and hashes.
// Implementations must be safe for concurrent access from multiple processes.
type Store interface {
	// SetNX sets key to value with ttl only if key does not exist.
	// Returns true if the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the value of key.
	// Returns ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set sets key to value. A ttl of zero means the key does not expire.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// CompareAndDelete atomically deletes key if its value equals expected.
	// Returns true if the key was deleted.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// CompareAndExpire atomically resets the ttl of key if its value equals expected.
	// Returns true if the ttl was reset.
	CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error)

	// HSet sets the given fields of the hash at key.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns every field of the hash at key.
	// Returns an empty map if the key does not exist.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Del removes the given keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
}
