// Package lock grants single-shot, TTL-bounded exclusive leases over the
// coordination store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/coordination"
)

const (
	// DefaultKey is the well-known lease key shared by every operation.
	DefaultKey = "migrations:lock"

	// DefaultTTL bounds how long a lease lives without renewal.
	DefaultTTL = time.Hour
)

// Config configures a Coordinator.
type Config struct {
	// Store is the coordination store holding the lease (required).
	Store coordination.Store

	// Key is the lease key (default: "migrations:lock").
	Key string

	// TTL is the lease lifetime (default: 1h).
	TTL time.Duration

	// Logger is an optional logger. If nil, logging is disabled.
	Logger migrator.Logger

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Coordinator acquires leases. It never queues or retries.
type Coordinator struct {
	config Config
}

// New creates a Coordinator, applying defaults for unset fields.
func New(cfg Config) *Coordinator {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Coordinator{config: cfg}
}

// Key returns the lease key.
func (c *Coordinator) Key() string {
	return c.config.Key
}

// TTL returns the lease lifetime.
func (c *Coordinator) TTL() time.Duration {
	return c.config.TTL
}

// Acquire claims the lease for operation with a single set-if-absent.
// Returns a *migrator.LockHeldError naming the current owner if the lease is held.
func (c *Coordinator) Acquire(ctx context.Context, operation string) (*Lease, error) {
	acquiredAt := c.config.Now().UTC()
	token := fmt.Sprintf("%s:%s:%s", operation, acquiredAt.Format(time.RFC3339Nano), uuid.New().String())

	ok, err := c.config.Store.SetNX(ctx, c.config.Key, token, c.config.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}

	if !ok {
		owner, err := c.config.Store.Get(ctx, c.config.Key)
		if err != nil && !errors.Is(err, coordination.ErrKeyNotFound) {
			return nil, fmt.Errorf("failed to read migration lock owner: %w", err)
		}
		if c.config.Logger != nil {
			c.config.Logger.Warn(ctx, "migration lock held", "key", c.config.Key, "operation", operation, "owner", owner)
		}
		return nil, &migrator.LockHeldError{Key: c.config.Key, Owner: owner}
	}

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "migration lock acquired", "key", c.config.Key, "operation", operation, "ttl", c.config.TTL)
	}

	return &Lease{
		store:      c.config.Store,
		logger:     c.config.Logger,
		key:        c.config.Key,
		ttl:        c.config.TTL,
		operation:  operation,
		token:      token,
		acquiredAt: acquiredAt,
	}, nil
}

// Owner returns the token of the current lease holder.
// Returns false if nobody holds the lease.
func (c *Coordinator) Owner(ctx context.Context) (string, bool, error) {
	owner, err := c.config.Store.Get(ctx, c.config.Key)
	if errors.Is(err, coordination.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read migration lock owner: %w", err)
	}
	return owner, true, nil
}

// Lease is a held claim on the lease key.
type Lease struct {
	store  coordination.Store
	logger migrator.Logger

	key        string
	ttl        time.Duration
	operation  string
	token      string
	acquiredAt time.Time

	mu       sync.Mutex
	released bool
}

// Operation returns the operation the lease was acquired for.
func (l *Lease) Operation() string {
	return l.operation
}

// Token returns the owner token stored under the lease key.
func (l *Lease) Token() string {
	return l.token
}

// AcquiredAt returns when the lease was acquired.
func (l *Lease) AcquiredAt() time.Time {
	return l.acquiredAt
}

// Extend resets the lease TTL if the lease is still owned.
// Returns migrator.ErrLeaseLost if it expired or another owner holds it.
func (l *Lease) Extend(ctx context.Context) error {
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if released {
		return migrator.ErrLeaseLost
	}

	ok, err := l.store.CompareAndExpire(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return fmt.Errorf("failed to extend migration lock: %w", err)
	}
	if !ok {
		return migrator.ErrLeaseLost
	}
	return nil
}

// Release deletes the lease key only if it still holds this lease's token,
// so a lease that expired and was re-acquired by another owner is never
// stolen. Calling Release more than once is a no-op.
// Returns migrator.ErrLeaseLost if the token no longer matched.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}

	deleted, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		return fmt.Errorf("failed to release migration lock: %w", err)
	}
	l.released = true

	if !deleted {
		if l.logger != nil {
			l.logger.Warn(ctx, "migration lock was lost before release", "key", l.key, "operation", l.operation)
		}
		return migrator.ErrLeaseLost
	}

	if l.logger != nil {
		l.logger.Info(ctx, "migration lock released", "key", l.key, "operation", l.operation)
	}
	return nil
}
