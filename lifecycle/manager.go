// Package lifecycle keeps a held migration lease alive while a run is in progress.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
)

// DefaultRenewInterval is used when Config.RenewInterval is zero.
const DefaultRenewInterval = 5 * time.Minute

// Extender renews a lease. *lock.Lease implements it.
type Extender interface {
	Extend(ctx context.Context) error
}

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Lease is the lease to keep alive (required).
	Lease Extender

	// RenewInterval is the interval between renewals (default: 5m).
	// It must be well below the lease TTL.
	RenewInterval time.Duration

	// Logger is an optional logger. If nil, logging is disabled.
	Logger migrator.Logger
}

// Manager renews a lease on a ticker until stopped or until the lease is lost.
type Manager struct {
	config Config

	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new lifecycle Manager with the given configuration.
// Applies default values for RenewInterval if not set.
func New(cfg Config) *Manager {
	if cfg.RenewInterval == 0 {
		cfg.RenewInterval = DefaultRenewInterval
	}

	return &Manager{
		config: cfg,
	}
}

// Run renews the lease at the configured interval until the context is cancelled.
// Returns nil on cancellation and the renewal error if the lease could not be extended.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.config.Lease.Extend(ctx); err != nil {
				if ctx.Err() != nil && !errors.Is(err, migrator.ErrLeaseLost) {
					return nil
				}
				if m.config.Logger != nil {
					m.config.Logger.Error(ctx, "lease renewal failed", "error", err)
				}
				m.setErr(err)
				return err
			}

			if m.config.Logger != nil {
				m.config.Logger.Debug(ctx, "lease renewed")
			}
		}
	}
}

// Start runs Run in a background goroutine. Stop ends it.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
}

// Stop ends a renewal loop started with Start and waits for it to exit.
// Returns the renewal error, if any.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return m.Err()
}

// Err returns the renewal error that ended the loop, or nil while the lease is healthy.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
