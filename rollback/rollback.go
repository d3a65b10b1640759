// Package rollback reverts applied migrations using the rollback SQL stored
// in the ledger at apply time.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/ledger"
	"github.com/getpup/pupsourcing-migrator/lock"
	"github.com/getpup/pupsourcing-migrator/metrics"
)

// DefaultReleaseTimeout bounds the lease release after a rollback.
const DefaultReleaseTimeout = 10 * time.Second

// Config holds configuration for the Executor.
type Config struct {
	// Ledger is the applied-migrations ledger (required).
	Ledger *ledger.Ledger

	// Lock grants the rollback lease (required).
	Lock *lock.Coordinator

	// ReleaseTimeout bounds the lease release (default: 10s).
	ReleaseTimeout time.Duration

	// Logger is an optional logger. If nil, logging is disabled.
	Logger migrator.Logger

	// MetricsEnabled enables Prometheus metrics collection (default: true).
	// Set to false explicitly to disable metrics.
	MetricsEnabled *bool
}

// Executor rolls back single migrations.
type Executor struct {
	config    Config
	collector *metrics.Collector
}

// New creates a new Executor with the given configuration.
func New(cfg Config) *Executor {
	if cfg.ReleaseTimeout == 0 {
		cfg.ReleaseTimeout = DefaultReleaseTimeout
	}

	var collector *metrics.Collector
	metricsEnabled := true
	if cfg.MetricsEnabled != nil {
		metricsEnabled = *cfg.MetricsEnabled
	}
	if metricsEnabled {
		collector = metrics.NewCollector(cfg.Ledger.Table())
	}

	return &Executor{config: cfg, collector: collector}
}

// Operation returns the lease operation name of a rollback of id.
func Operation(id string) string {
	return "rollback:" + id
}

// Rollback reverts migration id.
//
// Returns migrator.ErrNotApplied if id has no ledger row and
// migrator.ErrNoRollbackAvailable if its row carries no rollback SQL; both
// are checked before the lease is taken. A held lease fails immediately
// with a *migrator.LockHeldError.
//
// The stored rollback SQL and the removal of the ledger row run in one
// transaction. A failure there is reported in the returned result, not as
// an error, and leaves the ledger row in place.
func (e *Executor) Rollback(ctx context.Context, id string) (migrator.ExecutionResult, error) {
	rec, err := e.config.Ledger.Get(ctx, id)
	if err != nil {
		return migrator.ExecutionResult{}, err
	}
	if strings.TrimSpace(rec.RollbackSQL) == "" {
		return migrator.ExecutionResult{}, fmt.Errorf("%w: %s", migrator.ErrNoRollbackAvailable, id)
	}

	operation := Operation(id)
	lease, err := e.config.Lock.Acquire(ctx, operation)
	if err != nil {
		if errors.Is(err, migrator.ErrLockHeld) && e.collector != nil {
			e.collector.IncLockContention(operation)
		}
		return migrator.ExecutionResult{}, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), e.config.ReleaseTimeout)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil && e.config.Logger != nil {
			e.config.Logger.Error(releaseCtx, "failed to release migration lock", "operation", operation, "error", err)
		}
	}()

	if e.config.Logger != nil {
		e.config.Logger.Info(ctx, "rolling back migration", "migration_id", id)
	}

	res := e.execute(ctx, rec)

	if e.collector != nil {
		e.collector.IncRollback(res.Success)
	}
	if e.config.Logger != nil {
		if res.Success {
			e.config.Logger.Info(ctx, "migration rolled back", "migration_id", id, "duration", res.Duration)
		} else {
			e.config.Logger.Error(ctx, "rollback failed", "migration_id", id, "error", res.Error)
		}
	}
	return res, nil
}

func (e *Executor) execute(ctx context.Context, rec migrator.AppliedRecord) migrator.ExecutionResult {
	start := time.Now()
	res := migrator.ExecutionResult{MigrationID: rec.ID, RollbackExecuted: true}

	err := func() (err error) {
		tx, err := e.config.Ledger.DB().BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		result, err := tx.ExecContext(ctx, rec.RollbackSQL)
		if err != nil {
			return fmt.Errorf("failed to execute rollback sql: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil {
			res.AffectedRows = n
		}

		if err := e.config.Ledger.DeleteTx(ctx, tx, rec.ID); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}()

	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}
