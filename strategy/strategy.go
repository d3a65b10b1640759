// Package strategy implements the migration execution strategies.
//
// Every strategy runs one definition's forward SQL exactly once, never
// retries, and calls Env.Record inside its final transaction so the ledger
// row commits together with the schema change.
package strategy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/coordination"
	"github.com/getpup/pupsourcing-migrator/ledger"
)

// Kind names a strategy.
type Kind string

const (
	// KindOnline runs the forward SQL in a single transaction.
	KindOnline Kind = "online"

	// KindShadowTable rebuilds the target table as a shadow copy and swaps it in.
	KindShadowTable Kind = "shadow_table"

	// KindDualWrite is reserved for dual-write migrations. It currently behaves like KindOnline.
	KindDualWrite Kind = "dual_write"

	// KindMaintenance raises the maintenance flag, then behaves like KindOnline.
	KindMaintenance Kind = "maintenance"
)

// Kinds lists every supported strategy in display order.
var Kinds = []Kind{KindOnline, KindShadowTable, KindDualWrite, KindMaintenance}

// ParseKind returns the Kind named name.
// Returns migrator.ErrUnknownStrategy for any other name.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q (supported: online, shadow_table, dual_write, maintenance)", migrator.ErrUnknownStrategy, name)
}

// Recorder writes the ledger row for the definition being applied inside tx.
// applyDuration is the time spent executing the forward SQL.
type Recorder func(ctx context.Context, tx *sql.Tx, applyDuration time.Duration) error

// Env is what a strategy needs to run.
type Env struct {
	// DB is the target database (required).
	DB *sql.DB

	// Dialect is the SQL flavour of DB (default: SQLite).
	Dialect ledger.Dialect

	// Record writes the ledger row before the final commit. If nil, nothing is recorded.
	Record Recorder

	// Logger is an optional logger. If nil, logging is disabled.
	Logger migrator.Logger
}

// Strategy executes a single definition. The set of strategies is closed.
type Strategy interface {
	// Kind returns the strategy name.
	Kind() Kind

	// Apply runs def and reports the outcome. Failures are reported in the
	// result, never as a panic or retry.
	Apply(ctx context.Context, env Env, def migrator.Definition) migrator.ExecutionResult

	sealed()
}

// Options configures the strategies built by New.
type Options struct {
	// Flags is the coordination store holding the maintenance flag (required for KindMaintenance).
	Flags coordination.Store

	// MaintenanceKey is the maintenance flag key (default: "maintenance:required").
	MaintenanceKey string

	// MaintenanceTTL is the lifetime of the maintenance flag (default: 1h).
	MaintenanceTTL time.Duration

	// ShadowPrefix prefixes shadow table names (default: "shadow_").
	ShadowPrefix string
}

// New returns the strategy for kind.
func New(kind Kind, opts Options) (Strategy, error) {
	switch kind {
	case KindOnline:
		return Online{}, nil
	case KindShadowTable:
		return ShadowTable{Prefix: opts.ShadowPrefix}, nil
	case KindDualWrite:
		return DualWrite{}, nil
	case KindMaintenance:
		if opts.Flags == nil {
			return nil, fmt.Errorf("maintenance strategy requires a coordination store")
		}
		return Maintenance{Flags: opts.Flags, Key: opts.MaintenanceKey, TTL: opts.MaintenanceTTL}, nil
	default:
		return nil, fmt.Errorf("%w: %q", migrator.ErrUnknownStrategy, kind)
	}
}

// Parse is ParseKind followed by New.
func Parse(name string, opts Options) (Strategy, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	return New(kind, opts)
}

// withTx runs fn in a transaction, committing on success and rolling back otherwise.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func rowsAffected(result sql.Result) int64 {
	n, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func failed(res migrator.ExecutionResult, start time.Time, err error) migrator.ExecutionResult {
	res.Success = false
	res.Duration = time.Since(start)
	res.Error = err.Error()
	return res
}

func logResult(ctx context.Context, env Env, res migrator.ExecutionResult) {
	if env.Logger == nil {
		return
	}
	if res.Success {
		env.Logger.Info(ctx, "migration applied",
			"migration_id", res.MigrationID,
			"strategy", res.Strategy,
			"duration", res.Duration,
			"affected_rows", res.AffectedRows)
		return
	}
	env.Logger.Error(ctx, "migration failed",
		"migration_id", res.MigrationID,
		"strategy", res.Strategy,
		"duration", res.Duration,
		"error", res.Error)
}
