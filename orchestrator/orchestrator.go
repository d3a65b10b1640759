// Package orchestrator drives apply runs: it resolves pending migrations,
// holds the migration lease for the duration of the run and applies each
// pending migration in order, halting at the first failure.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/ledger"
	"github.com/getpup/pupsourcing-migrator/lifecycle"
	"github.com/getpup/pupsourcing-migrator/lock"
	"github.com/getpup/pupsourcing-migrator/metrics"
	"github.com/getpup/pupsourcing-migrator/resolver"
	"github.com/getpup/pupsourcing-migrator/status"
	"github.com/getpup/pupsourcing-migrator/strategy"
)

// DefaultCleanupTimeout bounds the cleanup that runs after every run,
// independently of the run's own context.
const DefaultCleanupTimeout = 10 * time.Second

// Config holds configuration for the Orchestrator.
type Config struct {
	// Source supplies the migration definitions (required).
	Source migrator.Source

	// Ledger is the applied-migrations ledger (required).
	Ledger *ledger.Ledger

	// Lock grants the migration lease (required).
	Lock *lock.Coordinator

	// Board receives the live status snapshot. If nil, nothing is published.
	Board *status.Board

	// Strategies configures the strategies built for each run.
	Strategies strategy.Options

	// RenewInterval enables lease keep-alive at the given interval (default: 0, disabled).
	// With keep-alive disabled the lease lives for the lock TTL only.
	RenewInterval time.Duration

	// CleanupTimeout bounds status clearing and lease release (default: 10s).
	CleanupTimeout time.Duration

	// Logger is an optional logger. If nil, logging is disabled.
	Logger migrator.Logger

	// MetricsEnabled enables Prometheus metrics collection (default: true).
	// Set to false explicitly to disable metrics.
	MetricsEnabled *bool

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// ApplyOptions selects how a run applies migrations.
type ApplyOptions struct {
	// Strategy is the strategy used for every migration of the run (default: online).
	Strategy strategy.Kind

	// DryRun reports the pending migrations without taking the lease or executing SQL.
	DryRun bool
}

// Orchestrator applies pending migrations.
type Orchestrator struct {
	config    Config
	resolver  *resolver.Resolver
	collector *metrics.Collector
}

// New creates a new Orchestrator with the given configuration.
func New(cfg Config) *Orchestrator {
	if cfg.CleanupTimeout == 0 {
		cfg.CleanupTimeout = DefaultCleanupTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	var collector *metrics.Collector
	metricsEnabled := true
	if cfg.MetricsEnabled != nil {
		metricsEnabled = *cfg.MetricsEnabled
	}
	if metricsEnabled {
		collector = metrics.NewCollector(cfg.Ledger.Table())
	}

	return &Orchestrator{
		config:    cfg,
		resolver:  &resolver.Resolver{Logger: cfg.Logger},
		collector: collector,
	}
}

// ApplyOperation returns the lease operation name of an apply run.
func ApplyOperation(kind strategy.Kind) string {
	return "apply_migrations_" + string(kind)
}

// Apply runs every pending migration with the selected strategy.
//
// A run without pending migrations, and every dry run, returns without
// touching the lease or the database. Otherwise the lease is acquired once;
// a held lease fails the call immediately with a *migrator.LockHeldError.
// The first failed migration halts the run: its result is the last entry
// of RunReport.Results and nothing after it is attempted. A halted run is
// not an error; callers inspect RunReport.Failed.
//
// Whenever the lease was acquired the returned report is non-nil, even
// alongside an error, and the status snapshot is cleared and the lease
// released before Apply returns.
func (o *Orchestrator) Apply(ctx context.Context, opts ApplyOptions) (report *migrator.RunReport, err error) {
	kind := opts.Strategy
	if kind == "" {
		kind = strategy.KindOnline
	}
	strat, err := strategy.New(kind, o.config.Strategies)
	if err != nil {
		return nil, err
	}

	started := o.config.Now()
	machine := migrator.NewRunMachine()
	report = &migrator.RunReport{Strategy: string(kind), DryRun: opts.DryRun}
	defer func() {
		if report == nil {
			return
		}
		report.Transitions = machine.History()
		if err == nil && report.Outcome != "" {
			o.observeRun(report, started)
		}
	}()

	current, err := o.resolve(ctx)
	if err != nil {
		return nil, err
	}

	if len(current.plan.Pending) == 0 {
		report.Outcome = migrator.RunOutcomeNothingToDo
		if o.config.Logger != nil {
			o.config.Logger.Info(ctx, "no pending migrations", "blocked", len(current.plan.Blocked))
		}
		return report, nil
	}

	if opts.DryRun {
		report.Outcome = migrator.RunOutcomeDryRun
		report.WouldApply = resolver.Schedule(current.defs, current.applied)
		if o.config.Logger != nil {
			o.config.Logger.Info(ctx, "dry run", "strategy", kind, "would_apply", len(report.WouldApply))
		}
		return report, nil
	}

	operation := ApplyOperation(kind)
	lease, err := o.config.Lock.Acquire(ctx, operation)
	if err != nil {
		if errors.Is(err, migrator.ErrLockHeld) && o.collector != nil {
			o.collector.IncLockContention(operation)
		}
		return nil, err
	}
	if err := machine.Transition(migrator.RunStateLockAcquired); err != nil {
		_ = lease.Release(context.Background())
		return nil, err
	}

	var keepAlive *lifecycle.Manager
	if o.config.RenewInterval > 0 {
		keepAlive = lifecycle.New(lifecycle.Config{
			Lease:         lease,
			RenewInterval: o.config.RenewInterval,
			Logger:        o.config.Logger,
		})
		keepAlive.Start(ctx)
	}

	defer o.finish(lease, keepAlive, machine)

	if err := o.config.Ledger.EnsureTable(ctx); err != nil {
		return report, err
	}

	// Another run may have applied migrations between planning and acquiring the lease.
	current, err = o.resolve(ctx)
	if err != nil {
		return report, err
	}

	if err := machine.Transition(migrator.RunStateIterating); err != nil {
		return report, err
	}
	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "migration run started", "operation", operation, "pending", len(current.plan.Pending))
	}

	env := strategy.Env{
		DB:      o.config.Ledger.DB(),
		Dialect: o.config.Ledger.Dialect(),
		Logger:  o.config.Logger,
	}

	// The lease excludes every other ledger writer, so the applied set is
	// tracked in memory and definitions unblocked by this run's migrations
	// join the pending set as soon as their dependencies are applied.
	pending := current.plan.Pending
	report.States = make(map[string]migrator.MigrationState, len(pending))
	for len(pending) > 0 {
		def := pending[0]

		if err := ctx.Err(); err != nil {
			report.StillPending = pending
			return report, err
		}
		if keepAlive != nil {
			if err := keepAlive.Err(); err != nil {
				report.StillPending = pending
				return report, fmt.Errorf("migration run stopped: %w", err)
			}
		}

		state, err := migrator.MigrationStatePending.Transition(migrator.MigrationStateApplying)
		if err != nil {
			return report, err
		}
		report.States[def.ID] = state

		o.publish(ctx, migrator.StatusSnapshot{
			Operation:        operation,
			Strategy:         string(kind),
			CurrentMigration: def.ID,
			Phase:            state,
			StartedAt:        o.config.Now().UTC(),
		})

		env.Record = o.recorder(def, kind)
		res := strat.Apply(ctx, env, def)
		report.Results = append(report.Results, res)
		o.observeMigration(res)

		next := migrator.MigrationStateApplied
		if !res.Success {
			next = migrator.MigrationStateFailed
		}
		if state, err = state.Transition(next); err != nil {
			return report, err
		}
		report.States[def.ID] = state

		if !res.Success {
			o.publish(ctx, migrator.StatusSnapshot{
				Operation:        operation,
				Strategy:         string(kind),
				CurrentMigration: def.ID,
				Phase:            state,
				FailedAt:         o.config.Now().UTC(),
				Error:            res.Error,
			})
			report.StillPending = pending[1:]
			report.Outcome = migrator.RunOutcomeHalted
			if o.config.Logger != nil {
				o.config.Logger.Error(ctx, "migration run halted", "migration_id", def.ID, "not_attempted", len(report.StillPending))
			}
			return report, machine.Transition(migrator.RunStateHaltedOnFailure)
		}

		current.applied[def.ID] = struct{}{}
		plan := resolver.Resolve(current.defs, current.applied)
		pending = plan.Pending
		if o.collector != nil {
			o.collector.SetPending(len(plan.Pending), len(plan.Blocked))
		}
	}

	report.Outcome = migrator.RunOutcomeCompleted
	if o.config.Logger != nil {
		o.config.Logger.Info(ctx, "migration run completed", "applied", len(report.Results))
	}
	return report, machine.Transition(migrator.RunStateCompleted)
}

type resolution struct {
	defs    []migrator.Definition
	applied map[string]struct{}
	plan    resolver.Plan
}

func (o *Orchestrator) resolve(ctx context.Context) (resolution, error) {
	defs, err := o.config.Source.Load(ctx)
	if err != nil {
		return resolution{}, fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := o.config.Ledger.AppliedIDs(ctx)
	if err != nil {
		return resolution{}, err
	}

	plan := o.resolver.Pending(ctx, defs, applied)
	if o.collector != nil {
		o.collector.SetPending(len(plan.Pending), len(plan.Blocked))
	}
	return resolution{defs: defs, applied: applied, plan: plan}, nil
}

// recorder writes def's ledger row inside the strategy's final transaction.
func (o *Orchestrator) recorder(def migrator.Definition, kind strategy.Kind) strategy.Recorder {
	return func(ctx context.Context, tx *sql.Tx, applyDuration time.Duration) error {
		appliedAt := o.config.Now().UTC().Truncate(time.Microsecond)
		rec := migrator.NewAppliedRecord(def, string(kind), appliedAt, applyDuration)
		return o.config.Ledger.RecordTx(ctx, tx, rec)
	}
}

// publish is best effort. The live snapshot is informational only.
func (o *Orchestrator) publish(ctx context.Context, snap migrator.StatusSnapshot) {
	if o.config.Board == nil {
		return
	}
	if err := o.config.Board.Publish(ctx, snap); err != nil && o.config.Logger != nil {
		o.config.Logger.Warn(ctx, "failed to publish status", "migration_id", snap.CurrentMigration, "error", err)
	}
}

// finish runs on every path once the lease is held. It uses its own
// context so a cancelled run still clears its status and releases the lease.
func (o *Orchestrator) finish(lease *lock.Lease, keepAlive *lifecycle.Manager, machine *migrator.RunMachine) {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.CleanupTimeout)
	defer cancel()

	if keepAlive != nil {
		if err := keepAlive.Stop(); err != nil && o.config.Logger != nil {
			o.config.Logger.Warn(ctx, "lease keep-alive ended with error", "error", err)
		}
	}

	if o.config.Board != nil {
		if err := o.config.Board.Clear(ctx); err != nil && o.config.Logger != nil {
			o.config.Logger.Error(ctx, "failed to clear status", "error", err)
		}
	}

	if err := lease.Release(ctx); err != nil && o.config.Logger != nil {
		o.config.Logger.Error(ctx, "failed to release migration lock", "operation", lease.Operation(), "error", err)
	}

	if err := machine.Transition(migrator.RunStateLockReleased); err != nil && o.config.Logger != nil {
		o.config.Logger.Error(ctx, "unexpected run state", "error", err)
	}
}

func (o *Orchestrator) observeMigration(res migrator.ExecutionResult) {
	if o.collector == nil {
		return
	}
	if res.Success {
		o.collector.IncApplied(res.Strategy)
	} else {
		o.collector.IncFailed(res.Strategy)
	}
	o.collector.ObserveMigrationDuration(res.Strategy, res.Duration.Seconds())
}

func (o *Orchestrator) observeRun(report *migrator.RunReport, started time.Time) {
	if o.collector == nil {
		return
	}
	o.collector.IncRun(string(report.Outcome))
	if report.Outcome == migrator.RunOutcomeCompleted || report.Outcome == migrator.RunOutcomeHalted {
		o.collector.ObserveRunDuration(o.config.Now().Sub(started).Seconds())
	}
}
