// Package metrics exposes Prometheus metrics for migration runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// migrationBuckets cover sub-second DDL up to hour-long table rebuilds.
var migrationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800, 3600}

// MigrationsAppliedTotal tracks the total number of migrations applied.
var MigrationsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrator_migrations_applied_total",
		Help: "Total migrations applied",
	},
	[]string{"ledger", "strategy"},
)

// MigrationsFailedTotal tracks the total number of failed migration attempts.
var MigrationsFailedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrator_migrations_failed_total",
		Help: "Total failed migration attempts",
	},
	[]string{"ledger", "strategy"},
)

// RollbacksTotal tracks the total number of rollbacks by result (success, failure).
var RollbacksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrator_rollbacks_total",
		Help: "Total rollbacks executed",
	},
	[]string{"ledger", "result"},
)

// LockContentionTotal tracks the total number of lease acquisitions refused because the lease was held.
var LockContentionTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrator_lock_contention_total",
		Help: "Total lease acquisitions refused because the lease was held",
	},
	[]string{"ledger", "operation"},
)

// RunsTotal tracks the total number of apply runs by outcome.
var RunsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrator_runs_total",
		Help: "Total apply runs by outcome",
	},
	[]string{"ledger", "outcome"},
)

// PendingMigrations tracks the number of migrations ready to apply at the last resolution.
var PendingMigrations = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pupsourcing_migrator_pending_migrations",
		Help: "Migrations ready to apply at the last resolution",
	},
	[]string{"ledger"},
)

// BlockedMigrations tracks the number of migrations excluded for missing dependencies at the last resolution.
var BlockedMigrations = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pupsourcing_migrator_blocked_migrations",
		Help: "Migrations excluded for missing dependencies at the last resolution",
	},
	[]string{"ledger"},
)

// MigrationDuration tracks the time spent applying a single migration.
var MigrationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupsourcing_migrator_migration_duration_seconds",
		Help:    "Time spent applying a single migration",
		Buckets: migrationBuckets,
	},
	[]string{"ledger", "strategy"},
)

// RunDuration tracks the time an apply run holds the lease.
var RunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupsourcing_migrator_run_duration_seconds",
		Help:    "Time an apply run holds the lease",
		Buckets: migrationBuckets,
	},
	[]string{"ledger"},
)
