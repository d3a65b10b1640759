// Package migrator is the public entry point of the schema migrator. It
// wires the source loader, ledger, lease coordinator, strategies, rollback
// executor and status reporter behind functional options.
package migrator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	rootpkg "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/coordination"
	"github.com/getpup/pupsourcing-migrator/ledger"
	"github.com/getpup/pupsourcing-migrator/lock"
	"github.com/getpup/pupsourcing-migrator/orchestrator"
	"github.com/getpup/pupsourcing-migrator/rollback"
	"github.com/getpup/pupsourcing-migrator/source"
	"github.com/getpup/pupsourcing-migrator/status"
	"github.com/getpup/pupsourcing-migrator/strategy"
)

// Re-export core types from root package
type (
	// Definition is a migration unit.
	Definition = rootpkg.Definition

	// AppliedRecord is a ledger row.
	AppliedRecord = rootpkg.AppliedRecord

	// ExecutionResult is the outcome of one migration or rollback.
	ExecutionResult = rootpkg.ExecutionResult

	// RunReport describes one apply run.
	RunReport = rootpkg.RunReport

	// Logger is the logging interface used by every component.
	Logger = rootpkg.Logger

	// ApplyOptions selects the strategy and dry-run mode of an apply run.
	ApplyOptions = orchestrator.ApplyOptions

	// Summary is the result of Status.
	Summary = status.Summary

	// Listing is the result of List.
	Listing = status.Listing
)

// Option configures a Migrator.
type Option func(*config)

type config struct {
	db             *sql.DB
	dialect        ledger.Dialect
	store          coordination.Store
	source         rootpkg.Source
	dir            string
	table          string
	lockKey        string
	lockTTL        time.Duration
	renewInterval  time.Duration
	statusKey      string
	maintenanceKey string
	maintenanceTTL time.Duration
	shadowPrefix   string
	logger         rootpkg.Logger
	metricsEnabled *bool
}

// Migrator applies, rolls back and reports migrations.
type Migrator struct {
	ledger       *ledger.Ledger
	lock         *lock.Coordinator
	orchestrator *orchestrator.Orchestrator
	rollback     *rollback.Executor
	reporter     *status.Reporter
}

// New creates a new Migrator with the given options.
//
// Required options:
//   - WithDatabase: target database and its dialect
//   - WithCoordinationStore: store holding the lease, maintenance flag and live status
//   - WithMigrationsDir or WithSource: where definitions come from
//
// Optional configuration (with defaults):
//   - WithTableName: ledger table (default: schema_migrations)
//   - WithLockKey: lease key (default: migrations:lock)
//   - WithLockTTL: lease lifetime (default: 1h)
//   - WithRenewInterval: lease keep-alive interval (default: 0, disabled)
//   - WithStatusKey: live status key (default: migrations:status)
//   - WithMaintenanceFlag: maintenance flag key and TTL (default: maintenance:required, 1h)
//   - WithShadowPrefix: shadow table prefix (default: shadow_)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//
// Example:
//
//	m, err := migrator.New(
//	    migrator.WithDatabase(db, ledger.Postgres),
//	    migrator.WithCoordinationStore(redisStore),
//	    migrator.WithMigrationsDir("./migrations"),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (*Migrator, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.db == nil {
		return nil, fmt.Errorf("database is required: use WithDatabase option")
	}
	if cfg.store == nil {
		return nil, fmt.Errorf("coordination store is required: use WithCoordinationStore option")
	}
	if cfg.source == nil && cfg.dir == "" {
		return nil, fmt.Errorf("migration source is required: use WithMigrationsDir or WithSource option")
	}
	if cfg.source == nil {
		cfg.source = &source.Loader{Dir: cfg.dir, Logger: cfg.logger}
	}

	l, err := ledger.New(cfg.db, ledger.Config{Dialect: cfg.dialect, Table: cfg.table})
	if err != nil {
		return nil, err
	}

	coordinator := lock.New(lock.Config{
		Store:  cfg.store,
		Key:    cfg.lockKey,
		TTL:    cfg.lockTTL,
		Logger: cfg.logger,
	})
	board := status.NewBoard(cfg.store, cfg.statusKey)

	orch := orchestrator.New(orchestrator.Config{
		Source: cfg.source,
		Ledger: l,
		Lock:   coordinator,
		Board:  board,
		Strategies: strategy.Options{
			Flags:          cfg.store,
			MaintenanceKey: cfg.maintenanceKey,
			MaintenanceTTL: cfg.maintenanceTTL,
			ShadowPrefix:   cfg.shadowPrefix,
		},
		RenewInterval:  cfg.renewInterval,
		Logger:         cfg.logger,
		MetricsEnabled: cfg.metricsEnabled,
	})

	return &Migrator{
		ledger:       l,
		lock:         coordinator,
		orchestrator: orch,
		rollback: rollback.New(rollback.Config{
			Ledger:         l,
			Lock:           coordinator,
			Logger:         cfg.logger,
			MetricsEnabled: cfg.metricsEnabled,
		}),
		reporter: status.NewReporter(status.ReporterConfig{
			Source: cfg.source,
			Ledger: l,
			Board:  board,
			Logger: cfg.logger,
		}),
	}, nil
}

// Apply runs the pending migrations. See orchestrator.Orchestrator.Apply.
func (m *Migrator) Apply(ctx context.Context, opts ApplyOptions) (*RunReport, error) {
	return m.orchestrator.Apply(ctx, opts)
}

// Rollback reverts migration id. See rollback.Executor.Rollback.
func (m *Migrator) Rollback(ctx context.Context, id string) (ExecutionResult, error) {
	return m.rollback.Rollback(ctx, id)
}

// Status summarises the live run and the ledger.
func (m *Migrator) Status(ctx context.Context) (Summary, error) {
	return m.reporter.Status(ctx)
}

// List returns applied, pending and blocked migrations.
func (m *Migrator) List(ctx context.Context) (Listing, error) {
	return m.reporter.List(ctx)
}

// LockOwner returns the owner token of the current lease, if any.
func (m *Migrator) LockOwner(ctx context.Context) (string, bool, error) {
	return m.lock.Owner(ctx)
}

// EnsureLedger creates the ledger table if it does not exist.
// Apply does this on its own; use it to provision the table ahead of time.
func (m *Migrator) EnsureLedger(ctx context.Context) error {
	return m.ledger.EnsureTable(ctx)
}

// Ledger returns the underlying ledger.
func (m *Migrator) Ledger() *ledger.Ledger {
	return m.ledger
}

// WithDatabase sets the target database and its SQL dialect.
func WithDatabase(db *sql.DB, dialect ledger.Dialect) Option {
	return func(c *config) {
		c.db = db
		c.dialect = dialect
	}
}

// WithCoordinationStore sets the store shared by concurrent migrator invocations.
func WithCoordinationStore(store coordination.Store) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithMigrationsDir loads definitions from the *.sql units in dir.
func WithMigrationsDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// WithSource sets a custom definition source. It takes precedence over WithMigrationsDir.
func WithSource(src rootpkg.Source) Option {
	return func(c *config) {
		c.source = src
	}
}

// WithTableName sets the ledger table name.
func WithTableName(table string) Option {
	return func(c *config) {
		c.table = table
	}
}

// WithLockKey sets the lease key.
func WithLockKey(key string) Option {
	return func(c *config) {
		c.lockKey = key
	}
}

// WithLockTTL sets the lease lifetime.
func WithLockTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.lockTTL = ttl
	}
}

// WithRenewInterval enables lease keep-alive during apply runs.
func WithRenewInterval(interval time.Duration) Option {
	return func(c *config) {
		c.renewInterval = interval
	}
}

// WithStatusKey sets the key of the live status snapshot.
func WithStatusKey(key string) Option {
	return func(c *config) {
		c.statusKey = key
	}
}

// WithMaintenanceFlag sets the key and lifetime of the maintenance flag.
func WithMaintenanceFlag(key string, ttl time.Duration) Option {
	return func(c *config) {
		c.maintenanceKey = key
		c.maintenanceTTL = ttl
	}
}

// WithShadowPrefix sets the prefix of shadow tables.
func WithShadowPrefix(prefix string) Option {
	return func(c *config) {
		c.shadowPrefix = prefix
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger rootpkg.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}
