package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	rootpkg "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/coordination"
	"github.com/getpup/pupsourcing-migrator/coordination/memory"
	"github.com/getpup/pupsourcing-migrator/coordination/redis"
	"github.com/getpup/pupsourcing-migrator/internal/config"
	"github.com/getpup/pupsourcing-migrator/ledger"
	"github.com/getpup/pupsourcing-migrator/metrics"
	"github.com/getpup/pupsourcing-migrator/pkg/migrator"
)

const shutdownTimeout = 5 * time.Second

// session holds the connections opened for one command.
type session struct {
	migrator *migrator.Migrator
	closers  []func(ctx context.Context) error
	logger   rootpkg.Logger
}

// openSession connects to the database and the coordination store described
// by cfg and starts the metrics endpoint when configured.
func openSession(ctx context.Context, cfg *config.Config, logger rootpkg.Logger) (_ *session, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	dialect, _ := cfg.Dialect()

	s := &session{logger: logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	db, err := sql.Open(dialect.DriverName(), cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error { return db.Close() })

	// SQLite allows a single writer; one connection keeps transactions from contending.
	if dialect == ledger.SQLite {
		db.SetMaxOpenConns(1)
	} else if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var store coordination.Store
	if cfg.Redis.Addr == "" && cfg.Redis.InProcess {
		logger.Warn(ctx, "using in-process coordination store, concurrent invocations are not excluded")
		store = memory.New()
	} else {
		rs, err := redis.New(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return rs.Close() })
		store = rs
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr)
		srv.Start()
		s.closers = append(s.closers, srv.Shutdown)
		logger.Info(ctx, "metrics endpoint started", "addr", cfg.Metrics.Addr)
	}

	m, err := migrator.New(
		migrator.WithDatabase(db, dialect),
		migrator.WithCoordinationStore(store),
		migrator.WithMigrationsDir(cfg.Migrations.Dir),
		migrator.WithTableName(cfg.Migrations.Table),
		migrator.WithLockTTL(cfg.Lock.TTL),
		migrator.WithRenewInterval(cfg.Lock.RenewInterval),
		migrator.WithMaintenanceFlag("", cfg.Maintenance.TTL),
		migrator.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	s.migrator = m

	return s, nil
}

// Close releases everything the session opened, in reverse order.
func (s *session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.logger.Warn(ctx, "failed to close resource", "error", err)
		}
	}
	s.closers = nil
}
