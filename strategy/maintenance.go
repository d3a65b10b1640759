package strategy

import (
	"context"
	"fmt"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/coordination"
)

const (
	// DefaultMaintenanceKey is the flag applications poll to enter maintenance mode.
	DefaultMaintenanceKey = "maintenance:required"

	// DefaultMaintenanceTTL bounds how long the flag stays raised.
	DefaultMaintenanceTTL = time.Hour
)

// Maintenance raises the shared maintenance flag, then applies the
// definition like Online. The flag is left to expire on its own so that
// applications stay in maintenance mode for the rest of the window.
type Maintenance struct {
	// Flags is the coordination store holding the flag (required).
	Flags coordination.Store

	// Key is the flag key (default: "maintenance:required").
	Key string

	// TTL is the lifetime of the flag (default: 1h).
	TTL time.Duration
}

// Kind implements Strategy.
func (Maintenance) Kind() Kind { return KindMaintenance }

func (Maintenance) sealed() {}

// Apply implements Strategy. If the flag cannot be raised no SQL runs.
func (m Maintenance) Apply(ctx context.Context, env Env, def migrator.Definition) migrator.ExecutionResult {
	key := m.Key
	if key == "" {
		key = DefaultMaintenanceKey
	}
	ttl := m.TTL
	if ttl == 0 {
		ttl = DefaultMaintenanceTTL
	}

	start := time.Now()
	if m.Flags == nil {
		res := failed(migrator.ExecutionResult{MigrationID: def.ID, Strategy: string(KindMaintenance)}, start,
			fmt.Errorf("maintenance strategy requires a coordination store"))
		logResult(ctx, env, res)
		return res
	}

	if err := m.Flags.Set(ctx, key, "true", ttl); err != nil {
		res := failed(migrator.ExecutionResult{MigrationID: def.ID, Strategy: string(KindMaintenance)}, start,
			fmt.Errorf("failed to raise maintenance flag: %w", err))
		logResult(ctx, env, res)
		return res
	}

	if env.Logger != nil {
		env.Logger.Info(ctx, "maintenance flag raised", "migration_id", def.ID, "key", key, "ttl", ttl)
	}

	res := applyOnline(ctx, env, def, KindMaintenance)
	logResult(ctx, env, res)
	return res
}
