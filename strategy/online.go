package strategy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
)

// Online runs the forward SQL and the ledger write in one transaction.
type Online struct{}

// Kind implements Strategy.
func (Online) Kind() Kind { return KindOnline }

func (Online) sealed() {}

// Apply implements Strategy.
func (Online) Apply(ctx context.Context, env Env, def migrator.Definition) migrator.ExecutionResult {
	res := applyOnline(ctx, env, def, KindOnline)
	logResult(ctx, env, res)
	return res
}

func applyOnline(ctx context.Context, env Env, def migrator.Definition, kind Kind) migrator.ExecutionResult {
	start := time.Now()
	res := migrator.ExecutionResult{MigrationID: def.ID, Strategy: string(kind)}

	err := withTx(ctx, env.DB, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, def.ForwardSQL)
		if err != nil {
			return fmt.Errorf("failed to execute forward sql: %w", err)
		}
		res.AffectedRows = rowsAffected(result)

		if env.Record != nil {
			if err := env.Record(ctx, tx, time.Since(start)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return failed(res, start, err)
	}

	res.Success = true
	res.Duration = time.Since(start)
	return res
}

// DualWrite is the extension point for dual-write migrations, where the
// application writes to the old and new shape until a backfill completes.
// Until that protocol exists it applies the definition exactly like Online.
type DualWrite struct{}

// Kind implements Strategy.
func (DualWrite) Kind() Kind { return KindDualWrite }

func (DualWrite) sealed() {}

// Apply implements Strategy.
func (DualWrite) Apply(ctx context.Context, env Env, def migrator.Definition) migrator.ExecutionResult {
	if env.Logger != nil {
		env.Logger.Debug(ctx, "dual-write strategy delegates to online", "migration_id", def.ID)
	}
	res := applyOnline(ctx, env, def, KindDualWrite)
	logResult(ctx, env, res)
	return res
}
