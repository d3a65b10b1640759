package strategy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
	"github.com/getpup/pupsourcing-migrator/ledger"
)

// DefaultShadowPrefix prefixes the shadow copy of the target table.
const DefaultShadowPrefix = "shadow_"

// ShadowTable rebuilds Definition.TargetTable without locking it for the
// duration of the schema change:
//
//  1. In one transaction the forward SQL creates the shadow table
//     ({Prefix}{TargetTable}) in its new shape, then the rows of the target
//     table are copied into it. CopyColumns selects the copied columns;
//     when empty, every column of the target table is copied by name.
//  2. In a second transaction the target table is dropped, the shadow
//     table is renamed to the target name and the ledger row is written.
//
// On failure the shadow table is dropped on a best-effort basis, unless the
// target table is already gone. Then the shadow table holds the only copy of
// the data and is kept. Definitions without a TargetTable are applied like
// Online.
//
// The swap is atomic only on databases with transactional DDL (PostgreSQL,
// SQLite). The forward SQL must create every index the new table needs.
type ShadowTable struct {
	// Prefix prefixes the shadow table name (default: "shadow_").
	Prefix string

	// afterDrop runs inside the swap transaction right after the target is dropped.
	afterDrop func(tx *sql.Tx) error
}

// Kind implements Strategy.
func (ShadowTable) Kind() Kind { return KindShadowTable }

func (ShadowTable) sealed() {}

// ShadowName returns the shadow table name for target.
func (s ShadowTable) ShadowName(target string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultShadowPrefix
	}
	return prefix + target
}

// Apply implements Strategy.
func (s ShadowTable) Apply(ctx context.Context, env Env, def migrator.Definition) migrator.ExecutionResult {
	if def.TargetTable == "" {
		if env.Logger != nil {
			env.Logger.Info(ctx, "migration has no target table, applying online", "migration_id", def.ID)
		}
		res := applyOnline(ctx, env, def, KindShadowTable)
		logResult(ctx, env, res)
		return res
	}

	res := s.apply(ctx, env, def)
	logResult(ctx, env, res)
	return res
}

func (s ShadowTable) apply(ctx context.Context, env Env, def migrator.Definition) migrator.ExecutionResult {
	start := time.Now()
	res := migrator.ExecutionResult{MigrationID: def.ID, Strategy: string(KindShadowTable)}

	target := def.TargetTable
	shadow := s.ShadowName(target)
	if err := ledger.ValidateIdentifier(target, "target_table"); err != nil {
		return failed(res, start, err)
	}
	if err := ledger.ValidateIdentifier(shadow, "shadow table"); err != nil {
		return failed(res, start, err)
	}
	for _, col := range def.CopyColumns {
		if err := ledger.ValidateIdentifier(col, "copy_columns"); err != nil {
			return failed(res, start, err)
		}
	}

	if env.Logger != nil {
		env.Logger.Info(ctx, "building shadow table", "migration_id", def.ID, "target", target, "shadow", shadow)
	}

	err := withTx(ctx, env.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, def.ForwardSQL); err != nil {
			return fmt.Errorf("failed to create shadow table: %w", err)
		}

		columns := def.CopyColumns
		if len(columns) == 0 {
			targetColumns, err := tableColumns(ctx, tx, target)
			if err != nil {
				return err
			}
			columns = targetColumns
		}

		result, err := tx.ExecContext(ctx, copyStatement(shadow, target, columns))
		if err != nil {
			return fmt.Errorf("failed to copy rows into %s: %w", shadow, err)
		}
		res.AffectedRows = rowsAffected(result)
		return nil
	})
	if err != nil {
		s.dropShadow(ctx, env, shadow)
		return failed(res, start, err)
	}

	applyDuration := time.Since(start)
	dialect := env.Dialect
	if dialect == "" {
		dialect = ledger.SQLite
	}

	err = withTx(ctx, env.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", target)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", target, err)
		}
		if s.afterDrop != nil {
			if err := s.afterDrop(tx); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, dialect.RenameTable(shadow, target)); err != nil {
			return fmt.Errorf("failed to rename %s to %s: %w", shadow, target, err)
		}
		if env.Record != nil {
			if err := env.Record(ctx, tx, applyDuration); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Without transactional DDL the drop may have committed on its own.
		if tableExists(env.DB, target) {
			s.dropShadow(ctx, env, shadow)
		} else if env.Logger != nil {
			env.Logger.Error(ctx, "target table is gone, keeping shadow table with its data",
				"migration_id", def.ID, "target", target, "shadow", shadow, "error", err)
		}
		return failed(res, start, err)
	}

	res.Success = true
	res.Duration = time.Since(start)
	return res
}

// tableColumns returns the column names of table in declaration order.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	return columns, nil
}

// tableExists reports whether table can still be queried.
func tableExists(db *sql.DB, table string) bool {
	checkCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := db.QueryContext(checkCtx, fmt.Sprintf("SELECT 1 FROM %s WHERE 1 = 0", table))
	if err != nil {
		return false
	}
	_ = rows.Close()
	return true
}

func copyStatement(shadow, target string, columns []string) string {
	cols := strings.Join(columns, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", shadow, cols, cols, target)
}

// dropShadow removes a half-built shadow table. It runs on a fresh context so
// that cancellation of the run does not leave the table behind.
func (s ShadowTable) dropShadow(ctx context.Context, env Env, shadow string) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := env.DB.ExecContext(cleanupCtx, fmt.Sprintf("DROP TABLE IF EXISTS %s", shadow)); err != nil {
		if env.Logger != nil {
			env.Logger.Warn(ctx, "failed to drop shadow table", "shadow", shadow, "error", err)
		}
	}
}
