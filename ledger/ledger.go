// Package ledger is the durable record of applied migrations.
//
// Presence of a row is the sole definition of a migration being applied.
// Writes go through a caller-owned *sql.Tx so that a row commits atomically
// with the SQL it records.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	migrator "github.com/getpup/pupsourcing-migrator"
)

// Config configures a Ledger.
type Config struct {
	// Dialect is the SQL flavour of the database (required).
	Dialect Dialect

	// Table is the ledger table name (default: "schema_migrations").
	Table string
}

// Ledger reads and writes the ledger table.
type Ledger struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// New creates a Ledger over db. It validates the dialect and table name.
func New(db *sql.DB, cfg Config) (*Ledger, error) {
	if !cfg.Dialect.Valid() {
		return nil, fmt.Errorf("unsupported ledger dialect '%s'", cfg.Dialect)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := ValidateIdentifier(cfg.Table, "Table"); err != nil {
		return nil, fmt.Errorf("invalid ledger configuration: %w", err)
	}

	return &Ledger{
		db:      db,
		dialect: cfg.Dialect,
		table:   cfg.Table,
	}, nil
}

// Table returns the ledger table name.
func (l *Ledger) Table() string {
	return l.table
}

// Dialect returns the SQL flavour of the ledger database.
func (l *Ledger) Dialect() Dialect {
	return l.dialect
}

// DB returns the underlying database handle.
func (l *Ledger) DB() *sql.DB {
	return l.db
}

// EnsureTable creates the ledger table and its indexes if they do not exist.
func (l *Ledger) EnsureTable(ctx context.Context) error {
	for _, stmt := range CreateStatements(l.dialect, TableConfig{Table: l.table}) {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create ledger table: %w", err)
		}
	}
	return nil
}

// TableExists reports whether the ledger table exists.
func (l *Ledger) TableExists(ctx context.Context) (bool, error) {
	var count int
	if err := l.db.QueryRowContext(ctx, l.dialect.tableExistsQuery(), l.table).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to inspect ledger table: %w", err)
	}
	return count > 0, nil
}

func (l *Ledger) selectColumns() string {
	return fmt.Sprintf(`SELECT id, name, version, applied_at, duration_seconds, checksum, rollback_sql, is_breaking, metadata FROM %s`, l.table)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (migrator.AppliedRecord, error) {
	var (
		rec      migrator.AppliedRecord
		seconds  float64
		rollback sql.NullString
		metadata sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Version, &rec.AppliedAt, &seconds, &rec.Checksum, &rollback, &rec.IsBreaking, &metadata); err != nil {
		return migrator.AppliedRecord{}, err
	}

	rec.Duration = time.Duration(seconds * float64(time.Second))
	rec.RollbackSQL = rollback.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return migrator.AppliedRecord{}, fmt.Errorf("failed to decode metadata of %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// Applied returns every ledger row ordered by applied_at, then id.
// A missing ledger table reads as empty and is not created.
func (l *Ledger) Applied(ctx context.Context) ([]migrator.AppliedRecord, error) {
	exists, err := l.TableExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []migrator.AppliedRecord{}, nil
	}

	rows, err := l.db.QueryContext(ctx, l.selectColumns()+` ORDER BY applied_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	records := []migrator.AppliedRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return records, nil
}

// AppliedIDs returns the set of applied migration ids.
func (l *Ledger) AppliedIDs(ctx context.Context) (map[string]struct{}, error) {
	records, err := l.Applied(ctx)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{}, len(records))
	for _, rec := range records {
		ids[rec.ID] = struct{}{}
	}
	return ids, nil
}

// Get returns the ledger row for id.
// Returns migrator.ErrNotApplied if there is no such row or no ledger table.
func (l *Ledger) Get(ctx context.Context, id string) (migrator.AppliedRecord, error) {
	exists, err := l.TableExists(ctx)
	if err != nil {
		return migrator.AppliedRecord{}, err
	}
	if !exists {
		return migrator.AppliedRecord{}, migrator.ErrNotApplied
	}

	query := l.selectColumns() + ` WHERE id = ` + l.dialect.Placeholder(1)
	rec, err := scanRecord(l.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return migrator.AppliedRecord{}, migrator.ErrNotApplied
	}
	if err != nil {
		return migrator.AppliedRecord{}, fmt.Errorf("failed to get ledger row: %w", err)
	}
	return rec, nil
}

// RecordTx inserts the ledger row for rec inside tx.
func (l *Ledger) RecordTx(ctx context.Context, tx *sql.Tx, rec migrator.AppliedRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	rollback := sql.NullString{String: rec.RollbackSQL, Valid: rec.RollbackSQL != ""}

	query := fmt.Sprintf(`INSERT INTO %s (id, name, version, applied_at, duration_seconds, checksum, rollback_sql, is_breaking, metadata) VALUES (%s)`,
		l.table, l.dialect.Placeholders(9))

	_, err = tx.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Version,
		rec.AppliedAt.UTC(),
		rec.Duration.Seconds(),
		rec.Checksum,
		rollback,
		rec.IsBreaking,
		string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteTx removes the ledger row for id inside tx.
// Returns migrator.ErrNotApplied if no row was deleted.
func (l *Ledger) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, l.table, l.dialect.Placeholder(1))

	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete ledger row %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return migrator.ErrNotApplied
	}
	return nil
}
