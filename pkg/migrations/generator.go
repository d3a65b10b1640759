package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getpup/pupsourcing-migrator/ledger"
)

// Config configures ledger migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// Table is the name of the ledger table
	Table string

	// IncludeDown appends the DROP statement as a commented-out section
	IncludeDown bool
}

// DefaultConfig returns the default configuration for ledger migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_migration_ledger.sql", timestamp),
		Table:          ledger.DefaultTable,
	}
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if config.OutputFilename == "" {
		return fmt.Errorf("OutputFilename cannot be empty")
	}
	return ledger.ValidateIdentifier(config.Table, "Table")
}

// Generate writes the ledger migration for the given dialect.
func Generate(dialect ledger.Dialect, config *Config) error {
	if !dialect.Valid() {
		return fmt.Errorf("unsupported dialect '%s'. Supported dialects are: postgres, mysql, sqlite", dialect)
	}

	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(generateSQL(dialect, config)), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(ledger.Postgres, config)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(ledger.MySQL, config)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(ledger.SQLite, config)
}

func databaseLabel(dialect ledger.Dialect) string {
	switch dialect {
	case ledger.Postgres:
		return "PostgreSQL"
	case ledger.MySQL:
		return "MySQL/MariaDB"
	default:
		return "SQLite"
	}
}

func generateSQL(dialect ledger.Dialect, config *Config) string {
	tc := ledger.TableConfig{Table: config.Table}

	out := fmt.Sprintf(`-- Migration Ledger Migration
-- Generated: %s
-- Database: %s

-- The ledger holds one row per applied migration, written in the same
-- transaction as the migration itself. The stored rollback_sql is what a
-- later rollback executes, regardless of the current source files.
%s`, time.Now().Format(time.RFC3339), databaseLabel(dialect), ledger.MigrationUp(dialect, tc))

	if config.IncludeDown {
		out += "-- Down migration (run manually to remove the ledger):\n"
		down := strings.TrimRight(ledger.MigrationDown(tc), "\n")
		for _, line := range strings.Split(down, "\n") {
			out += "-- " + line + "\n"
		}
	}
	return out
}
