package ledger

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultTable is the default ledger table name.
const DefaultTable = "schema_migrations"

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func ValidateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// TableConfig configures the table name used by the ledger.
type TableConfig struct {
	// Table is the name of the ledger table.
	Table string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{Table: DefaultTable}
}

// CreateStatements returns the statements that create the ledger table and
// its indexes on version and applied_at. Every statement is idempotent.
func CreateStatements(d Dialect, config TableConfig) []string {
	t := config.Table

	switch d {
	case Postgres:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(255) PRIMARY KEY,
    name TEXT NOT NULL,
    version VARCHAR(64) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL,
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    checksum CHAR(64) NOT NULL,
    rollback_sql TEXT,
    is_breaking BOOLEAN NOT NULL DEFAULT FALSE,
    metadata JSONB
)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_version ON %s (version)`, t, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_applied_at ON %s (applied_at)`, t, t),
		}

	case MySQL:
		// MySQL has no CREATE INDEX IF NOT EXISTS, so the indexes are declared inline.
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(255) PRIMARY KEY,
    name TEXT NOT NULL,
    version VARCHAR(64) NOT NULL,
    applied_at DATETIME(6) NOT NULL,
    duration_seconds DOUBLE NOT NULL DEFAULT 0,
    checksum CHAR(64) NOT NULL,
    rollback_sql LONGTEXT,
    is_breaking BOOLEAN NOT NULL DEFAULT FALSE,
    metadata JSON,
    INDEX idx_%s_version (version),
    INDEX idx_%s_applied_at (applied_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`, t, t, t),
		}

	default:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL,
    duration_seconds REAL NOT NULL DEFAULT 0,
    checksum TEXT NOT NULL,
    rollback_sql TEXT,
    is_breaking BOOLEAN NOT NULL DEFAULT 0,
    metadata TEXT
)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_version ON %s (version)`, t, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_applied_at ON %s (applied_at)`, t, t),
		}
	}
}

// MigrationUp returns the SQL script that creates the ledger table.
func MigrationUp(d Dialect, config TableConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- Create %s ledger table\n", config.Table)
	for _, stmt := range CreateStatements(d, config) {
		b.WriteString(stmt)
		b.WriteString(";\n\n")
	}
	return b.String()
}

// MigrationDown returns the SQL script that drops the ledger table.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop %s ledger table
DROP TABLE IF EXISTS %s;
`, config.Table, config.Table)
}
