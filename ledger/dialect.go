package ledger

import (
	"fmt"
	"strconv"
)

// Dialect identifies the SQL flavour of the ledger database.
type Dialect string

const (
	// Postgres is PostgreSQL, driven by github.com/lib/pq.
	Postgres Dialect = "postgres"

	// MySQL is MySQL/MariaDB, driven by github.com/go-sql-driver/mysql.
	// The DSN must set parseTime=true and multiStatements=true. MySQL commits
	// DDL implicitly, so a failure after the DDL can leave it applied without
	// a ledger row.
	MySQL Dialect = "mysql"

	// SQLite is SQLite 3, driven by github.com/mattn/go-sqlite3.
	SQLite Dialect = "sqlite"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite3", "sqlite":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver '%s'. Supported drivers are: postgres, mysql, sqlite3", driver)
	}
}

// DriverName returns the database/sql driver name registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case SQLite:
		return "sqlite3"
	default:
		return string(d)
	}
}

// Valid reports whether d is a supported dialect.
func (d Dialect) Valid() bool {
	switch d {
	case Postgres, MySQL, SQLite:
		return true
	}
	return false
}

// Placeholder returns the bind parameter for the n-th argument (1-based).
func (d Dialect) Placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Placeholders returns the comma separated bind parameters for n arguments.
func (d Dialect) Placeholders(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += d.Placeholder(i)
	}
	return out
}

// RenameTable returns the statement renaming from to to.
func (d Dialect) RenameTable(from, to string) string {
	if d == MySQL {
		return fmt.Sprintf("RENAME TABLE %s TO %s", from, to)
	}
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", from, to)
}

// tableExistsQuery returns the introspection query for a table in the current schema.
func (d Dialect) tableExistsQuery() string {
	switch d {
	case Postgres:
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	case MySQL:
		return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
	default:
		return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
}
