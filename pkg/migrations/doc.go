// Package migrations generates the SQL file that provisions the migration
// ledger table for PostgreSQL, MySQL/MariaDB and SQLite, for teams that create
// schema objects through their own tooling before the migrator first runs.
package migrations
