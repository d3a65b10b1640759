package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rootpkg "github.com/getpup/pupsourcing-migrator"
)

type cli struct {
	configPath string
	dir        string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "migrations")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	configPath := filepath.Join(base, "migrator.yaml")
	content := fmt.Sprintf(`database:
  driver: sqlite3
  dsn: %q
redis:
  inProcess: true
migrations:
  dir: %q
logger:
  level: error
`, filepath.Join(base, "app.db"), dir)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	return &cli{configPath: configPath, dir: dir}
}

func (c *cli) unit(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, name), []byte(content), 0o644))
}

func (c *cli) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", c.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_ApplyStatusListRollback(t *testing.T) {
	c := newCLI(t)
	c.unit(t, "0001_create_users.sql", "CREATE TABLE users (id INT);\n-- ROLLBACK:\nDROP TABLE users;\n")
	c.unit(t, "0002_add_email.sql", `-- META: {"name": "add email", "dependencies": ["0001_create_users"]}
ALTER TABLE users ADD COLUMN email TEXT;
`)

	out, err := c.run("apply", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run (online): 2 migrations would be applied")
	assert.Contains(t, out, "0002_add_email - add email")

	out, err = c.run("apply")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2/2 migrations successfully")
	assert.Contains(t, out, "OK 0001_create_users")

	out, err = c.run("apply")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending migrations")

	out, err = c.run("status")
	require.NoError(t, err)
	var view statusView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Nil(t, view.CurrentOperation)
	assert.Equal(t, 2, view.AppliedCount)
	assert.Equal(t, 0, view.PendingCount)
	assert.Nil(t, view.NextPending)
	require.NotNil(t, view.LatestApplied)
	assert.Equal(t, "online", view.LatestApplied.Strategy)

	out, err = c.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied migrations (2):")
	assert.Contains(t, out, "Pending migrations (0):")

	_, err = c.run("rollback", "--migration-id", "0002_add_email")
	assert.ErrorIs(t, err, rootpkg.ErrNoRollbackAvailable)

	out, err = c.run("rollback", "--migration-id", "0001_create_users")
	require.NoError(t, err)
	assert.Contains(t, out, "OK rollback 0001_create_users")
}

func TestCLI_ApplyFailureExitsWithError(t *testing.T) {
	c := newCLI(t)
	c.unit(t, "0001_ok.sql", "CREATE TABLE ok (id INT);\n")
	c.unit(t, "0002_bad.sql", "NOT VALID SQL;\n")
	c.unit(t, "0003_never.sql", "CREATE TABLE never (id INT);\n")

	out, err := c.run("apply")
	require.ErrorIs(t, err, errMigrationFailed)
	assert.Contains(t, out, "Applied 1/2 migrations successfully")
	assert.Contains(t, out, "FAILED 0002_bad")
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "Not attempted: 0003_never")

	out, err = c.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied migrations (1):")
	assert.Contains(t, out, "Pending migrations (2):")
}

func TestCLI_BlockedMigrationsListed(t *testing.T) {
	c := newCLI(t)
	c.unit(t, "0001_orphan.sql", `-- META: {"dependencies": ["0000_missing"]}
CREATE TABLE orphan (id INT);
`)

	out, err := c.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "Blocked migrations (1):")
	assert.Contains(t, out, "missing: 0000_missing")
}

func TestCLI_UnknownStrategy(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("apply", "--strategy", "big_bang")
	assert.ErrorIs(t, err, rootpkg.ErrUnknownStrategy)
}

func TestCLI_RollbackRequiresMigrationID(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("rollback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration-id")
}

func TestCLI_New(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("new", "add_orders", "--depends", "0001_create_users", "--breaking")
	require.NoError(t, err)
	assert.Contains(t, out, "Created ")

	entries, err := os.ReadDir(c.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "_add_orders.sql")

	content, err := os.ReadFile(filepath.Join(c.dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"0001_create_users"`)
	assert.Contains(t, string(content), `"is_breaking":true`)

	_, err = c.run("new", "bad name")
	assert.Error(t, err)
}

func TestCLI_InvalidConfig(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "migrator.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("database:\n  driver: oracle\n  dsn: x\n"), 0o644))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", configPath, "status"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(base, "absent.yaml"), "status"})
	assert.Error(t, cmd.Execute())
}

func TestCLI_RequiresRedisOrInProcessOptIn(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "migrator.yaml")
	content := fmt.Sprintf("database:\n  driver: sqlite3\n  dsn: %q\n", filepath.Join(base, "app.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", configPath, "apply"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr is required")
}

func TestReportApply_PrintsPartialRunWithError(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	report := &rootpkg.RunReport{
		Strategy:     "online",
		Results:      []rootpkg.ExecutionResult{{MigrationID: "0001_ok", Strategy: "online", Success: true}},
		StillPending: []rootpkg.Definition{{ID: "0002_next"}},
	}

	err := reportApply(cmd, report, context.Canceled)

	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out.String(), "Applied 1/1 migrations successfully")
	assert.Contains(t, out.String(), "OK 0001_ok")
	assert.Contains(t, out.String(), "Not attempted: 0002_next")
}

func TestReportApply_NilReport(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)

	err := reportApply(cmd, nil, rootpkg.ErrLockHeld)

	assert.ErrorIs(t, err, rootpkg.ErrLockHeld)
	assert.Empty(t, out.String())
}
