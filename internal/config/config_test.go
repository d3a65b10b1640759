package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupsourcing-migrator/ledger"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Database.MaxOpenConns)
	assert.Equal(t, "migrations", cfg.Migrations.Dir)
	assert.Equal(t, ledger.DefaultTable, cfg.Migrations.Table)
	assert.Equal(t, time.Hour, cfg.Lock.TTL)
	assert.Zero(t, cfg.Lock.RenewInterval)
	assert.Equal(t, time.Hour, cfg.Maintenance.TTL)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Redis.InProcess)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "migrator.yaml", `
environment: Production
database:
  driver: mysql
  dsn: "user:pass@tcp(localhost:3306)/app?parseTime=true&multiStatements=true"
  maxOpenConns: 2
redis:
  addr: localhost:6379
  db: 3
  prefix: "app:"
migrations:
  dir: ./db/migrations
  table: app_migrations
lock:
  ttl: 30m
  renewInterval: 1m
logger:
  level: debug
metrics:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 2, cfg.Database.MaxOpenConns)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "app:", cfg.Redis.Prefix)
	assert.Equal(t, "./db/migrations", cfg.Migrations.Dir)
	assert.Equal(t, "app_migrations", cfg.Migrations.Table)
	assert.Equal(t, 30*time.Minute, cfg.Lock.TTL)
	assert.Equal(t, time.Minute, cfg.Lock.RenewInterval)
	assert.Equal(t, time.Hour, cfg.Maintenance.TTL)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)

	dialect, err := cfg.Dialect()
	require.NoError(t, err)
	assert.Equal(t, ledger.MySQL, dialect)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "migrator.yaml", "database:\n  dsn: from-file\nlock:\n  ttl: 30m\n")
	t.Setenv("MIGRATOR_DATABASE_DSN", "from-env")
	t.Setenv("MIGRATOR_LOCK_TTL", "45s")
	t.Setenv("MIGRATOR_DATABASE_DRIVER", "sqlite3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.DSN)
	assert.Equal(t, 45*time.Second, cfg.Lock.TTL)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "MIGRATOR_MIGRATIONS_TABLE"
	path := writeFile(t, ".env", key+"=dotenv_migrations\n")
	orig := DotEnvPaths
	DotEnvPaths = []string{filepath.Join(filepath.Dir(path), "missing.env"), path}
	t.Cleanup(func() {
		DotEnvPaths = orig
		_ = os.Unsetenv(key)
	})

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv_migrations", cfg.Migrations.Table)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:   DatabaseConfig{Driver: "sqlite3", DSN: "file::memory:"},
			Redis:      RedisConfig{Addr: "localhost:6379"},
			Migrations: MigrationsConfig{Dir: "migrations"},
			Lock:       LockConfig{TTL: time.Hour},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }},
		{"missing dir", func(c *Config) { c.Migrations.Dir = "" }},
		{"zero ttl", func(c *Config) { c.Lock.TTL = 0 }},
		{"negative renew", func(c *Config) { c.Lock.RenewInterval = -time.Second }},
		{"missing redis", func(c *Config) { c.Redis.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_InProcessStore(t *testing.T) {
	cfg := &Config{
		Database:   DatabaseConfig{Driver: "sqlite3", DSN: "file::memory:"},
		Migrations: MigrationsConfig{Dir: "migrations"},
		Lock:       LockConfig{TTL: time.Hour},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr")

	cfg.Redis.InProcess = true
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InProcessFromEnv(t *testing.T) {
	t.Setenv("MIGRATOR_REDIS_INPROCESS", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Redis.InProcess)
}
