// Package config loads migrator CLI configuration from a YAML file, .env files
// and MIGRATOR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/getpup/pupsourcing-migrator/ledger"
)

// Environment constants
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "MIGRATOR"

// DotEnvPaths defines the paths to look for .env files.
var DotEnvPaths = []string{
	".env",
	"./configs/.env",
}

// Config is the full CLI configuration.
type Config struct {
	Environment string            `mapstructure:"environment"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Migrations  MigrationsConfig  `mapstructure:"migrations"`
	Lock        LockConfig        `mapstructure:"lock"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// DatabaseConfig selects the target database.
type DatabaseConfig struct {
	// Driver is postgres, mysql or sqlite3 (default: postgres).
	Driver string `mapstructure:"driver"`

	// DSN is the driver-specific connection string.
	DSN string `mapstructure:"dsn"`

	// MaxOpenConns caps the connection pool (default: 5).
	MaxOpenConns int `mapstructure:"maxOpenConns"`
}

// RedisConfig configures the coordination store.
type RedisConfig struct {
	// Addr is the Redis server address. Required unless InProcess is set.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`

	// InProcess selects an in-memory store when Addr is empty (default: false).
	// The lock and maintenance flag then only cover invocations sharing one process.
	InProcess bool `mapstructure:"inProcess"`
}

// MigrationsConfig locates the migration units and the ledger.
type MigrationsConfig struct {
	// Dir holds the *.sql units (default: migrations).
	Dir string `mapstructure:"dir"`

	// Table is the ledger table (default: schema_migrations).
	Table string `mapstructure:"table"`
}

// LockConfig configures the migration lease.
type LockConfig struct {
	// TTL is the lease lifetime (default: 1h).
	TTL time.Duration `mapstructure:"ttl"`

	// RenewInterval enables lease keep-alive when non-zero (default: 0).
	RenewInterval time.Duration `mapstructure:"renewInterval"`
}

// MaintenanceConfig configures the maintenance flag.
type MaintenanceConfig struct {
	// TTL is the flag lifetime (default: 1h).
	TTL time.Duration `mapstructure:"ttl"`
}

// LoggerConfig configures logging.
type LoggerConfig struct {
	// Level is debug, info, warn or error (default: info).
	Level string `mapstructure:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr enables the /metrics endpoint when set (default: "").
	Addr string `mapstructure:"addr"`
}

// IsProduction reports whether the production environment is selected.
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// Dialect returns the ledger dialect of the configured driver.
func (c *Config) Dialect() (ledger.Dialect, error) {
	return ledger.DialectForDriver(c.Database.Driver)
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if _, err := c.Dialect(); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required: set it in the config file or MIGRATOR_DATABASE_DSN")
	}
	if c.Migrations.Dir == "" {
		return errors.New("migrations.dir is required")
	}
	if c.Redis.Addr == "" && !c.Redis.InProcess {
		return errors.New("redis.addr is required: set it, or set redis.inProcess to coordinate within a single process only")
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %s", c.Lock.TTL)
	}
	if c.Lock.RenewInterval < 0 {
		return fmt.Errorf("lock.renewInterval must not be negative, got %s", c.Lock.RenewInterval)
	}
	return nil
}

// Load reads configuration. path names an optional YAML file; when empty only
// defaults, .env files and environment variables apply. Environment variables
// override the file, e.g. MIGRATOR_DATABASE_DSN for database.dsn.
func Load(path string) (*Config, error) {
	if err := loadDotEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.Environment = strings.ToLower(cfg.Environment)

	return &cfg, nil
}

// loadDotEnvFile loads the first .env file found. Missing files are not an error.
func loadDotEnvFile() error {
	for _, path := range DotEnvPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", Development)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxOpenConns", 5)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "")
	v.SetDefault("redis.inProcess", false)

	v.SetDefault("migrations.dir", "migrations")
	v.SetDefault("migrations.table", ledger.DefaultTable)

	v.SetDefault("lock.ttl", time.Hour)
	v.SetDefault("lock.renewInterval", time.Duration(0))

	v.SetDefault("maintenance.ttl", time.Hour)

	v.SetDefault("logger.level", "info")

	v.SetDefault("metrics.addr", "")
}
