package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// ConfigPathEnv names the optional YAML file read before the environment.
const ConfigPathEnv = "TALLY_CONFIG"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env       string `yaml:"env"        env:"ENV"        env-default:"dev"`  // dev, staging, prod
	LogLevel  string `yaml:"log_level"  env:"LOG_LEVEL"  env-default:"info"` // debug, info, warn, error
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"` // json, text

	DatabaseDriver string `yaml:"database_driver" env:"TALLY_DATABASE_DRIVER" env-default:"sqlite"`
	// DatabaseDSN is a file path for sqlite and a connection URL for postgres.
	DatabaseDSN string `yaml:"database_dsn" env:"TALLY_DATABASE_DSN" env-default:"tally.db"`
	PepperFile  string `yaml:"pepper_file"  env:"TALLY_PEPPER_FILE"  env-default:"pepper"`

	InvitationTTL time.Duration `yaml:"invitation_ttl"  env:"TALLY_INVITATION_TTL"  env-default:"168h"`
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl" env:"TALLY_RESET_TOKEN_TTL" env-default:"30m"`

	// RedisAddr enables the budget summary cache when set.
	RedisAddr     string        `yaml:"redis_addr"     env:"TALLY_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"TALLY_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db"       env:"TALLY_REDIS_DB"       env-default:"0"`
	RedisTTL      time.Duration `yaml:"redis_ttl"      env:"TALLY_REDIS_TTL"      env-default:"10m"`

	HousekeepingInterval time.Duration `yaml:"housekeeping_interval" env:"HOUSEKEEPING_INTERVAL" env-default:"15m"`

	OpsAddr             string        `yaml:"ops_addr"              env:"TALLY_OPS_ADDR"        env-default:":9090"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period" env:"SHUTDOWN_GRACE_PERIOD" env-default:"10s"`
}

// LoadConfig reads the YAML file named by TALLY_CONFIG when set, then applies
// environment overrides and defaults.
func LoadConfig() (Config, error) {
	var cfg Config

	if path := os.Getenv(ConfigPathEnv); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read env: %w", err)
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database_driver: unknown driver %q", c.DatabaseDriver))
	}
	if c.DatabaseDriver == DriverPostgres && c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database_dsn: required for postgres"))
	}
	if c.InvitationTTL <= 0 {
		errs = append(errs, errors.New("invitation_ttl: must be positive"))
	}
	if c.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("reset_token_ttl: must be positive"))
	}
	if c.RedisAddr != "" && c.RedisTTL <= 0 {
		errs = append(errs, errors.New("redis_ttl: must be positive"))
	}
	if c.RedisDB < 0 {
		errs = append(errs, errors.New("redis_db: must not be negative"))
	}
	if c.HousekeepingInterval <= 0 {
		errs = append(errs, errors.New("housekeeping_interval: must be positive"))
	}
	if c.OpsAddr == "" {
		errs = append(errs, errors.New("ops_addr: required"))
	}
	if c.ShutdownGracePeriod < 0 {
		errs = append(errs, errors.New("shutdown_grace_period: must not be negative"))
	}

	return errors.Join(errs...)
}
