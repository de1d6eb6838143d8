// Package config loads buildops settings from the environment, an optional
// .env file and an optional YAML file. Environment variables always win over
// the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every variable, e.g. BUILDOPS_SERVER_ADDR.
const EnvPrefix = "BUILDOPS"

// Config is the complete application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" envconfig:"DATABASE"`
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Storage    StorageConfig    `yaml:"storage" envconfig:"STORAGE"`
	Migrations MigrationsConfig `yaml:"migrations" envconfig:"MIGRATIONS"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" envconfig:"DRIVER" default:"sqlite"`
	DSN             string        `yaml:"dsn" envconfig:"DSN" default:"buildops.db"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" default:"30m"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" envconfig:"SLOW_THRESHOLD" default:"200ms"`
}

type ServerConfig struct {
	Addr            string          `yaml:"addr" envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"50"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"100"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

type StorageConfig struct {
	Backend         string        `yaml:"backend" envconfig:"BACKEND" default:"local"`
	Dir             string        `yaml:"dir" envconfig:"DIR" default:"data/documents"`
	Bucket          string        `yaml:"bucket" envconfig:"BUCKET"`
	CredentialsFile string        `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`
	ShareTTL        time.Duration `yaml:"share_ttl" envconfig:"SHARE_TTL" default:"72h"`
}

type MigrationsConfig struct {
	Dir string `yaml:"dir" envconfig:"DIR" default:"migrations"`
}

// Load reads .env (if present), the environment and the YAML file at path.
// An empty path falls back to BUILDOPS_CONFIG_FILE; a missing file named by
// the environment is an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}
	if path != "" {
		file, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		overlay(reflect.ValueOf(&cfg).Elem(), reflect.ValueOf(file).Elem(), EnvPrefix)
	}

	cfg.applyLegacyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// overlay copies every non-zero leaf of src into dst unless the environment
// variable for that leaf is set.
func overlay(dst, src reflect.Value, prefix string) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("envconfig")
		if name == "" {
			name = strings.ToUpper(field.Name)
		}
		key := prefix + "_" + name

		if field.Type.Kind() == reflect.Struct {
			overlay(dst.Field(i), src.Field(i), key)
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if !src.Field(i).IsZero() {
			dst.Field(i).Set(src.Field(i))
		}
	}
}

// applyLegacyEnv honours DATABASE_URL and MIGRATIONS_PATH, which earlier
// tooling read directly, when the prefixed variables are not set.
func (c *Config) applyLegacyEnv() {
	if _, set := os.LookupEnv(EnvPrefix + "_DATABASE_DSN"); !set {
		if url := os.Getenv("DATABASE_URL"); url != "" {
			c.Database.DSN = url
			if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
				c.Database.Driver = "postgres"
			}
		}
	}
	if _, set := os.LookupEnv(EnvPrefix + "_MIGRATIONS_DIR"); !set {
		if dir := os.Getenv("MIGRATIONS_PATH"); dir != "" {
			c.Migrations.Dir = dir
		}
	}
}

// Validate rejects settings the application cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the local backend"))
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the gcs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be local or gcs, got %q", c.Storage.Backend))
	}
	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("storage.max_upload_bytes must be positive"))
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RPS <= 0 {
		errs = append(errs, errors.New("server.rate_limit.rps must be positive when enabled"))
	}
	if c.Migrations.Dir == "" {
		errs = append(errs, errors.New("migrations.dir is required"))
	}
	return errors.Join(errs...)
}
