package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers understood by the CLI.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverValkey   = "valkey"
)

// Config is the CLI configuration. It is read from an optional YAML file;
// environment variables (after loading .env) override the file.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Driver string       `yaml:"driver"`
	DSN    string       `yaml:"dsn"`
	Valkey ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig configures the valkey driver.
type ValkeyConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

func defaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{
			Driver: DriverSQLite,
			DSN:    "file:sparc-oauth.db",
		},
	}
}

// loadConfig reads envFile (missing is fine), then path if set, then
// applies environment overrides.
func loadConfig(path, envFile string) (Config, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("SPARC_OAUTH_LOG_LEVEL", &cfg.Log.Level)
	setString("SPARC_OAUTH_LOG_FORMAT", &cfg.Log.Format)
	setString("SPARC_OAUTH_STORAGE_DRIVER", &cfg.Storage.Driver)
	setString("SPARC_OAUTH_DATABASE_DSN", &cfg.Storage.DSN)
	setString("SPARC_OAUTH_VALKEY_ADDR", &cfg.Storage.Valkey.Address)
	setString("SPARC_OAUTH_VALKEY_PASSWORD", &cfg.Storage.Valkey.Password)
	setString("SPARC_OAUTH_VALKEY_KEY_PREFIX", &cfg.Storage.Valkey.KeyPrefix)

	if v := os.Getenv("SPARC_OAUTH_VALKEY_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SPARC_OAUTH_VALKEY_DB: %w", err)
		}
		cfg.Storage.Valkey.DB = db
	}
	return nil
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	case DriverValkey:
		if c.Storage.Valkey.Address == "" {
			return fmt.Errorf("storage.valkey.address is required for the valkey driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
