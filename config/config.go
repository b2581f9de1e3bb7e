package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AlphaVantage AlphaVantageConfig `mapstructure:"alphavantage"`
	Adapter      AdapterConfig      `mapstructure:"adapter"`
	Store        StoreConfig        `mapstructure:"store"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	SQLite       SQLiteConfig       `mapstructure:"sqlite"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Feed         FeedConfig         `mapstructure:"feed"`
	Log          LogConfig          `mapstructure:"log"`
}

// AlphaVantageConfig is the poll configuration handed to the collector.
type AlphaVantageConfig struct {
	APIKey      string        `mapstructure:"apikey"`
	BaseURL     string        `mapstructure:"base_url"`
	Symbols     []string      `mapstructure:"symbols"`
	Timeout     int           `mapstructure:"timeout"`      // poll interval in milliseconds, 0 = default
	HTTPTimeout time.Duration `mapstructure:"http_timeout"` // 0 = no client-side timeout
}

type AdapterConfig struct {
	Namespace string `mapstructure:"namespace"` // prefix of every entry id, e.g. "alphaadv.0"
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`    // memory, postgres, sqlite or redis
	CreateDB bool   `mapstructure:"create_db"` // postgres only
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type FeedConfig struct {
	Addr string `mapstructure:"addr"` // websocket change feed listen address, empty disables it
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// apiKeyParameter is the SSM parameter read when no key is configured in prod.
const apiKeyParameter = "ALPHAVANTAGE_API_KEY"

var lookupParameter = getParameterStoreValue

// Load reads configuration with Viper. path may point at a config file; when empty,
// config.yaml is searched next to the binary and in ../../config for `go run`.
// Environment variables override file values (e.g. ALPHAVANTAGE_APIKEY).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")

		ex, _ := os.Executable()
		if strings.Contains(ex, "go-build") {
			pwd, _ := os.Getwd()
			v.AddConfigPath(filepath.Join(pwd, "../../config"))
		} else {
			v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
		}
		v.AddConfigPath(".")
	}

	// Support environment variables with dot notation (e.g., ALPHAVANTAGE_APIKEY)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()

	if cfg.AlphaVantage.APIKey == "" && cfg.Log.Environment == "prod" {
		cfg.AlphaVantage.APIKey = strings.TrimSpace(lookupParameter(apiKeyParameter, true))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("alphavantage.base_url", "https://www.alphavantage.co")
	v.SetDefault("alphavantage.symbols", []string{})
	v.SetDefault("alphavantage.timeout", 0)
	v.SetDefault("alphavantage.apikey", "")
	v.SetDefault("adapter.namespace", "alphaadv.0")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("sqlite.path", "data/entries.db")
	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.prefix", "quotecollector:")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")
}

// normalize trims the API key and symbols, upper-cases symbols and drops empty ones.
// Duplicates are kept.
func (c *Config) normalize() {
	c.AlphaVantage.APIKey = strings.TrimSpace(c.AlphaVantage.APIKey)
	c.AlphaVantage.Symbols = NormalizeSymbols(c.AlphaVantage.Symbols)
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
}

func NormalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Validate checks settings that would stop the process from starting.
// A missing API key is not one of them: the collector stays idle instead.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("store.driver must be one of memory, postgres, sqlite, redis, got %q", c.Store.Driver)
	}

	if c.AlphaVantage.BaseURL == "" {
		return errors.New("alphavantage.base_url is required")
	}
	if c.AlphaVantage.Timeout < 0 {
		return fmt.Errorf("alphavantage.timeout must be >= 0, got %d", c.AlphaVantage.Timeout)
	}
	if c.Adapter.Namespace == "" {
		return errors.New("adapter.namespace is required")
	}
	return nil
}
