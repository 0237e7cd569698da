// Package config loads application configuration.  Values come from the
// environment (optionally seeded from a .env file by the caller) and from
// command line flags bound into the same viper instance.  Keys are the
// lower-cased environment variable names, e.g. "db_driver" <-> DB_DRIVER.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration values.
type Config struct {
	Env  string // application environment (dev, test, prod)
	Port string // HTTP port to listen on

	DB DBConfig

	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	LogLevel  string // debug, info, warn, error
	LogFormat string // json or console

	RabbitMQURL string // empty disables swap event publishing

	ShutdownTimeout time.Duration

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// DBConfig selects and addresses the SQL backend.  Path is only used by
// the sqlite3 driver; the network fields by mysql and postgres.
type DBConfig struct {
	Driver string
	User   string
	Pass   string
	Host   string
	Port   string
	Name   string
	Path   string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "dev")
	v.SetDefault("app_port", "8080")
	v.SetDefault("db_driver", "mysql")
	v.SetDefault("db_host", "127.0.0.1")
	v.SetDefault("db_port", "3306")
	v.SetDefault("db_name", "slotswap")
	v.SetDefault("db_path", "slotswap.db")
	v.SetDefault("access_token_ttl_min", 15)
	v.SetDefault("refresh_token_ttl_days", 7)
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("shutdown_timeout", "10s")
	setRedisDefaults(v)
	setRateLimitDefaults(v)
	setCacheDefaults(v)
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Env:  v.GetString("app_env"),
		Port: v.GetString("app_port"),
		DB: DBConfig{
			Driver: strings.ToLower(v.GetString("db_driver")),
			User:   v.GetString("db_user"),
			Pass:   v.GetString("db_pass"),
			Host:   v.GetString("db_host"),
			Port:   v.GetString("db_port"),
			Name:   v.GetString("db_name"),
			Path:   v.GetString("db_path"),
		},
		JWTSecret:       v.GetString("jwt_secret"),
		AccessTTLMin:    v.GetInt("access_token_ttl_min"),
		RefreshTTLDays:  v.GetInt("refresh_token_ttl_days"),
		BcryptCost:      v.GetInt("bcrypt_cost"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		LogFormat:       strings.ToLower(v.GetString("log_format")),
		RabbitMQURL:     firstNonEmpty(v.GetString("rabbitmq_url"), v.GetString("amqp_url")),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		Redis:           loadRedisConfig(v),
		RateLimit:       loadRateLimitConfig(v),
		Cache:           loadCacheConfig(v),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("missing required setting: APP_PORT")
	}
	switch c.DB.Driver {
	case "mysql", "postgres":
		if c.DB.User == "" || c.DB.Host == "" || c.DB.Name == "" {
			return fmt.Errorf("%s driver needs DB_USER, DB_HOST and DB_NAME", c.DB.Driver)
		}
	case "sqlite3":
		if c.DB.Path == "" {
			return fmt.Errorf("sqlite3 driver needs DB_PATH")
		}
	default:
		return fmt.Errorf("invalid DB_DRIVER %q (must be mysql, postgres or sqlite3)", c.DB.Driver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("missing required setting: JWT_SECRET")
	}
	if c.AccessTTLMin <= 0 {
		return fmt.Errorf("invalid ACCESS_TOKEN_TTL_MIN: %d", c.AccessTTLMin)
	}
	if c.RefreshTTLDays <= 0 {
		return fmt.Errorf("invalid REFRESH_TOKEN_TTL_DAYS: %d", c.RefreshTTLDays)
	}
	// bcrypt accepts 4..31
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("invalid BCRYPT_COST: %d", c.BcryptCost)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.LogFormat)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", c.ShutdownTimeout)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
