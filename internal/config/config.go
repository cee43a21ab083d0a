// Package config loads the photobatch CLI configuration from flags and
// PHOTOBATCH_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/photo-batch-client/pkg/logging"
)

// EnvPrefix is the prefix of all environment variables read by Load.
const EnvPrefix = "PHOTOBATCH"

// Keys used with viper.
const (
	KeyAPIURL      = "api-url"
	KeyToken       = "token"
	KeyRedisAddr   = "redis-addr"
	KeyRedisDB     = "redis-db"
	KeyLogLevel    = "log-level"
	KeyLogPretty   = "log-pretty"
	KeyMetricsAddr = "metrics-addr"
	KeyChunkSize   = "chunk-size"
	KeyCatalogTTL  = "catalog-ttl"
	KeyIdleDelay   = "idle-delay"
	KeyWaitTimeout = "wait-timeout"
)

// Config is the resolved CLI configuration.
type Config struct {
	APIURL    string
	Token     string
	RedisAddr string // empty disables the catalog cache and activity mirror
	RedisDB   int

	LogLevel    logging.LogLevel
	LogPretty   bool
	MetricsAddr string // empty disables the metrics server

	ChunkSize   int
	CatalogTTL  time.Duration
	IdleDelay   time.Duration
	WaitTimeout time.Duration
}

// Defaults registers default values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault(KeyAPIURL, "http://localhost:2342")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyLogLevel, string(logging.LevelInfo))
	v.SetDefault(KeyChunkSize, 500)
	v.SetDefault(KeyCatalogTTL, 2*time.Minute)
	v.SetDefault(KeyIdleDelay, 100*time.Millisecond)
	v.SetDefault(KeyWaitTimeout, 30*time.Second)
}

// BindEnv makes v read PHOTOBATCH_* variables, e.g. PHOTOBATCH_API_URL.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		APIURL:      strings.TrimSpace(v.GetString(KeyAPIURL)),
		Token:       v.GetString(KeyToken),
		RedisAddr:   strings.TrimSpace(v.GetString(KeyRedisAddr)),
		RedisDB:     v.GetInt(KeyRedisDB),
		LogLevel:    logging.LogLevel(v.GetString(KeyLogLevel)),
		LogPretty:   v.GetBool(KeyLogPretty),
		MetricsAddr: strings.TrimSpace(v.GetString(KeyMetricsAddr)),
		ChunkSize:   v.GetInt(KeyChunkSize),
		CatalogTTL:  v.GetDuration(KeyCatalogTTL),
		IdleDelay:   v.GetDuration(KeyIdleDelay),
		WaitTimeout: v.GetDuration(KeyWaitTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("%s is required", KeyAPIURL)
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) url (got %q)", KeyAPIURL, c.APIURL)
	}
	if _, err := logging.ParseLevel(string(c.LogLevel)); err != nil {
		return fmt.Errorf("%s: %w", KeyLogLevel, err)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("%s must be >= 0 (got %d)", KeyRedisDB, c.RedisDB)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%s must be >= 1 (got %d)", KeyChunkSize, c.ChunkSize)
	}
	if c.CatalogTTL <= 0 {
		return fmt.Errorf("%s must be positive (got %s)", KeyCatalogTTL, c.CatalogTTL)
	}
	if c.IdleDelay < 0 {
		return fmt.Errorf("%s must not be negative (got %s)", KeyIdleDelay, c.IdleDelay)
	}
	if c.WaitTimeout <= c.IdleDelay {
		return fmt.Errorf("%s must exceed %s (got %s <= %s)", KeyWaitTimeout, KeyIdleDelay, c.WaitTimeout, c.IdleDelay)
	}
	return nil
}

// UsesRedis reports whether a Redis address is configured.
func (c Config) UsesRedis() bool {
	return c.RedisAddr != ""
}
