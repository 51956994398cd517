// Package config loads server configuration from environment variables and
// an optional codewarden.yaml file. Environment always wins over the file.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when neither environment nor file set a value.
const (
	DefaultDBPath         = "./codewarden.db"
	DefaultMaxConnections = 32
	DefaultRateLimit      = 100
	DefaultRatePeriodSec  = 60
	DefaultRequestTimeout = 300 * time.Second
)

// Config holds all codewarden configuration.
type Config struct {
	// DBPath is the SQLite database file path.
	DBPath string

	// Admission settings.
	APIKeys        []string // empty disables key checks
	AllowedIPs     []string // empty disables the IP allow-list
	MaxConnections int
	RateLimit      int // requests per RatePeriod per client IP
	RatePeriod     time.Duration

	// RequestTimeout bounds a single tool call.
	RequestTimeout time.Duration

	// Logging.
	LogLevel string
	Debug    bool

	// AnthropicAPIKey enables the AI capability when set.
	AnthropicAPIKey string
}

// Load reads configuration. workspace is the directory searched for
// codewarden.yaml; pass "" to skip the file.
func Load(workspace string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("max_connections", DefaultMaxConnections)
	v.SetDefault("rate_limit", DefaultRateLimit)
	v.SetDefault("rate_period_sec", DefaultRatePeriodSec)
	v.SetDefault("request_timeout_sec", int(DefaultRequestTimeout/time.Second))
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)

	v.AutomaticEnv()
	// DB_URL is accepted as a legacy alias for DB_PATH.
	for _, key := range []string{
		"db_path", "db_url", "api_keys", "allowed_ips", "max_connections",
		"rate_limit", "rate_period_sec", "request_timeout_sec", "log_level",
		"debug", "anthropic_api_key",
	} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if workspace != "" {
		v.SetConfigName("codewarden")
		v.SetConfigType("yaml")
		v.AddConfigPath(workspace)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		DBPath:          v.GetString("db_path"),
		APIKeys:         splitList(v.GetString("api_keys")),
		AllowedIPs:      splitList(v.GetString("allowed_ips")),
		MaxConnections:  v.GetInt("max_connections"),
		RateLimit:       v.GetInt("rate_limit"),
		RatePeriod:      time.Duration(v.GetInt("rate_period_sec")) * time.Second,
		RequestTimeout:  time.Duration(v.GetInt("request_timeout_sec")) * time.Second,
		LogLevel:        v.GetString("log_level"),
		Debug:           v.GetBool("debug"),
		AnthropicAPIKey: v.GetString("anthropic_api_key"),
	}
	if u := v.GetString("db_url"); u != "" {
		cfg.DBPath = u
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and IP syntax.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %d", c.RateLimit)
	}
	if c.RatePeriod <= 0 {
		return fmt.Errorf("rate_period_sec must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout_sec must be positive")
	}
	for _, ip := range c.AllowedIPs {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("allowed_ips contains invalid address %q", ip)
		}
	}
	return nil
}

// AuthEnabled reports whether API key checks apply.
func (c *Config) AuthEnabled() bool { return len(c.APIKeys) > 0 }

// IPFilterEnabled reports whether the IP allow-list applies.
func (c *Config) IPFilterEnabled() bool { return len(c.AllowedIPs) > 0 }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
