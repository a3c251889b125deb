package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the dashboard data service.
type Config struct {
	// Upstream API
	CoinGeckoBaseURL string        `mapstructure:"coingecko_base_url"`
	CoinGeckoAPIKey  string        `mapstructure:"coingecko_api_key"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`

	// What to load
	MarketsLimit  int           `mapstructure:"markets_limit"`
	TickerLimit   int           `mapstructure:"ticker_limit"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	ChartDays     int           `mapstructure:"chart_days"`
	ChartCacheTTL time.Duration `mapstructure:"chart_cache_ttl"`

	// Retry and pacing
	RetryMax           int           `mapstructure:"retry_max"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay"`
	Stagger            time.Duration `mapstructure:"stagger"`
	RateLimitPerMinute float64       `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`

	// Presentation bridge; empty disables the HTTP server
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
}

// envBindings maps config keys to the environment variables that set them
var envBindings = map[string]string{
	"coingecko_base_url":    "COINGECKO_BASE_URL",
	"coingecko_api_key":     "COINGECKO_API_KEY",
	"request_timeout":       "REQUEST_TIMEOUT",
	"markets_limit":         "MARKETS_LIMIT",
	"ticker_limit":          "TICKER_LIMIT",
	"poll_interval":         "POLL_INTERVAL",
	"chart_days":            "CHART_DAYS",
	"chart_cache_ttl":       "CHART_CACHE_TTL",
	"retry_max":             "RETRY_MAX",
	"retry_base_delay":      "RETRY_BASE_DELAY",
	"retry_max_delay":       "RETRY_MAX_DELAY",
	"stagger":               "STAGGER",
	"rate_limit_per_minute": "RATE_LIMIT_PER_MINUTE",
	"rate_limit_burst":      "RATE_LIMIT_BURST",
	"listen_addr":           "LISTEN_ADDR",
	"log_level":             "LOG_LEVEL",
}

// Load reads configuration from an optional .env file, environment
// variables and an optional config file.
// Environment variables take precedence over config file values.
//
// Recognised environment variables (all optional):
//   - COINGECKO_BASE_URL, COINGECKO_API_KEY, REQUEST_TIMEOUT
//   - MARKETS_LIMIT, TICKER_LIMIT, POLL_INTERVAL
//   - CHART_DAYS, CHART_CACHE_TTL
//   - RETRY_MAX, RETRY_BASE_DELAY, RETRY_MAX_DELAY, STAGGER
//   - RATE_LIMIT_PER_MINUTE, RATE_LIMIT_BURST
//   - LISTEN_ADDR, LOG_LEVEL
func Load() (*Config, error) {
	// Values already in the environment win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	// Defaults mirror the public dashboard
	v.SetDefault("coingecko_base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko_api_key", "")
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("markets_limit", 12)
	v.SetDefault("ticker_limit", 10)
	v.SetDefault("poll_interval", 30*time.Second)
	v.SetDefault("chart_days", 7)
	v.SetDefault("chart_cache_ttl", 30*time.Second)
	v.SetDefault("retry_max", 3)
	v.SetDefault("retry_base_delay", 1*time.Second)
	v.SetDefault("retry_max_delay", 30*time.Second)
	v.SetDefault("stagger", 1*time.Second)
	v.SetDefault("rate_limit_per_minute", 50)
	v.SetDefault("rate_limit_burst", 5)
	v.SetDefault("listen_addr", "")
	v.SetDefault("log_level", "info")

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.cryptodash")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects values that would stall or break polling
func (c *Config) Validate() error {
	var invalid []string
	if c.CoinGeckoBaseURL == "" {
		invalid = append(invalid, "COINGECKO_BASE_URL")
	}
	if c.MarketsLimit < 1 {
		invalid = append(invalid, "MARKETS_LIMIT")
	}
	if c.TickerLimit < 1 {
		invalid = append(invalid, "TICKER_LIMIT")
	}
	if c.PollInterval <= 0 {
		invalid = append(invalid, "POLL_INTERVAL")
	}
	if c.ChartDays < 1 {
		invalid = append(invalid, "CHART_DAYS")
	}
	if c.ChartCacheTTL < 0 {
		invalid = append(invalid, "CHART_CACHE_TTL")
	}
	if c.RetryMax < 1 {
		invalid = append(invalid, "RETRY_MAX")
	}
	if c.RetryBaseDelay <= 0 {
		invalid = append(invalid, "RETRY_BASE_DELAY")
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		invalid = append(invalid, "RETRY_MAX_DELAY")
	}
	if c.Stagger < 0 {
		invalid = append(invalid, "STAGGER")
	}
	if c.RateLimitPerMinute < 0 {
		invalid = append(invalid, "RATE_LIMIT_PER_MINUTE")
	}
	if c.RequestTimeout <= 0 {
		invalid = append(invalid, "REQUEST_TIMEOUT")
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, ", "))
	}
	return nil
}
