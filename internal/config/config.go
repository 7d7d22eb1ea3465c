package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/newthinker/stonks/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Brokerage  BrokerageConfig  `mapstructure:"brokerage"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Signals    SignalsConfig    `mapstructure:"signals"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	APIKey      string   `mapstructure:"api_key"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// BrokerageConfig selects and configures the brokerage client.
type BrokerageConfig struct {
	Provider          string        `mapstructure:"provider" validate:"required,oneof=robinhood mock"`
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	Token             string        `mapstructure:"token"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// MarketDataConfig selects and configures the market-data client.
type MarketDataConfig struct {
	Provider              string        `mapstructure:"provider" validate:"required,oneof=yahoo mock"`
	BaseURL               string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout               time.Duration `mapstructure:"timeout"`
	InfoRequestsPerMinute int           `mapstructure:"info_requests_per_minute" validate:"gte=0"`
	HistoryConcurrency    int           `mapstructure:"history_concurrency" validate:"gte=1"`
}

// CacheConfig holds the TTL tiers. Volatile data gets short TTLs, slow
// descriptors long ones.
type CacheConfig struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	MarketTTL       time.Duration `mapstructure:"market_ttl"`
	PortfolioTTL    time.Duration `mapstructure:"portfolio_ttl"`
	StaleGrace      time.Duration `mapstructure:"stale_grace"`
	SectorTTL       time.Duration `mapstructure:"sector_ttl"`
	RangeTTL        time.Duration `mapstructure:"range_ttl"`
	EarningsTTL     time.Duration `mapstructure:"earnings_ttl"`
	SignalsTTL      time.Duration `mapstructure:"signals_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// SyncConfig controls the sync pipeline and its retry controller.
type SyncConfig struct {
	Schedule            string        `mapstructure:"schedule"`
	MaxRetries          int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
	RetryJitter         float64       `mapstructure:"retry_jitter" validate:"gte=0,lte=1"`
	EarningsConcurrency int           `mapstructure:"earnings_concurrency" validate:"gte=1"`
	InfoConcurrency     int           `mapstructure:"info_concurrency" validate:"gte=1"`
	BenchmarkSymbol     string        `mapstructure:"benchmark_symbol" validate:"required"`
}

// SignalsConfig holds signal thresholds.
type SignalsConfig struct {
	HistoryPeriod          string  `mapstructure:"history_period" validate:"required"`
	GapVolumeThreshold     float64 `mapstructure:"gap_volume_threshold" validate:"gt=0"`
	MAProximityPct         float64 `mapstructure:"ma_proximity_pct" validate:"gt=0"`
	NearHighPct            float64 `mapstructure:"near_high_pct" validate:"gt=0"`
	Breakout50VolumeRatio  float64 `mapstructure:"breakout_50_volume_ratio" validate:"gt=0"`
	Breakout200VolumeRatio float64 `mapstructure:"breakout_200_volume_ratio" validate:"gt=0"`
	EarningsWindowDays     int     `mapstructure:"earnings_window_days" validate:"gte=0"`
	EarningsImminentDays   int     `mapstructure:"earnings_imminent_days" validate:"gte=0"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Brokerage: BrokerageConfig{
			Provider:          "mock",
			BaseURL:           "https://api.robinhood.com",
			RequestsPerMinute: 120,
			Timeout:           15 * time.Second,
		},
		MarketData: MarketDataConfig{
			Provider:              "mock",
			BaseURL:               "https://query2.finance.yahoo.com",
			Timeout:               15 * time.Second,
			InfoRequestsPerMinute: 60,
			HistoryConcurrency:    4,
		},
		Cache: CacheConfig{
			DefaultTTL:      300 * time.Second,
			MarketTTL:       60 * time.Second,
			PortfolioTTL:    120 * time.Second,
			StaleGrace:      60 * time.Second,
			SectorTTL:       7 * 24 * time.Hour,
			RangeTTL:        24 * time.Hour,
			EarningsTTL:     24 * time.Hour,
			SignalsTTL:      300 * time.Second,
			CleanupInterval: 5 * time.Minute,
		},
		Sync: SyncConfig{
			Schedule:            "@every 2m",
			MaxRetries:          5,
			RetryBaseDelay:      30 * time.Second,
			RetryJitter:         0.1,
			EarningsConcurrency: 10,
			InfoConcurrency:     8,
			BenchmarkSymbol:     "^GSPC",
		},
		Signals: SignalsConfig{
			HistoryPeriod:          "1y",
			GapVolumeThreshold:     1.5,
			MAProximityPct:         5,
			NearHighPct:            5,
			Breakout50VolumeRatio:  1.5,
			Breakout200VolumeRatio: 2.0,
			EarningsWindowDays:     7,
			EarningsImminentDays:   3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

var validate = validator.New()

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Cache validation
	if c.Cache.PortfolioTTL <= 0 || c.Cache.MarketTTL <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("cache ttls must be positive"))
	}
	if c.Cache.StaleGrace < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("stale_grace cannot be negative, got %s", c.Cache.StaleGrace))
	}

	// Retry validation
	if c.Sync.MaxRetries > 0 && c.Sync.RetryBaseDelay <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retry_base_delay must be positive when retries are enabled"))
	}

	if c.Signals.EarningsImminentDays > c.Signals.EarningsWindowDays {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("earnings_imminent_days (%d) exceeds earnings_window_days (%d)",
				c.Signals.EarningsImminentDays, c.Signals.EarningsWindowDays))
	}

	// Provider validation - real providers need their credentials
	if c.Brokerage.Provider == "robinhood" && c.Brokerage.Token == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("brokerage token required when provider is robinhood"))
	}

	return nil
}
