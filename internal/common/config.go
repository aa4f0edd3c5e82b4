// Package common provides shared utilities for divfolio
package common

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for divfolio
type Config struct {
	Environment string           `toml:"environment"`
	Clients     ClientsConfig    `toml:"clients"`
	Gateway     GatewayConfig    `toml:"gateway"`
	Scoring     ScoringConfig    `toml:"scoring"`
	Analysis    AnalysisConfig   `toml:"analysis"`
	Allocation  AllocationConfig `toml:"allocation"`
	Universe    UniverseConfig   `toml:"universe"`
	Telemetry   TelemetryConfig  `toml:"telemetry"`
	Logging     LoggingConfig    `toml:"logging"`
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD EODHDConfig `toml:"eodhd"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// GatewayConfig controls how provider data is fetched, validated and cached.
type GatewayConfig struct {
	RateLimit     float64         `toml:"rate_limit"` // provider calls per second
	MinPrice      float64         `toml:"min_price"`
	MinYield      float64         `toml:"min_yield"` // percent
	MaxYield      float64         `toml:"max_yield"` // percent
	ShortCacheTTL string          `toml:"short_cache_ttl"`
	LongCacheTTL  string          `toml:"long_cache_ttl"`
	Retry         RetryConfig     `toml:"retry"`
	Breaker       BreakerConfig   `toml:"breaker"`
	Liquidity     LiquidityConfig `toml:"liquidity"`
}

// GetShortCacheTTL returns the TTL for price and dividend data
func (c *GatewayConfig) GetShortCacheTTL() time.Duration {
	return parseDuration(c.ShortCacheTTL, FreshnessQuote)
}

// GetLongCacheTTL returns the TTL for reference data
func (c *GatewayConfig) GetLongCacheTTL() time.Duration {
	return parseDuration(c.LongCacheTTL, FreshnessReference)
}

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	Attempts int    `toml:"attempts"`
	Step     string `toml:"step"`
	Backoff  string `toml:"backoff"` // "fixed" or "linear"
}

// GetStep returns the backoff step
func (c *RetryConfig) GetStep() time.Duration {
	return parseDuration(c.Step, time.Second)
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	Enabled             bool   `toml:"enabled"`
	ConsecutiveFailures int    `toml:"consecutive_failures"`
	OpenTimeout         string `toml:"open_timeout"`
}

// GetOpenTimeout returns how long the breaker stays open before probing
func (c *BreakerConfig) GetOpenTimeout() time.Duration {
	return parseDuration(c.OpenTimeout, 30*time.Second)
}

// LiquidityConfig configures the optional liquidity gate.
type LiquidityConfig struct {
	Enabled        bool    `toml:"enabled"`
	MinDaysTrading int     `toml:"min_days_trading"`
	MinVolume      float64 `toml:"min_volume"`
	Lookback       string  `toml:"lookback"`
}

// GetLookback returns the trading window inspected by the gate
func (c *LiquidityConfig) GetLookback() time.Duration {
	return parseDuration(c.Lookback, 120*24*time.Hour)
}

// ScoringConfig holds the composite score weights and growth bounds.
type ScoringConfig struct {
	Years             int     `toml:"years"`
	YieldWeight       float64 `toml:"yield_weight"`
	ConsistencyWeight float64 `toml:"consistency_weight"`
	GrowthWeight      float64 `toml:"growth_weight"`
	CAGRClamp         float64 `toml:"cagr_clamp"`
	CAGROutlierMin    float64 `toml:"cagr_outlier_min"`
	CAGROutlierMax    float64 `toml:"cagr_outlier_max"`
}

// AnalysisConfig configures the parallel analysis run.
type AnalysisConfig struct {
	Concurrency         int    `toml:"concurrency"`
	SequentialThreshold int    `toml:"sequential_threshold"`
	TaskTimeout         string `toml:"task_timeout"`
	RunTimeout          string `toml:"run_timeout"`
}

// GetTaskTimeout returns the per-symbol deadline
func (c *AnalysisConfig) GetTaskTimeout() time.Duration {
	return parseDuration(c.TaskTimeout, 30*time.Second)
}

// GetRunTimeout returns the whole-run deadline, zero meaning none
func (c *AnalysisConfig) GetRunTimeout() time.Duration {
	return parseDuration(c.RunTimeout, 0)
}

// AllocationConfig configures the portfolio allocator.
type AllocationConfig struct {
	MaxAssets       int            `toml:"max_assets"`
	MinYieldFilter  float64        `toml:"min_yield_filter"`
	MinCapital      float64        `toml:"min_capital"`
	MaxCapital      float64        `toml:"max_capital"`
	UnderAllocation string         `toml:"under_allocation"` // "min_lot" or "drop"
	LotSizes        map[string]int `toml:"lot_sizes"`        // keyed by category
	DefaultLotSize  int            `toml:"default_lot_size"`
}

// UniverseConfig selects where the symbol universe comes from.
type UniverseConfig struct {
	Source   string `toml:"source"` // "builtin" or "provider"
	Exchange string `toml:"exchange"`
	Suffix   string `toml:"suffix"`
}

// TelemetryConfig configures the optional metrics and progress listener.
type TelemetryConfig struct {
	Listen string `toml:"listen"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL: "https://eodhd.com/api",
				Timeout: "10s",
			},
		},
		Gateway: GatewayConfig{
			RateLimit:     5,
			MinPrice:      0.01,
			MinYield:      0.1,
			MaxYield:      40,
			ShortCacheTTL: "30m",
			LongCacheTTL:  "24h",
			Retry: RetryConfig{
				Attempts: 3,
				Step:     "1s",
				Backoff:  "fixed",
			},
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 10,
				OpenTimeout:         "30s",
			},
			Liquidity: LiquidityConfig{
				Enabled:        false,
				MinDaysTrading: 60,
				MinVolume:      1000,
				Lookback:       "2880h",
			},
		},
		Scoring: ScoringConfig{
			Years:             5,
			YieldWeight:       0.4,
			ConsistencyWeight: 0.3,
			GrowthWeight:      0.3,
			CAGRClamp:         20,
			CAGROutlierMin:    -50,
			CAGROutlierMax:    100,
		},
		Analysis: AnalysisConfig{
			Concurrency:         10,
			SequentialThreshold: 10,
			TaskTimeout:         "30s",
		},
		Allocation: AllocationConfig{
			MaxAssets:       15,
			MinYieldFilter:  4.0,
			MinCapital:      1000,
			MaxCapital:      100_000_000,
			UnderAllocation: "min_lot",
			LotSizes:        map[string]int{"Equity": 100},
			DefaultLotSize:  1,
		},
		Universe: UniverseConfig{
			Source:   "builtin",
			Exchange: "SA",
			Suffix:   ".SA",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DIVFOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("DIVFOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("DIVFOLIO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	for _, name := range []string{"EODHD_API_KEY", "DIVFOLIO_EODHD_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			config.Clients.EODHD.APIKey = v
			break
		}
	}
	if v := os.Getenv("DIVFOLIO_EODHD_BASE_URL"); v != "" {
		config.Clients.EODHD.BaseURL = v
	}

	if v := os.Getenv("DIVFOLIO_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Gateway.RateLimit = f
		}
	}
	if v := os.Getenv("DIVFOLIO_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Analysis.Concurrency = n
		}
	}
	if v := os.Getenv("DIVFOLIO_LIQUIDITY_GATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Gateway.Liquidity.Enabled = b
		}
	}
	if v := os.Getenv("DIVFOLIO_UNIVERSE_SOURCE"); v != "" {
		config.Universe.Source = strings.ToLower(v)
	}
	if v := os.Getenv("DIVFOLIO_TELEMETRY_LISTEN"); v != "" {
		config.Telemetry.Listen = v
	}
}

// Validate rejects configurations the analysis cannot run with.
func (c *Config) Validate() error {
	s := c.Scoring
	sum := s.YieldWeight + s.ConsistencyWeight + s.GrowthWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.6f", sum)
	}
	if s.YieldWeight < 0 || s.ConsistencyWeight < 0 || s.GrowthWeight < 0 {
		return fmt.Errorf("scoring weights must be non-negative")
	}
	if s.Years < 1 {
		return fmt.Errorf("scoring years must be at least 1, got %d", s.Years)
	}
	if c.Gateway.RateLimit <= 0 {
		return fmt.Errorf("gateway rate_limit must be positive, got %v", c.Gateway.RateLimit)
	}
	if c.Gateway.MinYield > c.Gateway.MaxYield {
		return fmt.Errorf("gateway min_yield %.2f exceeds max_yield %.2f", c.Gateway.MinYield, c.Gateway.MaxYield)
	}
	if c.Gateway.Retry.Attempts < 1 {
		return fmt.Errorf("gateway retry attempts must be at least 1, got %d", c.Gateway.Retry.Attempts)
	}
	switch c.Gateway.Retry.Backoff {
	case "fixed", "linear":
	default:
		return fmt.Errorf("gateway retry backoff must be fixed or linear, got %q", c.Gateway.Retry.Backoff)
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("analysis concurrency must be at least 1, got %d", c.Analysis.Concurrency)
	}
	if c.Allocation.MaxAssets < 1 {
		return fmt.Errorf("allocation max_assets must be at least 1, got %d", c.Allocation.MaxAssets)
	}
	switch c.Allocation.UnderAllocation {
	case "min_lot", "drop":
	default:
		return fmt.Errorf("allocation under_allocation must be min_lot or drop, got %q", c.Allocation.UnderAllocation)
	}
	switch c.Universe.Source {
	case "builtin", "provider":
	default:
		return fmt.Errorf("universe source must be builtin or provider, got %q", c.Universe.Source)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// LotSizeFor returns the configured trading lot for a category name.
func (c *AllocationConfig) LotSizeFor(category string) int {
	if n, ok := c.LotSizes[category]; ok && n > 0 {
		return n
	}
	if c.DefaultLotSize > 0 {
		return c.DefaultLotSize
	}
	return 1
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
