package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig                 `mapstructure:"app"`
	Database   DatabaseConfig            `mapstructure:"database"`
	Redis      RedisConfig               `mapstructure:"redis"`
	NATS       NATSConfig                `mapstructure:"nats"`
	Exchanges  map[string]ExchangeConfig `mapstructure:"exchanges"`
	Monitoring MonitoringConfig          `mapstructure:"monitoring"`
	Arbot      ArbotConfig               `mapstructure:"arbot"`
}

// ArbotConfig groups the arbitrage-engine-specific settings that sit
// alongside the ambient app/database/monitoring configuration above:
// which strategies run, how aggressively risk throttles them, and how
// each exchange connection is paced.
type ArbotConfig struct {
	System     SystemConfig     `mapstructure:"system"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	RiskLimits RiskLimitsConfig `mapstructure:"risk_limits"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Bus        BusConfig        `mapstructure:"bus"`
	Control    ControlConfig    `mapstructure:"control"`
}

// SystemConfig is the top-level run mode for the arbitrage engine.
type SystemConfig struct {
	ExecutionMode string   `mapstructure:"execution_mode"` // "paper", "live", or "backtest"
	Symbols       []string `mapstructure:"symbols"`        // BASE/QUOTE pairs, e.g. "BTC/USDT"
	Exchanges     []string `mapstructure:"exchanges"`      // which configured exchanges to connect
}

// DetectorConfig groups the two strategy-specific sub-configs.
type DetectorConfig struct {
	Spatial    SpatialDetectorConfig    `mapstructure:"spatial"`
	Triangular TriangularDetectorConfig `mapstructure:"triangular"`
}

// SpatialDetectorConfig mirrors internal/detector.SpatialConfig.
type SpatialDetectorConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	MinSpreadPct float64 `mapstructure:"min_spread_pct"`
	MinDepthUSD  float64 `mapstructure:"min_depth_usd"`
	MaxLatencyMS int64   `mapstructure:"max_latency_ms"`
}

// TriangularDetectorConfig mirrors internal/detector.TriangularConfig,
// minus the Paths slice which is built programmatically from Symbols.
type TriangularDetectorConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	MinProfitPct float64 `mapstructure:"min_profit_pct"`
}

// RiskLimitsConfig mirrors internal/risk.Limits, expressed in the plain
// float64/int terms config files use; main.go converts each field to
// decimal.Decimal when constructing risk.Manager.
type RiskLimitsConfig struct {
	MaxPositionPerCoinUSD       float64 `mapstructure:"max_position_per_coin_usd"`
	MaxPositionPerExchangeUSD   float64 `mapstructure:"max_position_per_exchange_usd"`
	MaxTotalExposureUSD         float64 `mapstructure:"max_total_exposure_usd"`
	WarningThresholdPct         float64 `mapstructure:"warning_threshold_pct"`
	MaxDrawdownPct              float64 `mapstructure:"max_drawdown_pct"`
	MaxDailyLossUSD             float64 `mapstructure:"max_daily_loss_usd"`
	MaxDailyLossPct             float64 `mapstructure:"max_daily_loss_pct"`
	PriceDeviationThresholdPct  float64 `mapstructure:"price_deviation_threshold_pct"`
	MaxSpreadPct                float64 `mapstructure:"max_spread_pct"`
	SpreadStdThreshold          float64 `mapstructure:"spread_std_threshold"`
	FlashCrashPct               float64 `mapstructure:"flash_crash_pct"`
	ConsecutiveLossLimit        int     `mapstructure:"consecutive_loss_limit"`
	CooldownMinutes             int     `mapstructure:"cooldown_minutes"`
}

// ExecutionConfig governs order submission and tracking timeouts.
type ExecutionConfig struct {
	OrderTimeoutSeconds int `mapstructure:"order_timeout_seconds"`
	MaxLatencyMS        int `mapstructure:"max_latency_ms"`
}

// BusConfig configures the outward NATS event bus.
type BusConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// ControlConfig configures the HTTP operator control surface.
type ControlConfig struct {
	Port int `mapstructure:"port"`
}

// RateLimitConfig describes one exchange's rate limiter policy, matching
// internal/ratelimit's three supported policies.
type RateLimitConfig struct {
	Policy            string `mapstructure:"policy"` // "weight", "count", or "token_bucket"
	WeightPerMinute   int    `mapstructure:"weight_per_minute"`
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
	Burst             int    `mapstructure:"burst"`
}

// WebSocketConfig describes one exchange's reconnect policy, matching
// internal/exchange.ReconnectPolicy.
type WebSocketConfig struct {
	Depth              int     `mapstructure:"depth"`
	HeartbeatSeconds   int     `mapstructure:"heartbeat_seconds"`
	InitialBackoffMS   int     `mapstructure:"initial_backoff_ms"`
	MaxBackoffMS       int     `mapstructure:"max_backoff_ms"`
	BackoffMultiplier  float64 `mapstructure:"backoff_multiplier"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL/TimescaleDB settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS messaging settings
type NATSConfig struct {
	URL             string `mapstructure:"url"`
	EnableJetStream bool   `mapstructure:"enable_jetstream"`
}

// ExchangeConfig contains exchange-specific settings
type ExchangeConfig struct {
	APIKey      string          `mapstructure:"api_key"`
	SecretKey   string          `mapstructure:"secret_key"`
	Testnet     bool            `mapstructure:"testnet"`
	RateLimitMS int             `mapstructure:"rate_limit_ms"`
	Fees        FeeConfig       `mapstructure:"fees"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	WebSocket   WebSocketConfig `mapstructure:"websocket"`
}

// FeeConfig contains exchange fee structure
type FeeConfig struct {
	Maker           float64 `mapstructure:"maker"`              // Maker fee percentage (e.g., 0.001 = 0.1%)
	Taker           float64 `mapstructure:"taker"`              // Taker fee percentage (e.g., 0.001 = 0.1%)
	BaseSlippage    float64 `mapstructure:"base_slippage"`      // Base slippage percentage (e.g., 0.0005 = 0.05%)
	MarketImpact    float64 `mapstructure:"market_impact"`      // Market impact per unit (e.g., 0.0001 = 0.01%)
	MaxSlippage     float64 `mapstructure:"max_slippage"`       // Maximum slippage percentage (e.g., 0.003 = 0.3%)
	Withdrawal      float64 `mapstructure:"withdrawal"`         // Withdrawal fee percentage (optional)
}

// MonitoringConfig contains monitoring settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvPrefix("CRYPTOFUNK")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal into struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration using comprehensive validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "CryptoFunk")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "cryptofunk")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enable_jetstream", true)

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)

	// Exchange fee defaults (Binance-like structure)
	v.SetDefault("exchanges.binance.fees.maker", 0.001)          // 0.1% maker fee
	v.SetDefault("exchanges.binance.fees.taker", 0.001)          // 0.1% taker fee
	v.SetDefault("exchanges.binance.fees.base_slippage", 0.0005) // 0.05% base slippage
	v.SetDefault("exchanges.binance.fees.market_impact", 0.0001) // 0.01% market impact
	v.SetDefault("exchanges.binance.fees.max_slippage", 0.003)   // 0.3% max slippage
	v.SetDefault("exchanges.binance.fees.withdrawal", 0.0)       // No withdrawal fee by default

	v.SetDefault("exchanges.binance.rate_limit.policy", "weight")
	v.SetDefault("exchanges.binance.rate_limit.weight_per_minute", 1200)
	v.SetDefault("exchanges.binance.websocket.depth", 20)
	v.SetDefault("exchanges.binance.websocket.heartbeat_seconds", 20)
	v.SetDefault("exchanges.binance.websocket.initial_backoff_ms", 500)
	v.SetDefault("exchanges.binance.websocket.max_backoff_ms", 30000)
	v.SetDefault("exchanges.binance.websocket.backoff_multiplier", 2.0)

	// ArBot system/detector/risk/execution defaults
	v.SetDefault("arbot.system.execution_mode", "paper")
	v.SetDefault("arbot.system.symbols", []string{"BTC/USDT", "ETH/USDT"})
	v.SetDefault("arbot.system.exchanges", []string{"binance"})

	v.SetDefault("arbot.detector.spatial.enabled", true)
	v.SetDefault("arbot.detector.spatial.min_spread_pct", 0.25)
	v.SetDefault("arbot.detector.spatial.min_depth_usd", 1000.0)
	v.SetDefault("arbot.detector.spatial.max_latency_ms", 750)

	v.SetDefault("arbot.detector.triangular.enabled", true)
	v.SetDefault("arbot.detector.triangular.min_profit_pct", 0.1)

	v.SetDefault("arbot.risk_limits.max_position_per_coin_usd", 5000.0)
	v.SetDefault("arbot.risk_limits.max_position_per_exchange_usd", 15000.0)
	v.SetDefault("arbot.risk_limits.max_total_exposure_usd", 30000.0)
	v.SetDefault("arbot.risk_limits.warning_threshold_pct", 70.0)
	v.SetDefault("arbot.risk_limits.max_drawdown_pct", 5.0)
	v.SetDefault("arbot.risk_limits.max_daily_loss_usd", 1000.0)
	v.SetDefault("arbot.risk_limits.max_daily_loss_pct", 5.0)
	v.SetDefault("arbot.risk_limits.price_deviation_threshold_pct", 3.0)
	v.SetDefault("arbot.risk_limits.max_spread_pct", 5.0)
	v.SetDefault("arbot.risk_limits.spread_std_threshold", 4.0)
	v.SetDefault("arbot.risk_limits.flash_crash_pct", 8.0)
	v.SetDefault("arbot.risk_limits.consecutive_loss_limit", 10)
	v.SetDefault("arbot.risk_limits.cooldown_minutes", 30)

	v.SetDefault("arbot.execution.order_timeout_seconds", 30)
	v.SetDefault("arbot.execution.max_latency_ms", 2000)

	v.SetDefault("arbot.bus.url", "nats://localhost:4222")
	v.SetDefault("arbot.bus.prefix", "arbot.")

	v.SetDefault("arbot.control.port", 8090)
}

// Note: Comprehensive validation is now in validation.go
// The Config.Validate() method is called during Load()

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

