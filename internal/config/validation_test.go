//nolint:goconst // Test files use repeated strings for clarity
package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "CryptoFunk",
			Version:     "1.0.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_password",
			Database: "cryptofunk",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		NATS: NATSConfig{
			URL:             "nats://localhost:4222",
			EnableJetStream: true,
		},
		Exchanges: map[string]ExchangeConfig{
			"binance": {
				APIKey:      "test_api_key",
				SecretKey:   "test_secret_key",
				Testnet:     true,
				RateLimitMS: 100,
			},
		},
		Monitoring: MonitoringConfig{
			PrometheusPort: 9100,
			EnableMetrics:  true,
		},
		Arbot: ArbotConfig{
			System: SystemConfig{
				ExecutionMode: "paper",
				Symbols:       []string{"BTC/USDT", "ETH/USDT"},
				Exchanges:     []string{"binance", "kraken"},
			},
			Detector: DetectorConfig{
				Spatial: SpatialDetectorConfig{Enabled: true},
			},
			RiskLimits: RiskLimitsConfig{
				MaxPositionPerCoinUSD:     1000,
				MaxPositionPerExchangeUSD: 5000,
				MaxTotalExposureUSD:       10000,
			},
			Execution: ExecutionConfig{
				OrderTimeoutSeconds: 5,
				MaxLatencyMS:        500,
			},
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err, "Valid configuration should not produce errors")
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing app name",
			modify: func(c *Config) {
				c.App.Name = ""
			},
			expectError: "app.name",
		},
		{
			name: "missing environment",
			modify: func(c *Config) {
				c.App.Environment = ""
			},
			expectError: "app.environment",
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.App.Environment = "invalid_env"
			},
			expectError: "Invalid environment",
		},
		{
			name: "missing log level",
			modify: func(c *Config) {
				c.App.LogLevel = ""
			},
			expectError: "app.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing host",
			modify: func(c *Config) {
				c.Database.Host = ""
			},
			expectError: "database.host",
		},
		{
			name: "missing port",
			modify: func(c *Config) {
				c.Database.Port = 0
			},
			expectError: "database.port",
		},
		{
			name: "invalid port - too high",
			modify: func(c *Config) {
				c.Database.Port = 70000
			},
			expectError: "Invalid port",
		},
		{
			name: "invalid port - negative",
			modify: func(c *Config) {
				c.Database.Port = -1
			},
			expectError: "Invalid port",
		},
		{
			name: "missing user",
			modify: func(c *Config) {
				c.Database.User = ""
			},
			expectError: "database.user",
		},
		{
			name: "missing database name",
			modify: func(c *Config) {
				c.Database.Database = ""
			},
			expectError: "database.database",
		},
		{
			name: "missing password in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.Password = ""
			},
			expectError: "password is required",
		},
		{
			name: "invalid pool size",
			modify: func(c *Config) {
				c.Database.PoolSize = 0
			},
			expectError: "pool size must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRedis(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing host",
			modify: func(c *Config) {
				c.Redis.Host = ""
			},
			expectError: "redis.host",
		},
		{
			name: "missing port",
			modify: func(c *Config) {
				c.Redis.Port = 0
			},
			expectError: "redis.port",
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.Redis.Port = 70000
			},
			expectError: "Invalid port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateNATS(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing URL",
			modify: func(c *Config) {
				c.NATS.URL = ""
			},
			expectError: "nats.url",
		},
		{
			name: "invalid URL format",
			modify: func(c *Config) {
				c.NATS.URL = "http://localhost:4222"
			},
			expectError: "must start with 'nats://'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateArbot(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "invalid execution mode",
			modify: func(c *Config) {
				c.Arbot.System.ExecutionMode = "invalid_mode"
			},
			expectError: "invalid execution_mode",
		},
		{
			name: "no symbols",
			modify: func(c *Config) {
				c.Arbot.System.Symbols = []string{}
			},
			expectError: "at least one symbol is required",
		},
		{
			name: "symbol missing BASE/QUOTE separator",
			modify: func(c *Config) {
				c.Arbot.System.Symbols = []string{"BTCUSDT"}
			},
			expectError: "must be in BASE/QUOTE form",
		},
		{
			name: "spatial detector needs two exchanges",
			modify: func(c *Config) {
				c.Arbot.System.Exchanges = []string{"binance"}
				c.Arbot.Detector.Spatial.Enabled = true
			},
			expectError: "spatial detector requires at least two configured exchanges",
		},
		{
			name: "invalid max_position_per_coin_usd",
			modify: func(c *Config) {
				c.Arbot.RiskLimits.MaxPositionPerCoinUSD = 0
			},
			expectError: "must be positive",
		},
		{
			name: "total exposure below per-exchange limit",
			modify: func(c *Config) {
				c.Arbot.RiskLimits.MaxTotalExposureUSD = 1
				c.Arbot.RiskLimits.MaxPositionPerExchangeUSD = 5000
			},
			expectError: "must be at least max_position_per_exchange_usd",
		},
		{
			name: "invalid order timeout",
			modify: func(c *Config) {
				c.Arbot.Execution.OrderTimeoutSeconds = 0
			},
			expectError: "arbot.execution.order_timeout_seconds",
		},
		{
			name: "invalid max latency",
			modify: func(c *Config) {
				c.Arbot.Execution.MaxLatencyMS = 0
			},
			expectError: "arbot.execution.max_latency_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateExchanges(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "no exchanges configured",
			modify: func(c *Config) {
				c.Exchanges = map[string]ExchangeConfig{}
			},
			expectError: "At least one exchange must be configured",
		},
		{
			name: "missing API key in live mode",
			modify: func(c *Config) {
				c.Arbot.System.ExecutionMode = "live"
				c.Exchanges["binance"] = ExchangeConfig{
					APIKey:      "",
					SecretKey:   "secret",
					Testnet:     false,
					RateLimitMS: 100,
				}
			},
			expectError: "API key is required for live trading",
		},
		{
			name: "missing secret key in live mode",
			modify: func(c *Config) {
				c.Arbot.System.ExecutionMode = "live"
				c.Exchanges["binance"] = ExchangeConfig{
					APIKey:      "key",
					SecretKey:   "",
					Testnet:     false,
					RateLimitMS: 100,
				}
			},
			expectError: "Secret key is required for live trading",
		},
		{
			name: "invalid rate limit",
			modify: func(c *Config) {
				c.Exchanges["binance"] = ExchangeConfig{
					APIKey:      "key",
					SecretKey:   "secret",
					Testnet:     true,
					RateLimitMS: -1,
				}
			},
			expectError: "Rate limit must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateEnvironmentRequirements(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "testnet enabled in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Exchanges["binance"] = ExchangeConfig{
					APIKey:      "key",
					SecretKey:   "secret",
					Testnet:     true,
					RateLimitMS: 100,
				}
			},
			expectError: "Testnet mode must be disabled in production",
		},
		{
			name: "SSL disabled in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.SSLMode = "disable"
			},
			expectError: "SSL must be enabled for database in production",
		},
		{
			name: "DATABASE_URL missing in production with incomplete config",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.Host = ""
				// DATABASE_URL not set
				_ = os.Unsetenv("DATABASE_URL") // Test env cleanup
			},
			expectError: "DATABASE_URL is required in production",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errors := ValidationErrors{
		{Field: "field1", Message: "error message 1"},
		{Field: "field2", Message: "error message 2"},
		{Field: "field3", Message: "error message 3"},
	}

	errMsg := errors.Error()

	// Check error message structure
	assert.Contains(t, errMsg, "Configuration validation failed with 3 error(s)")
	assert.Contains(t, errMsg, "1. field1: error message 1")
	assert.Contains(t, errMsg, "2. field2: error message 2")
	assert.Contains(t, errMsg, "3. field3: error message 3")
	assert.Contains(t, errMsg, "Please fix the above errors and try again")
}

func TestValidationErrors_Empty(t *testing.T) {
	errors := ValidationErrors{}
	assert.Equal(t, "", errors.Error())
}

func TestValidateAndLoad(t *testing.T) {
	// Create a temporary config file with invalid configuration
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer func() { _ = os.Remove(tmpfile.Name()) }() // Test cleanup

	// Write invalid config (missing required fields)
	invalidConfig := `
app:
  name: ""
  environment: "development"
  log_level: "info"
arbot:
  system:
    execution_mode: "paper"
    symbols: []
    exchanges: ["binance"]
`
	_, err = tmpfile.WriteString(invalidConfig)
	require.NoError(t, err)
	_ = tmpfile.Close() // Test cleanup

	// Try to load - should fail validation
	_, err = Load(tmpfile.Name())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "app.name") || strings.Contains(err.Error(), "symbols"))
}
