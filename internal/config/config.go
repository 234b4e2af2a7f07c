// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Supported chain providers.
const (
	ProviderEthereum = "ethereum"
	ProviderZilliqa  = "zilliqa"
)

// Supported storage drivers.
const (
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// ChainConfig describes the chain endpoint and the reward contract to track.
type ChainConfig struct {
	Provider          string        `mapstructure:"provider"`
	RPCURL            string        `mapstructure:"rpc_url"`
	ContractAddress   string        `mapstructure:"contract_address"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	// BlockTime is reported as the block_time_seconds chain field when set.
	BlockTime      time.Duration `mapstructure:"block_time"`
	RewardDecimals int32         `mapstructure:"reward_decimals"`
}

// SchedulerConfig controls the periodic reconciliation loop.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	RunOnStart    bool          `mapstructure:"run_on_start"`
}

// StorageConfig selects and configures the chain state store.
type StorageConfig struct {
	Driver         string        `mapstructure:"driver"`
	PostgresDSN    string        `mapstructure:"postgres_dsn"`
	PebblePath     string        `mapstructure:"pebble_path"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ServiceConfig tunes the consumer-facing read service.
type ServiceConfig struct {
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// HTTPConfig holds the health and read API listener settings.
type HTTPConfig struct {
	Port int `mapstructure:"port"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	TraceProvider  string `mapstructure:"trace_provider"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "SYNC_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "SYNC_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "SYNC_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.log_format", "SYNC_LOG_FORMAT", "LOG_FORMAT")

	// Chain
	v.BindEnv("chain.provider", "SYNC_CHAIN_PROVIDER")
	v.BindEnv("chain.rpc_url", "SYNC_CHAIN_RPC_URL", "RPC_URL")
	v.BindEnv("chain.contract_address", "SYNC_CONTRACT_ADDRESS", "CONTRACT_ADDRESS")
	v.BindEnv("chain.fetch_timeout", "SYNC_FETCH_TIMEOUT")
	v.BindEnv("chain.requests_per_minute", "SYNC_REQUESTS_PER_MINUTE")

	// Scheduler
	v.BindEnv("scheduler.interval", "SYNC_INTERVAL")
	v.BindEnv("scheduler.shutdown_grace", "SYNC_SHUTDOWN_GRACE")

	// Storage
	v.BindEnv("storage.driver", "SYNC_STORAGE_DRIVER")
	v.BindEnv("storage.postgres_dsn", "SYNC_POSTGRES_DSN", "DATABASE_URL")
	v.BindEnv("storage.pebble_path", "SYNC_PEBBLE_PATH")

	// HTTP
	v.BindEnv("http.port", "SYNC_HTTP_PORT", "PORT")

	// Telemetry
	v.BindEnv("telemetry.enabled", "SYNC_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "SYNC_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "SYNC_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "socialpay-sync")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("chain.provider", ProviderEthereum)
	v.SetDefault("chain.fetch_timeout", "10s")
	v.SetDefault("chain.requests_per_minute", 600)
	v.SetDefault("chain.block_time", "0s")
	v.SetDefault("chain.reward_decimals", 12)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.shutdown_grace", "15s")
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("storage.driver", DriverPostgres)
	v.SetDefault("storage.pebble_path", "./data/chainstate")
	v.SetDefault("storage.connect_timeout", "10s")

	v.SetDefault("service.cache_ttl", "1m")
	v.SetDefault("service.stale_after", "30m")

	v.SetDefault("http.port", 8080)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "socialpay-sync")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.trace_provider", "otlp")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ContractAddress == "" {
		return fmt.Errorf("chain.contract_address is required")
	}
	switch c.Chain.Provider {
	case ProviderEthereum:
		if !common.IsHexAddress(c.Chain.ContractAddress) {
			return fmt.Errorf("invalid chain.contract_address: %s", c.Chain.ContractAddress)
		}
	case ProviderZilliqa:
	default:
		return fmt.Errorf("unsupported chain.provider: %q", c.Chain.Provider)
	}
	if c.Chain.FetchTimeout <= 0 {
		return fmt.Errorf("chain.fetch_timeout must be positive")
	}
	if c.Chain.RewardDecimals < 0 {
		return fmt.Errorf("chain.reward_decimals cannot be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Scheduler.ShutdownGrace < 0 {
		return fmt.Errorf("scheduler.shutdown_grace cannot be negative")
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	case DriverPebble:
		if c.Storage.PebblePath == "" {
			return fmt.Errorf("storage.pebble_path is required for the pebble driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported storage.driver: %q", c.Storage.Driver)
	}
	return nil
}
