// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds the API and health server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	HealthPort      int           `mapstructure:"health_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	APITokens       []string      `mapstructure:"api_tokens"`
}

// DatabaseConfig holds the postgres connection settings.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConns       int32         `mapstructure:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ProviderConfig holds the marketplace-data API settings.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// QuotaConfig holds per-endpoint-class rate limits. The pricing endpoint
// officially allows well under one request per second with no burst
// tolerance; the fee endpoint allows one per second.
type QuotaConfig struct {
	PricingInterval time.Duration `mapstructure:"pricing_interval"`
	PricingBurst    int           `mapstructure:"pricing_burst"`
	PricingCooldown time.Duration `mapstructure:"pricing_cooldown"`
	FeesInterval    time.Duration `mapstructure:"fees_interval"`
	FeesBurst       int           `mapstructure:"fees_burst"`
	FeesCooldown    time.Duration `mapstructure:"fees_cooldown"`
}

// ScanConfig holds scanning-engine settings.
type ScanConfig struct {
	HomeMarketplace     string             `mapstructure:"home_marketplace"`
	ForeignMarketplaces []string           `mapstructure:"foreign_marketplaces"`
	BatchSize           int                `mapstructure:"batch_size"`
	MinProfit           float64            `mapstructure:"min_profit"`
	ServiceFeePercent   float64            `mapstructure:"service_fee_percent"`
	ExchangeRates       map[string]float64 `mapstructure:"exchange_rates"`
	EventBuffer         int                `mapstructure:"event_buffer"`
}

// MinProfitDecimal returns the opportunity inclusion threshold as a decimal.
// It may be negative to surface near-miss break-even deals.
func (c *ScanConfig) MinProfitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfit)
}

// ServiceFeePercentDecimal returns the variable service fee percentage
// as a decimal. The fee is charged on the home sale price.
func (c *ScanConfig) ServiceFeePercentDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.ServiceFeePercent)
}

// ExchangeRatesDecimal returns the configured currency->home rates as decimals.
func (c *ScanConfig) ExchangeRatesDecimal() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.ExchangeRates))
	for cur, rate := range c.ExchangeRates {
		out[cur] = decimal.NewFromFloat(rate)
	}
	return out
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
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

	v.SetEnvPrefix("SCANNER")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
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
	v.BindEnv("app.name", "SCANNER_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "SCANNER_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "SCANNER_LOG_LEVEL", "LOG_LEVEL")

	// Server
	v.BindEnv("server.port", "SCANNER_PORT", "PORT")
	v.BindEnv("server.health_port", "SCANNER_HEALTH_PORT")
	v.BindEnv("server.api_tokens", "SCANNER_API_TOKENS")

	// Database
	v.BindEnv("database.url", "SCANNER_DATABASE_URL", "DATABASE_URL")

	// Provider
	v.BindEnv("provider.base_url", "SCANNER_PROVIDER_URL")
	v.BindEnv("provider.api_key", "SCANNER_PROVIDER_API_KEY")

	// Scan
	v.BindEnv("scan.home_marketplace", "SCANNER_HOME_MARKETPLACE")
	v.BindEnv("scan.min_profit", "SCANNER_MIN_PROFIT")
	v.BindEnv("scan.service_fee_percent", "SCANNER_SERVICE_FEE_PERCENT")

	// Telemetry
	v.BindEnv("telemetry.enabled", "SCANNER_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "SCANNER_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "SCANNER_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "storefront-scanner")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.shutdown_timeout", "15s")

	// Database defaults
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.connect_timeout", "10s")

	// Provider defaults
	v.SetDefault("provider.request_timeout", "30s")

	// Quota defaults: pricing is near one request every two seconds with
	// no burst; fees is one request per second.
	v.SetDefault("quota.pricing_interval", "2100ms")
	v.SetDefault("quota.pricing_burst", 1)
	v.SetDefault("quota.pricing_cooldown", "5s")
	v.SetDefault("quota.fees_interval", "1100ms")
	v.SetDefault("quota.fees_burst", 1)
	v.SetDefault("quota.fees_cooldown", "2s")

	// Scan defaults
	v.SetDefault("scan.home_marketplace", "UK")
	v.SetDefault("scan.foreign_marketplaces", []string{"DE", "FR", "IT", "ES"})
	v.SetDefault("scan.batch_size", 20)
	v.SetDefault("scan.min_profit", 0)
	v.SetDefault("scan.service_fee_percent", 2)
	v.SetDefault("scan.exchange_rates", map[string]float64{"EUR": 0.86, "GBP": 1})
	v.SetDefault("scan.event_buffer", 256)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "storefront-scanner")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Scan.HomeMarketplace == "" {
		return fmt.Errorf("scan.home_marketplace is required")
	}
	if len(c.Scan.ForeignMarketplaces) == 0 {
		return fmt.Errorf("scan.foreign_marketplaces cannot be empty")
	}
	for _, mp := range c.Scan.ForeignMarketplaces {
		if mp == c.Scan.HomeMarketplace {
			return fmt.Errorf("scan.foreign_marketplaces must not contain the home marketplace %q", mp)
		}
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("scan.batch_size must be positive")
	}
	for cur, rate := range c.Scan.ExchangeRates {
		if rate <= 0 {
			return fmt.Errorf("scan.exchange_rates[%s] must be positive", cur)
		}
	}
	if c.Quota.PricingInterval <= 0 || c.Quota.FeesInterval <= 0 {
		return fmt.Errorf("quota intervals must be positive")
	}
	if c.Quota.PricingCooldown < c.Quota.PricingInterval || c.Quota.FeesCooldown < c.Quota.FeesInterval {
		return fmt.Errorf("throttle cooldowns must not be shorter than the quota interval")
	}
	return nil
}
