// Package config loads and validates the distributor configuration.
package config

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// Config represents the distributor application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Token        TokenConfig        `mapstructure:"token"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Admin        AdminConfig        `mapstructure:"admin"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"30s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// TokenConfig contains token metadata and the supply cap.
// MaxSupply is a decimal token amount (e.g. "1000000000"), converted to
// base units when the supply row is seeded.
type TokenConfig struct {
	Name      string `mapstructure:"name"`
	Symbol    string `mapstructure:"symbol"`
	Decimals  int    `mapstructure:"decimals"`
	MaxSupply string `mapstructure:"max_supply"`
}

// DistributionConfig contains the initial distributor parameters.
// These seed the persisted parameter row on first start; afterwards the
// admin endpoints are the source of truth.
type DistributionConfig struct {
	Active             bool   `mapstructure:"active"`
	BaseRewardRate     string `mapstructure:"base_reward_rate"`    // tokens per second, decimal string
	ReferrerMultiplier uint64 `mapstructure:"referrer_multiplier"` // numerator, e.g. 150
	MultiplierBase     uint64 `mapstructure:"multiplier_base"`     // denominator, e.g. 100
	BootstrapFile      string `mapstructure:"bootstrap_file"`      // optional YAML with initial trusted users
}

// AdminConfig contains admin API authentication settings
type AdminConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" default:"24h"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Zero-value durations fall back to struct tag defaults
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "beercoin")

	// Token defaults
	viper.SetDefault("token.name", "BeerCoin")
	viper.SetDefault("token.symbol", "BEER")
	viper.SetDefault("token.decimals", 18)
	viper.SetDefault("token.max_supply", "1000000000")

	// Distribution defaults: 0.001 BEER/sec base rate, 1.5x per referral
	viper.SetDefault("distribution.active", true)
	viper.SetDefault("distribution.base_reward_rate", "0.001")
	viper.SetDefault("distribution.referrer_multiplier", 150)
	viper.SetDefault("distribution.multiplier_base", 100)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is required")
	}
	if config.Distribution.MultiplierBase == 0 {
		return fmt.Errorf("distribution.multiplier_base must be non-zero")
	}
	return nil
}
