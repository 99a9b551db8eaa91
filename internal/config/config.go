// Package config provides configuration management for the StorePulse
// measurement service. It handles loading, validation, and access to
// configuration values from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jonesrussell/storepulse/internal/logger"
)

// App defaults
const (
	defaultAppName        = "storepulse"
	defaultAppEnvironment = "production"
)

// Server defaults
const (
	defaultServerAddress      = ":8080"
	defaultServerReadTimeout  = 15 * time.Second
	defaultServerWriteTimeout = 15 * time.Second
	defaultServerIdleTimeout  = 60 * time.Second
	defaultStatusBudget       = 60 // status requests per minute before 429
)

// Measurement defaults
const (
	DefaultRunsPerCombination = 3
	DefaultPacingDelay        = 2 * time.Second
	DefaultDiscoveryTimeout   = 10 * time.Second
	DefaultProviderTimeout    = 90 * time.Second
	DefaultStaleAfter         = 20 * time.Minute
	DefaultSweepInterval      = 5 * time.Minute
	DefaultUserAgent          = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Poller defaults
const (
	DefaultPollMinInterval = 10 * time.Second
	DefaultPollMaxInterval = 60 * time.Second
)

// AppConfig holds application identity settings.
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Debug       bool   `yaml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// StatusBudget is the number of status requests allowed per minute
	// before the API answers 429. Zero disables the budget.
	StatusBudget int `yaml:"status_budget"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the lib/pq connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// ProviderConfig holds measurement-provider API settings.
type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// MeasureConfig holds the measurement pipeline tunables. Pacing delay and
// staleness threshold are empirically observed values, kept configurable.
type MeasureConfig struct {
	RunsPerCombination int             `yaml:"runs_per_combination"`
	PacingDelay        time.Duration   `yaml:"pacing_delay"`
	DiscoveryTimeout   time.Duration   `yaml:"discovery_timeout"`
	StaleAfter         time.Duration   `yaml:"stale_after"`
	SweepInterval      time.Duration   `yaml:"sweep_interval"`
	UserAgent          string          `yaml:"user_agent"`
	Provider           *ProviderConfig `yaml:"provider"`
	// ScriptsURL is the endpoint of the third-party-script analysis
	// collaborator. Empty disables diagnostic forwarding.
	ScriptsURL string `yaml:"scripts_url"`
	// EncryptionKey decrypts stored storefront access tokens. Injected
	// explicitly so leaf code never reads the environment.
	EncryptionKey string `yaml:"encryption_key"`
}

// PollerConfig holds the adaptive status-poller settings.
type PollerConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
	MaxInterval time.Duration `yaml:"max_interval"`
}

// Config represents the application configuration.
type Config struct {
	App      *AppConfig      `yaml:"app"`
	Logger   *logger.Config  `yaml:"logger"`
	Server   *ServerConfig   `yaml:"server"`
	Database *DatabaseConfig `yaml:"database"`
	Measure  *MeasureConfig  `yaml:"measure"`
	Poller   *PollerConfig   `yaml:"poller"`
}

// LoadConfig builds the configuration from Viper's current state.
// InitializeViper must have been called first.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		App: &AppConfig{
			Name:        viper.GetString("app.name"),
			Environment: viper.GetString("app.environment"),
			Debug:       viper.GetBool("app.debug"),
		},
		Logger: &logger.Config{
			Level:       viper.GetString("logger.level"),
			Development: viper.GetBool("logger.development"),
			Encoding:    viper.GetString("logger.encoding"),
		},
		Server: &ServerConfig{
			Address:      viper.GetString("server.address"),
			ReadTimeout:  viper.GetDuration("server.read_timeout"),
			WriteTimeout: viper.GetDuration("server.write_timeout"),
			IdleTimeout:  viper.GetDuration("server.idle_timeout"),
			StatusBudget: viper.GetInt("server.status_budget"),
		},
		Database: &DatabaseConfig{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetString("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.dbname"),
			SSLMode:  viper.GetString("database.sslmode"),
		},
		Measure: &MeasureConfig{
			RunsPerCombination: viper.GetInt("measure.runs_per_combination"),
			PacingDelay:        viper.GetDuration("measure.pacing_delay"),
			DiscoveryTimeout:   viper.GetDuration("measure.discovery_timeout"),
			StaleAfter:         viper.GetDuration("measure.stale_after"),
			SweepInterval:      viper.GetDuration("measure.sweep_interval"),
			UserAgent:          viper.GetString("measure.user_agent"),
			ScriptsURL:         viper.GetString("measure.scripts_url"),
			EncryptionKey:      viper.GetString("measure.encryption_key"),
			Provider: &ProviderConfig{
				BaseURL: viper.GetString("measure.provider.base_url"),
				APIKey:  viper.GetString("measure.provider.api_key"),
				Timeout: viper.GetDuration("measure.provider.timeout"),
			},
		},
		Poller: &PollerConfig{
			MinInterval: viper.GetDuration("poller.min_interval"),
			MaxInterval: viper.GetDuration("poller.max_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values that would break the pipeline.
func (c *Config) Validate() error {
	if c.Measure.RunsPerCombination < 1 {
		return errors.New("measure.runs_per_combination must be at least 1")
	}
	if c.Measure.PacingDelay < 0 {
		return errors.New("measure.pacing_delay cannot be negative")
	}
	if c.Measure.StaleAfter <= 0 {
		return errors.New("measure.stale_after must be positive")
	}
	if c.Poller.MinInterval <= 0 || c.Poller.MaxInterval < c.Poller.MinInterval {
		return errors.New("poller intervals must satisfy 0 < min <= max")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	return nil
}
