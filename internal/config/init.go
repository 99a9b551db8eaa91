package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// InitializeViper initializes Viper configuration from environment variables
// and config files. This must be called before LoadConfig().
func InitializeViper() error {
	loadEnvFile()
	setupViper()
	setDefaults()
	readConfigFile()

	if err := bindEnvironmentVariables(); err != nil {
		return fmt.Errorf("failed to bind environment variables: %w", err)
	}

	setupDevelopmentLogging()
	return nil
}

// loadEnvFile loads .env file (ignores error if file doesn't exist).
func loadEnvFile() {
	_ = godotenv.Load()
}

// setupViper configures Viper for environment variable and config file reading.
func setupViper() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
}

// readConfigFile reads config file (ignores error if file doesn't exist).
func readConfigFile() {
	_ = viper.ReadInConfig()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":        defaultAppName,
		"environment": defaultAppEnvironment,
		"debug":       false,
	})

	viper.SetDefault("logger", map[string]any{
		"level":       "info",
		"development": false,
		"encoding":    "json",
	})

	viper.SetDefault("server", map[string]any{
		"address":       defaultServerAddress,
		"read_timeout":  defaultServerReadTimeout.String(),
		"write_timeout": defaultServerWriteTimeout.String(),
		"idle_timeout":  defaultServerIdleTimeout.String(),
		"status_budget": defaultStatusBudget,
	})

	viper.SetDefault("database", map[string]any{
		"host":    "localhost",
		"port":    "5432",
		"user":    "postgres",
		"dbname":  "storepulse",
		"sslmode": "disable",
	})

	viper.SetDefault("measure", map[string]any{
		"runs_per_combination": DefaultRunsPerCombination,
		"pacing_delay":         DefaultPacingDelay.String(),
		"discovery_timeout":    DefaultDiscoveryTimeout.String(),
		"stale_after":          DefaultStaleAfter.String(),
		"sweep_interval":       DefaultSweepInterval.String(),
		"user_agent":           DefaultUserAgent,
		"provider": map[string]any{
			"timeout": DefaultProviderTimeout.String(),
		},
	})

	viper.SetDefault("poller", map[string]any{
		"min_interval": DefaultPollMinInterval.String(),
		"max_interval": DefaultPollMaxInterval.String(),
	})
}

// bindEnvironmentVariables binds all environment variables to config keys.
func bindEnvironmentVariables() error {
	bindings := map[string][]string{
		"app.environment":          {"APP_ENV"},
		"app.debug":                {"APP_DEBUG"},
		"logger.level":             {"LOG_LEVEL"},
		"logger.encoding":          {"LOG_FORMAT"},
		"database.host":            {"DB_HOST"},
		"database.port":            {"DB_PORT"},
		"database.user":            {"DB_USER"},
		"database.password":        {"DB_PASSWORD"},
		"database.dbname":          {"DB_NAME"},
		"database.sslmode":          {"DB_SSLMODE"},
		"measure.provider.base_url": {"PROVIDER_BASE_URL"},
		"measure.provider.api_key":  {"PROVIDER_API_KEY"},
		"measure.scripts_url":       {"SCRIPTS_API_URL"},
		"measure.encryption_key":    {"STOREPULSE_ENCRYPTION_KEY"},
	}

	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := viper.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", envs[0], err)
		}
	}
	return nil
}

// setupDevelopmentLogging configures logging settings based on environment
// variables. Debug level (APP_DEBUG) is independent of development formatting
// (APP_ENV) so debug logs can be enabled in production for troubleshooting.
func setupDevelopmentLogging() {
	if viper.GetBool("app.debug") {
		viper.Set("logger.level", "debug")
	}

	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
		viper.Set("logger.encoding", "console")
	}
}
