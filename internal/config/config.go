/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort        string `mapstructure:"SERVER_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	RedisURL          string `mapstructure:"REDIS_URL"`
	RedisRecentPrefix string `mapstructure:"REDIS_RECENT_PREFIX"`
	RabbitMQURL       string `mapstructure:"RABBITMQ_URL"`
	LedgerEventQueue  string `mapstructure:"LEDGER_EVENT_QUEUE"`
	AuthJWKSURL       string `mapstructure:"AUTH_JWKS_URL"`
	InternalAPIKey    string `mapstructure:"INTERNAL_API_KEY"`
	RecentMaxEntries  int    `mapstructure:"RECENT_COUNTERPARTY_MAX_ENTRIES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LEDGER_EVENT_QUEUE", "ledger_service.point_events")
	viper.SetDefault("REDIS_RECENT_PREFIX", "ledger:recent")
	viper.SetDefault("RECENT_COUNTERPARTY_MAX_ENTRIES", 50)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RECENT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_EVENT_QUEUE")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "LEDGER_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("RECENT_COUNTERPARTY_MAX_ENTRIES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("LEDGER_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRecentPrefix = strings.TrimSpace(config.RedisRecentPrefix)
	if config.RedisRecentPrefix == "" {
		config.RedisRecentPrefix = "ledger:recent"
	}
	if config.RecentMaxEntries <= 0 {
		config.RecentMaxEntries = 50
	}

	return
}
