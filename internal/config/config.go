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
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the charge-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                     string `mapstructure:"SERVER_PORT"`
	DatabaseURL                    string `mapstructure:"DATABASE_URL"`
	RabbitMQURL                    string `mapstructure:"RABBITMQ_URL"`
	ChargeEventExchange            string `mapstructure:"CHARGE_EVENT_EXCHANGE"`
	RedisURL                       string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix           string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	ChargeSubmitRateLimitPerMinute int    `mapstructure:"CHARGE_SUBMIT_RATE_LIMIT_PER_MINUTE"`
	WorkerID                       string `mapstructure:"WORKER_ID"`
	WorkerPollIntervalMS           int    `mapstructure:"WORKER_POLL_INTERVAL_MS"`
	WorkerRunOnce                  bool   `mapstructure:"WORKER_RUN_ONCE"`
}

// WorkerPollInterval returns the poll interval as a duration.
func (c Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.WorkerPollIntervalMS) * time.Millisecond
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
	viper.SetDefault("CHARGE_EVENT_EXCHANGE", "charge_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "charges:rate_limit")
	viper.SetDefault("CHARGE_SUBMIT_RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("WORKER_POLL_INTERVAL_MS", 10000)
	viper.SetDefault("WORKER_RUN_ONCE", false)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CHARGE_EVENT_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("CHARGE_SUBMIT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("WORKER_ID")
	_ = viper.BindEnv("WORKER_POLL_INTERVAL_MS")
	_ = viper.BindEnv("WORKER_RUN_ONCE")

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

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "charges:rate_limit"
	}
	config.WorkerID = strings.TrimSpace(config.WorkerID)

	if config.ChargeSubmitRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative submit rate limit configured; disabling\" limit=%d", config.ChargeSubmitRateLimitPerMinute)
		config.ChargeSubmitRateLimitPerMinute = 0
	}
	if config.WorkerPollIntervalMS <= 0 {
		log.Printf("level=warn component=config msg=\"invalid worker poll interval; using default\" interval_ms=%d", config.WorkerPollIntervalMS)
		config.WorkerPollIntervalMS = 10000
	}

	return
}
