package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/nudgekit/nudgekit/internal/initialization"
)

// Config holds all engine configuration
type Config struct {
	HTTPAddress string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	ResendAPIKey string
	EmailFrom    string
	SlackToken   string

	TickIntervalSeconds    int
	DispatchWorkers        int
	FetchTimeoutSeconds    int
	DispatchTimeoutSeconds int
	RowLimit               int
}

// LoadConfig loads configuration from files and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"HTTPAddress":            "HTTP_ADDRESS",
		"DatabaseURL":            "DATABASE_URL",
		"RedisAddr":              "REDIS_ADDR",
		"RedisPassword":          "REDIS_PASSWORD",
		"ResendAPIKey":           "RESEND_API_KEY",
		"EmailFrom":              "EMAIL_FROM",
		"SlackToken":             "SLACK_TOKEN",
		"TickIntervalSeconds":    "TICK_INTERVAL_SECONDS",
		"DispatchWorkers":        "DISPATCH_WORKERS",
		"FetchTimeoutSeconds":    "FETCH_TIMEOUT_SECONDS",
		"DispatchTimeoutSeconds": "DISPATCH_TIMEOUT_SECONDS",
		"RowLimit":               "ROW_LIMIT",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("nudgekit_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.nudgekit")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required environment variable: DATABASE_URL")
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":8090")
	v.SetDefault("TickIntervalSeconds", 60)
	v.SetDefault("DispatchWorkers", 4)
	v.SetDefault("FetchTimeoutSeconds", 30)
	v.SetDefault("DispatchTimeoutSeconds", 10)
	v.SetDefault("RowLimit", 1000)
}

// ContainerConfig maps the CLI config onto the container's wiring config.
func (c *Config) ContainerConfig() initialization.Config {
	return initialization.Config{
		DatabaseURL:     c.DatabaseURL,
		RedisAddr:       c.RedisAddr,
		RedisPassword:   c.RedisPassword,
		ResendAPIKey:    c.ResendAPIKey,
		EmailFrom:       c.EmailFrom,
		SlackToken:      c.SlackToken,
		TickInterval:    time.Duration(c.TickIntervalSeconds) * time.Second,
		DispatchWorkers: c.DispatchWorkers,
		FetchTimeout:    time.Duration(c.FetchTimeoutSeconds) * time.Second,
		DispatchTimeout: time.Duration(c.DispatchTimeoutSeconds) * time.Second,
		RowLimit:        c.RowLimit,
	}
}
