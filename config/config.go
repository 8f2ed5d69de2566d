package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	KeyByHost          = "host"
	KeyByMethod        = "method"
	KeyByHostAndMethod = "host-and-method"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type BreakerConfig struct {
	FailureRateThreshold    float64 `mapstructure:"failure_rate_threshold"`
	MinimumRequestThreshold int     `mapstructure:"minimum_request_threshold"`
	TrialRequestInterval    string  `mapstructure:"trial_request_interval"`
	CircuitOpenWindow       string  `mapstructure:"circuit_open_window"`
	CounterSlidingWindow    string  `mapstructure:"counter_sliding_window"`
	CounterUpdateInterval   string  `mapstructure:"counter_update_interval"`
	KeyBy                   string  `mapstructure:"key_by"`
}

type UpstreamConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Breaker   BreakerConfig    `mapstructure:"breaker"`
	Upstreams []UpstreamConfig `mapstructure:"upstreams"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("breaker.failure_rate_threshold", 0.5)
	viper.SetDefault("breaker.minimum_request_threshold", 10)
	viper.SetDefault("breaker.trial_request_interval", "3s")
	viper.SetDefault("breaker.circuit_open_window", "10s")
	viper.SetDefault("breaker.counter_sliding_window", "20s")
	viper.SetDefault("breaker.counter_update_interval", "1s")
	viper.SetDefault("breaker.key_by", KeyByHost)
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(validateBreakerConfig),
		),
		validation.Field(&c.Upstreams,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateUpstreamConfig)),
		),
	)
}

func validateBreakerConfig(value interface{}) error {
	bc, ok := value.(BreakerConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
	}

	if bc.FailureRateThreshold < 0 || bc.FailureRateThreshold > 1 {
		return validation.NewError("validation_invalid_threshold", "failure rate threshold must be within [0, 1]")
	}

	if bc.MinimumRequestThreshold < 1 {
		return validation.NewError("validation_invalid_minimum", "minimum request threshold must be at least 1")
	}

	if err := validation.ValidateStruct(&bc,
		validation.Field(&bc.TrialRequestInterval, validation.Required, validation.By(validateDuration)),
		validation.Field(&bc.CircuitOpenWindow, validation.Required, validation.By(validateDuration)),
		validation.Field(&bc.CounterSlidingWindow, validation.Required, validation.By(validateDuration)),
		validation.Field(&bc.CounterUpdateInterval, validation.Required, validation.By(validateDuration)),
		validation.Field(&bc.KeyBy,
			validation.Required,
			validation.In(KeyByHost, KeyByMethod, KeyByHostAndMethod),
		),
	); err != nil {
		return err
	}

	// Both durations parsed successfully above.
	window, _ := time.ParseDuration(bc.CounterSlidingWindow)
	interval, _ := time.ParseDuration(bc.CounterUpdateInterval)
	if interval >= window {
		return validation.NewError("validation_invalid_interval", "counter update interval must be shorter than the sliding window")
	}

	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be a positive duration")
	}

	return nil
}

func validateUpstreamConfig(value interface{}) error {
	up, ok := value.(UpstreamConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
	}

	if up.Name == "" {
		return validation.NewError("validation_empty_name", "upstream name cannot be empty")
	}

	if strings.Contains(up.Name, "/") {
		return validation.NewError("validation_invalid_name", "upstream name cannot contain '/'")
	}

	if up.URL == "" {
		return validation.NewError("validation_empty_url", "upstream URL cannot be empty")
	}

	parsedURL, err := url.Parse(up.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
