package config

import (
	"errors"
	"fmt"
	"github.com/spf13/viper"
)

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
	Group  string `mapstructure:"group"`
	Prefix string `mapstructure:"prefix"`
}

func (config RedisConfig) validate() error {
	var errs []error

	if config.URL == "" {
		errs = append(errs, fmt.Errorf("missing variable: redis url"))
	}
	if config.Stream == "" {
		errs = append(errs, fmt.Errorf("missing variable: stream"))
	}
	if config.Group == "" {
		errs = append(errs, fmt.Errorf("missing variable: group"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred: %w", errors.Join(errs...))
	}
	return nil
}

func (config RedisConfig) bindEnvironmentVariables() error {
	return viper.BindEnv("redis.url", "REDIS_URL")
}
