package config

import (
	"errors"
	"fmt"
	"github.com/spf13/viper"
	"time"
)

type DBConfig struct {
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
}

func (config DBConfig) validate() error {
	var errs []error

	if config.ConnectionString == "" {
		errs = append(errs, fmt.Errorf("missing variable: db connection string"))
	}
	if config.MaxConns < 0 {
		errs = append(errs, fmt.Errorf("max_conns must be non-negative"))
	}
	if config.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred: %w", errors.Join(errs...))
	}
	return nil
}

func (config DBConfig) bindEnvironmentVariables() error {
	if err := viper.BindEnv("db.max_conns", "DB_MAX_CONNS"); err != nil {
		return err
	}
	return viper.BindEnv("db.connection_string", "DB_CONNECTION_STRING")
}
