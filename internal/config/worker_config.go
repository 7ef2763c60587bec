package config

import (
	"errors"
	"fmt"
	"github.com/spf13/viper"
	"time"
)

type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	BlockTimeout      time.Duration `mapstructure:"block_timeout"`
	ReclaimInterval   time.Duration `mapstructure:"reclaim_interval"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	MaxDeliveries     int64         `mapstructure:"max_deliveries"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	MinNewRecords     int           `mapstructure:"min_new_records"`
	BreakerThreshold  int           `mapstructure:"breaker_threshold"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
}

func (config WorkerConfig) validate() error {
	var errs []error

	if config.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1"))
	}
	if config.BlockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("missing variable: block_timeout"))
	}
	if config.VisibilityTimeout <= 0 {
		errs = append(errs, fmt.Errorf("missing variable: visibility_timeout"))
	}
	if config.MaxDeliveries < 1 {
		errs = append(errs, fmt.Errorf("max_deliveries must be at least 1"))
	}
	if config.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("missing variable: fetch_timeout"))
	}
	if config.BreakerThreshold < 1 {
		errs = append(errs, fmt.Errorf("breaker_threshold must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred: %w", errors.Join(errs...))
	}
	return nil
}

func (config WorkerConfig) bindEnvironmentVariables() error {
	return viper.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
}
