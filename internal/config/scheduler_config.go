package config

import (
	"errors"
	"fmt"
	"github.com/spf13/viper"
)

type SchedulerConfig struct {
	SavedSearchCadence  string `mapstructure:"saved_search_cadence"`
	DeactivationCadence string `mapstructure:"deactivation_cadence"`
	ExpirationDays      int    `mapstructure:"expiration_days"`
	PageSize            int    `mapstructure:"page_size"`
	MaxResults          int    `mapstructure:"max_results"`
}

func (config SchedulerConfig) validate() error {
	var errs []error

	if config.SavedSearchCadence == "" {
		errs = append(errs, fmt.Errorf("missing variable: saved_search_cadence"))
	}
	if config.DeactivationCadence == "" {
		errs = append(errs, fmt.Errorf("missing variable: deactivation_cadence"))
	}
	if config.ExpirationDays <= 0 {
		errs = append(errs, fmt.Errorf("expiration_days must be greater than zero"))
	}
	if config.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page_size must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred: %w", errors.Join(errs...))
	}
	return nil
}

func (config SchedulerConfig) bindEnvironmentVariables() error {
	return viper.BindEnv("scheduler.expiration_days", "VACANCY_EXPIRATION_DAYS")
}
