package config

import (
	"errors"
	"fmt"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

type SourceConfig struct {
	Code          string  `mapstructure:"code"`
	DisplayName   string  `mapstructure:"display_name"`
	HighYield     bool    `mapstructure:"high_yield"`
	Cadence       string  `mapstructure:"cadence"`
	RatePerMinute float64 `mapstructure:"rate_per_minute"`
	Burst         int     `mapstructure:"burst"`
}

type ConnectorsConfig struct {
	HhMaxRequestsPerSecond     float32 `mapstructure:"hh_max_requests_per_second"`
	AdzunaAppID                string  `mapstructure:"adzuna_app_id"`
	AdzunaAppKey               string  `mapstructure:"adzuna_app_key"`
	AdzunaCountry              string  `mapstructure:"adzuna_country"`
	AdzunaMaxRequestsPerSecond float32 `mapstructure:"adzuna_max_requests_per_second"`
}

func validateSources(sources []SourceConfig) error {
	var errs []error

	if len(sources) == 0 {
		errs = append(errs, fmt.Errorf("at least one source is required"))
	}

	duplicates := lo.FindDuplicatesBy(sources, func(s SourceConfig) string { return s.Code })
	for _, duplicate := range duplicates {
		errs = append(errs, fmt.Errorf("duplicate source code: %s", duplicate.Code))
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, source := range sources {
		if source.Code == "" {
			errs = append(errs, fmt.Errorf("missing variable: source code"))
			continue
		}
		if _, err := parser.Parse(source.Cadence); err != nil {
			errs = append(errs, fmt.Errorf("source %s: invalid cadence %q: %w", source.Code, source.Cadence, err))
		}
		if source.RatePerMinute <= 0 || source.Burst < 1 {
			errs = append(errs, fmt.Errorf("source %s: rate_per_minute and burst must be positive", source.Code))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred: %w", errors.Join(errs...))
	}
	return nil
}

func (config ConnectorsConfig) validate() error {
	if config.HhMaxRequestsPerSecond <= 0 || config.AdzunaMaxRequestsPerSecond <= 0 {
		return fmt.Errorf("connector request rates must be positive")
	}
	return nil
}

func (config ConnectorsConfig) bindEnvironmentVariables() error {
	var errs []error
	if err := viper.BindEnv("connectors.adzuna_app_id", "ADZUNA_APP_ID"); err != nil {
		errs = append(errs, err)
	}

	if err := viper.BindEnv("connectors.adzuna_app_key", "ADZUNA_APP_KEY"); err != nil {
		errs = append(errs, err)
	}

	if err := viper.BindEnv("connectors.hh_max_requests_per_second", "HH_MAX_REQUESTS_PER_SECOND"); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
