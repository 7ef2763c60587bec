package config

import (
	"errors"
	"fmt"
	"github.com/spf13/viper"
	"time"
)

type DedupConfig struct {
	RuleWindow      time.Duration `mapstructure:"rule_window"`
	FuzzyEnabled    bool          `mapstructure:"fuzzy_enabled"`
	FuzzyThreshold  float64       `mapstructure:"fuzzy_threshold"`
	FuzzyCandidates int           `mapstructure:"fuzzy_candidates"`
	ProbablePolicy  string        `mapstructure:"probable_policy"`
}

func (config DedupConfig) validate() error {
	var errs []error

	if config.RuleWindow <= 0 {
		errs = append(errs, fmt.Errorf("rule_window must be positive"))
	}
	if config.FuzzyThreshold <= 0 || config.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("fuzzy_threshold must be in (0, 1]"))
	}
	if config.ProbablePolicy != "keep" && config.ProbablePolicy != "discard" {
		errs = append(errs, fmt.Errorf("probable_policy must be keep or discard"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred: %w", errors.Join(errs...))
	}
	return nil
}

func (config DedupConfig) bindEnvironmentVariables() error {
	if err := viper.BindEnv("dedup.fuzzy_enabled", "DEDUP_FUZZY_ENABLED"); err != nil {
		return err
	}
	return viper.BindEnv("dedup.probable_policy", "DEDUP_PROBABLE_POLICY")
}

type RankingConfig struct {
	BackfillWindow  time.Duration `mapstructure:"backfill_window"`
	OnDemandScoring bool          `mapstructure:"on_demand_scoring"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
}

func (config RankingConfig) validate() error {
	if config.BackfillWindow <= 0 {
		return fmt.Errorf("backfill_window must be positive")
	}
	if config.MaxPageSize < 1 {
		return fmt.Errorf("max_page_size must be at least 1")
	}
	return nil
}

type CacheConfig struct {
	Capacity int           `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func (config CacheConfig) validate() error {
	if config.Capacity < 1 || config.TTL <= 0 {
		return fmt.Errorf("cache capacity and ttl must be positive")
	}
	return nil
}
