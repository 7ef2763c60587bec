package config

import (
	"errors"
	"fmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"os"
)

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Connectors ConnectorsConfig `mapstructure:"connectors"`
	Sources    []SourceConfig   `mapstructure:"sources"`
}

var configFile = "./configs/config.yaml"

func Get() *Config {

	if value, _ := os.LookupEnv("MODE"); value == "test" {
		configFile = "../../configs/config.yaml"
	}
	if value, ok := os.LookupEnv("CONFIG_PATH"); ok {
		configFile = value
	}

	config, err := loadConfig(configFile)
	if err != nil {
		log.Fatal(err)
	}

	return config
}

func loadConfig(file string) (*Config, error) {

	viper.SetConfigFile(file)
	viper.AutomaticEnv()

	viper.SetDefault("metrics.address", ":8080")

	err := bindEnvironmentVariables()
	if err != nil {
		return nil, err
	}

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %w", err)
	}

	config := Config{}
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return &config, nil
}

type section interface {
	bindEnvironmentVariables() error
}

func bindEnvironmentVariables() error {
	var errs []error

	sections := map[string]section{
		"LoggerConfig":     LoggerConfig{},
		"DBConfig":         DBConfig{},
		"RedisConfig":      RedisConfig{},
		"WorkerConfig":     WorkerConfig{},
		"DedupConfig":      DedupConfig{},
		"SchedulerConfig":  SchedulerConfig{},
		"ConnectorsConfig": ConnectorsConfig{},
	}
	for name, s := range sections {
		if err := s.bindEnvironmentVariables(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred: %w", errors.Join(errs...))
	}

	return nil
}

func (config Config) validate() error {
	var errs []error

	if err := config.DB.validate(); err != nil {
		errs = append(errs, fmt.Errorf("DBConfig: %w", err))
	}

	if err := config.Logger.validate(); err != nil {
		errs = append(errs, fmt.Errorf("LoggerConfig: %w", err))
	}

	if err := config.Redis.validate(); err != nil {
		errs = append(errs, fmt.Errorf("RedisConfig: %w", err))
	}

	if err := config.Worker.validate(); err != nil {
		errs = append(errs, fmt.Errorf("WorkerConfig: %w", err))
	}

	if err := config.Dedup.validate(); err != nil {
		errs = append(errs, fmt.Errorf("DedupConfig: %w", err))
	}

	if err := config.Scheduler.validate(); err != nil {
		errs = append(errs, fmt.Errorf("SchedulerConfig: %w", err))
	}

	if err := config.Ranking.validate(); err != nil {
		errs = append(errs, fmt.Errorf("RankingConfig: %w", err))
	}

	if err := config.Cache.validate(); err != nil {
		errs = append(errs, fmt.Errorf("CacheConfig: %w", err))
	}

	if err := config.Connectors.validate(); err != nil {
		errs = append(errs, fmt.Errorf("ConnectorsConfig: %w", err))
	}

	if err := validateSources(config.Sources); err != nil {
		errs = append(errs, fmt.Errorf("Sources: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred: %w", errors.Join(errs...))
	}

	return nil
}

// SourceCodes lists the configured source codes in declaration order.
func (config Config) SourceCodes() []string {
	codes := make([]string, 0, len(config.Sources))
	for _, s := range config.Sources {
		codes = append(codes, s.Code)
	}
	return codes
}
