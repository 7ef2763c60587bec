package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func Test_Config_EnvironmentOverrideWorksCorrect(t *testing.T) {
	t.Setenv("CONFIG_PATH", "../../configs/config.yaml")

	t.Setenv("DB_CONNECTION_STRING", "postgres://jobs:jobs@db:5432/jobs")
	t.Setenv("DB_MAX_CONNS", "32")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("DEDUP_PROBABLE_POLICY", "discard")
	t.Setenv("VACANCY_EXPIRATION_DAYS", "45")
	t.Setenv("ADZUNA_APP_ID", "app")
	t.Setenv("ADZUNA_APP_KEY", "key")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := Get()

	assert.Equal(t, "postgres://jobs:jobs@db:5432/jobs", cfg.DB.ConnectionString)
	assert.Equal(t, int32(32), cfg.DB.MaxConns)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "discard", cfg.Dedup.ProbablePolicy)
	assert.Equal(t, 45, cfg.Scheduler.ExpirationDays)
	assert.Equal(t, "app", cfg.Connectors.AdzunaAppID)
	assert.Equal(t, "key", cfg.Connectors.AdzunaAppKey)
	assert.Equal(t, LevelDebug, cfg.Logger.LogLevel)
}

func Test_Config_FileDefaults(t *testing.T) {
	cfg, err := loadConfig("../../configs/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 14*24*time.Hour, cfg.Dedup.RuleWindow)
	assert.Equal(t, 0.8, cfg.Dedup.FuzzyThreshold)
	assert.Equal(t, time.Second, cfg.Worker.BlockTimeout)
	assert.Equal(t, []string{"hh", "adzuna"}, cfg.SourceCodes())
	assert.True(t, cfg.Sources[0].HighYield)
}

func Test_ValidateSources(t *testing.T) {
	valid := SourceConfig{Code: "hh", Cadence: "@every 1h", RatePerMinute: 10, Burst: 1}

	assert.NoError(t, validateSources([]SourceConfig{valid}))
	assert.Error(t, validateSources(nil))
	assert.Error(t, validateSources([]SourceConfig{valid, valid}))

	broken := valid
	broken.Cadence = "every hour"
	assert.Error(t, validateSources([]SourceConfig{broken}))
}
