package repositories

import (
	"context"
	"github.com/maxaizer/job-aggregator/internal/config"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
	"time"
)

func newTestDb(t *testing.T) *DbContext {
	t.Helper()

	dbCtx, err := NewDbContext(context.Background(), config.DBConfig{
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, dbCtx.Migrate())
	require.NoError(t, dbCtx.EnsureSources([]config.SourceConfig{
		{Code: "hh", DisplayName: "HeadHunter", HighYield: true},
		{Code: "adzuna", DisplayName: "Adzuna"},
	}))

	t.Cleanup(func() { _ = dbCtx.Close() })
	return dbCtx
}

func testJob(sourceID uint, externalID, title, location string) *models.Job {
	posted := time.Now().Add(-24 * time.Hour).UTC()
	return &models.Job{
		SourceID:          sourceID,
		ExternalID:        externalID,
		Title:             title,
		NormalizedTitle:   title,
		NormalizedCompany: "acme",
		Location:          location,
		PostedAt:          &posted,
		ScrapedAt:         time.Now().UTC(),
		Hash:              externalID + "-hash",
		IsActive:          true,
	}
}
