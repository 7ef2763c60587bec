package repositories

import (
	"context"
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func seedSearchJobs(t *testing.T) (*JobSearch, *Jobs) {
	t.Helper()
	db := newTestDb(t).DB
	jobs := NewJobsRepository(db)

	seed := []*models.Job{
		testJob(1, "1", "python developer", "Bangalore, India"),
		testJob(1, "2", "senior python developer", "Bengaluru"),
		testJob(2, "3", "python developer", "Mumbai, India"),
		testJob(2, "4", "java developer", "Bangalore, India"),
	}
	seed[1].Description = "Django and AWS"
	seed[3].Description = "Spring, some python scripting"
	for _, job := range seed {
		_, err := jobs.InsertIfAbsent(context.Background(), job)
		require.NoError(t, err)
	}
	return NewJobSearchRepository(db), jobs
}

func titles(rows []models.ScoredJob) []string {
	return lo.Map(rows, func(r models.ScoredJob, _ int) string { return r.Title })
}

func Test_JobSearch_FullText_PhraseIsHardFilter(t *testing.T) {
	search, _ := seedSearchJobs(t)

	rows, err := search.FullText(context.Background(), models.JobQuery{
		Text:    "python developer",
		Phrases: []string{"Python Developer"},
		Limit:   10,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"python developer", "python developer"}, titles(rows))
}

func Test_JobSearch_FullText_LocationAliases(t *testing.T) {
	search, _ := seedSearchJobs(t)

	rows, err := search.FullText(context.Background(), models.JobQuery{
		Text:     "python",
		Location: "Bengaluru",
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.NotContains(t, lo.Map(rows, func(r models.ScoredJob, _ int) string { return r.Location }), "Mumbai, India")
	// title matches outrank description-only matches
	assert.Equal(t, "java developer", rows[2].Title)
	assert.Equal(t, "hh", rows[0].SourceCode)
}

func Test_JobSearch_Substring_LeavesOutExactTitles(t *testing.T) {
	search, _ := seedSearchJobs(t)

	rows, err := search.Substring(context.Background(), models.JobQuery{
		Phrases: []string{"Python Developer"},
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"senior python developer"}, titles(rows))
}

func Test_JobSearch_Substring_PagesWithOffset(t *testing.T) {
	db := newTestDb(t).DB
	jobs := NewJobsRepository(db)
	for i, title := range []string{"go engineer", "senior go engineer", "lead go engineer", "go engineer ii"} {
		_, err := jobs.InsertIfAbsent(context.Background(), testJob(1, fmt.Sprint(i), title, "Pune, India"))
		require.NoError(t, err)
	}
	search := NewJobSearchRepository(db)
	q := models.JobQuery{Phrases: []string{"go engineer"}, Limit: 2}

	count, err := search.CountFullText(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	first, err := search.Substring(context.Background(), q)
	require.NoError(t, err)
	q.Offset = 2
	second, err := search.Substring(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, first, 2)
	require.Len(t, second, 1)
	assert.ElementsMatch(t, []string{"senior go engineer", "lead go engineer", "go engineer ii"},
		append(titles(first), titles(second)...))
}

func Test_JobSearch_CountFullText_MatchesText(t *testing.T) {
	search, _ := seedSearchJobs(t)

	count, err := search.CountFullText(context.Background(), models.JobQuery{Text: "python", Location: "Bengaluru"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func Test_JobSearch_RecentHighYield(t *testing.T) {
	search, _ := seedSearchJobs(t)

	rows, err := search.RecentHighYield(context.Background(), models.JobQuery{Limit: 10}, time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "hh", row.SourceCode)
	}
}

func Test_JobSearch_ScoredPage(t *testing.T) {
	search, jobs := seedSearchJobs(t)
	ctx := context.Background()
	scores := NewScoresRepository(search.db)

	for extID, value := range map[string]float64{"1": 0.4, "2": 0.9} {
		job, err := jobs.FindByExternalID(ctx, 1, extID)
		require.NoError(t, err)
		require.NoError(t, scores.Upsert(ctx, &models.UserJobScore{UserID: "u1", JobID: job.ID, LastMatchScore: value}))
	}

	query := models.JobQuery{UserID: "u1", Limit: 1}
	count, err := search.CountScored(ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	rows, err := search.ScoredPage(ctx, query)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "senior python developer", rows[0].Title)
	require.NotNil(t, rows[0].StoredScore)
	assert.InDelta(t, 0.9, *rows[0].StoredScore, 1e-9)

	query.Offset = 1
	rows, err = search.ScoredPage(ctx, query)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "python developer", rows[0].Title)
}
