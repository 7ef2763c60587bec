package search

import (
	"context"
	"errors"
	"github.com/asaskevich/EventBus"
	"github.com/maxaizer/job-aggregator/internal/cache"
	"github.com/maxaizer/job-aggregator/internal/domain/events"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

type mockRanker struct {
	mock.Mock
}

func (m *mockRanker) Rank(ctx context.Context, req ranking.Request) (ranking.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ranking.Result), args.Error(1)
}

type fakePublisher struct {
	tasks []models.FetchTask
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, task models.FetchTask) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.tasks = append(f.tasks, task)
	return "1-0", nil
}

func jobs(ids ...uint) []models.ScoredJob {
	result := make([]models.ScoredJob, 0, len(ids))
	for _, id := range ids {
		result = append(result, models.ScoredJob{Job: models.Job{ID: id}})
	}
	return result
}

func newService(t *testing.T, ranker ranker, publisher taskPublisher) *Service {
	t.Helper()
	resultCache, err := cache.New[models.ScoredJob](10, time.Minute)
	require.NoError(t, err)
	return NewService(ranker, resultCache, publisher, []string{"hh", "adzuna"}, 50)
}

var ctx = context.Background()

func Test_Search_KeywordOnlyServedFromCacheOnRepeat(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", ctx, mock.MatchedBy(func(req ranking.Request) bool {
		return req.QueryText == "golang" && req.Offset == 0 && req.Limit == 2
	})).Return(ranking.Result{Jobs: jobs(1, 2), Total: 2}, nil).Once()
	service := newService(t, ranker, &fakePublisher{})

	query := models.SearchContext{Keywords: []string{"golang"}, PageSize: 2}
	first, err := service.Search(ctx, query)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	query.Keywords = []string{"  GoLang "}
	second, err := service.Search(ctx, query)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Jobs, second.Jobs)
	ranker.AssertNumberOfCalls(t, "Rank", 1)
}

func Test_Search_ShortPageFixesTotal(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", ctx, mock.MatchedBy(func(req ranking.Request) bool { return req.Offset == 0 })).
		Return(ranking.Result{Jobs: jobs(1, 2), Total: 2}, nil).Once()
	service := newService(t, ranker, &fakePublisher{})

	_, err := service.Search(ctx, models.SearchContext{Keywords: []string{"go"}, PageSize: 5})
	require.NoError(t, err)

	next, err := service.Search(ctx, models.SearchContext{Keywords: []string{"go"}, PageSize: 5, Page: 1})
	require.NoError(t, err)
	assert.True(t, next.Cached)
	assert.Empty(t, next.Jobs)
	assert.Equal(t, 2, next.Total)
}

func Test_Search_DegradedResultsAreNotCached(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", ctx, mock.Anything).
		Return(ranking.Result{Jobs: jobs(1), Errors: []error{errors.New("backfill: timeout")}}, nil).Twice()
	service := newService(t, ranker, &fakePublisher{})

	query := models.SearchContext{Keywords: []string{"go"}, PageSize: 5}
	response, err := service.Search(ctx, query)
	require.NoError(t, err)
	assert.Len(t, response.Errors, 1)

	_, err = service.Search(ctx, query)
	require.NoError(t, err)
	ranker.AssertNumberOfCalls(t, "Rank", 2)
}

func Test_Search_FilteredQueriesBypassCache(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", ctx, mock.MatchedBy(func(req ranking.Request) bool {
		return req.Location == "Pune, India" && req.UserLocation == "Pune, India" &&
			req.UserID == "u1" && req.Search != nil && req.Offset == 20
	})).Return(ranking.Result{Jobs: jobs(3)}, nil).Twice()
	service := newService(t, ranker, &fakePublisher{})

	query := models.SearchContext{Keywords: []string{"go"}, Location: "Pune, India", UserID: "u1", Page: 1}
	for range 2 {
		response, err := service.Search(ctx, query)
		require.NoError(t, err)
		assert.False(t, response.Cached)
	}
	ranker.AssertExpectations(t)
}

func Test_Search_ExactTitlePassesKeywordsAsPhrases(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", ctx, mock.MatchedBy(func(req ranking.Request) bool {
		return assert.ObjectsAreEqual([]string{"go developer", "golang engineer"}, req.Phrases) &&
			req.QueryText == "go developer golang engineer"
	})).Return(ranking.Result{Jobs: jobs(1)}, nil).Once()
	ranker.On("Rank", ctx, mock.MatchedBy(func(req ranking.Request) bool { return len(req.Phrases) == 0 })).
		Return(ranking.Result{Jobs: jobs(1, 2)}, nil).Once()
	service := newService(t, ranker, &fakePublisher{})

	query := models.SearchContext{Keywords: []string{"go developer", "golang engineer"}, ExactTitle: true}
	exact, err := service.Search(ctx, query)
	require.NoError(t, err)

	query.ExactTitle = false
	loose, err := service.Search(ctx, query)
	require.NoError(t, err)

	assert.Len(t, exact.Jobs, 1)
	assert.Len(t, loose.Jobs, 2)
	assert.False(t, loose.Cached)
	ranker.AssertExpectations(t)
}

func Test_Search_RankerFailureReturned(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", ctx, mock.Anything).Return(ranking.Result{}, errors.New("db down"))
	service := newService(t, ranker, &fakePublisher{})

	_, err := service.Search(ctx, models.SearchContext{Keywords: []string{"go"}})
	assert.ErrorContains(t, err, "db down")
}

func Test_TaskCompleted_PurgesCacheOnlyWhenJobsInserted(t *testing.T) {
	ranker := &mockRanker{}
	ranker.On("Rank", ctx, mock.Anything).Return(ranking.Result{Jobs: jobs(1)}, nil)
	service := newService(t, ranker, &fakePublisher{})
	bus := EventBus.New()
	require.NoError(t, service.Subscribe(bus))

	_, err := service.Search(ctx, models.SearchContext{Keywords: []string{"go"}})
	require.NoError(t, err)
	require.Equal(t, 1, service.cache.Len())

	bus.Publish(events.TaskCompletedTopic, events.TaskCompleted{Sources: []events.SourceReport{{Source: "hh", Merged: 3}}})
	bus.WaitAsync()
	assert.Equal(t, 1, service.cache.Len())

	bus.Publish(events.TaskCompletedTopic, events.TaskCompleted{Sources: []events.SourceReport{{Source: "hh", Inserted: 1}}})
	bus.WaitAsync()
	assert.Equal(t, 0, service.cache.Len())
}

func Test_Refresh_PublishesUserScopedTask(t *testing.T) {
	publisher := &fakePublisher{}
	service := newService(t, &mockRanker{}, publisher)

	_, err := service.Refresh(ctx, models.SearchContext{
		Keywords:        []string{"go"},
		Location:        "Pune",
		ExperienceLevel: models.Mid,
		UserID:          "u1",
	})
	require.NoError(t, err)

	require.Len(t, publisher.tasks, 1)
	task := publisher.tasks[0]
	assert.Equal(t, []string{"hh", "adzuna"}, task.Sources)
	assert.Equal(t, 50, task.Query.MaxResults)
	assert.Equal(t, models.Mid, task.Query.ExperienceLevel)
	require.NotNil(t, task.UserID)
	assert.Equal(t, "u1", *task.UserID)
}

func Test_Refresh_AnonymousWithExplicitSources(t *testing.T) {
	publisher := &fakePublisher{}
	service := newService(t, &mockRanker{}, publisher)

	_, err := service.Refresh(ctx, models.SearchContext{Keywords: []string{"go"}}, "adzuna")
	require.NoError(t, err)

	require.Len(t, publisher.tasks, 1)
	assert.Equal(t, []string{"adzuna"}, publisher.tasks[0].Sources)
	assert.Nil(t, publisher.tasks[0].UserID)
}

func Test_Refresh_PublishFailure(t *testing.T) {
	service := newService(t, &mockRanker{}, &fakePublisher{err: errors.New("redis down")})

	_, err := service.Refresh(ctx, models.SearchContext{Keywords: []string{"go"}})
	assert.ErrorContains(t, err, "redis down")
}
