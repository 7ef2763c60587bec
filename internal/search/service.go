// Package search is the query entry point: it serves simple keyword
// searches from the result cache, everything else from the ranker, and can
// ask the workers to refresh sources for a query.
package search

import (
	"context"
	"errors"
	"fmt"
	"github.com/asaskevich/EventBus"
	"github.com/maxaizer/job-aggregator/internal/cache"
	"github.com/maxaizer/job-aggregator/internal/domain/events"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/logger"
	"github.com/maxaizer/job-aggregator/internal/metrics"
	"github.com/maxaizer/job-aggregator/internal/ranking"
	log "github.com/sirupsen/logrus"
	"strings"
)

const defaultPageSize = 20

type ranker interface {
	Rank(ctx context.Context, req ranking.Request) (ranking.Result, error)
}

type taskPublisher interface {
	Publish(ctx context.Context, task models.FetchTask) (string, error)
}

type Response struct {
	Jobs   []models.ScoredJob
	Total  int
	Cached bool
	Errors []error
}

type Service struct {
	ranker     ranker
	cache      *cache.ResultCache[models.ScoredJob]
	queue      taskPublisher
	sources    []string
	maxResults int
}

func NewService(ranker ranker, resultCache *cache.ResultCache[models.ScoredJob], queue taskPublisher,
	sources []string, maxResults int) *Service {

	return &Service{
		ranker:     ranker,
		cache:      resultCache,
		queue:      queue,
		sources:    sources,
		maxResults: maxResults,
	}
}

// Subscribe drops cached result sets whenever a finished task stored new
// jobs, since any cached page may now be missing them.
func (s *Service) Subscribe(bus EventBus.Bus) error {
	return bus.SubscribeAsync(events.TaskCompletedTopic, s.onTaskCompleted, false)
}

func (s *Service) onTaskCompleted(event events.TaskCompleted) {
	if event.Inserted() == 0 {
		return
	}
	s.cache.Purge()
	log.Debugf("result cache purged after task %s inserted %d jobs", event.MessageID, event.Inserted())
}

// Search returns one page of ranked jobs for the query.
func (s *Service) Search(ctx context.Context, query models.SearchContext) (Response, error) {
	limit := query.PageSize
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := max(query.Page, 0) * limit

	if !keywordOnly(query) {
		return s.rank(ctx, query, offset, limit)
	}

	key := cache.Key(query)
	if jobs, ok := s.cache.Page(key, offset, limit); ok {
		metrics.CacheRequestsCounter.WithLabelValues("hit").Inc()
		total, known := s.cache.Total(key)
		if !known {
			total = offset + len(jobs)
		}
		return Response{Jobs: jobs, Total: total, Cached: true}, nil
	}
	metrics.CacheRequestsCounter.WithLabelValues("miss").Inc()

	response, err := s.rank(ctx, query, offset, limit)
	if err != nil {
		return Response{}, err
	}
	if len(response.Errors) == 0 {
		s.cache.PutPage(key, offset, response.Jobs, len(response.Jobs) < limit)
	}
	return response, nil
}

func (s *Service) rank(ctx context.Context, query models.SearchContext, offset, limit int) (Response, error) {
	req := ranking.Request{
		QueryText:       strings.Join(append(append([]string{}, query.Keywords...), query.Skills...), " "),
		Location:        query.Location,
		ExperienceLevel: query.ExperienceLevel,
		RemoteType:      query.RemotePreference,
		Limit:           limit,
		Offset:          offset,
		UserLocation:    query.Location,
		UserID:          query.UserID,
	}
	if query.ExactTitle {
		req.Phrases = query.Keywords
	}
	if query.HasUser() {
		req.Search = &query
	}

	result, err := s.ranker.Rank(ctx, req)
	if err != nil {
		return Response{}, err
	}
	for _, err := range result.Errors {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Warnf("search degraded: %v", err)
	}
	return Response{Jobs: result.Jobs, Total: result.Total, Errors: result.Errors}, nil
}

// Refresh enqueues a fetch task for the query. No sources means every
// configured source.
func (s *Service) Refresh(ctx context.Context, query models.SearchContext, sources ...string) (string, error) {
	if len(sources) == 0 {
		sources = s.sources
	}
	if len(sources) == 0 {
		return "", errors.New("no sources to refresh")
	}

	task := models.FetchTask{
		Sources: sources,
		Query: models.FetchQuery{
			Keywords:        query.Keywords,
			Skills:          query.Skills,
			Location:        query.Location,
			ExperienceLevel: query.ExperienceLevel,
			RemoteType:      query.RemotePreference,
			MaxResults:      s.maxResults,
		},
	}
	if query.HasUser() {
		userID := query.UserID
		task.UserID = &userID
	}

	id, err := s.queue.Publish(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue refresh: %w", err)
	}
	return id, nil
}

func keywordOnly(query models.SearchContext) bool {
	return len(query.Keywords) > 0 &&
		len(query.Skills) == 0 &&
		strings.TrimSpace(query.Location) == "" &&
		query.ExperienceLevel == "" &&
		query.RemotePreference == "" &&
		!query.HasUser()
}
