// Package scheduler produces fetch tasks on cron cadences and runs the
// periodic store maintenance.
package scheduler

import (
	"context"
	"errors"
	"github.com/maxaizer/job-aggregator/internal/config"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"time"
)

const (
	savedSearchesCheckpoint = "saved_searches"
	deactivationCheckpoint  = "deactivation"
)

type taskPublisher interface {
	Publish(ctx context.Context, task models.FetchTask) (string, error)
}

type searchRepository interface {
	Get(ctx context.Context, limit int, offset int) ([]models.SavedSearch, error)
	MarkEnqueued(ctx context.Context, id int, at time.Time) error
}

type staleJobs interface {
	DeactivateStale(ctx context.Context, notSeenSince time.Time) (int64, error)
}

type checkpointStore interface {
	Save(ctx context.Context, key string, at time.Time) error
}

type Scheduler struct {
	cron        *cron.Cron
	queue       taskPublisher
	markers     redis.Cmdable
	prefix      string
	searches    searchRepository
	jobs        staleJobs
	checkpoints checkpointStore
	cfg         config.SchedulerConfig
	sources     []config.SourceConfig
	now         func() time.Time
}

func New(queue taskPublisher, markers redis.Cmdable, prefix string, searches searchRepository, jobs staleJobs,
	checkpoints checkpointStore, cfg config.SchedulerConfig, sources []config.SourceConfig) (*Scheduler, error) {

	if cfg.ExpirationDays <= 0 {
		return nil, errors.New("expiration in days must be greater than zero")
	}

	s := &Scheduler{
		cron:        cron.New(),
		queue:       queue,
		markers:     markers,
		prefix:      prefix,
		searches:    searches,
		jobs:        jobs,
		checkpoints: checkpoints,
		cfg:         cfg,
		sources:     sources,
		now:         time.Now,
	}

	for _, source := range sources {
		code := source.Code
		if _, err := s.cron.AddFunc(source.Cadence, func() { s.runSource(code) }); err != nil {
			return nil, err
		}
	}
	if _, err := s.cron.AddFunc(cfg.SavedSearchCadence, s.runSavedSearches); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.DeactivationCadence, s.runDeactivation); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Infof("scheduler started, sources: %v, expiration in days: %d",
		lo.Map(s.sources, func(source config.SourceConfig, _ int) string { return source.Code }), s.cfg.ExpirationDays)
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) markerKey(code string) string {
	return s.prefix + ":scheduler:last_run:" + code
}

// EnqueueSource publishes a refresh task for one source covering everything
// posted since its previous run.
func (s *Scheduler) EnqueueSource(ctx context.Context, code string) error {
	now := s.now().UTC()

	var since *time.Time
	value, err := s.markers.Get(ctx, s.markerKey(code)).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return err
	default:
		if last, err := time.Parse(time.RFC3339Nano, value); err == nil {
			since = &last
		} else {
			log.Warnf("ignoring malformed last run marker for %s: %q", code, value)
		}
	}

	task := models.FetchTask{
		Sources: []string{code},
		Query:   models.FetchQuery{MaxResults: s.cfg.MaxResults},
		Since:   since,
	}
	if _, err = s.queue.Publish(ctx, task); err != nil {
		return err
	}
	return s.markers.Set(ctx, s.markerKey(code), now.Format(time.RFC3339Nano), 0).Err()
}

// EnqueueSavedSearches turns every saved search into a user-scoped task so
// results are scored for the user at ingest time.
func (s *Scheduler) EnqueueSavedSearches(ctx context.Context) (int, error) {
	defaultSources := lo.Map(s.sources, func(source config.SourceConfig, _ int) string { return source.Code })
	pageSize, enqueued := s.cfg.PageSize, 0

	for offset := 0; ; offset += pageSize {
		searches, err := s.searches.Get(ctx, pageSize, offset)
		if err != nil {
			return enqueued, err
		}
		if len(searches) == 0 {
			break
		}

		for _, search := range searches {
			now := s.now().UTC()
			if _, err = s.queue.Publish(ctx, search.Task(defaultSources, s.cfg.MaxResults)); err != nil {
				log.WithField(logger.ErrorTypeField, logger.ErrorTypeQueue).
					Errorf("failed to enqueue saved search %d: %v", search.ID, err)
				continue
			}
			if err = s.searches.MarkEnqueued(ctx, search.ID, now); err != nil {
				log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).
					Errorf("failed to mark saved search %d: %v", search.ID, err)
			}
			enqueued++
		}

		if len(searches) < pageSize {
			break
		}
	}

	return enqueued, s.checkpoints.Save(ctx, savedSearchesCheckpoint, s.now().UTC())
}

// DeactivateStale soft-deletes jobs no source has returned for the
// configured number of days.
func (s *Scheduler) DeactivateStale(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	expiration := now.Add(-time.Duration(s.cfg.ExpirationDays) * 24 * time.Hour)

	rows, err := s.jobs.DeactivateStale(ctx, expiration)
	if err != nil {
		return 0, err
	}
	return rows, s.checkpoints.Save(ctx, deactivationCheckpoint, now)
}

func (s *Scheduler) runSource(code string) {
	if err := s.EnqueueSource(context.Background(), code); err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeQueue).Errorf("failed to enqueue %s: %v", code, err)
		return
	}
	log.Infof("enqueued refresh of %s", code)
}

func (s *Scheduler) runSavedSearches() {
	enqueued, err := s.EnqueueSavedSearches(context.Background())
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("failed to enqueue saved searches: %v", err)
	}
	log.Infof("enqueued %d saved searches", enqueued)
}

func (s *Scheduler) runDeactivation() {
	rows, err := s.DeactivateStale(context.Background())
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("failed to deactivate stale jobs: %v", err)
		return
	}
	log.Infof("stale jobs deactivated at %v, affected rows: %v", s.now(), rows)
}
