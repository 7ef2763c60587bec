// Package ranking answers search queries from the store: stored per-user
// scores when available, full-text relevance otherwise, widened by fallback
// queries when results are sparse and nudged by location.
package ranking

import (
	"context"
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/config"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/geo"
	"github.com/maxaizer/job-aggregator/internal/logger"
	"github.com/maxaizer/job-aggregator/internal/metrics"
	"github.com/maxaizer/job-aggregator/internal/scoring"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"sort"
	"time"
)

const defaultLimit = 20

type jobStore interface {
	CountScored(ctx context.Context, q models.JobQuery) (int64, error)
	ScoredPage(ctx context.Context, q models.JobQuery) ([]models.ScoredJob, error)
	FullText(ctx context.Context, q models.JobQuery) ([]models.ScoredJob, error)
	CountFullText(ctx context.Context, q models.JobQuery) (int64, error)
	Substring(ctx context.Context, q models.JobQuery) ([]models.ScoredJob, error)
	RecentHighYield(ctx context.Context, q models.JobQuery, since time.Time, exclude []uint) ([]models.ScoredJob, error)
}

type jobScorer interface {
	Score(job *models.Job, search models.SearchContext) (scoring.Result, error)
}

// Request is one ranking query. Search, when set, lets jobs without a
// stored score be scored on the fly for the user.
type Request struct {
	QueryText       string
	Location        string
	ExperienceLevel models.ExperienceLevel
	RemoteType      models.RemoteType
	Limit           int
	Offset          int
	Phrases         []string
	UserLocation    string
	UserID          string
	Search          *models.SearchContext
}

func (r Request) query(limit int) models.JobQuery {
	return models.JobQuery{
		Text:            r.QueryText,
		Location:        r.Location,
		ExperienceLevel: r.ExperienceLevel,
		RemoteType:      r.RemoteType,
		Phrases:         r.Phrases,
		UserID:          r.UserID,
		Limit:           limit,
		Offset:          r.Offset,
	}
}

// Result carries the ranked page and the failures of fallback queries that
// did not prevent an answer.
type Result struct {
	Jobs   []models.ScoredJob
	Total  int
	Path   string
	Errors []error
}

type Options struct {
	BackfillWindow  time.Duration
	OnDemandScoring bool
	MaxPageSize     int
}

func OptionsFrom(cfg config.RankingConfig) Options {
	return Options{
		BackfillWindow:  cfg.BackfillWindow,
		OnDemandScoring: cfg.OnDemandScoring,
		MaxPageSize:     cfg.MaxPageSize,
	}
}

type Ranker struct {
	store   jobStore
	scorer  jobScorer
	options Options
	now     func() time.Time
}

func NewRanker(store jobStore, scorer jobScorer, options Options) *Ranker {
	if options.BackfillWindow <= 0 {
		options.BackfillWindow = 72 * time.Hour
	}
	if options.MaxPageSize <= 0 {
		options.MaxPageSize = 100
	}
	return &Ranker{store: store, scorer: scorer, options: options, now: time.Now}
}

const (
	PathFast    = "fast"
	PathPrimary = "primary"
)

func (r *Ranker) Rank(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, r.options.MaxPageSize)
	if req.Offset < 0 {
		req.Offset = 0
	}

	result, err := r.rank(ctx, req, limit)
	if err != nil {
		return Result{}, err
	}
	metrics.RankDuration.WithLabelValues(result.Path).Observe(time.Since(start).Seconds())

	r.finish(req, &result)
	return result, nil
}

func (r *Ranker) rank(ctx context.Context, req Request, limit int) (Result, error) {
	q := req.query(limit)

	if req.UserID != "" && len(req.Phrases) == 0 {
		total, err := r.store.CountScored(ctx, q)
		switch {
		case err != nil:
			log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).
				Warnf("counting stored scores failed, using full-text ranking: %v", err)
		case total > 0 && int64(req.Offset) >= total:
			return Result{Path: PathFast, Total: int(total)}, nil
		case total > 0:
			rows, err := r.store.ScoredPage(ctx, q)
			if err != nil {
				return Result{}, fmt.Errorf("stored score page: %w", err)
			}
			return Result{Jobs: rows, Total: int(total), Path: PathFast}, nil
		}
	}

	rows, err := r.store.FullText(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("full-text ranking: %w", err)
	}
	result := Result{Jobs: rows, Path: PathPrimary}

	if len(req.Phrases) > 0 && len(result.Jobs) < limit {
		more, err := r.substring(ctx, req, limit, len(rows))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("substring fallback %q: %w", req.Phrases, err))
		} else {
			result.Jobs = append(result.Jobs, more...)
		}
	}

	if req.Offset == 0 && len(result.Jobs) < limit {
		since := r.now().Add(-r.options.BackfillWindow)
		more, err := r.store.RecentHighYield(ctx, req.query(limit-len(result.Jobs)), since, ids(result.Jobs))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("backfill: %w", err))
		} else {
			result.Jobs = append(result.Jobs, more...)
		}
	}
	return result, nil
}

// substring continues the exact title matches with titles that only contain
// a phrase. The two lists never overlap, so together they page like a single
// result set: the substring window starts where the exact matches end.
func (r *Ranker) substring(ctx context.Context, req Request, limit, exact int) ([]models.ScoredJob, error) {
	matched := req.Offset + exact
	if exact == 0 && req.Offset > 0 {
		total, err := r.store.CountFullText(ctx, req.query(limit))
		if err != nil {
			return nil, err
		}
		matched = int(total)
	}

	q := req.query(limit - exact)
	q.Offset = max(req.Offset-matched, 0)
	return r.store.Substring(ctx, q)
}

// finish computes every job's final score, applies the location boost and
// sorts. Equal scores fall back to the location tier, so jobs without any
// relevance still come nearest first; beyond that the store order holds.
func (r *Ranker) finish(req Request, result *Result) {
	for i := range result.Jobs {
		job := &result.Jobs[i]
		base := job.Relevance
		switch {
		case job.StoredScore != nil:
			base += *job.StoredScore
		case r.options.OnDemandScoring && req.Search != nil:
			base += r.scoreOnDemand(job, *req.Search)
		}

		job.LocationTier = geo.Tier(job.Location, req.UserLocation)
		job.Score = base * job.LocationTier.Boost()
	}

	sort.SliceStable(result.Jobs, func(i, j int) bool {
		a, b := result.Jobs[i], result.Jobs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.LocationTier.Boost() > b.LocationTier.Boost()
	})

	if result.Total < len(result.Jobs) {
		result.Total = len(result.Jobs)
	}
}

func (r *Ranker) scoreOnDemand(job *models.ScoredJob, search models.SearchContext) float64 {
	if r.scorer == nil || !job.HasText() {
		return 0
	}
	scored, err := r.scorer.Score(&job.Job, search)
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeScoring).Errorf("on-demand scoring of job %d: %v", job.ID, err)
		return 0
	}
	return scored.Value
}

func ids(jobs []models.ScoredJob) []uint {
	return lo.Map(jobs, func(job models.ScoredJob, _ int) uint { return job.ID })
}
