// Package pipeline turns one raw provider record into a stored, deduplicated
// and optionally scored job.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/asaskevich/EventBus"
	"github.com/maxaizer/job-aggregator/internal/dedup"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/events"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/logger"
	"github.com/maxaizer/job-aggregator/internal/normalize"
	"github.com/maxaizer/job-aggregator/internal/repositories"
	"github.com/maxaizer/job-aggregator/internal/scoring"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"time"
)

type sourceResolver interface {
	GetByCode(ctx context.Context, code string) (*models.Source, error)
}

type companyResolver interface {
	GetOrCreate(ctx context.Context, name string) (*uint, error)
}

// Outcome describes what happened to one record. Created is set when a new
// row was inserted; Discarded when a probable duplicate was dropped.
type Outcome struct {
	JobID     uint
	Verdict   dedup.Verdict
	Created   bool
	Discarded bool
	Scored    bool
}

type Options struct {
	Dedup      dedup.Config
	MaxRetries int
	RetryDelay time.Duration
}

type Ingestor struct {
	db        *gorm.DB
	bus       EventBus.Bus
	sources   sourceResolver
	companies companyResolver
	jobs      *repositories.Jobs
	scores    *repositories.Scores
	engine    *scoring.Engine
	options   Options
	now       func() time.Time
}

func NewIngestor(db *gorm.DB, bus EventBus.Bus, sources sourceResolver, companies companyResolver,
	engine *scoring.Engine, options Options) *Ingestor {

	if options.MaxRetries <= 0 {
		options.MaxRetries = 3
	}
	return &Ingestor{
		db:        db,
		bus:       bus,
		sources:   sources,
		companies: companies,
		jobs:      repositories.NewJobsRepository(db),
		scores:    repositories.NewScoresRepository(db),
		engine:    engine,
		options:   options,
		now:       time.Now,
	}
}

// Ingest stores one record. Re-ingesting the same record is a no-op apart
// from refreshing its scrape time, so redelivered tasks are harmless.
// A malformed record yields *errs.ParseError; store failures surviving the
// retries yield *errs.StoreError.
func (i *Ingestor) Ingest(ctx context.Context, raw models.RawRecord, search *models.SearchContext) (Outcome, error) {
	job, err := normalize.Canonicalize(raw)
	if err != nil {
		return Outcome{}, err
	}

	source, err := i.sources.GetByCode(ctx, raw.SourceCode)
	if err != nil {
		return Outcome{}, errors.Join(errs.ErrUnknownSource, err)
	}
	job.SourceID = source.ID
	job.ScrapedAt = i.now().UTC()

	var outcome Outcome
	err = repositories.WithRetry(ctx, "ingest", i.options.MaxRetries, i.options.RetryDelay, func(ctx context.Context) error {
		companyID, err := i.companies.GetOrCreate(ctx, raw.Company)
		if err != nil {
			return err
		}
		job.CompanyID = companyID

		outcome = Outcome{}
		return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			stored, err := i.store(ctx, tx, job, &outcome)
			if err != nil || stored == nil {
				return err
			}
			outcome.JobID = stored.ID

			if search != nil && search.HasUser() {
				outcome.Scored, err = i.score(ctx, tx, stored, *search)
			}
			return err
		})
	})
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).
			Errorf("failed to ingest %s/%s: %v", raw.SourceCode, job.ExternalID, err)
		return Outcome{}, err
	}

	i.bus.Publish(events.JobIngestedTopic, events.JobIngested{
		JobID:   outcome.JobID,
		Source:  raw.SourceCode,
		Verdict: outcome.Verdict.String(),
		Scored:  outcome.Scored,
	})
	return outcome, nil
}

// store applies the dedup verdict: duplicates enrich the matched row, new
// and kept probable records are inserted. Insert races on the same
// (source, external id) fall back to a merge.
func (i *Ingestor) store(ctx context.Context, tx *gorm.DB, job models.Job, outcome *Outcome) (*models.Job, error) {
	jobs := i.jobs.WithTx(tx)
	deduplicator := dedup.NewDeduplicator(jobs, i.options.Dedup)

	verdict, err := deduplicator.Check(ctx, job)
	if err != nil {
		return nil, err
	}
	outcome.Verdict = verdict

	if !verdict.Insertable(deduplicator.Policy()) {
		if verdict.Kind == dedup.Probable {
			outcome.Discarded = true
			outcome.JobID = verdict.MatchedJobID
			return nil, nil
		}
		return i.merge(ctx, jobs, verdict.MatchedJobID, job)
	}

	created, err := jobs.InsertIfAbsent(ctx, &job)
	if err != nil {
		return nil, err
	}
	if created {
		outcome.Created = true
		return &job, nil
	}

	existing, err := jobs.FindByExternalID(ctx, job.SourceID, job.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("job vanished after insert conflict")
	}
	outcome.Verdict = dedup.Verdict{Kind: dedup.Duplicate, Stage: dedup.StageExternalID, MatchedJobID: existing.ID}
	return i.merge(ctx, jobs, existing.ID, job)
}

func (i *Ingestor) merge(ctx context.Context, jobs *repositories.Jobs, id uint, incoming models.Job) (*models.Job, error) {
	existing, err := jobs.LockForMerge(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("matched job no longer exists")
	}

	merged := normalize.Merge(*existing, incoming)
	if err = jobs.Save(ctx, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// score persists the user's match score. Scoring failures are logged and
// leave the job unscored; only a failed write is returned.
func (i *Ingestor) score(ctx context.Context, tx *gorm.DB, job *models.Job, search models.SearchContext) (bool, error) {
	if !job.HasText() {
		return false, nil
	}

	result, err := i.engine.Score(job, search)
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeScoring).
			Errorf("%v", &errs.ScoringError{JobID: job.ID, Err: err})
		return false, nil
	}

	details, err := json.Marshal(result.Details)
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeScoring).
			Errorf("%v", &errs.ScoringError{JobID: job.ID, Err: err})
		return false, nil
	}

	components := make(datatypes.JSONMap, len(result.Components))
	for name, value := range result.Components {
		components[name] = value
	}

	err = i.scores.WithTx(tx).Upsert(ctx, &models.UserJobScore{
		UserID:          search.UserID,
		JobID:           job.ID,
		LastMatchScore:  result.Value,
		MatchComponents: components,
		MatchDetails:    datatypes.JSON(details),
		UpdatedAt:       i.now().UTC(),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
