package worker

import (
	"context"
	"errors"
	"github.com/maxaizer/job-aggregator/internal/connectors"
	"github.com/maxaizer/job-aggregator/internal/dedup"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/events"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/geo"
	"github.com/maxaizer/job-aggregator/internal/logger"
	"github.com/maxaizer/job-aggregator/internal/metrics"
	"github.com/maxaizer/job-aggregator/internal/normalize"
	log "github.com/sirupsen/logrus"
	"strings"
	"sync"
	"time"
)

type taskRun struct {
	task   models.FetchTask
	search *models.SearchContext
	seen   *seenSet
	abort  context.CancelCauseFunc
}

// seenSet remembers the content of records already handled within one task,
// across all of the task's sources.
type seenSet struct {
	mu     sync.Mutex
	hashes map[string]struct{}
}

func newSeenSet() *seenSet {
	return &seenSet{hashes: make(map[string]struct{})}
}

// add marks the hash and reports whether it was already present.
func (s *seenSet) add(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hashes[hash]; ok {
		return true
	}
	s.hashes[hash] = struct{}{}
	return false
}

type sourceRun struct {
	mu     sync.Mutex
	report events.SourceReport
}

func (r *sourceRun) update(fn func(report *events.SourceReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.report)
}

func (r *sourceRun) inserted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report.Inserted
}

func (w *Worker) processSource(ctx context.Context, run *taskRun, source string) events.SourceReport {
	state := &sourceRun{report: events.SourceReport{Source: source}}

	connector, err := w.connectors.Get(source)
	if err != nil {
		state.report.Errors = append(state.report.Errors, err)
		return state.report
	}

	allowed, err := w.limiter.Allow(ctx, source)
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeRedis).
			Errorf("rate limiter unavailable for %s, fetching anyway: %v", source, err)
	} else if !allowed {
		log.Infof("source %s is rate limited, skipping", source)
		state.report.Skipped = true
		state.report.SkipReason = SkipRateLimited
		return state.report
	}

	for i, query := range tiers(run.task.Query, run.search) {
		err := w.breaker.Do(ctx, source, func(ctx context.Context) error {
			return w.fetch(ctx, run, state, source, connector, query)
		})

		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, errs.ErrCircuitOpen) {
			if i == 0 {
				log.Infof("circuit for %s is open, skipping", source)
				state.update(func(report *events.SourceReport) {
					report.Skipped = true
					report.SkipReason = SkipCircuitOpen
				})
			}
			break
		}
		if err != nil {
			log.WithField(logger.ErrorTypeField, logger.ErrorTypeConnector).Errorf("fetch from %s failed: %v", source, err)
			state.update(func(report *events.SourceReport) {
				report.Errors = append(report.Errors, connectorError(source, err))
			})
			break
		}
		if state.inserted() >= w.options.MinNewRecords {
			break
		}
	}

	return state.report
}

func (w *Worker) fetch(ctx context.Context, run *taskRun, state *sourceRun, source string,
	connector connectors.Connector, query models.FetchQuery) error {

	fetchCtx, cancel := context.WithTimeout(ctx, w.options.FetchTimeout)
	defer cancel()

	start := time.Now()
	records, err := connector.Fetch(fetchCtx, query, run.task.Since, func(record models.RawRecord) {
		w.ingest(ctx, run, state, source, record)
	})
	metrics.ConnectorCallDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())

	for _, record := range records {
		w.ingest(ctx, run, state, source, record)
	}
	return err
}

// ingest handles one record unless the task already saw the same content,
// streamed earlier or returned by another source. A repeated external id
// with different content still goes through, so the stored job is enriched.
func (w *Worker) ingest(ctx context.Context, run *taskRun, state *sourceRun, source string, record models.RawRecord) {
	if ctx.Err() != nil {
		return
	}
	if record.SourceCode == "" {
		record.SourceCode = source
	}

	if job, err := normalize.Canonicalize(record); err == nil && run.seen.add(job.Hash) {
		return
	}

	state.update(func(report *events.SourceReport) { report.Fetched++ })

	outcome, err := w.ingestor.Ingest(ctx, record, run.search)
	var storeErr *errs.StoreError
	if errors.As(err, &storeErr) {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeDb).Errorf("aborting task: %v", err)
		run.abort(err)
	}
	state.update(func(report *events.SourceReport) {
		switch {
		case err != nil:
			report.Failed++
			report.Errors = append(report.Errors, err)
		case outcome.Discarded:
			report.Discarded++
		case outcome.Created:
			report.Inserted++
			if outcome.Verdict.Kind == dedup.Probable {
				report.Probable++
			}
		default:
			report.Merged++
		}
	})
}

// tiers widens a user-scoped location search step by step: the requested
// place, then its country, then anywhere.
func tiers(query models.FetchQuery, search *models.SearchContext) []models.FetchQuery {
	location := strings.TrimSpace(query.Location)
	if search == nil || location == "" {
		return []models.FetchQuery{query}
	}

	result := []models.FetchQuery{query.WithLocation(location)}
	if place := geo.Parse(location); place.Country != "" && !strings.EqualFold(place.Country, location) {
		result = append(result, query.WithLocation(place.Country))
	}
	return append(result, query.WithLocation(""))
}

func connectorError(source string, err error) error {
	var connErr *errs.ConnectorError
	if errors.As(err, &connErr) {
		return err
	}
	return &errs.ConnectorError{Source: source, Err: err}
}
