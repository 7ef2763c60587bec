// Package worker consumes fetch tasks from the queue and drives every
// requested source through rate limiting, circuit breaking, fetching and
// ingestion.
package worker

import (
	"context"
	"errors"
	"github.com/asaskevich/EventBus"
	"github.com/maxaizer/job-aggregator/internal/config"
	"github.com/maxaizer/job-aggregator/internal/connectors"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/events"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/logger"
	"github.com/maxaizer/job-aggregator/internal/pipeline"
	"github.com/maxaizer/job-aggregator/internal/queue"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"time"
)

type taskQueue interface {
	Read(ctx context.Context, block time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, id string) error
	Reclaim(ctx context.Context) ([]queue.Delivery, error)
}

type connectorRegistry interface {
	Get(code string) (connectors.Connector, error)
}

type rateLimiter interface {
	Allow(ctx context.Context, source string) (bool, error)
}

type circuitBreaker interface {
	Do(ctx context.Context, source string, fn func(ctx context.Context) error) error
}

type recordIngestor interface {
	Ingest(ctx context.Context, raw models.RawRecord, search *models.SearchContext) (pipeline.Outcome, error)
}

const (
	SkipRateLimited = "rate_limited"
	SkipCircuitOpen = "circuit_open"
)

type Options struct {
	Concurrency     int
	BlockTimeout    time.Duration
	ReclaimInterval time.Duration
	FetchTimeout    time.Duration
	MinNewRecords   int
}

func OptionsFrom(cfg config.WorkerConfig) Options {
	return Options{
		Concurrency:     cfg.Concurrency,
		BlockTimeout:    cfg.BlockTimeout,
		ReclaimInterval: cfg.ReclaimInterval,
		FetchTimeout:    cfg.FetchTimeout,
		MinNewRecords:   cfg.MinNewRecords,
	}
}

type Worker struct {
	queue      taskQueue
	connectors connectorRegistry
	limiter    rateLimiter
	breaker    circuitBreaker
	ingestor   recordIngestor
	bus        EventBus.Bus
	options    Options
}

func New(queue taskQueue, connectors connectorRegistry, limiter rateLimiter, breaker circuitBreaker,
	ingestor recordIngestor, bus EventBus.Bus, options Options) *Worker {

	if options.Concurrency < 1 {
		options.Concurrency = 4
	}
	if options.BlockTimeout <= 0 {
		options.BlockTimeout = time.Second
	}
	if options.ReclaimInterval <= 0 {
		options.ReclaimInterval = time.Minute
	}
	if options.FetchTimeout <= 0 {
		options.FetchTimeout = 30 * time.Second
	}
	if options.MinNewRecords <= 0 {
		options.MinNewRecords = 10
	}

	return &Worker{
		queue:      queue,
		connectors: connectors,
		limiter:    limiter,
		breaker:    breaker,
		ingestor:   ingestor,
		bus:        bus,
		options:    options,
	}
}

// Run reads and handles tasks until ctx is cancelled. Deliveries left
// unacknowledged by crashed consumers are reclaimed periodically.
func (w *Worker) Run(ctx context.Context) {
	log.Infof("worker started, concurrency: %d", w.options.Concurrency)

	reclaimTicker := time.NewTicker(w.options.ReclaimInterval)
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return
		case <-reclaimTicker.C:
			w.reclaim(ctx)
		default:
		}

		delivery, err := w.queue.Read(ctx, w.options.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.WithField(logger.ErrorTypeField, logger.ErrorTypeQueue).Errorf("failed to read task: %v", err)
			sleep(ctx, w.options.BlockTimeout)
			continue
		}
		if delivery == nil {
			continue
		}

		w.Handle(ctx, *delivery)
	}
}

func (w *Worker) reclaim(ctx context.Context) {
	deliveries, err := w.queue.Reclaim(ctx)
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeQueue).Errorf("failed to reclaim tasks: %v", err)
		return
	}
	for _, delivery := range deliveries {
		if ctx.Err() != nil {
			return
		}
		w.Handle(ctx, delivery)
	}
}

// Handle processes one delivery and decides its acknowledgement. The task
// stays pending only when every failure was a network timeout, so a
// redelivery can succeed; everything else is acknowledged to avoid poison
// loops.
func (w *Worker) Handle(ctx context.Context, delivery queue.Delivery) events.TaskCompleted {
	started := time.Now()

	task, err := delivery.Task()
	if err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeParse).Errorf("dropping task %s: %v", delivery.ID, err)
		w.ack(ctx, delivery.ID)
		return events.TaskCompleted{MessageID: delivery.ID, Acked: true, Duration: time.Since(started)}
	}

	report := events.TaskCompleted{
		MessageID: delivery.ID,
		Sources:   w.Process(ctx, task),
	}
	if task.UserID != nil {
		report.UserID = *task.UserID
	}
	report.Duration = time.Since(started)

	failures := report.Errors()
	switch {
	case ctx.Err() != nil:
		log.Warnf("task %s interrupted, leaving it for redelivery", delivery.ID)
	case errs.IsTransient(failures):
		log.Warnf("task %s failed with timeouts only, leaving it for redelivery", delivery.ID)
	default:
		if len(failures) > 0 {
			log.Errorf("task %s finished with %d errors: %v", delivery.ID, len(failures), errors.Join(failures...))
		}
		report.Acked = w.ack(ctx, delivery.ID)
	}

	log.Infof("task %s done in %v, inserted %d", delivery.ID, report.Duration, report.Inserted())
	w.bus.Publish(events.TaskCompletedTopic, report)
	return report
}

func (w *Worker) ack(ctx context.Context, id string) bool {
	if err := w.queue.Ack(context.WithoutCancel(ctx), id); err != nil {
		log.WithField(logger.ErrorTypeField, logger.ErrorTypeQueue).Errorf("failed to ack task %s: %v", id, err)
		return false
	}
	return true
}

// Process runs every source of the task concurrently, bounded by the
// configured concurrency, and returns one report per source in task order.
// A store failure that survived its retries aborts the rest of the task.
func (w *Worker) Process(ctx context.Context, task models.FetchTask) []events.SourceReport {
	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	run := &taskRun{
		task:   task,
		search: task.SearchContext(),
		seen:   newSeenSet(),
		abort:  abort,
	}

	reports := make([]events.SourceReport, len(task.Sources))
	var group errgroup.Group
	group.SetLimit(w.options.Concurrency)

	for i, source := range task.Sources {
		group.Go(func() error {
			reports[i] = w.processSource(ctx, run, source)
			return nil
		})
	}
	_ = group.Wait()
	return reports
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
