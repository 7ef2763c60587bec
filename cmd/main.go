package main

import (
	"context"
	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/maxaizer/job-aggregator/internal/breaker"
	"github.com/maxaizer/job-aggregator/internal/cache"
	"github.com/maxaizer/job-aggregator/internal/clients/adzuna"
	"github.com/maxaizer/job-aggregator/internal/clients/hh"
	"github.com/maxaizer/job-aggregator/internal/config"
	"github.com/maxaizer/job-aggregator/internal/connectors"
	"github.com/maxaizer/job-aggregator/internal/dedup"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/logger"
	"github.com/maxaizer/job-aggregator/internal/metrics"
	"github.com/maxaizer/job-aggregator/internal/pipeline"
	"github.com/maxaizer/job-aggregator/internal/queue"
	"github.com/maxaizer/job-aggregator/internal/ranking"
	"github.com/maxaizer/job-aggregator/internal/ratelimit"
	"github.com/maxaizer/job-aggregator/internal/repositories"
	"github.com/maxaizer/job-aggregator/internal/scheduler"
	"github.com/maxaizer/job-aggregator/internal/scoring"
	"github.com/maxaizer/job-aggregator/internal/search"
	"github.com/maxaizer/job-aggregator/internal/worker"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"math"
	"os/signal"
	"sync"
	"syscall"
)

// app holds the long-lived services of one process.
type app struct {
	search    *search.Service
	scheduler *scheduler.Scheduler
	workers   sync.WaitGroup
}

func (a *app) shutdown(bus EventBus.Bus) {
	log.Info("Shutting down services...")
	a.scheduler.Stop()
	a.workers.Wait()
	bus.WaitAsync()
	log.Info("Services stopped.")
}

func newRegistry(cfg *config.Config) *connectors.Registry {
	registry := connectors.NewRegistry()

	hhClient := hh.NewClient()
	hhClient.SetRateLimit(cfg.Connectors.HhMaxRequestsPerSecond)
	registry.Register(hh.SourceCode, hh.NewConnector(hhClient))

	adzunaClient := adzuna.NewClient(adzuna.Credentials{
		AppID:  cfg.Connectors.AdzunaAppID,
		AppKey: cfg.Connectors.AdzunaAppKey,
	})
	adzunaClient.SetRateLimit(cfg.Connectors.AdzunaMaxRequestsPerSecond)
	registry.Register(adzuna.SourceCode, adzuna.NewConnector(adzunaClient, cfg.Connectors.AdzunaCountry))

	return registry
}

func sourceRates(sources []config.SourceConfig) map[string]ratelimit.Rate {
	rates := make(map[string]ratelimit.Rate, len(sources))
	for _, source := range sources {
		rates[source.Code] = ratelimit.Rate{
			PerMinute: int(math.Ceil(source.RatePerMinute)),
			Burst:     source.Burst,
		}
	}
	return rates
}

func runWorker(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, client *redis.Client,
	dbContext *repositories.DbContext, bus EventBus.Bus) {

	stream, err := queue.NewStream(ctx, client, queue.Config{
		Stream:            cfg.Redis.Stream,
		Group:             cfg.Redis.Group,
		VisibilityTimeout: cfg.Worker.VisibilityTimeout,
		MaxDeliveries:     cfg.Worker.MaxDeliveries,
	}, "worker-"+uuid.NewString())
	if err != nil {
		log.Fatalf("can't create task stream: %v", err)
	}

	ingestor := pipeline.NewIngestor(
		dbContext.DB,
		bus,
		repositories.NewSourcesRepository(dbContext.DB),
		repositories.NewCachedCompanies(repositories.NewCompaniesRepository(dbContext.DB)),
		scoring.NewEngine(),
		pipeline.Options{
			Dedup: dedup.Config{
				RuleWindow:      cfg.Dedup.RuleWindow,
				FuzzyEnabled:    cfg.Dedup.FuzzyEnabled,
				FuzzyThreshold:  cfg.Dedup.FuzzyThreshold,
				FuzzyCandidates: cfg.Dedup.FuzzyCandidates,
				ProbablePolicy:  dedup.ProbablePolicy(cfg.Dedup.ProbablePolicy),
			},
			MaxRetries: cfg.DB.MaxRetries,
			RetryDelay: cfg.DB.RetryDelay,
		},
	)

	w := worker.New(
		stream,
		newRegistry(cfg),
		ratelimit.New(client, cfg.Redis.Prefix, sourceRates(cfg.Sources)),
		breaker.New(client, cfg.Redis.Prefix, cfg.Worker.BreakerThreshold, cfg.Worker.BreakerCooldown),
		ingestor,
		bus,
		worker.OptionsFrom(cfg.Worker),
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()
}

func runScheduler(ctx context.Context, cfg *config.Config, client *redis.Client,
	dbContext *repositories.DbContext) *scheduler.Scheduler {

	producer, err := queue.NewStream(ctx, client, queue.Config{
		Stream: cfg.Redis.Stream,
		Group:  cfg.Redis.Group,
	}, "scheduler")
	if err != nil {
		log.Fatalf("can't create task stream: %v", err)
	}

	s, err := scheduler.New(
		producer,
		client,
		cfg.Redis.Prefix,
		repositories.NewSearchRepository(dbContext.DB),
		repositories.NewJobsRepository(dbContext.DB),
		repositories.NewCheckpointsRepository(dbContext.DB),
		cfg.Scheduler,
		cfg.Sources,
	)
	if err != nil {
		log.Fatalf("can't create scheduler: %v", err)
	}
	s.Start()
	return s
}

func newSearchService(ctx context.Context, cfg *config.Config, client *redis.Client,
	dbContext *repositories.DbContext, bus EventBus.Bus) *search.Service {

	producer, err := queue.NewStream(ctx, client, queue.Config{
		Stream: cfg.Redis.Stream,
		Group:  cfg.Redis.Group,
	}, "search")
	if err != nil {
		log.Fatalf("can't create task stream: %v", err)
	}

	resultCache, err := cache.New[models.ScoredJob](cfg.Cache.Capacity, cfg.Cache.TTL)
	if err != nil {
		log.Fatalf("can't create result cache: %v", err)
	}

	ranker := ranking.NewRanker(
		repositories.NewJobSearchRepository(dbContext.DB),
		scoring.NewEngine(),
		ranking.OptionsFrom(cfg.Ranking),
	)

	service := search.NewService(ranker, resultCache, producer, cfg.SourceCodes(), cfg.Scheduler.MaxResults)
	if err = service.Subscribe(bus); err != nil {
		log.Fatalf("can't subscribe search service: %v", err)
	}
	return service
}

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Get()

	if err := logger.Setup(ctx, cfg.Logger); err != nil {
		log.Fatalf("can't set up logger: %v", err)
	}
	defer logger.Cleanup()

	metrics.StartMetricsServer(cfg.Metrics.Address)

	dbContext, err := repositories.NewDbContext(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("can't create db context: %v", err)
	}
	defer dbContext.Close()

	if err = dbContext.Migrate(); err != nil {
		log.Fatalf("can't migrate db context: %v", err)
	}
	if err = dbContext.EnsureSources(cfg.Sources); err != nil {
		log.Fatalf("can't register sources: %v", err)
	}

	client, err := queue.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("can't connect to redis: %v", err)
	}
	defer client.Close()

	bus := EventBus.New()
	if err = metrics.Subscribe(bus); err != nil {
		log.Fatalf("can't subscribe metrics: %v", err)
	}

	a := &app{search: newSearchService(ctx, cfg, client, dbContext, bus)}
	runWorker(ctx, &a.workers, cfg, client, dbContext, bus)
	a.scheduler = runScheduler(ctx, cfg, client, dbContext)
	log.Infof("search ready for sources %v", cfg.SourceCodes())

	<-ctx.Done()
	a.shutdown(bus)
}
