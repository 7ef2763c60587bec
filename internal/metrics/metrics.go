package metrics

import (
	"github.com/asaskevich/EventBus"
	"github.com/maxaizer/job-aggregator/internal/domain/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"net/http"
)

var (
	ErrorsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_errors_total",
			Help: "Errors and warnings logged, by error type and level.",
		},
		[]string{"type", "level"},
	)
	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jobs_fetch_task_duration_seconds",
			Help:    "Duration of each fetch task in seconds.",
			Buckets: []float64{1, 5, 15, 60, 300, 900},
		},
	)
	ConnectorCallDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "jobs_connector_call_duration_seconds",
			Help:       "Duration of each connector fetch.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"source"},
	)
	RecordsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_records_total",
			Help: "Total number of ingested records by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	SkippedSourcesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_sources_skipped_total",
			Help: "Total number of source fetches skipped by the rate limiter or circuit breaker.",
		},
		[]string{"source", "reason"},
	)
	ScoredJobsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_user_scores_total",
			Help: "Total number of jobs scored for a user at ingest time.",
		},
		[]string{"source"},
	)
	RankDuration = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "jobs_rank_duration_seconds",
			Help:       "Duration of ranker queries by path.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"path"},
	)
	CacheRequestsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_result_cache_requests_total",
			Help: "Result cache lookups by result.",
		},
		[]string{"result"},
	)
)

// Subscribe records per-source task outcomes and ingest-time scoring
// published on the bus.
func Subscribe(bus EventBus.Bus) error {
	if err := bus.SubscribeAsync(events.TaskCompletedTopic, onTaskCompleted, false); err != nil {
		return err
	}
	return bus.SubscribeAsync(events.JobIngestedTopic, onJobIngested, false)
}

func onJobIngested(event events.JobIngested) {
	if event.Scored {
		ScoredJobsCounter.WithLabelValues(event.Source).Inc()
	}
}

func onTaskCompleted(event events.TaskCompleted) {
	TaskDuration.Observe(event.Duration.Seconds())
	for _, report := range event.Sources {
		if report.Skipped {
			SkippedSourcesCounter.WithLabelValues(report.Source, report.SkipReason).Inc()
			continue
		}
		RecordsCounter.WithLabelValues(report.Source, "inserted").Add(float64(report.Inserted))
		RecordsCounter.WithLabelValues(report.Source, "merged").Add(float64(report.Merged))
		RecordsCounter.WithLabelValues(report.Source, "probable").Add(float64(report.Probable))
		RecordsCounter.WithLabelValues(report.Source, "discarded").Add(float64(report.Discarded))
		RecordsCounter.WithLabelValues(report.Source, "failed").Add(float64(report.Failed))
	}
}

func StartMetricsServer(address string) {

	prometheus.MustRegister(ErrorsCounter)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(ConnectorCallDuration)
	prometheus.MustRegister(RecordsCounter)
	prometheus.MustRegister(SkippedSourcesCounter)
	prometheus.MustRegister(ScoredJobsCounter)
	prometheus.MustRegister(RankDuration)
	prometheus.MustRegister(CacheRequestsCounter)

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Fatal(http.ListenAndServe(address, nil))
	}()
}
