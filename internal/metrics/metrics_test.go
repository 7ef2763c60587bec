package metrics

import (
	"github.com/maxaizer/job-aggregator/internal/domain/events"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func value(t *testing.T, counter prometheus.Counter) float64 {
	var metric dto.Metric
	require.NoError(t, counter.Write(&metric))
	return metric.GetCounter().GetValue()
}

func Test_OnTaskCompleted_CountsPerSource(t *testing.T) {
	onTaskCompleted(events.TaskCompleted{
		Duration: time.Second,
		Sources: []events.SourceReport{
			{Source: "test-hh", Inserted: 3, Merged: 1, Failed: 2},
			{Source: "test-adzuna", Skipped: true, SkipReason: "rate_limited"},
		},
	})

	assert.Equal(t, 3.0, value(t, RecordsCounter.WithLabelValues("test-hh", "inserted")))
	assert.Equal(t, 1.0, value(t, RecordsCounter.WithLabelValues("test-hh", "merged")))
	assert.Equal(t, 2.0, value(t, RecordsCounter.WithLabelValues("test-hh", "failed")))
	assert.Equal(t, 1.0, value(t, SkippedSourcesCounter.WithLabelValues("test-adzuna", "rate_limited")))
}

func Test_OnJobIngested_CountsScoredOnly(t *testing.T) {
	onJobIngested(events.JobIngested{JobID: 1, Source: "test-scored", Scored: true})
	onJobIngested(events.JobIngested{JobID: 2, Source: "test-scored"})

	assert.Equal(t, 1.0, value(t, ScoredJobsCounter.WithLabelValues("test-scored")))
}
