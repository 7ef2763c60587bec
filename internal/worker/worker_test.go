package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/alicebob/miniredis/v2"
	"github.com/asaskevich/EventBus"
	"github.com/maxaizer/job-aggregator/internal/breaker"
	"github.com/maxaizer/job-aggregator/internal/config"
	"github.com/maxaizer/job-aggregator/internal/connectors"
	"github.com/maxaizer/job-aggregator/internal/dedup"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/events"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/maxaizer/job-aggregator/internal/pipeline"
	"github.com/maxaizer/job-aggregator/internal/queue"
	"github.com/maxaizer/job-aggregator/internal/ratelimit"
	"github.com/maxaizer/job-aggregator/internal/repositories"
	"github.com/maxaizer/job-aggregator/internal/scoring"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeQueue struct {
	mu         sync.Mutex
	deliveries []queue.Delivery
	acked      []string
}

func (q *fakeQueue) Read(ctx context.Context, block time.Duration) (*queue.Delivery, error) {
	q.mu.Lock()
	if len(q.deliveries) > 0 {
		delivery := q.deliveries[0]
		q.deliveries = q.deliveries[1:]
		q.mu.Unlock()
		return &delivery, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *fakeQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, id)
	return nil
}

func (q *fakeQueue) Reclaim(context.Context) ([]queue.Delivery, error) {
	return nil, nil
}

func (q *fakeQueue) ackedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

type fakeIngestor struct {
	mu       sync.Mutex
	ingested []models.RawRecord
	searches []*models.SearchContext
	err      error
}

func (f *fakeIngestor) Ingest(_ context.Context, raw models.RawRecord, search *models.SearchContext) (pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, raw)
	f.searches = append(f.searches, search)
	if f.err != nil {
		return pipeline.Outcome{}, f.err
	}
	return pipeline.Outcome{JobID: uint(len(f.ingested)), Created: true}, nil
}

func (f *fakeIngestor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ingested)
}

type fixture struct {
	worker   *Worker
	queue    *fakeQueue
	ingestor *fakeIngestor
	registry *connectors.Registry
	breaker  *breaker.Breaker
	bus      EventBus.Bus
}

func newFixture(t *testing.T, options Options, rates map[string]ratelimit.Rate) *fixture {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		queue:    &fakeQueue{},
		ingestor: &fakeIngestor{},
		registry: connectors.NewRegistry(),
		breaker:  breaker.New(client, "test", 2, time.Minute),
		bus:      EventBus.New(),
	}
	f.worker = New(f.queue, f.registry, ratelimit.New(client, "test", rates), f.breaker, f.ingestor, f.bus, options)
	return f
}

func delivery(t *testing.T, id string, task models.FetchTask) queue.Delivery {
	payload, err := json.Marshal(task)
	require.NoError(t, err)
	return queue.Delivery{ID: id, Payload: payload}
}

func record(source, id, title, company string) models.RawRecord {
	return models.RawRecord{SourceCode: source, ExternalID: id, Title: title, Company: company, Location: "Pune, India"}
}

func streaming(records ...models.RawRecord) connectors.Connector {
	return connectors.ConnectorFunc(func(_ context.Context, _ models.FetchQuery, _ *time.Time, onRecordReady connectors.RecordHandler) ([]models.RawRecord, error) {
		for _, r := range records {
			onRecordReady(r)
		}
		return records, nil
	})
}

func failing(err error) connectors.Connector {
	return connectors.ConnectorFunc(func(context.Context, models.FetchQuery, *time.Time, connectors.RecordHandler) ([]models.RawRecord, error) {
		return nil, err
	})
}

func Test_Handle_IngestsEachRecordOncePerTask(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.registry.Register("hh", streaming(
		record("hh", "1", "Go Developer", "Acme"),
		record("hh", "2", "QA Engineer", "Acme"),
	))
	f.registry.Register("adzuna", streaming(
		record("adzuna", "x", "Go Developer", "Acme"),
		record("adzuna", "y", "Data Engineer", "Globex"),
	))

	var published []events.TaskCompleted
	require.NoError(t, f.bus.Subscribe(events.TaskCompletedTopic, func(e events.TaskCompleted) {
		published = append(published, e)
	}))

	report := f.worker.Handle(context.Background(), delivery(t, "1-0", models.FetchTask{Sources: []string{"hh", "adzuna"}}))

	assert.Equal(t, 3, f.ingestor.count())
	assert.Equal(t, 3, report.Inserted())
	assert.Empty(t, report.Errors())
	assert.True(t, report.Acked)
	assert.Equal(t, []string{"1-0"}, f.queue.ackedIDs())
	require.Len(t, report.Sources, 2)
	assert.Equal(t, "hh", report.Sources[0].Source)
	assert.Equal(t, "adzuna", report.Sources[1].Source)
	require.Len(t, published, 1)
	assert.Equal(t, "1-0", published[0].MessageID)
}

func Test_Handle_MalformedTaskIsAckedAndDropped(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	report := f.worker.Handle(context.Background(), queue.Delivery{ID: "2-0", Payload: []byte(`{"sources": []}`)})

	assert.True(t, report.Acked)
	assert.Equal(t, []string{"2-0"}, f.queue.ackedIDs())
	assert.Zero(t, f.ingestor.count())
}

func Test_Handle_TimeoutsOnlyLeaveTaskPending(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.registry.Register("hh", failing(context.DeadlineExceeded))

	report := f.worker.Handle(context.Background(), delivery(t, "3-0", models.FetchTask{Sources: []string{"hh"}}))

	assert.False(t, report.Acked)
	assert.Empty(t, f.queue.ackedIDs())
	require.Len(t, report.Errors(), 1)
	assert.True(t, errs.IsTransient(report.Errors()))
}

func Test_Handle_PermanentFailureIsAckedAndOpensBreaker(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.registry.Register("hh", failing(&errs.ConnectorError{Source: "hh", Err: assert.AnError}))
	task := models.FetchTask{Sources: []string{"hh"}}

	for i := range 2 {
		report := f.worker.Handle(context.Background(), delivery(t, fmt.Sprintf("4-%d", i), task))
		assert.True(t, report.Acked)
		require.Len(t, report.Errors(), 1)
	}

	state, err := f.breaker.State(context.Background(), "hh")
	require.NoError(t, err)
	assert.Equal(t, breaker.Open, state)

	report := f.worker.Handle(context.Background(), delivery(t, "4-9", task))
	require.Len(t, report.Sources, 1)
	assert.True(t, report.Sources[0].Skipped)
	assert.Equal(t, SkipCircuitOpen, report.Sources[0].SkipReason)
	assert.Empty(t, report.Errors())
}

func Test_Handle_RateLimitedSourceIsSkipped(t *testing.T) {
	f := newFixture(t, Options{}, map[string]ratelimit.Rate{"hh": {PerMinute: 1, Burst: 1}})
	f.registry.Register("hh", streaming(record("hh", "1", "Go Developer", "Acme")))
	task := models.FetchTask{Sources: []string{"hh"}}

	first := f.worker.Handle(context.Background(), delivery(t, "5-0", task))
	second := f.worker.Handle(context.Background(), delivery(t, "5-1", task))

	assert.False(t, first.Sources[0].Skipped)
	assert.True(t, second.Sources[0].Skipped)
	assert.Equal(t, SkipRateLimited, second.Sources[0].SkipReason)
	assert.True(t, second.Acked)
	assert.Equal(t, 1, f.ingestor.count())
}

func Test_Handle_StoreFailureAbortsTask(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.ingestor.err = &errs.StoreError{Op: "ingest", Err: assert.AnError}
	f.registry.Register("hh", streaming(
		record("hh", "1", "Go Developer", "Acme"),
		record("hh", "2", "QA Engineer", "Acme"),
		record("hh", "3", "Data Engineer", "Acme"),
	))

	report := f.worker.Handle(context.Background(), delivery(t, "8-0", models.FetchTask{Sources: []string{"hh"}}))

	assert.Equal(t, 1, f.ingestor.count())
	assert.Equal(t, 1, report.Sources[0].Failed)
	require.Len(t, report.Errors(), 1)
	var storeErr *errs.StoreError
	assert.ErrorAs(t, report.Errors()[0], &storeErr)
	assert.True(t, report.Acked)
}

func Test_Handle_PermanentRecordFailureDoesNotAbortTask(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.ingestor.err = assert.AnError
	f.registry.Register("hh", streaming(
		record("hh", "1", "Go Developer", "Acme"),
		record("hh", "2", "QA Engineer", "Acme"),
	))
	f.registry.Register("adzuna", streaming(record("adzuna", "y", "Data Engineer", "Globex")))

	report := f.worker.Handle(context.Background(), delivery(t, "8-1", models.FetchTask{Sources: []string{"hh", "adzuna"}}))

	assert.Equal(t, 3, f.ingestor.count())
	assert.Equal(t, 2, report.Sources[0].Failed)
	assert.Equal(t, 1, report.Sources[1].Failed)
	assert.Len(t, report.Errors(), 3)
	assert.True(t, report.Acked)
}

func Test_Handle_RepeatedListingEnrichesStoredJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{}, nil)

	dbCtx, err := repositories.NewDbContext(ctx, config.DBConfig{
		ConnectionString: filepath.Join(t.TempDir(), "worker.db"),
	})
	require.NoError(t, err)
	require.NoError(t, dbCtx.Migrate())
	require.NoError(t, dbCtx.EnsureSources([]config.SourceConfig{{Code: "hh", DisplayName: "HeadHunter"}}))
	t.Cleanup(func() { _ = dbCtx.Close() })

	ingestor := pipeline.NewIngestor(dbCtx.DB, f.bus,
		repositories.NewSourcesRepository(dbCtx.DB),
		repositories.NewCachedCompanies(repositories.NewCompaniesRepository(dbCtx.DB)),
		scoring.NewEngine(),
		pipeline.Options{Dedup: dedup.DefaultConfig(), MaxRetries: 1},
	)
	w := New(f.queue, f.registry, ratelimit.New(redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()}), "test", nil),
		f.breaker, ingestor, f.bus, Options{})

	longer := "Python role building AWS services with Django in our Bangalore office."
	f.registry.Register("hh", streaming(
		models.RawRecord{SourceCode: "hh", ExternalID: "job-1", Title: "Python Developer", Company: "Acme",
			Description: "Python role."},
		models.RawRecord{SourceCode: "hh", ExternalID: "job-1", Title: "Python Developer", Company: "Acme",
			Location: "Bangalore, India", Description: longer},
	))

	report := w.Handle(ctx, delivery(t, "9-0", models.FetchTask{Sources: []string{"hh"}}))

	assert.Empty(t, report.Errors())
	assert.Equal(t, 1, report.Sources[0].Inserted)
	assert.Equal(t, 1, report.Sources[0].Merged)

	var jobs []models.Job
	require.NoError(t, dbCtx.DB.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Bangalore, India", jobs[0].Location)
	assert.Equal(t, longer, jobs[0].Description)
}

func Test_Handle_UnknownSourceIsReported(t *testing.T) {
	f := newFixture(t, Options{}, nil)

	report := f.worker.Handle(context.Background(), delivery(t, "6-0", models.FetchTask{Sources: []string{"monster"}}))

	require.Len(t, report.Errors(), 1)
	assert.ErrorIs(t, report.Errors()[0], errs.ErrUnknownSource)
	assert.True(t, report.Acked)
}

func Test_Process_WidensLocationUntilEnoughNewRecords(t *testing.T) {
	userID := "user-1"

	for minNew, expected := range map[int][]string{
		2:  {"Pune, India", "india"},
		10: {"Pune, India", "india", ""},
	} {
		f := newFixture(t, Options{MinNewRecords: minNew}, nil)

		var locations []string
		f.registry.Register("hh", connectors.ConnectorFunc(func(_ context.Context, q models.FetchQuery, _ *time.Time, onRecordReady connectors.RecordHandler) ([]models.RawRecord, error) {
			locations = append(locations, q.Location)
			r := record("hh", "id-"+q.Location, "Developer "+q.Location, "Acme")
			onRecordReady(r)
			return nil, nil
		}))

		reports := f.worker.Process(context.Background(), models.FetchTask{
			Sources: []string{"hh"},
			Query:   models.FetchQuery{Keywords: []string{"developer"}, Location: "Pune, India"},
			UserID:  &userID,
		})

		assert.Equal(t, expected, locations)
		assert.Equal(t, len(expected), reports[0].Inserted)
		require.NotEmpty(t, f.ingestor.searches)
		assert.Equal(t, userID, f.ingestor.searches[0].UserID)
	}
}

func Test_Process_AnonymousTaskDoesNotWiden(t *testing.T) {
	f := newFixture(t, Options{MinNewRecords: 10}, nil)

	calls := 0
	f.registry.Register("hh", connectors.ConnectorFunc(func(context.Context, models.FetchQuery, *time.Time, connectors.RecordHandler) ([]models.RawRecord, error) {
		calls++
		return nil, nil
	}))

	f.worker.Process(context.Background(), models.FetchTask{
		Sources: []string{"hh"},
		Query:   models.FetchQuery{Location: "Pune, India"},
	})
	assert.Equal(t, 1, calls)
}

func Test_Run_HandlesQueuedTasksUntilCancelled(t *testing.T) {
	f := newFixture(t, Options{BlockTimeout: 10 * time.Millisecond}, nil)
	f.registry.Register("hh", streaming(record("hh", "1", "Go Developer", "Acme")))
	f.queue.deliveries = []queue.Delivery{delivery(t, "7-0", models.FetchTask{Sources: []string{"hh"}})}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.bus.Subscribe(events.TaskCompletedTopic, func(events.TaskCompleted) { cancel() }))

	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, []string{"7-0"}, f.queue.ackedIDs())
	assert.Equal(t, 1, f.ingestor.count())
}
