package queue

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func newTestStream(t *testing.T, client *redis.Client, consumer string, cfg Config) *Stream {
	t.Helper()
	stream, err := NewStream(context.Background(), client, cfg, consumer)
	require.NoError(t, err)
	return stream
}

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testConfig() Config {
	return Config{Stream: "fetch_tasks", Group: "workers", MaxDeliveries: 2}
}

func Test_Stream_PublishReadAck(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	stream := newTestStream(t, client, "worker-1", testConfig())

	userID := "user-1"
	id, err := stream.Publish(ctx, models.FetchTask{
		Sources: []string{"hh", "adzuna"},
		Query:   models.FetchQuery{Keywords: []string{"python developer"}, Location: "Bengaluru"},
		UserID:  &userID,
	})
	require.NoError(t, err)

	delivery, err := stream.Read(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, delivery)
	assert.Equal(t, id, delivery.ID)

	task, err := delivery.Task()
	require.NoError(t, err)
	assert.Equal(t, []string{"hh", "adzuna"}, task.Sources)
	assert.Equal(t, "Bengaluru", task.Query.Location)
	require.NotNil(t, task.SearchContext())
	assert.Equal(t, "user-1", task.SearchContext().UserID)

	require.NoError(t, stream.Ack(ctx, delivery.ID))

	delivery, err = stream.Read(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, delivery)

	pending, err := client.XPending(ctx, "fetch_tasks", "workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func Test_Stream_NewStreamTwiceKeepsGroup(t *testing.T) {
	client := newTestClient(t)
	newTestStream(t, client, "worker-1", testConfig())
	newTestStream(t, client, "worker-2", testConfig())
}

func Test_Stream_PublishRejectsInvalidTask(t *testing.T) {
	stream := newTestStream(t, newTestClient(t), "worker-1", testConfig())
	_, err := stream.Publish(context.Background(), models.FetchTask{})
	assert.Error(t, err)
}

func Test_Delivery_MalformedPayloadIsParseError(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	stream := newTestStream(t, client, "worker-1", testConfig())

	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "fetch_tasks", Values: map[string]any{"task": "{"}}).Err())
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{Stream: "fetch_tasks", Values: map[string]any{"task": `{"sources":[]}`}}).Err())

	for range 2 {
		delivery, err := stream.Read(ctx, 50*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, delivery)

		_, err = delivery.Task()
		var parseErr *errs.ParseError
		assert.ErrorAs(t, err, &parseErr)
	}
}

func Test_Stream_ReclaimTakesOverAndDropsPoison(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	crashed := newTestStream(t, client, "worker-1", testConfig())
	survivor := newTestStream(t, client, "worker-2", testConfig())

	id, err := crashed.Publish(ctx, models.FetchTask{Sources: []string{"hh"}})
	require.NoError(t, err)

	delivery, err := crashed.Read(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, delivery)

	reclaimed, err := survivor.Reclaim(ctx)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, id, reclaimed[0].ID)

	reclaimed, err = survivor.Reclaim(ctx)
	require.NoError(t, err)
	assert.Empty(t, reclaimed)

	pending, err := client.XPending(ctx, "fetch_tasks", "workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
