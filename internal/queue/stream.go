// Package queue is the durable task queue shared by every worker process:
// a Redis stream read through a consumer group, so each task is delivered
// to one worker at a time and redelivered when it is never acknowledged.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/maxaizer/job-aggregator/internal/domain/models"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"strings"
	"time"
)

const (
	payloadField = "task"
	maxLength    = 100_000
	reclaimBatch = 100
)

type Config struct {
	Stream            string
	Group             string
	VisibilityTimeout time.Duration
	MaxDeliveries     int64
}

// Delivery is one message handed to a consumer.
type Delivery struct {
	ID      string
	Payload []byte
}

var validate = validator.New()

// Task decodes and validates the message. Malformed messages yield
// *errs.ParseError and should be acknowledged and dropped.
func (d Delivery) Task() (models.FetchTask, error) {
	var task models.FetchTask
	if err := json.Unmarshal(d.Payload, &task); err != nil {
		return task, &errs.ParseError{Source: "queue", ExternalID: d.ID, Reason: err.Error()}
	}
	if err := validate.Struct(task); err != nil {
		return task, &errs.ParseError{Source: "queue", ExternalID: d.ID, Reason: err.Error()}
	}
	return task, nil
}

type Stream struct {
	client   redis.UniversalClient
	cfg      Config
	consumer string
}

// NewStream binds a consumer to the group, creating the stream and the
// group when they do not exist yet.
func NewStream(ctx context.Context, client redis.UniversalClient, cfg Config, consumer string) (*Stream, error) {
	if cfg.Stream == "" || cfg.Group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer are required")
	}

	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Stream{client: client, cfg: cfg, consumer: consumer}, nil
}

func (s *Stream) Consumer() string {
	return s.consumer
}

// Publish appends the task to the stream and returns its message id.
func (s *Stream) Publish(ctx context.Context, task models.FetchTask) (string, error) {
	if err := validate.Struct(task); err != nil {
		return "", fmt.Errorf("invalid task: %w", err)
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return "", err
	}

	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.Stream,
		MaxLen: maxLength,
		Approx: true,
		Values: map[string]any{payloadField: payload},
	}).Result()
}

// Read blocks up to block for the next new message. It returns nil, nil
// when nothing arrived in time.
func (s *Stream) Read(ctx context.Context, block time.Duration) (*Delivery, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	for _, stream := range streams {
		for _, message := range stream.Messages {
			delivery := toDelivery(message)
			return &delivery, nil
		}
	}
	return nil, nil
}

func (s *Stream) Ack(ctx context.Context, id string) error {
	return s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, id).Err()
}

// Reclaim takes over messages other consumers left unacknowledged for
// longer than the visibility timeout. Messages delivered more than
// MaxDeliveries times are acknowledged and dropped instead.
func (s *Stream) Reclaim(ctx context.Context) ([]Delivery, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.cfg.Stream,
		Group:  s.cfg.Group,
		Idle:   s.cfg.VisibilityTimeout,
		Start:  "-",
		End:    "+",
		Count:  reclaimBatch,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}

	var claimable []string
	for _, entry := range pending {
		if s.cfg.MaxDeliveries > 0 && entry.RetryCount >= s.cfg.MaxDeliveries {
			if err = s.Ack(ctx, entry.ID); err != nil {
				return nil, fmt.Errorf("drop message %s: %w", entry.ID, err)
			}
			log.Warnf("dropped message %s after %d deliveries", entry.ID, entry.RetryCount)
			continue
		}
		claimable = append(claimable, entry.ID)
	}
	if len(claimable) == 0 {
		return nil, nil
	}

	messages, err := s.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Consumer: s.consumer,
		MinIdle:  s.cfg.VisibilityTimeout,
		Messages: claimable,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("claim messages: %w", err)
	}

	deliveries := make([]Delivery, 0, len(messages))
	for _, message := range messages {
		deliveries = append(deliveries, toDelivery(message))
	}
	return deliveries, nil
}

func toDelivery(message redis.XMessage) Delivery {
	delivery := Delivery{ID: message.ID}
	switch value := message.Values[payloadField].(type) {
	case string:
		delivery.Payload = []byte(value)
	case []byte:
		delivery.Payload = value
	}
	return delivery
}
