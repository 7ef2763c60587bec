// Package breaker is a per-source circuit breaker whose state lives in Redis,
// so every worker process sees the same breaker. All transitions run as Lua
// scripts and are atomic.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"github.com/maxaizer/job-aggregator/internal/domain/errs"
	"github.com/redis/go-redis/v9"
	"time"
)

type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// allowScript admits calls while closed. Once the cool-down of an open
// breaker has passed it moves to half-open and admits exactly one trial;
// further callers are rejected until the trial reports or its claim expires.
var allowScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state or state == 'closed' then
	return 1
end
local now = tonumber(ARGV[1])
if state == 'open' then
	local opened = tonumber(redis.call('HGET', KEYS[1], 'opened_at') or '0')
	if now - opened < tonumber(ARGV[2]) then
		return 0
	end
	redis.call('HSET', KEYS[1], 'state', 'half_open', 'trial_until', now + tonumber(ARGV[3]))
	return 1
end
local trial_until = tonumber(redis.call('HGET', KEYS[1], 'trial_until') or '0')
if now < trial_until then
	return 0
end
redis.call('HSET', KEYS[1], 'trial_until', now + tonumber(ARGV[3]))
return 1
`)

var successScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'open' then
	return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// failureScript counts consecutive failures while closed and opens the
// breaker at the threshold. A failed trial reopens it immediately.
var failureScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state') or 'closed'
if state == 'open' then
	return 'open'
end
if state == 'half_open' then
	redis.call('HSET', KEYS[1], 'state', 'open', 'opened_at', ARGV[1], 'failures', 0)
	redis.call('HDEL', KEYS[1], 'trial_until')
	return 'open'
end
local failures = redis.call('HINCRBY', KEYS[1], 'failures', 1)
if failures >= tonumber(ARGV[2]) then
	redis.call('HSET', KEYS[1], 'state', 'open', 'opened_at', ARGV[1], 'failures', 0)
	return 'open'
end
return 'closed'
`)

type Breaker struct {
	client       redis.Cmdable
	prefix       string
	threshold    int
	cooldown     time.Duration
	trialTimeout time.Duration
	now          func() time.Time
}

// New creates a breaker opening after threshold consecutive failures and
// staying open for cooldown. A half-open trial that never reports back
// is abandoned after another cooldown.
func New(client redis.Cmdable, prefix string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		client:       client,
		prefix:       prefix,
		threshold:    max(threshold, 1),
		cooldown:     cooldown,
		trialTimeout: cooldown,
		now:          time.Now,
	}
}

func (b *Breaker) key(source string) string {
	return fmt.Sprintf("%s:breaker:%s", b.prefix, source)
}

func (b *Breaker) millis() int64 {
	return b.now().UnixMilli()
}

// Allow reports whether a call to the source may proceed.
func (b *Breaker) Allow(ctx context.Context, source string) (bool, error) {
	allowed, err := allowScript.Run(ctx, b.client, []string{b.key(source)},
		b.millis(), b.cooldown.Milliseconds(), b.trialTimeout.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("breaker allow %s: %w", source, err)
	}
	return allowed == 1, nil
}

func (b *Breaker) Success(ctx context.Context, source string) error {
	return successScript.Run(ctx, b.client, []string{b.key(source)}).Err()
}

func (b *Breaker) Failure(ctx context.Context, source string) error {
	return failureScript.Run(ctx, b.client, []string{b.key(source)}, b.millis(), b.threshold).Err()
}

func (b *Breaker) State(ctx context.Context, source string) (State, error) {
	state, err := b.client.HGet(ctx, b.key(source), "state").Result()
	if errors.Is(err, redis.Nil) {
		return Closed, nil
	}
	if err != nil {
		return "", err
	}
	return State(state), nil
}

// Do runs fn guarded by the breaker. It returns errs.ErrCircuitOpen
// without calling fn when the breaker rejects the call. Cancellation of
// the caller is not held against the source.
func (b *Breaker) Do(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	allowed, err := b.Allow(ctx, source)
	if err != nil {
		return err
	}
	if !allowed {
		return errs.ErrCircuitOpen
	}

	callErr := fn(ctx)
	switch {
	case callErr == nil:
		err = b.Success(ctx, source)
	case errors.Is(callErr, context.Canceled):
		return callErr
	default:
		err = b.Failure(context.WithoutCancel(ctx), source)
	}
	if err != nil {
		return errors.Join(callErr, fmt.Errorf("breaker record %s: %w", source, err))
	}
	return callErr
}
