// Package ratelimit paces calls to each source with a token bucket kept in
// Redis, shared by all worker processes.
package ratelimit

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

// takeScript refills the bucket for the elapsed time and takes one token.
var takeScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local ts = tonumber(redis.call('HGET', KEYS[1], 'ts'))
if tokens == nil or ts == nil then
	tokens = burst
	ts = now
end
tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)
local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(now))
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return allowed
`)

// Rate is a refill speed and bucket size.
type Rate struct {
	PerMinute int
	Burst     int
}

type Limiter struct {
	client redis.Cmdable
	prefix string
	rates  map[string]Rate
	now    func() time.Time
}

func New(client redis.Cmdable, prefix string, rates map[string]Rate) *Limiter {
	return &Limiter{client: client, prefix: prefix, rates: rates, now: time.Now}
}

// Allow takes a token for the source. Sources without a configured rate
// are never limited.
func (l *Limiter) Allow(ctx context.Context, source string) (bool, error) {
	rate, ok := l.rates[source]
	if !ok || rate.PerMinute <= 0 {
		return true, nil
	}
	burst := max(rate.Burst, 1)
	perMilli := float64(rate.PerMinute) / float64(time.Minute.Milliseconds())
	// keep the bucket around long enough to refill completely
	ttl := time.Duration(float64(burst)/perMilli)*time.Millisecond + time.Minute

	allowed, err := takeScript.Run(ctx, l.client, []string{fmt.Sprintf("%s:ratelimit:%s", l.prefix, source)},
		perMilli, burst, l.now().UnixMilli(), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", source, err)
	}
	return allowed == 1, nil
}
