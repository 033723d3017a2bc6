package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "token_bucket:"

// consumeScript refills and consumes atomically.
// KEYS[1] bucket hash; ARGV capacity, fill rate, initial tokens, now (ms), ttl (s).
var consumeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local fill_rate = tonumber(ARGV[2])
local initial = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
	tokens = initial
	last = now
end

if now > last then
	tokens = math.min(capacity, tokens + (now - last) / 1000 * fill_rate)
	last = now
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last', tostring(last))
redis.call('EXPIRE', KEYS[1], ttl)
return {allowed, tostring(tokens)}
`)

// RedisStore keeps token buckets in Redis hashes.
type RedisStore struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// RedisStoreOption customises a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the "token_bucket:" key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithClock overrides the time source used for refills.
func WithClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

// NewRedisStore builds a store backed by client.
func NewRedisStore(client redis.Scripter, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Consume implements Store.
func (s *RedisStore) Consume(ctx context.Context, key string, limit Limit) (Decision, error) {
	if err := limit.validate(); err != nil {
		return Decision{}, err
	}

	ttl := int64(math.Ceil(limit.refillPeriod().Seconds())) * 2
	if ttl < 1 {
		ttl = 1
	}

	raw, err := consumeScript.Run(ctx, s.client, []string{s.prefix + key},
		formatFloat(limit.Capacity),
		formatFloat(limit.FillRate),
		formatFloat(limit.initialTokens()),
		s.now().UnixMilli(),
		ttl,
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("consume token bucket %q: %w", key, err)
	}
	if len(raw) != 2 {
		return Decision{}, fmt.Errorf("consume token bucket %q: unexpected reply %v", key, raw)
	}

	allowed, _ := raw[0].(int64)
	tokensText, _ := raw[1].(string)
	tokens, err := strconv.ParseFloat(tokensText, 64)
	if err != nil {
		return Decision{}, fmt.Errorf("consume token bucket %q: parse tokens: %w", key, err)
	}

	if allowed == 1 {
		return Decision{Allowed: true, Remaining: tokens}, nil
	}
	return Decision{Allowed: false, Wait: limit.waitFor(tokens), Remaining: tokens}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
