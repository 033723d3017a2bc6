package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrInvalidLimit is returned when a bucket definition cannot refill or hold a token.
var ErrInvalidLimit = errors.New("ratelimit: capacity and fill rate must be positive")

// Limit describes a token bucket.
type Limit struct {
	// Capacity is the maximum number of tokens the bucket holds.
	Capacity float64
	// FillRate is the number of tokens added per second.
	FillRate float64
	// DefaultCapacity is the token count of a bucket seen for the first time.
	// Zero means the bucket starts full.
	DefaultCapacity float64
}

func (l Limit) validate() error {
	if l.Capacity <= 0 || l.FillRate <= 0 || math.IsNaN(l.Capacity) || math.IsNaN(l.FillRate) {
		return ErrInvalidLimit
	}
	return nil
}

func (l Limit) initialTokens() float64 {
	if l.DefaultCapacity <= 0 || l.DefaultCapacity > l.Capacity {
		return l.Capacity
	}
	return l.DefaultCapacity
}

// refillPeriod is the time an empty bucket needs to fill up completely.
func (l Limit) refillPeriod() time.Duration {
	return time.Duration(l.Capacity / l.FillRate * float64(time.Second))
}

// waitFor returns how long it takes to accumulate one whole token starting from tokens.
func (l Limit) waitFor(tokens float64) time.Duration {
	missing := 1 - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing / l.FillRate * float64(time.Second)))
}

// Decision is the outcome of a consume attempt.
type Decision struct {
	Allowed bool
	// Wait is the time until a token is available again; zero when allowed.
	Wait time.Duration
	// Remaining is the token count left in the bucket after the attempt.
	Remaining float64
}

// Store consumes tokens from buckets identified by key.
type Store interface {
	Consume(ctx context.Context, key string, limit Limit) (Decision, error)
}

// Bucket binds a store to a single bucket definition.
type Bucket struct {
	store Store
	limit Limit
}

// NewBucket returns a bucket that consumes from store using limit for every key.
func NewBucket(store Store, limit Limit) (*Bucket, error) {
	if store == nil {
		return nil, errors.New("ratelimit: store must not be nil")
	}
	if err := limit.validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, limit: limit}, nil
}

// Consume takes one token for key.
func (b *Bucket) Consume(ctx context.Context, key string) (Decision, error) {
	return b.store.Consume(ctx, key, b.limit)
}

// Limit returns the bucket definition.
func (b *Bucket) Limit() Limit {
	return b.limit
}
