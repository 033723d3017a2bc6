package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryStore keeps one rate.Limiter per key inside the process.
// Capacities are truncated to whole tokens.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	idleTTL time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// MemoryStoreOption customises a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithIdleTTL sets how long an untouched bucket survives Cleanup.
func WithIdleTTL(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.idleTTL = d }
}

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Consume implements Store.
func (s *MemoryStore) Consume(_ context.Context, key string, limit Limit) (Decision, error) {
	if err := limit.validate(); err != nil {
		return Decision{}, err
	}

	now := s.now()
	lim := s.limiter(key, limit, now)

	if lim.AllowN(now, 1) {
		return Decision{Allowed: true, Remaining: lim.TokensAt(now)}, nil
	}

	tokens := lim.TokensAt(now)
	return Decision{Allowed: false, Wait: limit.waitFor(tokens), Remaining: tokens}, nil
}

func (s *MemoryStore) limiter(key string, limit Limit, now time.Time) *rate.Limiter {
	burst := int(math.Floor(limit.Capacity))
	if burst < 1 {
		burst = 1
	}
	every := rate.Limit(limit.FillRate)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		if ent.lim.Burst() != burst {
			ent.lim.SetBurstAt(now, burst)
		}
		if ent.lim.Limit() != every {
			ent.lim.SetLimitAt(now, every)
		}
		return ent.lim
	}

	lim := rate.NewLimiter(every, burst)
	if deficit := burst - int(math.Floor(limit.initialTokens())); deficit > 0 {
		lim.ReserveN(now, deficit)
	}
	s.entries[key] = &memoryEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops buckets idle for longer than the idle TTL.
func (s *MemoryStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor runs Cleanup every interval until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
