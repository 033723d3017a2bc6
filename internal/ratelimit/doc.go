// Package ratelimit implements the per-actor token bucket consulted before a submission is admitted.
//
// Buckets refill lazily: every consume attempt first adds elapsed*fill_rate tokens (capped at the
// capacity) and then takes one token if available. A denied attempt reports how long the caller
// has to wait until a whole token is back. Consume never blocks.
//
// RedisStore keeps bucket state in Redis and performs the read-refill-write cycle inside a single
// Lua script, so concurrent consumers on different nodes cannot both take the last token.
// MemoryStore is the single-process variant built on golang.org/x/time/rate.
package ratelimit
