package storage

import (
	"context"
	"time"
)

// Store is the capability set the routing core needs from a key-value
// backend. Absence is never an error: lookups report it with ok=false or
// an empty result.
type Store interface {
	HGet(ctx context.Context, hash, field string) (string, bool, error)
	// HMGet returns one entry per field, positionally; missing fields are "".
	HMGet(ctx context.Context, hash string, fields ...string) ([]string, error)
	HSet(ctx context.Context, hash, field, value string) error
	// HSetNX writes only if the field is absent and reports whether it wrote.
	HSetNX(ctx context.Context, hash, field, value string) (bool, error)
	HGetAll(ctx context.Context, hash string) (map[string]string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SInter(ctx context.Context, keys ...string) ([]string, error)

	Get(ctx context.Context, key string) (string, bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	// ExpireNX sets a ttl only when the key has none.
	ExpireNX(ctx context.Context, key string, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// Purger is implemented by backends without native key expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
