package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"visitor-router/internal/domain"
	"visitor-router/internal/storage"
)

var day = time.Date(2018, 7, 13, 18, 28, 59, 0, time.UTC)

func newTarget(id, value, maxPerDay string, regions, hours []string) domain.Target {
	return domain.Target{
		ID:               id,
		URL:              "target" + id + ".com",
		Value:            value,
		MaxAcceptsPerDay: maxPerDay,
		Accept: domain.Accept{
			GeoState: domain.Criteria{In: regions},
			Hour:     domain.HourCriteria{In: hours},
		},
	}
}

// failingStore wraps a Store and fails selected primitives.
type failingStore struct {
	storage.Store
	failSRem bool
	failGet  bool
	failIncr bool
}

var errBoom = errors.New("boom")

func (f *failingStore) SRem(ctx context.Context, key string, members ...string) error {
	if f.failSRem {
		return errBoom
	}
	return f.Store.SRem(ctx, key, members...)
}

func (f *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failGet {
		return "", false, errBoom
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Incr(ctx context.Context, key string) (int64, error) {
	if f.failIncr {
		return 0, errBoom
	}
	return f.Store.Incr(ctx, key)
}

// countingStore counts counter writes.
type countingStore struct {
	storage.Store
	incrs   int
	expires int
}

func (c *countingStore) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	c.expires++
	return c.Store.ExpireNX(ctx, key, ttl)
}

func (c *countingStore) Incr(ctx context.Context, key string) (int64, error) {
	c.incrs++
	return c.Store.Incr(ctx, key)
}

// racingStore lets a competing update land right after the first HSet,
// the way a second writer that read the same old record would.
type racingStore struct {
	storage.Store
	compete func(ctx context.Context)
}

func (r *racingStore) HSet(ctx context.Context, hash, field, value string) error {
	if err := r.Store.HSet(ctx, hash, field, value); err != nil {
		return err
	}
	if compete := r.compete; compete != nil {
		r.compete = nil
		compete(ctx)
	}
	return nil
}
