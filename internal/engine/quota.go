package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"visitor-router/internal/storage"
)

// Quota counts accepted decisions per target per UTC day.
type Quota struct {
	store storage.Store
}

func NewQuota(store storage.Store) *Quota { return &Quota{store: store} }

// Increment bumps today's counter. The first increment of the day sets the
// key to expire at the next UTC midnight; later ones leave the ttl alone.
func (q *Quota) Increment(ctx context.Context, targetID string, asOf time.Time) (int64, error) {
	key := quotaKey(targetID, asOf)
	value, err := q.store.Incr(ctx, key)
	if err != nil {
		return 0, errors.WithMessage(err, "increment quota")
	}

	if value == 1 {
		if err := q.store.ExpireNX(ctx, key, untilMidnight(asOf)); err != nil {
			return 0, errors.WithMessage(err, "expire quota")
		}
	}
	return value, nil
}

// CurrentCount is zero when nothing was accepted yet that day.
func (q *Quota) CurrentCount(ctx context.Context, targetID string, asOf time.Time) (int64, error) {
	raw, ok, err := q.store.Get(ctx, quotaKey(targetID, asOf))
	if err != nil {
		return 0, errors.WithMessage(err, "read quota")
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Errorf("quota for %s is not a number: %q", targetID, raw)
	}
	return n, nil
}

func quotaKey(targetID string, asOf time.Time) string {
	return fmt.Sprintf("target:%s:accepts:%s", targetID, asOf.UTC().Format("2006-01-02"))
}

func untilMidnight(asOf time.Time) time.Duration {
	t := asOf.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
	d := midnight.Sub(t).Truncate(time.Second)
	if d < time.Second {
		d = time.Second
	}
	return d
}
