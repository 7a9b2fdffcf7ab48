package engine

import (
	"context"

	"github.com/pkg/errors"

	"visitor-router/internal/domain"
	"visitor-router/internal/storage"
)

// indexTag is a redis cluster hash tag: every index set lands in the same
// slot so SINTER across a region set and an hour set never fails with CROSSSLOT.
const indexTag = "{idx}"

func RegionKey(code string) string { return indexTag + "region:" + code }

func HourKey(hour string) string { return indexTag + "hour:" + hour }

// Index keeps one set of target ids per region code and per hour.
// Eligibility is the intersection of the two sets.
type Index struct {
	store storage.Store
}

func NewIndex(store storage.Store) *Index { return &Index{store: store} }

// AddMemberships is idempotent.
func (ix *Index) AddMemberships(ctx context.Context, targetID string, accept domain.Accept) error {
	for _, key := range keysOf(accept) {
		if err := ix.store.SAdd(ctx, key, targetID); err != nil {
			return errors.WithMessagef(err, "index %s", key)
		}
	}
	return nil
}

func (ix *Index) RemoveMemberships(ctx context.Context, targetID string, accept domain.Accept) error {
	for _, key := range keysOf(accept) {
		if err := ix.store.SRem(ctx, key, targetID); err != nil {
			return errors.WithMessagef(err, "unindex %s", key)
		}
	}
	return nil
}

// Reconcile moves a target from old to current criteria: memberships only
// old implies are removed, then every current membership is (re)added.
func (ix *Index) Reconcile(ctx context.Context, targetID string, old, current domain.Accept) error {
	keep := map[string]struct{}{}
	for _, key := range keysOf(current) {
		keep[key] = struct{}{}
	}
	for _, key := range keysOf(old) {
		if _, ok := keep[key]; ok {
			continue
		}
		if err := ix.store.SRem(ctx, key, targetID); err != nil {
			return errors.WithMessagef(err, "unindex %s", key)
		}
	}
	return ix.AddMemberships(ctx, targetID, current)
}

// Candidates returns the ids eligible for region at hour, in store order.
// A missing set on either side yields an empty result.
func (ix *Index) Candidates(ctx context.Context, region, hour string) ([]string, error) {
	ids, err := ix.store.SInter(ctx, RegionKey(region), HourKey(hour))
	if err != nil {
		return nil, errors.WithMessage(err, "intersect candidates")
	}
	return ids, nil
}

func keysOf(accept domain.Accept) []string {
	keys := make([]string, 0, len(accept.GeoState.In)+len(accept.Hour.In))
	for _, code := range accept.GeoState.In {
		keys = append(keys, RegionKey(code))
	}
	for _, h := range accept.Hour.In {
		keys = append(keys, HourKey(h))
	}
	return keys
}
