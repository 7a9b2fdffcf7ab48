package engine

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"visitor-router/internal/domain"
	"visitor-router/internal/storage"
)

const targetsHash = "targets"

// Targets is the source of truth for target records. Every write keeps
// the eligibility index in step before returning.
type Targets struct {
	store storage.Store
	index *Index
}

func NewTargets(store storage.Store, index *Index) *Targets {
	return &Targets{store: store, index: index}
}

// Add creates t and indexes it. An existing id is a conflict and is left untouched.
func (s *Targets) Add(ctx context.Context, t domain.Target) (domain.Target, error) {
	if err := domain.Validate(t); err != nil {
		return domain.Target{}, err
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return domain.Target{}, errors.WithMessage(err, "encode target")
	}

	created, err := s.store.HSetNX(ctx, targetsHash, t.ID, string(raw))
	if err != nil {
		return domain.Target{}, errors.WithMessage(err, "store target")
	}
	if !created {
		return domain.Target{}, errors.WithMessagef(domain.ErrConflict, "target %s already exists", t.ID)
	}

	if err := s.index.AddMemberships(ctx, t.ID, t.Accept); err != nil {
		return domain.Target{}, err
	}
	return t, nil
}

func (s *Targets) Get(ctx context.Context, id string) (domain.Target, bool, error) {
	raw, ok, err := s.store.HGet(ctx, targetsHash, id)
	if err != nil {
		return domain.Target{}, false, errors.WithMessage(err, "load target")
	}
	if !ok {
		return domain.Target{}, false, nil
	}
	var t domain.Target
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return domain.Target{}, false, errors.WithMessagef(err, "decode target %s", id)
	}
	return t, true, nil
}

// GetMany returns one entry per id, in order. Unknown or unreadable ids
// come back as nil.
func (s *Targets) GetMany(ctx context.Context, ids []string) ([]*domain.Target, error) {
	out := make([]*domain.Target, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raws, err := s.store.HMGet(ctx, targetsHash, ids...)
	if err != nil {
		return nil, errors.WithMessage(err, "load targets")
	}
	for i, raw := range raws {
		if raw == "" {
			continue
		}
		var t domain.Target
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("target_id", ids[i]).Msg("skipping unreadable target")
			continue
		}
		out[i] = &t
	}
	return out, nil
}

// Update replaces the record stored under id and reconciles the index. A
// reconcile failure fails the update even though the record was written.
func (s *Targets) Update(ctx context.Context, id string, t domain.Target) (domain.Target, error) {
	if t.ID != id {
		return domain.Target{}, domain.Invalid("body id %q does not match path id %q", t.ID, id)
	}
	if err := domain.Validate(t); err != nil {
		return domain.Target{}, err
	}

	old, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Target{}, err
	}
	if !ok {
		return domain.Target{}, errors.WithMessagef(domain.ErrNotFound, "target %s", id)
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return domain.Target{}, errors.WithMessage(err, "encode target")
	}
	if err := s.store.HSet(ctx, targetsHash, id, string(raw)); err != nil {
		return domain.Target{}, errors.WithMessage(err, "store target")
	}

	if err := s.index.Reconcile(ctx, id, old.Accept, t.Accept); err != nil {
		return domain.Target{}, errors.WithMessagef(err, "reconcile index for %s", id)
	}

	// A concurrent update may have replaced our record after the write. Its
	// reconcile never saw our memberships, so move them onto what is stored now.
	stored, ok, err := s.Get(ctx, id)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("target_id", id).Msg("index recheck after update failed")
		return t, nil
	}
	if !ok {
		return t, nil
	}
	if !reflect.DeepEqual(stored.Accept, t.Accept) {
		if err := s.index.Reconcile(ctx, id, t.Accept, stored.Accept); err != nil {
			return domain.Target{}, errors.WithMessagef(err, "reconcile index for %s", id)
		}
	}
	return t, nil
}

// GetAll returns every stored target in no particular order.
func (s *Targets) GetAll(ctx context.Context) ([]domain.Target, error) {
	raws, err := s.store.HGetAll(ctx, targetsHash)
	if err != nil {
		return nil, errors.WithMessage(err, "load targets")
	}
	out := make([]domain.Target, 0, len(raws))
	for id, raw := range raws {
		var t domain.Target
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, errors.WithMessagef(err, "decode target %s", id)
		}
		out = append(out, t)
	}
	return out, nil
}
