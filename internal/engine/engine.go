package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"visitor-router/internal/domain"
	"visitor-router/internal/observability"
	"visitor-router/internal/storage"
)

const defaultQuotaFanout = 8

// Engine picks the best-paying eligible target for a visitor. It holds no
// mutable state of its own; the store is the only synchronization point.
type Engine struct {
	targets *Targets
	index   *Index
	quota   *Quota

	now    func() time.Time
	fanout int
}

type Option func(*Engine)

// WithClock sets the instant used for quota days.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithQuotaFanout bounds concurrent quota reads per decision.
func WithQuotaFanout(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.fanout = n
		}
	}
}

func NewEngine(store storage.Store, opts ...Option) *Engine {
	index := NewIndex(store)
	e := &Engine{
		targets: NewTargets(store, index),
		index:   index,
		quota:   NewQuota(store),
		now:     time.Now,
		fanout:  defaultQuotaFanout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Targets() *Targets { return e.targets }

func (e *Engine) Index() *Index { return e.index }

func (e *Engine) Quota() *Quota { return e.quota }

type candidate struct {
	target domain.Target
	value  float64
}

// Decide routes v to the highest-value eligible target with quota left.
//
// Quota gating and the winner's increment are not atomic: decisions racing
// on the same target near its limit can all pass the check, so the daily
// limit is best effort. The increment itself never loses a count.
func (e *Engine) Decide(ctx context.Context, v domain.Visitor) (domain.Decision, error) {
	logger := zerolog.Ctx(ctx)
	hour := strconv.Itoa(v.Timestamp.UTC().Hour())

	ids, err := e.index.Candidates(ctx, v.GeoState, hour)
	if err != nil {
		return domain.Decision{}, err
	}
	if len(ids) == 0 {
		return domain.Reject(), nil
	}

	loaded, err := e.targets.GetMany(ctx, ids)
	if err != nil {
		return domain.Decision{}, err
	}
	// index entries can outlive a racing update; the record decides
	for i, t := range loaded {
		if t != nil && !t.Accept.Matches(v.GeoState, hour) {
			loaded[i] = nil
		}
	}

	now := e.now()
	eligible := e.withQuotaLeft(ctx, loaded, now)

	winner, ok := highestValue(eligible)
	if !ok {
		return domain.Reject(), nil
	}

	count, err := e.quota.Increment(ctx, winner.ID, now)
	if err != nil {
		return domain.Decision{}, errors.WithMessagef(err, "record accept for %s", winner.ID)
	}
	logger.Debug().
		Str("target_id", winner.ID).
		Str("geo_state", v.GeoState).
		Str("hour", hour).
		Int64("accepts_today", count).
		Msg("visitor routed")
	return domain.Accepted(winner), nil
}

// withQuotaLeft reads every candidate's counter concurrently and keeps, in
// input order, those below their daily maximum. A failed read rejects the
// candidate.
func (e *Engine) withQuotaLeft(ctx context.Context, targets []*domain.Target, now time.Time) []candidate {
	logger := zerolog.Ctx(ctx)
	keep := make([]bool, len(targets))
	values := make([]float64, len(targets))

	var g errgroup.Group
	g.SetLimit(e.fanout)
	for i, t := range targets {
		if t == nil {
			continue
		}
		i, t := i, t
		g.Go(func() error {
			maxPerDay, err := strconv.ParseInt(t.MaxAcceptsPerDay, 10, 64)
			if err != nil {
				logger.Warn().Str("target_id", t.ID).Str("max_accepts_per_day", t.MaxAcceptsPerDay).Msg("bad daily maximum")
				return nil
			}
			value, err := strconv.ParseFloat(t.Value, 64)
			if err != nil {
				logger.Warn().Str("target_id", t.ID).Str("value", t.Value).Msg("bad value")
				return nil
			}
			today, err := e.quota.CurrentCount(ctx, t.ID, now)
			if err != nil {
				observability.QuotaCheckFailures.Inc()
				logger.Warn().Err(err).Str("target_id", t.ID).Msg("quota check failed; skipping target")
				return nil
			}
			if today < maxPerDay {
				keep[i] = true
				values[i] = value
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]candidate, 0, len(targets))
	for i, t := range targets {
		if keep[i] {
			out = append(out, candidate{target: *t, value: values[i]})
		}
	}
	return out
}

// highestValue returns the first candidate with the greatest value; a later
// candidate wins only if strictly greater.
func highestValue(cs []candidate) (domain.Target, bool) {
	if len(cs) == 0 {
		return domain.Target{}, false
	}
	best := cs[0]
	for _, c := range cs[1:] {
		if c.value > best.value {
			best = c
		}
	}
	return best.target, true
}
