package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitor-router/internal/domain"
	"visitor-router/internal/storage"
)

func newTestEngine(t *testing.T, store storage.Store, targets ...domain.Target) *Engine {
	t.Helper()
	e := NewEngine(store, WithClock(func() time.Time { return day }))
	for _, target := range targets {
		_, err := e.Targets().Add(context.Background(), target)
		require.NoError(t, err)
	}
	return e
}

func visitorAt(region string, ts time.Time) domain.Visitor {
	return domain.Visitor{GeoState: region, Publisher: "abc", Timestamp: ts}
}

func TestDecide_Scenarios(t *testing.T) {
	nyAt18 := []string{"18"}
	tests := []struct {
		name    string
		targets []domain.Target
		visitor domain.Visitor
		wantURL string // empty means reject
	}{
		{
			name:    "zero quota never accepts",
			targets: []domain.Target{newTarget("1", "0.80", "0", []string{"ny"}, nyAt18)},
			visitor: visitorAt("ny", day),
		},
		{
			name: "highest value wins",
			targets: []domain.Target{
				newTarget("1", "0.80", "0", []string{"ny"}, nyAt18),
				newTarget("2", "0.80", "10", []string{"ca"}, []string{"22"}),
				newTarget("3", "1.3", "10", []string{"ny"}, nyAt18),
				newTarget("4", "2.4", "10", []string{"ny"}, nyAt18),
			},
			visitor: visitorAt("ny", day),
			wantURL: "target4.com",
		},
		{
			name:    "no region match",
			targets: []domain.Target{newTarget("1", "1", "10", []string{"ca"}, nyAt18)},
			visitor: visitorAt("ny", day),
		},
		{
			name:    "no hour match",
			targets: []domain.Target{newTarget("1", "1", "10", []string{"ny"}, []string{"17"})},
			visitor: visitorAt("ny", day),
		},
		{
			name:    "hour taken in UTC",
			targets: []domain.Target{newTarget("1", "1", "10", []string{"ny"}, []string{"23"})},
			visitor: visitorAt("ny", time.Date(2018, 7, 13, 18, 5, 0, 0, time.FixedZone("EST", -5*3600))),
			wantURL: "target1.com",
		},
		{
			name:    "midnight is hour 0",
			targets: []domain.Target{newTarget("1", "1", "10", []string{"ny"}, []string{"0"})},
			visitor: visitorAt("ny", time.Date(2018, 7, 13, 0, 30, 0, 0, time.UTC)),
			wantURL: "target1.com",
		},
		{
			name: "values compare numerically",
			targets: []domain.Target{
				newTarget("1", "10", "10", []string{"ny"}, nyAt18),
				newTarget("2", "9.5", "10", []string{"ny"}, nyAt18),
			},
			visitor: visitorAt("ny", day),
			wantURL: "target1.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, storage.NewMemory(), tt.targets...)

			got, err := e.Decide(context.Background(), tt.visitor)
			require.NoError(t, err)
			if tt.wantURL == "" {
				assert.Equal(t, domain.Reject(), got)
				return
			}
			assert.Equal(t, tt.wantURL, got.URL)
			assert.Empty(t, got.Decision)
		})
	}
}

func TestDecide_TieGoesToFirstInIndexOrder(t *testing.T) {
	// the memory store enumerates intersections in sorted id order
	e := newTestEngine(t, storage.NewMemory(),
		newTarget("b", "1.5", "10", []string{"ny"}, []string{"18"}),
		newTarget("a", "1.5", "10", []string{"ny"}, []string{"18"}),
		newTarget("c", "1.5", "10", []string{"ny"}, []string{"18"}),
	)
	for i := 0; i < 5; i++ {
		got, err := e.Decide(context.Background(), visitorAt("ny", day))
		require.NoError(t, err)
		assert.Equal(t, "targeta.com", got.URL)
	}
}

func TestDecide_QuotaExhaustionFallsThrough(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, storage.NewMemory(),
		newTarget("1", "5", "2", []string{"ny"}, []string{"18"}),
		newTarget("2", "1", "1", []string{"ny"}, []string{"18"}),
	)

	var urls []string
	for i := 0; i < 4; i++ {
		got, err := e.Decide(ctx, visitorAt("ny", day))
		require.NoError(t, err)
		urls = append(urls, got.URL+got.Decision)
	}
	assert.Equal(t, []string{"target1.com", "target1.com", "target2.com", "reject"}, urls)

	n, err := e.Quota().CurrentCount(ctx, "1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDecide_QuotaResetsNextDay(t *testing.T) {
	ctx := context.Background()
	now := day
	mem := storage.NewMemoryWithClock(func() time.Time { return now })
	e := NewEngine(mem, WithClock(func() time.Time { return now }))
	_, err := e.Targets().Add(ctx, newTarget("1", "1", "1", []string{"ny"}, []string{"18"}))
	require.NoError(t, err)

	got, err := e.Decide(ctx, visitorAt("ny", day))
	require.NoError(t, err)
	assert.Equal(t, "target1.com", got.URL)

	got, err = e.Decide(ctx, visitorAt("ny", day))
	require.NoError(t, err)
	assert.True(t, got.Rejected())

	now = day.Add(24 * time.Hour)
	got, err = e.Decide(ctx, visitorAt("ny", now))
	require.NoError(t, err)
	assert.Equal(t, "target1.com", got.URL)
}

func TestDecide_RejectDoesNotTouchCounters(t *testing.T) {
	cs := &countingStore{Store: storage.NewMemory()}
	e := newTestEngine(t, cs, newTarget("1", "1", "10", []string{"ca"}, []string{"18"}))

	got, err := e.Decide(context.Background(), visitorAt("ny", day))
	require.NoError(t, err)
	assert.True(t, got.Rejected())
	assert.Zero(t, cs.incrs)
}

func TestDecide_SkipsStaleIndexEntries(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	e := newTestEngine(t, mem, newTarget("1", "1", "10", []string{"ny"}, []string{"18"}))
	require.NoError(t, mem.SAdd(ctx, RegionKey("ny"), "ghost"))
	require.NoError(t, mem.SAdd(ctx, HourKey("18"), "ghost"))

	got, err := e.Decide(ctx, visitorAt("ny", day))
	require.NoError(t, err)
	assert.Equal(t, "target1.com", got.URL)
}

func TestDecide_IgnoresMembershipsTheRecordNoLongerHas(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	e := newTestEngine(t, mem,
		newTarget("1", "5", "10", []string{"ca"}, []string{"18"}),
		newTarget("2", "1", "10", []string{"ny"}, []string{"18"}),
	)
	// left behind by a lost update race
	require.NoError(t, mem.SAdd(ctx, RegionKey("ny"), "1"))

	got, err := e.Decide(ctx, visitorAt("ny", day))
	require.NoError(t, err)
	assert.Equal(t, "target2.com", got.URL)
}

func TestDecide_FailsClosed(t *testing.T) {
	ctx := context.Background()

	t.Run("quota read failure rejects candidate", func(t *testing.T) {
		fs := &failingStore{Store: storage.NewMemory()}
		e := newTestEngine(t, fs, newTarget("1", "1", "10", []string{"ny"}, []string{"18"}))
		fs.failGet = true

		got, err := e.Decide(ctx, visitorAt("ny", day))
		require.NoError(t, err)
		assert.True(t, got.Rejected())
	})

	t.Run("increment failure fails decision", func(t *testing.T) {
		fs := &failingStore{Store: storage.NewMemory()}
		e := newTestEngine(t, fs, newTarget("1", "1", "10", []string{"ny"}, []string{"18"}))
		fs.failIncr = true

		_, err := e.Decide(ctx, visitorAt("ny", day))
		assert.ErrorIs(t, err, errBoom)
	})
}

func TestDecide_ConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, storage.NewMemory(), newTarget("1", "1", "1000", []string{"ny"}, []string{"18"}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Decide(ctx, visitorAt("ny", day))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := e.Quota().CurrentCount(ctx, "1", day)
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)
}

// The daily maximum is checked before the winner is counted, without a
// reservation. Concurrent decisions near the limit may overshoot it; this
// test pins the accepted contract: at least the limit is served and every
// accept is counted.
func TestDecide_QuotaIsBestEffortUnderRace(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, storage.NewMemory(), newTarget("1", "1", "3", []string{"ny"}, []string{"18"}))

	const n = 40
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.Decide(ctx, visitorAt("ny", day))
			assert.NoError(t, err)
			if !got.Rejected() {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	count, err := e.Quota().CurrentCount(ctx, "1", day)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, accepted, int64(3))
	assert.Equal(t, accepted, count)
}

func TestHighestValue(t *testing.T) {
	_, ok := highestValue(nil)
	assert.False(t, ok)

	cs := []candidate{
		{target: domain.Target{ID: "a"}, value: 1},
		{target: domain.Target{ID: "b"}, value: 3},
		{target: domain.Target{ID: "c"}, value: 3},
		{target: domain.Target{ID: "d"}, value: 2},
	}
	got, ok := highestValue(cs)
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)
}
