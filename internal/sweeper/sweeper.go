package sweeper

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"visitor-router/internal/observability"
	"visitor-router/internal/storage"
)

// Run purges expired daily counters every interval (jittered) until ctx is
// done. Backends with native expiry never need it.
func Run(ctx context.Context, p storage.Purger, interval time.Duration) {
	log.Info().Dur("interval", interval).Msg("expired counter sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopped")
			return
		case <-time.After(jitter(interval)):
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error().Err(err).Msg("purge expired counters")
				continue
			}
			if n > 0 {
				observability.ExpiredPurged.Add(float64(n))
				log.Debug().Int64("purged", n).Msg("expired counters removed")
			}
		}
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x–1.5x
	return time.Duration(float64(base) * factor)
}
