package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"visitor-router/internal/domain"
	"visitor-router/internal/engine"
)

// File is the layout of a seed document:
//
//	targets:
//	  - id: "1"
//	    url: http://example.com
//	    value: "0.50"
//	    maxAcceptsPerDay: "10"
//	    accept:
//	      geoState: {$in: [ca, ny]}
//	      hour: {$in: ["13", "14"]}
type File struct {
	Targets []domain.Target `yaml:"targets"`
}

func Load(path string) ([]domain.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file %s: %w", path, err)
	}
	defer f.Close()

	var doc File
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode seed file %s: %w", path, err)
	}
	return doc.Targets, nil
}

type Result struct {
	Created int
	Updated int
}

// Apply creates each target, falling back to an update when the id exists.
// It stops at the first failure.
func Apply(ctx context.Context, targets *engine.Targets, list []domain.Target) (Result, error) {
	var res Result
	for _, t := range list {
		_, err := targets.Add(ctx, t)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, domain.ErrConflict):
			if _, err := targets.Update(ctx, t.ID, t); err != nil {
				return res, errors.WithMessagef(err, "update %s", t.ID)
			}
			res.Updated++
		default:
			return res, errors.WithMessagef(err, "create %s", t.ID)
		}
		log.Debug().Str("target_id", t.ID).Msg("seeded target")
	}
	return res, nil
}
