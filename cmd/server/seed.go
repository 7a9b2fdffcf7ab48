package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"visitor-router/internal/app/server"
	"visitor-router/internal/config"
	"visitor-router/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create or update targets from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := checkSeedBackend(cfg); err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")

		targets, err := seed.Load(file)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := server.OpenStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := seed.Apply(ctx, server.NewEngine(store, cfg).Targets(), targets)
		log.Info().Int("created", res.Created).Int("updated", res.Updated).Msg("seed finished")
		return err
	},
}

// checkSeedBackend refuses the in-process memory store: the seeded targets
// would vanish when the command exits.
func checkSeedBackend(cfg config.Config) error {
	if cfg.Store.Backend == config.BackendMemory {
		return errors.Errorf("seed needs a shared store, %q keeps targets only for the life of this process", cfg.Store.Backend)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().StringP("file", "f", "targets.yaml", "seed file")
}
