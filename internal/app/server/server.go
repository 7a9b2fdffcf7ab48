package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"visitor-router/internal/api"
	"visitor-router/internal/config"
	"visitor-router/internal/engine"
	"visitor-router/internal/storage"
	"visitor-router/internal/sweeper"
)

// OpenStore connects the backend named by store.backend.
func OpenStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		return storage.NewRedis(ctx, cfg)
	case config.BackendPostgres:
		return storage.NewPostgres(ctx, cfg)
	case config.BackendMemory:
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func NewEngine(store storage.Store, cfg config.Config) *engine.Engine {
	return engine.NewEngine(store, engine.WithQuotaFanout(cfg.Decision.QuotaFanout))
}

func Run(cfg config.Config) error {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := OpenStore(rootCtx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()
	log.Info().Str("backend", cfg.Store.Backend).Msg("store ready")

	// Engine
	eng := NewEngine(store, cfg)

	// HTTP
	h := api.NewHandler(eng, store)
	r := api.Router(h, log.Logger, cfg.RequestTimeout())

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Expired counters need sweeping where the backend has no native ttl
	if p, ok := store.(storage.Purger); ok {
		go sweeper.Run(rootCtx, p, cfg.SweepInterval())
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-waitForSignal():
		log.Info().Msg("shutdown...")
	case err := <-errc:
		return fmt.Errorf("server crashed: %w", err)
	}

	// Graceful shutdown
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	cancel() // stop background goroutines
	return srv.Shutdown(shCtx)
}

func waitForSignal() <-chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	return c
}
