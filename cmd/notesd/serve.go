package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/tagnotes/internal/api"
	"github.com/kuitang/tagnotes/internal/cache"
	"github.com/kuitang/tagnotes/internal/db"
	"github.com/kuitang/tagnotes/internal/metrics"
	"github.com/kuitang/tagnotes/internal/notes"
	"github.com/kuitang/tagnotes/internal/obs"
	"github.com/kuitang/tagnotes/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			c.cfg.PrintStartupSummary(cmd.ErrOrStderr())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
	cmd.Flags().StringVar(&c.overrides.ListenAddr, "addr", "", "Listen address (overrides LISTEN_ADDR)")
	return cmd
}

// serve runs until ctx is cancelled, then drains in-flight requests and
// closes the store.
func serve(ctx context.Context, c *cli) error {
	cfg := c.cfg
	log := obs.Pkg("notesd")

	store, err := db.Open(ctx, cfg.DBOptions())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	m := metrics.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.RegisterCollectors(reg)

	opts := []notes.Option{notes.WithObserver(m)}
	health := map[string]api.Pinger{"database": store}
	if cfg.RedisAddr != "" {
		rc, err := cache.Connect(ctx, cfg.CacheConfig())
		if err != nil {
			return err
		}
		defer rc.Close()
		opts = append(opts, notes.WithCache(rc))
		health["cache"] = rc
	}

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewRateLimiter(cfg.RateLimitConfig)
		defer limiter.Stop()
	}

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: api.NewRouter(api.Deps{
			Notes:    notes.NewService(store, opts...),
			Health:   health,
			Metrics:  m,
			Gatherer: reg,
			Limiter:  limiter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr, "driver", string(cfg.DatabaseDriver))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		return err
	}
	return nil
}
