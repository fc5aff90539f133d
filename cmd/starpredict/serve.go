package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/star/starpredict/internal/api"
	"github.com/star/starpredict/internal/cache"
	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/propagation"
	"github.com/star/starpredict/internal/stream"
	"github.com/star/starpredict/internal/tle"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	return cmd
}

// seed fills the store before the listener starts: from the file when one is
// configured, else from the newest cached copy. An empty store is not fatal
// when fetching is enabled; /readyz reports 503 until the first fetch.
func (a *app) seed(store *tle.Store, tleCache *tle.Cache) error {
	if a.cfg.TLE.File != "" {
		ds, err := loadFile(a.cfg.TLE.File, a.logger)
		if err != nil {
			return err
		}
		store.Set(ds)
		a.logger.Info("loaded catalog from file", "path", a.cfg.TLE.File, "count", len(ds.Satellites))
		return nil
	}

	ds, err := tleCache.LoadDataset(a.logger)
	switch {
	case err == nil && len(ds.Satellites) > 0:
		store.Set(ds)
		a.logger.Info("loaded catalog from cache", "count", len(ds.Satellites), "cached_at", ds.FetchedAt.Format(time.RFC3339))
		return nil
	case err != nil && !errors.Is(err, tle.ErrNoCache):
		a.logger.Warn("failed to load cached catalog", "error", err)
	}
	if !a.cfg.TLE.EnableFetch {
		return errNoCatalog
	}
	a.logger.Info("no cached catalog, waiting for the first fetch")
	return nil
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg := a.cfg
	logger := a.logger

	store := tle.NewStore()
	tleCache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)
	if err := a.seed(store, tleCache); err != nil {
		return err
	}

	catalog := propagation.NewCatalog(store, cfg.Workers, logger)
	sampler := a.sampler()
	snapshots := cache.New(cache.Config{Step: cfg.Stream.Step, Buffer: cfg.Stream.Buffer}, catalog, logger)
	streamHandler := stream.NewHandler(snapshots, store, stream.Config{
		MaxConcurrentPerIP: cfg.Stream.MaxPerIP,
		KeepaliveInterval:  cfg.Stream.Keepalive,
		TrustProxy:         cfg.HTTP.TrustProxy,
	}, logger)

	srv := api.NewServer(cfg, api.Deps{
		Store:      store,
		Catalog:    catalog,
		Sampler:    sampler,
		Passes:     a.scanner(),
		Visibility: a.visibility(),
		Stream:     streamHandler,
	}, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		snapshots.Start(gctx)
		return nil
	})

	if cfg.TLE.EnableFetch && cfg.TLE.File == "" {
		r := &refresher{
			store:    store,
			fetcher:  tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraSourceURLs...),
			cache:    tleCache,
			interval: cfg.TLE.RefreshInterval,
			logger:   logger,
		}
		g.Go(func() error {
			r.run(gctx)
			return nil
		})
	}

	// Catalog age gauge.
	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"tle_fetch_enabled", cfg.TLE.EnableFetch,
			"max_iterations", cfg.Search.MaxIterations,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server listen error")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
