package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/tle"
)

// errNoCatalog is returned when no source yielded a dataset.
var errNoCatalog = errors.New("no catalog available: pass --tle-file, enable --fetch or populate the cache")

// loadFile reads a catalog file.
func loadFile(path string, logger *slog.Logger) (*tle.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading catalog file")
	}
	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if len(entries) == 0 {
		return nil, errors.Errorf("%s holds no valid element sets", path)
	}

	fetchedAt := time.Now().UTC()
	if st, err := os.Stat(path); err == nil {
		fetchedAt = st.ModTime().UTC()
	}
	return tle.NewDataset("file:"+path, fetchedAt, entries), nil
}

// fetchDataset downloads the catalog and writes it to the cache. A cache
// write failure is logged and does not fail the fetch.
func fetchDataset(ctx context.Context, fetcher *tle.Fetcher, cache *tle.Cache, logger *slog.Logger) (*tle.Dataset, error) {
	data, err := fetcher.Fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching catalog")
	}
	entries, err := tle.Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, errors.Wrap(err, "parsing fetched catalog")
	}
	if len(entries) == 0 {
		return nil, errors.Errorf("%s returned no valid element sets", fetcher.SourceURL())
	}

	now := time.Now().UTC()
	if err := cache.Write(data, now); err != nil {
		logger.Warn("failed to cache catalog", "error", err)
	}
	return tle.NewDataset(fetcher.SourceURL(), now, entries), nil
}

// loadDataset picks the catalog for a one-shot command: the file when one is
// configured, else a fresh fetch when enabled, else the newest cached copy.
// A failed fetch falls back to the cache.
func loadDataset(ctx context.Context, cfg config.TLE, logger *slog.Logger) (*tle.Dataset, error) {
	if cfg.File != "" {
		return loadFile(cfg.File, logger)
	}

	cache := tle.NewCache(cfg.CacheDir, cfg.MaxFiles)
	if cfg.EnableFetch {
		fetcher := tle.NewFetcher(cfg.SourceURL, logger, cfg.ExtraSourceURLs...)
		ds, err := fetchDataset(ctx, fetcher, cache, logger)
		if err == nil {
			return ds, nil
		}
		logger.Warn("catalog fetch failed, trying cache", "error", err)
	}

	ds, err := cache.LoadDataset(logger)
	if errors.Is(err, tle.ErrNoCache) {
		return nil, errNoCatalog
	}
	if err != nil {
		return nil, err
	}
	if len(ds.Satellites) == 0 {
		return nil, errNoCatalog
	}
	return ds, nil
}

// refresher keeps a store current for the service.
type refresher struct {
	store    *tle.Store
	fetcher  *tle.Fetcher
	cache    *tle.Cache
	interval time.Duration
	logger   *slog.Logger
}

// refresh fetches once and swaps the dataset in on success.
func (r *refresher) refresh(ctx context.Context) error {
	r.store.Lock()
	defer r.store.Unlock()

	ds, err := fetchDataset(ctx, r.fetcher, r.cache, r.logger)
	if err != nil {
		return err
	}
	r.store.Set(ds)
	metrics.SetCatalogAge(r.store.AgeSeconds())
	r.logger.Info("catalog refreshed", "source", ds.Source, "count", len(ds.Satellites))
	return nil
}

// run refreshes immediately when the store is empty or stale, then on every
// interval until ctx is done.
func (r *refresher) run(ctx context.Context) {
	if age := r.store.AgeSeconds(); age < 0 || age > r.interval.Seconds() {
		if err := r.refresh(ctx); err != nil {
			r.logger.Warn("initial catalog fetch failed", "error", err)
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.refresh(ctx); err != nil {
				r.logger.Warn("catalog refresh failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
