package propagation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/tle"
)

var (
	// ErrNoDataset is returned when the catalog store is still empty.
	ErrNoDataset = errors.New("no TLE dataset loaded")
	// ErrUnknownSatellite is returned for a catalog number not in the dataset.
	ErrUnknownSatellite = errors.New("satellite not in catalog")
)

// orbitCache holds initialized orbits for one dataset. Immutable after
// construction; safe for concurrent reads.
type orbitCache struct {
	orbits    map[int]*Orbit
	order     []int
	fetchedAt time.Time
	source    string
}

// Catalog serves initialized orbits for the dataset currently in a store,
// rebuilding them only when the dataset changes.
type Catalog struct {
	store   *tle.Store
	pool    *WorkerPool
	logger  *slog.Logger
	cache   atomic.Pointer[orbitCache]
	cacheMu sync.Mutex // serializes cache rebuilds
}

// NewCatalog creates a Catalog over store. workers sizes the snapshot pool.
func NewCatalog(store *tle.Store, workers int, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		pool:   NewWorkerPool(workers, logger),
		logger: logger,
	}
}

// current returns the orbit cache for the store's dataset (double-checked
// locking on the dataset fetch time and source).
func (c *Catalog) current() (*orbitCache, error) {
	ds := c.store.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}
	if oc := c.cache.Load(); oc != nil && oc.fetchedAt.Equal(ds.FetchedAt) && oc.source == ds.Source {
		return oc, nil
	}

	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if oc := c.cache.Load(); oc != nil && oc.fetchedAt.Equal(ds.FetchedAt) && oc.source == ds.Source {
		return oc, nil
	}

	oc := &orbitCache{
		orbits:    make(map[int]*Orbit, len(ds.Satellites)),
		fetchedAt: ds.FetchedAt,
		source:    ds.Source,
	}
	var skipped int
	for _, e := range ds.Satellites {
		o, err := NewOrbit(e)
		if err != nil {
			c.logger.Warn("sgp4 init failed", "norad_id", e.NORADID, "error", err)
			skipped++
			continue
		}
		oc.orbits[e.NORADID] = o
		oc.order = append(oc.order, e.NORADID)
	}

	c.logger.Info("orbit cache rebuilt",
		"cached", len(oc.orbits),
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	metrics.SetCatalogSize(len(oc.orbits))
	c.cache.Store(oc)
	return oc, nil
}

// Version identifies the dataset currently in the store, or "" when none is
// loaded. It changes whenever a new dataset is set.
func (c *Catalog) Version() string {
	ds := c.store.Get()
	if ds == nil {
		return ""
	}
	return ds.Source + "@" + ds.FetchedAt.UTC().Format(time.RFC3339Nano)
}

// Orbit returns the initialized orbit for a catalog number.
func (c *Catalog) Orbit(noradID int) (*Orbit, error) {
	oc, err := c.current()
	if err != nil {
		return nil, err
	}
	o, ok := oc.orbits[noradID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSatellite, "NORAD %d", noradID)
	}
	return o, nil
}

// Orbits returns every initialized orbit in catalog order.
func (c *Catalog) Orbits() ([]*Orbit, error) {
	oc, err := c.current()
	if err != nil {
		return nil, err
	}
	out := make([]*Orbit, 0, len(oc.order))
	for _, id := range oc.order {
		out = append(out, oc.orbits[id])
	}
	return out, nil
}

// Snapshot propagates every satellite in the catalog to t.
func (c *Catalog) Snapshot(ctx context.Context, t time.Time) (*Snapshot, error) {
	orbits, err := c.Orbits()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	positions, ok, failed := c.pool.PropagateBatch(ctx, orbits, t)
	duration := time.Since(start)

	c.logger.Debug("snapshot complete",
		"success", ok,
		"errors", failed,
		"duration_ms", duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Snapshot{Timestamp: t, Satellites: positions}, nil
}
