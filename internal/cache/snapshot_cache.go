// Package cache holds catalog snapshots keyed by step-aligned instants so
// that every stream client at the same step shares one propagation run.
//
// Snapshots are computed on first request and, once Start is running, ahead
// of time at the leading edge. Entries older than the buffer are evicted.
// When the catalog behind the snapshotter changes, the whole cache is
// dropped.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/propagation"
)

// Snapshotter computes catalog positions. *propagation.Catalog implements it.
type Snapshotter interface {
	Snapshot(ctx context.Context, t time.Time) (*propagation.Snapshot, error)
	Version() string
}

// Config holds the cache timing.
type Config struct {
	Step   time.Duration // spacing of cached instants
	Buffer time.Duration // keep entries this long past their instant
}

// SnapshotCache is safe for concurrent use.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[time.Time]*propagation.Snapshot
	version string

	config Config
	src    Snapshotter
	logger *slog.Logger

	// Counters (lock-free).
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a SnapshotCache.
func New(config Config, src Snapshotter, logger *slog.Logger) *SnapshotCache {
	logger.Info("snapshot cache initialized",
		"step_seconds", config.Step.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
	)
	return &SnapshotCache{
		entries: make(map[time.Time]*propagation.Snapshot),
		config:  config,
		src:     src,
		logger:  logger,
	}
}

// RoundToStep rounds t down to the step boundary, in UTC.
func (c *SnapshotCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Get returns the snapshot for the step containing t, computing it on a
// miss.
func (c *SnapshotCache) Get(ctx context.Context, t time.Time) (*propagation.Snapshot, error) {
	key := c.RoundToStep(t)
	c.checkVersion()

	c.mu.RLock()
	snap, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		metrics.RecordCacheLookup(true)
		return snap, nil
	}

	c.misses.Add(1)
	metrics.RecordCacheLookup(false)
	return c.fill(ctx, key)
}

func (c *SnapshotCache) fill(ctx context.Context, key time.Time) (*propagation.Snapshot, error) {
	snap, err := c.src.Snapshot(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = snap
	n := len(c.entries)
	c.mu.Unlock()

	metrics.SetCacheEntries(n)
	return snap, nil
}

// checkVersion drops every entry when the catalog has changed.
func (c *SnapshotCache) checkVersion() {
	v := c.src.Version()

	c.mu.RLock()
	same := v == c.version
	c.mu.RUnlock()
	if same {
		return
	}

	c.mu.Lock()
	if v != c.version {
		dropped := len(c.entries)
		c.entries = make(map[time.Time]*propagation.Snapshot)
		c.version = v
		c.logger.Info("catalog changed, snapshot cache cleared", "dropped", dropped, "version", v)
	}
	c.mu.Unlock()
	metrics.SetCacheEntries(0)
}

// evictExpired removes entries older than now - buffer.
func (c *SnapshotCache) evictExpired(now time.Time) int {
	cutoff := now.Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		metrics.SetCacheEntries(n)
		c.logger.Debug("snapshot cache eviction", "entries_removed", removed)
	}
	return removed
}

// Start precomputes the next step's snapshot and evicts expired entries
// once per step. Blocks until ctx is cancelled.
func (c *SnapshotCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("snapshot cache stopped")
			return
		case now := <-ticker.C:
			c.tick(ctx, now)
		}
	}
}

func (c *SnapshotCache) tick(ctx context.Context, now time.Time) {
	c.checkVersion()

	next := c.RoundToStep(now.Add(c.config.Step))
	c.mu.RLock()
	_, ok := c.entries[next]
	c.mu.RUnlock()
	if !ok {
		start := time.Now()
		if _, err := c.fill(ctx, next); err != nil {
			c.logger.Debug("leading edge snapshot failed", "timestamp", next.Format(time.RFC3339), "error", err)
		} else {
			c.logger.Debug("leading edge snapshot generated",
				"timestamp", next.Format(time.RFC3339),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}

	c.evictExpired(now)
}

// Stats reports cache counters.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Stats returns current cache statistics.
func (c *SnapshotCache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}
