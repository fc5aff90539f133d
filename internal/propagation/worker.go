package propagation

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/star/starpredict/internal/transform"
)

// propagateResult is the output of a single satellite propagation.
type propagateResult struct {
	position SatellitePosition
	err      error
	noradID  int
}

// WorkerPool runs SGP4 for many satellites in parallel on a fixed number of
// goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool. workers ≤ 0 means runtime.NumCPU().
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch propagates all orbits to t and returns the Earth-fixed
// states sorted by catalog number. Failed satellites are logged and skipped.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, orbits []*Orbit, t time.Time) ([]SatellitePosition, int, int) {
	if len(orbits) == 0 {
		return nil, 0, 0
	}

	// GMST is the same for every satellite.
	gmst := transform.GMST(t.Truncate(time.Second))

	jobs := make(chan *Orbit, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for o := range jobs {
				result := propagateSingle(o, t, gmst)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, o := range orbits {
			select {
			case jobs <- o:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	positions := make([]SatellitePosition, 0, len(orbits))
	var successCount, errorCount int

	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed",
				"norad_id", result.noradID,
				"error", result.err,
			)
			continue
		}
		successCount++
		positions = append(positions, result.position)
	}

	sort.Slice(positions, func(i, j int) bool {
		return positions[i].NORADID < positions[j].NORADID
	})
	return positions, successCount, errorCount
}

// propagateSingle runs SGP4 and the TEME→ECEF transform for one satellite.
func propagateSingle(o *Orbit, t time.Time, gmst float64) propagateResult {
	teme, err := o.Propagate(t)
	if err != nil {
		return propagateResult{noradID: o.NORADID(), err: err}
	}

	ecef := transform.TEMEToECEF(teme, gmst)
	return propagateResult{
		noradID: o.NORADID(),
		position: SatellitePosition{
			NORADID:  o.NORADID(),
			ECEF:     ecef,
			Geodetic: transform.ECEFToGeodetic(ecef.Position),
		},
	}
}
