package passes

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/star/starpredict/internal/observe"
	"github.com/star/starpredict/internal/propagation"
)

// Request holds the parameters for a batch transit prediction.
type Request struct {
	Location     observe.Location
	Orbits       []*propagation.Orbit
	Start        time.Time
	End          time.Time
	MinElevation float64 // degrees, 0 means DefaultMinElevation
	MaxTransits  int     // per satellite, 0 means unlimited
}

// SatelliteTransits holds the predicted transits for one satellite. Error is
// set when the satellite was skipped.
type SatelliteTransits struct {
	NORADID  int       `json:"norad_id"`
	Name     string    `json:"name,omitempty"`
	Transits []Transit `json:"transits"`
	Error    string    `json:"error,omitempty"`
}

// PredictAll lists transits for every orbit in the request. Each satellite is
// processed in its own goroutine, bounded by a semaphore. Results keep the
// request order.
func (s *Scanner) PredictAll(ctx context.Context, req Request) []SatelliteTransits {
	results := make([]SatelliteTransits, len(req.Orbits))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	began := time.Now()
	for i, o := range req.Orbits {
		wg.Add(1)
		go func(idx int, o *propagation.Orbit) {
			defer wg.Done()

			res := SatelliteTransits{NORADID: o.NORADID(), Name: o.Elements().Name}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				res.Error = "cancelled"
				results[idx] = res
				return
			}

			if err := s.precheck(o, req); err != nil {
				res.Error = err.Error()
				results[idx] = res
				return
			}
			res.Transits = s.transits(ctx, o, req.Location, req.Start, req.End, req.MinElevation, req.MaxTransits)
			if ctx.Err() != nil {
				res.Error = "cancelled"
			}
			results[idx] = res
		}(i, o)
	}

	wg.Wait()
	s.logger.Info("batch prediction complete",
		"satellites", len(req.Orbits),
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return results
}

// precheck reports why a satellite cannot have transits for the request.
func (s *Scanner) precheck(o Orbit, req Request) error {
	if o.IsGeostationary() {
		return ErrGeostationary
	}
	lat := req.Location.Latitude
	return o.Validate(&lat, req.Start)
}
