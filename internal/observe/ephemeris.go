package observe

import (
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/metrics"
)

// ErrInvalidInterval is returned for a non-positive sampling interval.
var ErrInvalidInterval = errors.New("sampling interval must be positive")

// Ephemeris samples o at start, start+interval, ... while the instant is
// before end. Gate failures are returned as errors. A sample that fails to
// propagate ends the scan and the samples taken so far are returned.
func (s *Sampler) Ephemeris(o Orbit, loc *Location, start, end time.Time, interval time.Duration) ([]Observation, error) {
	if interval <= 0 {
		return nil, errors.Wrapf(ErrInvalidInterval, "got %v", interval)
	}
	if err := o.Validate(loc.latitude(), start); err != nil {
		return nil, err
	}

	began := time.Now()
	defer func() { metrics.ObservePrediction("ephemeris", time.Since(began)) }()

	var out []Observation
	for t, i := start, 0; t.Before(end) && i < s.search.MaxIterations; t, i = t.Add(interval), i+1 {
		obs, err := s.Observe(o, loc, t)
		if err != nil {
			s.logger.Debug("ephemeris stopped early", "time", t, "samples", len(out), "error", err)
			break
		}
		if s.search.Debug {
			s.logger.Debug("ephemeris sample", "time", obs.Time, "latitude", obs.Latitude, "longitude", obs.Longitude)
		}
		out = append(out, obs)
	}
	return out, nil
}
