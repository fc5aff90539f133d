package passes

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/observe"
)

// ErrIterationLimit is returned when a horizon search hits the iteration cap
// without converging. Enumerators treat it like "no crossing" but it stays
// distinguishable from a propagation failure.
var ErrIterationLimit = errors.New("horizon search did not converge within the iteration cap")

// horizonTolerance is the elevation band in degrees accepted as the horizon.
const horizonTolerance = 0.5

const day = float64(24 * time.Hour)

// addDays offsets t by a fractional number of days.
func addDays(t time.Time, days float64) time.Time {
	return t.Add(time.Duration(days * day))
}

// FindAOS returns the first instant at or after start when the satellite is
// within half a degree of the horizon, or start itself when it is already
// above the horizon.
func (s *Scanner) FindAOS(o observe.Propagator, loc observe.Location, start time.Time) (time.Time, error) {
	obs, err := s.findAOS(o, loc, start)
	if err != nil {
		return time.Time{}, err
	}
	return obs.Time, nil
}

// FindLOS returns the instant near start when the satellite drops to within
// half a degree of the horizon.
func (s *Scanner) FindLOS(o observe.Propagator, loc observe.Location, start time.Time) (time.Time, error) {
	obs, err := s.findLOS(o, loc, start)
	if err != nil {
		return time.Time{}, err
	}
	return obs.Time, nil
}

func (s *Scanner) findAOS(o observe.Propagator, loc observe.Location, start time.Time) (observe.Observation, error) {
	cur := start
	obs, err := s.sampler.Observe(o, &loc, cur)
	if err != nil {
		return observe.Observation{}, err
	}
	if obs.Look.Elevation > 0 {
		return obs, nil
	}

	// Coarse: leap ahead in proportion to how far below the horizon it is.
	for i := 0; obs.Look.Elevation < -1 && i < s.search.MaxIterations; i++ {
		el, alt := obs.Look.Elevation, obs.Altitude
		cur = addDays(cur, -0.00035*(el*(alt/8400+0.46)-2))
		if obs, err = s.sampler.Observe(o, &loc, cur); err != nil {
			return observe.Observation{}, err
		}
		s.trace("aos coarse", obs)
	}

	// Fine: Newton-like steps on elevation until within tolerance.
	for i := 0; i < s.search.MaxIterations; i++ {
		el := obs.Look.Elevation
		if math.Abs(el) < horizonTolerance {
			return obs, nil
		}
		cur = addDays(cur, -el*math.Sqrt(obs.Altitude)/530000)
		if obs, err = s.sampler.Observe(o, &loc, cur); err != nil {
			return observe.Observation{}, err
		}
		s.trace("aos fine", obs)
	}

	return observe.Observation{}, s.exhausted("aos", start)
}

func (s *Scanner) findLOS(o observe.Propagator, loc observe.Location, start time.Time) (observe.Observation, error) {
	cur := start
	obs, err := s.sampler.Observe(o, &loc, cur)
	if err != nil {
		return observe.Observation{}, err
	}

	for i := 0; i < s.search.MaxIterations; i++ {
		el := obs.Look.Elevation
		if math.Abs(el) < horizonTolerance {
			return obs, nil
		}
		cur = addDays(cur, el*math.Sqrt(obs.Altitude)/502500)
		if obs, err = s.sampler.Observe(o, &loc, cur); err != nil {
			return observe.Observation{}, err
		}
		s.trace("los", obs)
	}

	return observe.Observation{}, s.exhausted("los", start)
}

func (s *Scanner) exhausted(search string, start time.Time) error {
	metrics.RecordSearchExhausted(search)
	s.logger.Debug("search exhausted", "search", search, "start", start, "max_iterations", s.search.MaxIterations)
	return errors.Wrapf(ErrIterationLimit, "%s search from %s", search, start.UTC().Format(time.RFC3339))
}

func (s *Scanner) trace(step string, obs observe.Observation) {
	if !s.search.Debug {
		return
	}
	s.logger.Debug(step, "time", obs.Time, "elevation", obs.Look.Elevation, "azimuth", obs.Look.Azimuth)
}
