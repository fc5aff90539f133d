// Package passes finds ground passes: horizon crossings (AOS/LOS), single
// transits with their elevation and azimuth extrema, transit lists over a
// window and batch prediction across a catalog.
package passes

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/observe"
)

// DefaultMinElevation is the culmination threshold in degrees used when the
// caller passes zero.
const DefaultMinElevation = 4.0

// gap is the pause after a LOS before searching for the next AOS.
const gap = 60 * time.Second

// ErrGeostationary is returned by ScanTransit for an orbit that never
// passes. Use GroundWindows for such satellites.
var ErrGeostationary = errors.New("geostationary orbit has no transits")

// ErrNoTransit is returned by TransitSegment when the next pass starts after
// the segment.
var ErrNoTransit = errors.New("no transit starts in the segment")

// Orbit is what a transit search needs from a propagated satellite.
type Orbit interface {
	observe.Orbit
	IsGeostationary() bool
	AOSHappens(latDeg float64) bool
}

// Transit is one pass over a ground observer. Angles are in degrees.
type Transit struct {
	Start        time.Time
	End          time.Time
	MaxElevation float64
	ApexAzimuth  float64 // azimuth at maximum elevation
	MaxAzimuth   float64
	MinAzimuth   float64
	Duration     time.Duration
}

// MarshalJSON writes the duration in seconds.
func (t Transit) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start        time.Time `json:"start"`
		End          time.Time `json:"end"`
		MaxElevation float64   `json:"max_elevation"`
		ApexAzimuth  float64   `json:"apex_azimuth"`
		MaxAzimuth   float64   `json:"max_azimuth"`
		MinAzimuth   float64   `json:"min_azimuth"`
		Duration     float64   `json:"duration_seconds"`
	}{t.Start, t.End, t.MaxElevation, t.ApexAzimuth, t.MaxAzimuth, t.MinAzimuth, t.Duration.Seconds()})
}

// Scanner runs horizon searches on top of a Sampler.
type Scanner struct {
	sampler *observe.Sampler
	search  config.Search
	logger  *slog.Logger
}

// NewScanner creates a Scanner that shares the sampler's search limits and
// logger.
func NewScanner(sampler *observe.Sampler) *Scanner {
	return &Scanner{
		sampler: sampler,
		search:  sampler.Search(),
		logger:  sampler.Logger(),
	}
}

// extrema tracks elevation and azimuth bounds across a pass.
type extrema struct {
	maxEl, apexAz float64
	minAz, maxAz  float64
}

func newExtrema() extrema {
	return extrema{minAz: 360}
}

func (x *extrema) add(look *observe.LookAngles) {
	if look.Elevation > x.maxEl {
		x.maxEl = look.Elevation
		x.apexAz = look.Azimuth
	}
	x.minAz = math.Min(x.minAz, look.Azimuth)
	x.maxAz = math.Max(x.maxAz, look.Azimuth)
}

// roundHalfUp rounds ties towards +Inf.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// ScanTransit finds the next pass at or after start. A zero end leaves the
// scan unbounded; otherwise it stops at the first sample at or beyond end and
// the transit ends there.
func (s *Scanner) ScanTransit(o Orbit, loc observe.Location, start, end time.Time) (Transit, error) {
	if o.IsGeostationary() {
		return Transit{}, ErrGeostationary
	}
	lat := loc.Latitude
	if err := o.Validate(&lat, start); err != nil {
		return Transit{}, err
	}

	aos, err := s.findAOS(o, loc, start)
	if err != nil {
		return Transit{}, err
	}

	x := newExtrema()
	x.add(aos.Look)

	// cur keeps sub-second steps; obs.Time is the whole-second sample.
	obs := aos
	cur := aos.Time
	iel := roundHalfUp(obs.Look.Elevation)
	lastEl := 0.0
	i := 0
	for ; iel >= 0 && i < s.search.MaxIterations && (end.IsZero() || cur.Before(end)); i++ {
		lastEl = iel
		step := math.Cos((obs.Look.Elevation-1)*deg2rad) * math.Sqrt(obs.Altitude) / 25000
		cur = addDays(cur, step)
		if obs, err = s.sampler.Observe(o, &loc, cur); err != nil {
			return Transit{}, err
		}
		s.trace("transit", obs)

		iel = roundHalfUp(obs.Look.Elevation)
		x.add(obs.Look)
	}
	if i == s.search.MaxIterations {
		metrics.RecordSearchExhausted("transit")
		s.logger.Debug("transit scan hit the iteration cap", "aos", aos.Time, "last", obs.Time)
	}

	// Refine only a genuine crossing that the coarse step jumped over.
	last := obs
	if iel < 0 && lastEl != 0 {
		if last, err = s.findLOS(o, loc, cur); err != nil {
			return Transit{}, err
		}
		x.add(last.Look)
	}

	return Transit{
		Start:        aos.Time,
		End:          last.Time,
		MaxElevation: x.maxEl,
		ApexAzimuth:  x.apexAz,
		MaxAzimuth:   x.maxAz,
		MinAzimuth:   x.minAz,
		Duration:     last.Time.Sub(aos.Time),
	}, nil
}

// TransitSegment scans the single pass that starts within [start, end],
// stopping at end if the satellite is still up. ErrNoTransit is returned when
// the next AOS is after end.
func (s *Scanner) TransitSegment(o Orbit, loc observe.Location, start, end time.Time) (Transit, error) {
	if !end.After(start) {
		return Transit{}, errors.Errorf("segment end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	tr, err := s.ScanTransit(o, loc, start, end)
	if err != nil {
		return Transit{}, err
	}
	if tr.Start.After(end) {
		return Transit{}, errors.Wrapf(ErrNoTransit, "next AOS %s", tr.Start.Format(time.RFC3339))
	}
	return tr, nil
}

// Transits lists the passes in [start, end] that culminate above minEl
// degrees (0 means DefaultMinElevation), at most maxTransits of them (0 or
// less means the iteration cap). Orbits failing the gate, geostationary
// orbits and a search that stops early yield what was found so far.
func (s *Scanner) Transits(o Orbit, loc observe.Location, start, end time.Time, minEl float64, maxTransits int) []Transit {
	return s.transits(context.Background(), o, loc, start, end, minEl, maxTransits)
}

func (s *Scanner) transits(ctx context.Context, o Orbit, loc observe.Location, start, end time.Time, minEl float64, maxTransits int) []Transit {
	if minEl == 0 {
		minEl = DefaultMinElevation
	}
	if maxTransits <= 0 {
		maxTransits = s.search.MaxIterations
	}

	began := time.Now()
	defer func() { metrics.ObservePrediction("transits", time.Since(began)) }()

	var out []Transit
	cur := start
	for i := 0; i < s.search.MaxIterations && len(out) < maxTransits; i++ {
		if ctx.Err() != nil {
			break
		}
		tr, err := s.ScanTransit(o, loc, cur, time.Time{})
		if err != nil {
			s.logger.Debug("transit search stopped", "from", cur, "found", len(out), "error", err)
			break
		}
		if tr.End.After(end) {
			break
		}
		if tr.End.After(start) && tr.MaxElevation > minEl {
			out = append(out, tr)
		}
		cur = tr.End.Add(gap)
	}

	metrics.RecordTransits(len(out))
	return out
}

const deg2rad = math.Pi / 180
