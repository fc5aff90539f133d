// Package observe samples a satellite at single instants: sub-satellite
// point, illumination and, for a ground observer, look angles and Doppler.
package observe

import (
	"log/slog"
	"math"
	"time"

	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/geometry"
	"github.com/star/starpredict/internal/solar"
	"github.com/star/starpredict/internal/transform"
)

// earthDiameter is twice the WGS-84 equatorial radius in km, as used by the
// footprint formula.
const earthDiameter = 12756.33

// Propagator yields TEME states in km and km/s.
type Propagator interface {
	Propagate(t time.Time) (transform.State, error)
}

// Orbit is a Propagator that can also be gated before use.
type Orbit interface {
	Propagator
	Validate(latDeg *float64, t time.Time) error
}

// Location is a ground observer.
type Location struct {
	Latitude  float64 `json:"latitude"`  // degrees
	Longitude float64 `json:"longitude"` // degrees
	Altitude  float64 `json:"altitude"`  // km
}

// latitude returns a pointer to the latitude for the gate, nil without an
// observer.
func (l *Location) latitude() *float64 {
	if l == nil {
		return nil
	}
	lat := l.Latitude
	return &lat
}

// LookAngles is the observer-relative part of an Observation.
type LookAngles struct {
	Azimuth   float64 `json:"azimuth"`   // degrees, [0, 360)
	Elevation float64 `json:"elevation"` // degrees
	Range     float64 `json:"range"`     // km
	// Doppler is the received/transmitted frequency ratio.
	Doppler float64 `json:"doppler"`
}

// Observation is a satellite sampled at one instant.
type Observation struct {
	Time     time.Time       `json:"time"`
	Position geometry.Vector `json:"eci_position"` // TEME, km
	Velocity geometry.Vector `json:"eci_velocity"` // TEME, km/s
	GMST     float64         `json:"gmst"`         // radians

	Latitude  float64 `json:"latitude"`  // geodetic degrees
	Longitude float64 `json:"longitude"` // degrees, [-180, 180]
	Altitude  float64 `json:"altitude"`  // km
	Footprint float64 `json:"footprint"` // km

	Sunlit       bool    `json:"sunlit"`
	EclipseDepth float64 `json:"eclipse_depth"` // radians, positive in umbra

	// Look is nil when no observer was given.
	Look *LookAngles `json:"look,omitempty"`
}

// Sampler evaluates observations. It holds only configuration and is safe
// for concurrent use.
type Sampler struct {
	search config.Search
	logger *slog.Logger
}

// NewSampler creates a Sampler.
func NewSampler(search config.Search, logger *slog.Logger) *Sampler {
	return &Sampler{search: search, logger: logger}
}

// Search returns the search limits the sampler was built with.
func (s *Sampler) Search() config.Search {
	return s.search
}

// Logger returns the sampler's logger.
func (s *Sampler) Logger() *slog.Logger {
	return s.logger
}

// Observe samples p at t without gating. loc may be nil. The instant is
// truncated to whole seconds, the resolution SGP4 is driven with, so every
// derived quantity refers to the same instant.
func (s *Sampler) Observe(p Propagator, loc *Location, t time.Time) (Observation, error) {
	t = t.UTC().Truncate(time.Second)

	teme, err := p.Propagate(t)
	if err != nil {
		return Observation{}, err
	}

	gmst := transform.GMST(t)
	ecef := transform.TEMEToECEF(teme, gmst)
	geo := transform.ECEFToGeodetic(ecef.Position)

	obs := Observation{
		Time:      t,
		Position:  teme.Position,
		Velocity:  teme.Velocity,
		GMST:      gmst,
		Latitude:  geo.LatDeg,
		Longitude: geo.LonDeg,
		Altitude:  geo.AltKm,
		Footprint: footprint(geo.AltKm),
	}

	depth, eclipsed := solar.Eclipse(teme.Position, solar.Position(t))
	obs.Sunlit = !eclipsed
	obs.EclipseDepth = depth

	if loc != nil {
		site := transform.NewObserver(loc.Latitude, loc.Longitude, loc.Altitude)
		look := transform.LookAngles(site, ecef.Position)
		obs.Look = &LookAngles{
			Azimuth:   look.Azimuth / deg2rad,
			Elevation: look.Elevation / deg2rad,
			Range:     look.RangeKm,
			Doppler:   transform.DopplerFactor(site.ECEF, ecef.Position, ecef.Velocity),
		}
	}

	return obs, nil
}

// Position gates the orbit at t and then samples it.
func (s *Sampler) Position(o Orbit, loc *Location, t time.Time) (Observation, error) {
	if err := o.Validate(loc.latitude(), t); err != nil {
		return Observation{}, err
	}
	return s.Observe(o, loc, t)
}

const deg2rad = math.Pi / 180

// footprint is the diameter in km of the ground circle from which the
// satellite is above the horizon.
func footprint(altKm float64) float64 {
	if altKm <= 0 {
		return 0
	}
	return earthDiameter * math.Acos(solar.EarthRadius/(solar.EarthRadius+altKm))
}
