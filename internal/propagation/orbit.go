// Package propagation wraps the SGP4 propagator and the orbit-level checks
// that decide whether a satellite is worth sampling at all.
//
// SGP4 library choice: github.com/joshuaferrara/go-satellite (pure Go,
// explicit TEME output). Propagate() takes Satellite by value so SGP4 error
// codes are not visible to the caller; failures are detected from NaN/Inf
// output and implausible radii instead.
package propagation

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/tle"
	"github.com/star/starpredict/internal/transform"
)

var (
	// ErrPropagation is returned when SGP4 yields no usable state for an instant.
	ErrPropagation = errors.New("propagation failed")
	// ErrNilOrbit is returned by methods called on a nil *Orbit.
	ErrNilOrbit = errors.New("nil orbit")
)

// Orbit is an initialized SGP4 record plus the decoded elements. It is
// immutable after construction and safe for concurrent use.
type Orbit struct {
	elements tle.Elements
	sat      satellite.Satellite
}

// NewOrbit initializes SGP4 (WGS-72 constants, as the element sets are
// generated with them) for an element set.
func NewOrbit(e tle.Elements) (*Orbit, error) {
	sat := satellite.TLEToSat(e.Line1, e.Line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, errors.Errorf("sgp4 init failed for NORAD %d: code=%d %s", e.NORADID, sat.Error, sat.ErrorStr)
	}
	return &Orbit{elements: e, sat: sat}, nil
}

// FromLines parses a 2- or 3-line element set and initializes its orbit.
func FromLines(lines ...string) (*Orbit, error) {
	e, err := tle.ParseLines(lines)
	if err != nil {
		return nil, err
	}
	return NewOrbit(e)
}

// Elements returns the decoded element set.
func (o *Orbit) Elements() tle.Elements {
	return o.elements
}

// NORADID returns the satellite catalog number.
func (o *Orbit) NORADID() int {
	return o.elements.NORADID
}

// Propagate returns the TEME state (km, km/s) at t. SGP4 is driven with whole
// seconds, so t is truncated to the second.
func (o *Orbit) Propagate(t time.Time) (transform.State, error) {
	if o == nil {
		return transform.State{}, ErrNilOrbit
	}
	t = t.UTC()
	pos, vel := satellite.Propagate(o.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	state := transform.State{
		Position: geometryVector(pos),
		Velocity: geometryVector(vel),
	}
	if !transform.Plausible(state.Position) || !finite(vel) {
		metrics.RecordPropagationFailure()
		return transform.State{}, errors.Wrapf(ErrPropagation, "NORAD %d at %s: position magnitude %.1f km",
			o.elements.NORADID, t.Format(time.RFC3339), state.Position.Magnitude())
	}
	return state, nil
}

func finite(v satellite.Vector3) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
