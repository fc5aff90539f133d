package propagation

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Gate sentinels. Callers treat them as "nothing to predict" rather than as
// faults.
var (
	ErrNeverVisible = errors.New("satellite never rises at this latitude")
	ErrDecayed      = errors.New("satellite has decayed")
)

const (
	// earthRadius is the WGS-84 equatorial radius in km.
	earthRadius = 6378.137
	// mu is Earth's gravitational parameter in km³/s².
	mu = 398600.5

	deg2rad = math.Pi / 180
	day     = 24 * time.Hour
)

// IsGeostationary reports whether the mean motion is within 0.005 rev/day of
// one sidereal rotation.
func (o *Orbit) IsGeostationary() bool {
	if o == nil {
		return false
	}
	return math.Abs(o.elements.MeanMotion-1.0027) < 0.005
}

// AOSHappens reports whether the orbit can ever rise above the horizon at
// the given latitude (degrees): the inclination plus the apogee horizon
// half-angle must exceed the latitude.
func (o *Orbit) AOSHappens(latDeg float64) bool {
	if o == nil {
		return false
	}
	mm := o.elements.MeanMotion
	if mm == 0 {
		return false
	}

	incl := o.elements.Inclination
	if incl >= 90 {
		incl = 180 - incl
	}

	sma := 331.25 * math.Exp(math.Log(1440/mm)*2/3)
	apogee := sma*(1+o.elements.Eccentricity) - earthRadius

	return math.Acos(earthRadius/(apogee+earthRadius))+incl*deg2rad > math.Abs(latDeg*deg2rad)
}

// Decayed reports whether the drag term predicts re-entry before t. An orbit
// with no drag never decays.
func (o *Orbit) Decayed(t time.Time) bool {
	e := o.elements
	// Float arithmetic in days: zero drag gives +Inf and never decays.
	lifetime := (16.666666 - e.MeanMotion) / (10 * math.Abs(e.DragTerm))
	elapsed := t.Sub(e.Epoch).Hours() / 24
	return lifetime < elapsed
}

// Validate applies the gate. latDeg is nil when there is no ground observer,
// in which case only decay is checked.
func (o *Orbit) Validate(latDeg *float64, t time.Time) error {
	if o == nil {
		return ErrNilOrbit
	}
	if latDeg != nil && !o.AOSHappens(*latDeg) {
		return errors.Wrapf(ErrNeverVisible, "NORAD %d at latitude %.4f", o.elements.NORADID, *latDeg)
	}
	if o.Decayed(t) {
		return errors.Wrapf(ErrDecayed, "NORAD %d before %s", o.elements.NORADID, t.UTC().Format(time.RFC3339))
	}
	return nil
}

// SemiMajorAxis returns the semi-major axis in km from the mean motion.
func (o *Orbit) SemiMajorAxis() float64 {
	n := o.elements.MeanMotion * 2 * math.Pi / day.Seconds() // rad/s
	if n == 0 {
		return math.Inf(1)
	}
	return math.Cbrt(mu / (n * n))
}

// Period returns the orbital period 2π√(a³/μ) from the elements.
func (o *Orbit) Period() time.Duration {
	return PeriodFromRadius(o.SemiMajorAxis())
}

// PeriodFromRadius returns the period of a circular orbit of radius r km, or
// of an elliptical orbit with semi-major axis r.
func PeriodFromRadius(r float64) time.Duration {
	if r <= 0 || math.IsInf(r, 0) || math.IsNaN(r) {
		return 0
	}
	sec := 2 * math.Pi * math.Sqrt(r*r*r/mu)
	return time.Duration(sec * float64(time.Second))
}
