// Package solar computes a low-precision geocentric Sun vector and the umbral
// eclipse state of a satellite.
//
// The ephemeris is the classic PREDICT series (mean anomaly, mean longitude,
// equation of centre and a nutation term in longitude), accurate to about
// 0.01 degree. That is more than enough to decide whether a satellite sits
// in Earth's shadow; it is not meant for astrometry.
package solar

import (
	"math"
	"time"

	"github.com/star/starpredict/internal/geometry"
	"github.com/star/starpredict/internal/transform"
)

const (
	// EarthRadius is the WGS-84 equatorial radius in km.
	EarthRadius = 6378.137
	// Radius is the solar radius in km (IAU 76).
	Radius = 6.96e5
	// AstronomicalUnit in km (IAU 76).
	AstronomicalUnit = 1.49597870691e8

	deg2rad   = math.Pi / 180
	jd1900    = 2415020.0
	secPerDay = 86400.0
)

// Position returns the geocentric Sun vector in km at t, expressed in the
// equatorial frame of date.
func Position(t time.Time) geometry.Vector {
	mjd := transform.JulianDate(t.UTC()) - jd1900
	year := 1900 + mjd/365.25
	T := (mjd + deltaET(year)/secPerDay) / 36525.0

	M := deg2rad * math.Mod(358.47583+math.Mod(35999.04975*T, 360)-(0.000150+0.0000033*T)*T*T, 360)
	L := deg2rad * math.Mod(279.69668+math.Mod(36000.76892*T, 360)+0.0003025*T*T, 360)
	e := 0.01675104 - (0.0000418+0.000000126*T)*T
	C := deg2rad * ((1.919460-(0.004789+0.000014*T)*T)*math.Sin(M) +
		(0.020094-0.000100*T)*math.Sin(2*M) +
		0.000293*math.Sin(3*M))
	O := deg2rad * math.Mod(259.18-1934.142*T, 360)
	lsa := math.Mod(L+C-deg2rad*(0.00569-0.00479*math.Sin(O)), 2*math.Pi)
	nu := math.Mod(M+C, 2*math.Pi)
	R := AstronomicalUnit * 1.0000002 * (1 - e*e) / (1 + e*math.Cos(nu))
	eps := deg2rad * (23.452294 - (0.0130125+(0.00000164-0.000000503*T)*T)*T + 0.00256*math.Cos(O))

	sinL, cosL := math.Sincos(lsa)
	return geometry.Vector{
		X: R * cosL,
		Y: R * sinL * math.Cos(eps),
		Z: R * sinL * math.Sin(eps),
	}
}

// deltaET is the ET-UT difference in seconds, a least-squares fit over
// 1950-1991 almanac data.
func deltaET(year float64) float64 {
	return 26.465 + 0.747622*(year-1950) + 1.886913*math.Sin(2*math.Pi*(year-1975)/33)
}

// Eclipse reports how deep a satellite at sat sits in the umbra cast by the
// Earth when the Sun is at sun. Both vectors are geocentric km. depth is in
// radians and positive inside the shadow; penumbra is not modelled.
func Eclipse(sat, sun geometry.Vector) (depth float64, eclipsed bool) {
	r := sat.Magnitude()
	if r <= EarthRadius {
		return math.Pi / 2, true
	}
	sdEarth := math.Asin(EarthRadius / r)
	rho, dist := sun.Sub(sat)
	sdSun := math.Asin(Radius / dist)
	delta := geometry.Angle(rho, sat.Scale(-1))

	depth = sdEarth - sdSun - delta
	if sdEarth < sdSun {
		return depth, false
	}
	return depth, depth >= 0
}
