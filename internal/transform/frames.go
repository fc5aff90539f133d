// Package transform provides the frame and angle conversions used by the
// observation sampler.
//
// SGP4 state vectors are TEME (True Equator Mean Equinox). They are rotated
// into ECEF with GMST only (TEME → PEF ≈ ECEF), ignoring polar motion and the
// equation of the equinoxes. The error is tens of meters, well below what
// pass prediction can resolve.
//
// Everything in this package works in kilometers and radians unless a field
// name says Deg.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3-4.
package transform

import (
	"math"

	"github.com/star/starpredict/internal/geometry"
)

// State is a position/velocity pair in km and km/s.
type State struct {
	Position geometry.Vector
	Velocity geometry.Vector
}

// TEMEToECEF rotates a TEME state into ECEF using a precomputed GMST (radians).
//
// Position: r_ECEF = R3(θ) * r_TEME
// Velocity: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
func TEMEToECEF(teme State, gmst float64) State {
	pos := RotateZ(teme.Position, gmst)
	vel := RotateZ(teme.Velocity, gmst)

	// ω × r_ECEF = [-ω*y, ω*x, 0]
	vel.X += OmegaEarth * pos.Y
	vel.Y -= OmegaEarth * pos.X

	return State{Position: pos, Velocity: vel}
}

// RotateZ applies the frame rotation R3(θ) to v.
func RotateZ(v geometry.Vector, theta float64) geometry.Vector {
	sinT, cosT := math.Sincos(theta)
	return geometry.Vector{
		X: v.X*cosT + v.Y*sinT,
		Y: -v.X*sinT + v.Y*cosT,
		Z: v.Z,
	}
}

// Plausible reports whether a geocentric position looks like an Earth
// orbiter: finite, above 6200 km from the centre and inside lunar distance.
func Plausible(pos geometry.Vector) bool {
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return false
	}
	if math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return false
	}

	const minRadius = 6200.0
	const maxRadius = 384400.0

	mag := pos.Magnitude()
	return mag >= minRadius && mag <= maxRadius
}
