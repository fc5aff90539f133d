// Package geometry holds the small 3-vector kernel shared by the solar,
// observation and visibility packages. Vectors are in kilometers unless a
// caller says otherwise.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// zeroTol is the magnitude below which a vector is treated as null.
const zeroTol = 1e-12

// Vector is a cartesian 3-vector.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the euclidean norm of v.
func (v Vector) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - w along with the magnitude of the difference.
func (v Vector) Sub(w Vector) (Vector, float64) {
	d := Vector{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
	return d, d.Magnitude()
}

// Scale returns k*v.
func (v Vector) Scale(k float64) Vector {
	return Vector{X: k * v.X, Y: k * v.Y, Z: k * v.Z}
}

// Dot returns the inner product of v and w.
func (v Vector) Dot(w Vector) float64 {
	return v.X*w.X + v.Y*w.Y + v.Z*w.Z
}

// IsZero reports whether v is the null vector within tolerance.
func (v Vector) IsZero() bool {
	return scalar.EqualWithinAbs(v.Magnitude(), 0, zeroTol)
}

// Cross returns the vector product v × w.
func (v Vector) Cross(w Vector) Vector {
	return Vector{
		X: v.Y*w.Z - v.Z*w.Y,
		Y: v.Z*w.X - v.X*w.Z,
		Z: v.X*w.Y - v.Y*w.X,
	}
}

// Angle returns the angle in radians between v and w, in [0, π]. It uses
// atan2 of the cross and dot products, which keeps full precision near 0
// and π. A null operand yields 0.
func Angle(v, w Vector) float64 {
	if v.IsZero() || w.IsZero() {
		return 0
	}
	return math.Atan2(v.Cross(w).Magnitude(), v.Dot(w))
}
