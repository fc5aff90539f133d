package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/starpredict/internal/geometry"
)

// TestJulianDate verifies our Julian Date calculation against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Vallado Example 3-15: April 6, 2004, 07:51:28.386 UTC
			name:     "Vallado example date",
			time:     time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC),
			expected: 2453101.827411875,
		},
		{
			name:     "non-UTC zone",
			time:     time.Date(2000, 1, 1, 14, 0, 0, 0, time.FixedZone("EET", 2*3600)),
			expected: 2451545.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			diff := math.Abs(got - tt.expected)
			if diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestJulianDateAgainstLibrary checks whole-second instants against
// go-satellite's JDay.
func TestJulianDateAgainstLibrary(t *testing.T) {
	tm := time.Date(2025, 2, 14, 4, 19, 40, 0, time.UTC)
	ref := satellite.JDay(tm.Year(), int(tm.Month()), tm.Day(), tm.Hour(), tm.Minute(), tm.Second())
	if diff := math.Abs(JulianDate(tm) - ref); diff > 1e-8 {
		t.Errorf("JulianDate = %.10f, JDay = %.10f", JulianDate(tm), ref)
	}
}

// TestGMST validates our GMST calculation against the go-satellite library's
// GSTimeFromDate function, which uses the same IAU-82 model.
func TestGMST(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{
			name: "J2000.0 epoch",
			time: time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "Vallado example date",
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC), // integer seconds for library compat
		},
		{
			name: "recent date 2026",
			time: time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			our := GMST(tt.time)
			ref := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			// 1e-8 radians ≈ 0.06 arcsec.
			if diff := math.Abs(our - ref); diff > 1e-8 {
				t.Errorf("GMST(%v) = %.12f rad, go-satellite = %.12f rad (diff=%.2e)", tt.time, our, ref, diff)
			}
			if our < 0 || our >= 2*math.Pi {
				t.Errorf("GMST(%v) = %f outside [0, 2π)", tt.time, our)
			}
		})
	}
}

// TestTEMEToECEF validates the position rotation against go-satellite's
// ECIToECEF using the same GMST.
func TestTEMEToECEF(t *testing.T) {
	tests := []struct {
		name string
		teme State
		time time.Time
	}{
		{
			// Vallado "Fundamentals of Astrodynamics" Example 3-15
			name: "Vallado example 3-15",
			teme: State{
				Position: geometry.Vector{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
				Velocity: geometry.Vector{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
			},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "LEO equatorial",
			teme: State{
				Position: geometry.Vector{X: 6778.0},
				Velocity: geometry.Vector{Y: 7.5},
			},
			time: time.Date(2026, 2, 6, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "LEO polar",
			teme: State{
				Position: geometry.Vector{Z: 6978.0},
				Velocity: geometry.Vector{X: 7.4},
			},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)

			our := TEMEToECEF(tt.teme, gmst)
			ref := satellite.ECIToECEF(
				satellite.Vector3{X: tt.teme.Position.X, Y: tt.teme.Position.Y, Z: tt.teme.Position.Z},
				gmst,
			)

			const tolerance = 1e-3 // km
			if math.Abs(our.Position.X-ref.X) > tolerance ||
				math.Abs(our.Position.Y-ref.Y) > tolerance ||
				math.Abs(our.Position.Z-ref.Z) > tolerance {
				t.Errorf("position mismatch:\n  ours: %+v\n  ref:  %+v", our.Position, ref)
			}

			if !Plausible(our.Position) {
				t.Errorf("ECEF position failed plausibility: %+v", our.Position)
			}
		})
	}
}

// TestTEMEToECEFVelocity verifies the velocity transform includes Earth rotation correction.
func TestTEMEToECEFVelocity(t *testing.T) {
	teme := State{
		Position: geometry.Vector{X: 6778.0},
		Velocity: geometry.Vector{Y: 7.5},
	}

	ecef := TEMEToECEF(teme, 0)

	if math.Abs(ecef.Position.X-6778.0) > 1e-9 {
		t.Errorf("X position: got %.6f, want 6778.0", ecef.Position.X)
	}

	// ω*R = 7.292115e-5 * 6778 ≈ 0.4943 km/s.
	expectedVY := 7.5 - OmegaEarth*6778.0
	if math.Abs(ecef.Velocity.Y-expectedVY) > 1e-9 {
		t.Errorf("VY: got %.6f km/s, want %.6f km/s", ecef.Velocity.Y, expectedVY)
	}
}

func TestRotateZPreservesMagnitude(t *testing.T) {
	v := geometry.Vector{X: 1234.5, Y: -6012.25, Z: 3001}
	for _, theta := range []float64{0, 0.3, math.Pi / 2, 3, 2 * math.Pi} {
		got := RotateZ(v, theta)
		if math.Abs(got.Magnitude()-v.Magnitude()) > 1e-9 {
			t.Errorf("RotateZ(%.2f) changed magnitude: %.9f vs %.9f", theta, got.Magnitude(), v.Magnitude())
		}
		if got.Z != v.Z {
			t.Errorf("RotateZ(%.2f) changed Z", theta)
		}
	}
}

func TestPlausible(t *testing.T) {
	tests := []struct {
		name  string
		pos   geometry.Vector
		valid bool
	}{
		{"LEO", geometry.Vector{X: 6778}, true},
		{"GEO", geometry.Vector{X: 42164}, true},
		{"HEO apogee", geometry.Vector{Y: 150000}, true},
		{"too low", geometry.Vector{X: 5000}, false},
		{"beyond the moon", geometry.Vector{X: 400000}, false},
		{"NaN", geometry.Vector{X: math.NaN()}, false},
		{"Inf", geometry.Vector{X: math.Inf(1)}, false},
		{"zero", geometry.Vector{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plausible(tt.pos); got != tt.valid {
				t.Errorf("Plausible(%v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}
