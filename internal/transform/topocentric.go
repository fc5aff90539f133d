package transform

import (
	"math"

	"github.com/star/starpredict/internal/geometry"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// speedOfLight in km/s.
	speedOfLight = 299792.458
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Observer holds a ground site in geodetic and ECEF form. The ECEF vector is
// computed once so it can be reused across many samples.
type Observer struct {
	LatRad, LonRad float64
	AltKm          float64
	ECEF           geometry.Vector // km
}

// NewObserver builds an Observer from latitude/longitude in degrees and
// altitude in km above the WGS-84 ellipsoid.
func NewObserver(latDeg, lonDeg, altKm float64) Observer {
	lat := latDeg * deg2rad
	lon := lonDeg * deg2rad
	return Observer{
		LatRad: lat,
		LonRad: lon,
		AltKm:  altKm,
		ECEF:   GeodeticToECEF(lat, lon, altKm),
	}
}

// GeodeticToECEF converts geodetic latitude/longitude (radians) and height
// (km) to an ECEF vector in km.
func GeodeticToECEF(lat, lon, altKm float64) geometry.Vector {
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return geometry.Vector{
		X: (n + altKm) * cosLat * cosLon,
		Y: (n + altKm) * cosLat * sinLon,
		Z: (n*(1-wgs84E2) + altKm) * sinLat,
	}
}

// Geodetic is a geodetic position. Longitude is in (-180, 180].
type Geodetic struct {
	LatDeg, LonDeg float64
	AltKm          float64
}

// ECEFToGeodetic converts an ECEF vector (km) to geodetic coordinates with
// Bowring's iteration. Converges in 2-3 iterations for Earth orbits.
func ECEFToGeodetic(v geometry.Vector) Geodetic {
	lon := math.Atan2(v.Y, v.X)
	p := math.Hypot(v.X, v.Y)

	lat := math.Atan2(v.Z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(v.Z+wgs84E2*n*sinLat, p)
	}

	sinLat, cosLat := math.Sincos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(v.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * rad2deg,
		LonDeg: lon * rad2deg,
		AltKm:  alt,
	}
}

// ECIToGeodetic converts a TEME position (km) to geodetic coordinates at the
// given GMST.
func ECIToGeodetic(pos geometry.Vector, gmst float64) Geodetic {
	return ECEFToGeodetic(RotateZ(pos, gmst))
}

// Look holds azimuth, elevation and slant range from an observer.
type Look struct {
	Azimuth   float64 // radians, 0 = North, clockwise, [0, 2π)
	Elevation float64 // radians, 0 = horizon
	RangeKm   float64
}

// LookAngles computes azimuth, elevation and range from obs to a target at
// ECEF position sat (km).
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado 4.4.
func LookAngles(obs Observer, sat geometry.Vector) Look {
	r, rangeKm := sat.Sub(obs.ECEF)

	sinLat, cosLat := math.Sincos(obs.LatRad)
	sinLon, cosLon := math.Sincos(obs.LonRad)

	south := sinLat*cosLon*r.X + sinLat*sinLon*r.Y - cosLat*r.Z
	east := -sinLon*r.X + cosLon*r.Y
	zenith := cosLat*cosLon*r.X + cosLat*sinLon*r.Y + sinLat*r.Z

	// North is -South in SEZ.
	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return Look{
		Azimuth:   az,
		Elevation: math.Atan2(zenith, math.Hypot(south, east)),
		RangeKm:   rangeKm,
	}
}

// DopplerFactor returns the ratio of received to transmitted frequency for a
// target at ECEF position pos moving with ECEF velocity vel (km, km/s) seen
// from a stationary observer at obs. A closing target gives a factor above 1.
func DopplerFactor(obs, pos, vel geometry.Vector) float64 {
	r, dist := pos.Sub(obs)
	if dist == 0 {
		return 1
	}
	rangeRate := r.Dot(vel) / dist
	return 1 - rangeRate/speedOfLight
}
