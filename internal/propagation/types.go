package propagation

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/starpredict/internal/geometry"
	"github.com/star/starpredict/internal/transform"
)

// Snapshot holds the positions of a set of satellites at a single instant.
type Snapshot struct {
	Timestamp  time.Time
	Satellites []SatellitePosition
}

// SatellitePosition is one satellite's Earth-fixed state within a Snapshot.
type SatellitePosition struct {
	NORADID  int
	ECEF     transform.State // km, km/s
	Geodetic transform.Geodetic
}

func geometryVector(v satellite.Vector3) geometry.Vector {
	return geometry.Vector{X: v.X, Y: v.Y, Z: v.Z}
}
