package passes

import (
	"time"

	"github.com/star/starpredict/internal/observe"
	"github.com/star/starpredict/internal/visibility"
)

// GroundWindows returns the intervals in [start, end] during which the
// satellite is above the observer's horizon. A geostationary satellite that
// is up at start stays up, so it gets the whole interval; other orbits get
// one window per transit.
func (s *Scanner) GroundWindows(o Orbit, loc observe.Location, start, end time.Time) []visibility.Window {
	if o.IsGeostationary() {
		if !o.AOSHappens(loc.Latitude) {
			return nil
		}
		obs, err := s.sampler.Position(o, &loc, start)
		if err != nil || obs.Look.Elevation <= 0 {
			return nil
		}
		return []visibility.Window{{Start: start, End: end}}
	}

	transits := s.Transits(o, loc, start, end, 0, 0)
	out := make([]visibility.Window, 0, len(transits))
	for _, tr := range transits {
		out = append(out, visibility.Window{Start: tr.Start, End: tr.End})
	}
	return out
}
