// Package visibility finds the intervals during which two satellites have an
// unobstructed line of sight, treating the Earth as a sphere.
package visibility

import (
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/geometry"
	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/observe"
	"github.com/star/starpredict/internal/propagation"
	"github.com/star/starpredict/internal/solar"
)

// DefaultStep is the nominal sampling step.
const DefaultStep = 60 * time.Second

// minStep is the smallest step taken near a transition. Orbits are sampled
// at whole seconds, so anything finer would stall.
const minStep = time.Second

// ErrInvalidInput is returned for a missing orbit or an inverted window.
var ErrInvalidInput = errors.New("invalid visibility request")

// Window is a closed time interval.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Visible reports whether the segment between two TEME positions (km) misses
// the Earth sphere. Coincident positions are visible unless they are inside
// the sphere.
func Visible(a, b geometry.Vector) bool {
	d, dist := b.Sub(a)
	c := a.Dot(a) - solar.EarthRadius*solar.EarthRadius
	if dist == 0 {
		return c > 0
	}

	// |a + t·d|² = R² for t in [0, 1].
	qa := d.Dot(d)
	qb := 2 * a.Dot(d)
	disc := qb*qb - 4*qa*c
	if disc < 0 {
		return true
	}
	sq := math.Sqrt(disc)
	t1 := (-qb + sq) / (2 * qa)
	t2 := (-qb - sq) / (2 * qa)
	return t1 < 0 || t1 > 1 || t2 < 0 || t2 > 1
}

// Scanner walks two orbits forward in time looking for occlusion changes.
type Scanner struct {
	search config.Search
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(search config.Search, logger *slog.Logger) *Scanner {
	return &Scanner{search: search, logger: logger}
}

// Windows returns the line-of-sight windows between a and b in [start, end].
// A step of zero means DefaultStep. Decayed orbits give no windows. A
// propagation failure ends the scan like reaching end does: a window still
// open is closed at end.
func (s *Scanner) Windows(a, b observe.Orbit, start, end time.Time, step time.Duration) ([]Window, error) {
	if a == nil || b == nil {
		return nil, errors.Wrap(ErrInvalidInput, "two orbits are required")
	}
	if end.Before(start) {
		return nil, errors.Wrapf(ErrInvalidInput, "end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if step < 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "negative step %v", step)
	}
	if step == 0 {
		step = DefaultStep
	}

	for i, o := range []observe.Orbit{a, b} {
		err := o.Validate(nil, start)
		switch {
		case errors.Is(err, propagation.ErrNilOrbit):
			return nil, errors.Wrapf(ErrInvalidInput, "orbit %d is nil", i+1)
		case err != nil:
			s.logger.Debug("orbit rejected", "orbit", i+1, "error", err)
			return nil, nil
		}
	}

	began := time.Now()
	defer func() { metrics.ObservePrediction("visibility", time.Since(began)) }()

	var (
		out     []Window
		open    bool
		opened  time.Time
		cur     = start
		i       int
		lastErr error
	)
	for ; !cur.After(end) && i < s.search.MaxIterations; i++ {
		sa, err := a.Propagate(cur)
		if err != nil {
			lastErr = err
			break
		}
		sb, err := b.Propagate(cur)
		if err != nil {
			lastErr = err
			break
		}

		visible := Visible(sa.Position, sb.Position)
		switch {
		case visible && !open:
			open, opened = true, cur
		case !visible && open:
			open = false
			out = append(out, Window{Start: opened, End: cur})
		}
		if s.search.Debug {
			s.logger.Debug("visibility sample", "time", cur, "visible", visible)
		}

		cur = cur.Add(nextStep(sa.Position, sb.Position, sa.Velocity, sb.Velocity, visible, step))
	}
	if lastErr != nil {
		s.logger.Debug("visibility scan stopped early", "time", cur, "windows", len(out), "error", lastErr)
	}
	if i == s.search.MaxIterations {
		metrics.RecordSearchExhausted("visibility")
		s.logger.Debug("visibility scan hit the iteration cap", "time", cur)
	}

	if open {
		out = append(out, Window{Start: opened, End: end})
	}
	return out, nil
}

// nextStep shortens the step while the line of sight is blocked, in
// proportion to how quickly the pair's geometry is changing.
func nextStep(pa, pb, va, vb geometry.Vector, visible bool, nominal time.Duration) time.Duration {
	_, dist := pb.Sub(pa)
	_, relSpeed := vb.Sub(va)
	if relSpeed == 0 || visible {
		return nominal
	}

	sec := math.Min(nominal.Seconds(), 1000*dist/relSpeed)
	adaptive := max(minStep, time.Duration(sec*float64(time.Second)))
	return max(minStep, min(nominal, adaptive/2))
}
