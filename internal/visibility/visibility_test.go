package visibility

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/geometry"
	"github.com/star/starpredict/internal/propagation"
	"github.com/star/starpredict/internal/transform"
)

const (
	issLine1 = "1 25544U 98067A   25045.18032407  .00016717  00000+0  30099-3 0  9993"
	issLine2 = "2 25544  51.6412 193.5765 0003457 126.2851 233.8519 15.49874301495058"

	geoLine1 = "1 41866U 16071A   25045.50000000 -.00000263  00000+0  00000+0 0  9990"
	geoLine2 = "2 41866   0.0510 265.3400 0000861 339.6800 112.1100  1.00271398 30542"
)

var (
	epoch      = time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

func mustOrbit(t testing.TB, lines ...string) *propagation.Orbit {
	t.Helper()
	o, err := propagation.FromLines(lines...)
	if err != nil {
		t.Fatalf("FromLines: %v", err)
	}
	return o
}

func newScanner() *Scanner {
	return NewScanner(config.DefaultSearch(), testLogger)
}

// countingOrbit counts propagations and optionally fails from cutoff on.
type countingOrbit struct {
	*propagation.Orbit
	calls  *atomic.Int64
	cutoff time.Time
}

func (c countingOrbit) Propagate(t time.Time) (transform.State, error) {
	c.calls.Add(1)
	if !c.cutoff.IsZero() && !t.Before(c.cutoff) {
		return transform.State{}, propagation.ErrPropagation
	}
	return c.Orbit.Propagate(t)
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name string
		a, b geometry.Vector
		want bool
	}{
		{"opposite sides", geometry.Vector{X: 7000}, geometry.Vector{X: -7000}, false},
		{"close neighbours", geometry.Vector{X: 7000}, geometry.Vector{X: 7000, Y: 100}, true},
		{"high pair clears the limb", geometry.Vector{X: 10000}, geometry.Vector{Y: 10000}, true},
		{"low pair grazes the Earth", geometry.Vector{X: 7000}, geometry.Vector{Y: 7000}, false},
		{"line crosses beyond the segment", geometry.Vector{X: 7000}, geometry.Vector{X: 42164}, true},
		{"coincident outside", geometry.Vector{Z: 7000}, geometry.Vector{Z: 7000}, true},
		{"coincident inside", geometry.Vector{Z: 1000}, geometry.Vector{Z: 1000}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Visible(tt.a, tt.b); got != tt.want {
				t.Errorf("Visible(a, b) = %v, want %v", got, tt.want)
			}
			if got := Visible(tt.b, tt.a); got != tt.want {
				t.Errorf("Visible(b, a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowsSameOrbit(t *testing.T) {
	iss := mustOrbit(t, issLine1, issLine2)
	end := epoch.Add(3 * time.Hour)

	got, err := newScanner().Windows(iss, iss, epoch, end, 0)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d windows, want 1", len(got))
	}
	if !got[0].Start.Equal(epoch) || !got[0].End.Equal(end) {
		t.Errorf("window = %v..%v, want %v..%v", got[0].Start, got[0].End, epoch, end)
	}
}

func TestWindowsLEOToGEO(t *testing.T) {
	iss := mustOrbit(t, issLine1, issLine2)
	geo := mustOrbit(t, geoLine1, geoLine2)
	end := epoch.Add(24 * time.Hour)

	got, err := newScanner().Windows(iss, geo, epoch, end, 0)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	// The ISS hides behind the Earth once per orbit.
	if len(got) < 10 {
		t.Fatalf("got %d windows over a day, want one per orbit", len(got))
	}

	for i, w := range got {
		if w.End.Before(w.Start) {
			t.Errorf("window %d ends before it starts", i)
		}
		if w.Start.Before(epoch) || w.End.After(end) {
			t.Errorf("window %d (%v..%v) outside the scan", i, w.Start, w.End)
		}
		if i > 0 && w.Start.Before(got[i-1].End) {
			t.Errorf("window %d overlaps window %d", i, i-1)
		}

		mid := w.Start.Add(w.Duration() / 2)
		sa, _ := iss.Propagate(mid)
		sb, _ := geo.Propagate(mid)
		if !Visible(sa.Position, sb.Position) {
			t.Errorf("window %d midpoint %v is occluded", i, mid)
		}
	}

	// The reverse pair sees the same geometry.
	rev, err := newScanner().Windows(geo, iss, epoch, end, 0)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	if len(rev) != len(got) {
		t.Errorf("reverse pair gave %d windows, want %d", len(rev), len(got))
	}
}

func TestWindowsDecayed(t *testing.T) {
	iss := mustOrbit(t, issLine1, issLine2)
	start := epoch.Add(800 * 24 * time.Hour)

	got, err := newScanner().Windows(iss, iss, start, start.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decayed orbit gave %d windows", len(got))
	}
}

func TestWindowsIterationCap(t *testing.T) {
	var calls atomic.Int64
	o := countingOrbit{Orbit: mustOrbit(t, issLine1, issLine2), calls: &calls}

	s := NewScanner(config.Search{MaxIterations: 3}, testLogger)
	end := epoch.Add(24 * time.Hour)
	got, err := s.Windows(o, o, epoch, end, 0)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	if n := calls.Load(); n != 6 {
		t.Errorf("Propagate called %d times, want 6", n)
	}
	if len(got) != 1 || !got[0].End.Equal(end) {
		t.Errorf("windows = %+v, want one closing at the end", got)
	}
}

func TestWindowsPropagationFailure(t *testing.T) {
	var calls atomic.Int64
	iss := mustOrbit(t, issLine1, issLine2)
	cutoff := epoch.Add(10 * time.Minute)
	failing := countingOrbit{Orbit: iss, calls: &calls, cutoff: cutoff}

	got, err := newScanner().Windows(iss, failing, epoch, epoch.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d windows, want 1", len(got))
	}
	// The scan stops at the failure, and the open window closes at end.
	if !got[0].Start.Equal(epoch) || !got[0].End.Equal(epoch.Add(time.Hour)) {
		t.Errorf("window = %v..%v, want %v..%v", got[0].Start, got[0].End, epoch, epoch.Add(time.Hour))
	}
	// 11 samples at the nominal step reach the cutoff; none follow it.
	if n := calls.Load(); n != 11 {
		t.Errorf("failing orbit propagated %d times, want 11", n)
	}
}

func TestWindowsInvalidInput(t *testing.T) {
	iss := mustOrbit(t, issLine1, issLine2)
	s := newScanner()

	tests := []struct {
		name       string
		a, b       *propagation.Orbit
		start, end time.Time
		step       time.Duration
	}{
		{"inverted window", iss, iss, epoch, epoch.Add(-time.Hour), 0},
		{"negative step", iss, iss, epoch, epoch.Add(time.Hour), -time.Second},
		{"nil first orbit", nil, iss, epoch, epoch.Add(time.Hour), 0},
		{"nil second orbit", iss, nil, epoch, epoch.Add(time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Windows(tt.a, tt.b, tt.start, tt.end, tt.step)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}

	if _, err := s.Windows(nil, iss, epoch, epoch.Add(time.Hour), 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("missing orbit: err = %v, want ErrInvalidInput", err)
	}
}

func TestNextStep(t *testing.T) {
	pa := geometry.Vector{X: 7000}
	pb := geometry.Vector{X: -7000}
	va := geometry.Vector{Y: 7}
	vb := geometry.Vector{Y: -7}

	if got := nextStep(pa, pb, va, vb, true, DefaultStep); got != DefaultStep {
		t.Errorf("visible step = %v, want %v", got, DefaultStep)
	}
	if got := nextStep(pa, pb, va, va, false, DefaultStep); got != DefaultStep {
		t.Errorf("zero relative speed step = %v, want %v", got, DefaultStep)
	}
	// Far apart: the adaptive bound exceeds the nominal step, so half of it.
	if got := nextStep(pa, pb, va, vb, false, DefaultStep); got != DefaultStep/2 {
		t.Errorf("occluded step = %v, want %v", got, DefaultStep/2)
	}
	// Almost touching: clamped to the minimum.
	if got := nextStep(pa, geometry.Vector{X: 7000.001}, va, vb, false, DefaultStep); got != minStep {
		t.Errorf("close occluded step = %v, want %v", got, minStep)
	}
}
