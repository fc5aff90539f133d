package passes

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/geometry"
	"github.com/star/starpredict/internal/observe"
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
	equator    = observe.Location{}
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

func newScanner(search config.Search) *Scanner {
	return NewScanner(observe.NewSampler(search, testLogger))
}

func mustOrbit(t testing.TB, lines ...string) *propagation.Orbit {
	t.Helper()
	o, err := propagation.FromLines(lines...)
	if err != nil {
		t.Fatalf("FromLines: %v", err)
	}
	return o
}

// fixedOrbit sits at one TEME position forever.
type fixedOrbit struct {
	pos geometry.Vector
}

func (f fixedOrbit) Propagate(time.Time) (transform.State, error) {
	return transform.State{Position: f.pos}, nil
}

func (fixedOrbit) Validate(*float64, time.Time) error { return nil }
func (fixedOrbit) IsGeostationary() bool              { return false }
func (fixedOrbit) AOSHappens(float64) bool            { return true }

func elevation(t *testing.T, s *Scanner, o Orbit, loc observe.Location, at time.Time) float64 {
	t.Helper()
	obs, err := s.sampler.Observe(o, &loc, at)
	if err != nil {
		t.Fatalf("Observe(%v): %v", at, err)
	}
	return obs.Look.Elevation
}

func TestTransitsLEO(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)
	end := epoch.Add(24 * time.Hour)

	got := s.Transits(iss, equator, epoch, end, 0, 0)
	if len(got) == 0 {
		t.Fatal("no transits over a day")
	}

	for i, tr := range got {
		if tr.Start.Before(epoch) || tr.End.After(end) {
			t.Errorf("transit %d (%v..%v) outside the window", i, tr.Start, tr.End)
		}
		if tr.End.Before(tr.Start) {
			t.Errorf("transit %d ends before it starts", i)
		}
		if tr.Duration != tr.End.Sub(tr.Start) {
			t.Errorf("transit %d duration %v != end-start %v", i, tr.Duration, tr.End.Sub(tr.Start))
		}
		if tr.Duration <= 0 || tr.Duration > 20*time.Minute {
			t.Errorf("transit %d duration %v", i, tr.Duration)
		}
		if tr.MaxElevation <= DefaultMinElevation || tr.MaxElevation > 90 {
			t.Errorf("transit %d max elevation %.2f", i, tr.MaxElevation)
		}
		if tr.MinAzimuth > tr.ApexAzimuth || tr.ApexAzimuth > tr.MaxAzimuth {
			t.Errorf("transit %d azimuths min %.1f apex %.1f max %.1f", i, tr.MinAzimuth, tr.ApexAzimuth, tr.MaxAzimuth)
		}
		if tr.MinAzimuth < 0 || tr.MaxAzimuth >= 360 {
			t.Errorf("transit %d azimuth range [%.1f, %.1f]", i, tr.MinAzimuth, tr.MaxAzimuth)
		}
		if i > 0 && !tr.Start.After(got[i-1].End) {
			t.Errorf("transit %d starts at %v, before the previous end %v", i, tr.Start, got[i-1].End)
		}

		startEl := elevation(t, s, iss, equator, tr.Start)
		endEl := elevation(t, s, iss, equator, tr.End)
		if tr.MaxElevation < startEl || tr.MaxElevation < endEl {
			t.Errorf("transit %d max %.2f below start %.2f or end %.2f", i, tr.MaxElevation, startEl, endEl)
		}
		if i > 0 && math.Abs(startEl) >= horizonTolerance {
			t.Errorf("transit %d starts at elevation %.3f, want within the horizon band", i, startEl)
		}
		if endEl >= horizonTolerance {
			t.Errorf("transit %d ends at elevation %.3f, want at or below the horizon", i, endEl)
		}
	}
}

func TestTransitsLimit(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)
	end := epoch.Add(48 * time.Hour)

	all := s.Transits(iss, equator, epoch, end, 0, 0)
	if len(all) < 2 {
		t.Fatalf("got %d transits over two days", len(all))
	}
	one := s.Transits(iss, equator, epoch, end, 0, 1)
	if len(one) != 1 || !one[0].Start.Equal(all[0].Start) {
		t.Errorf("maxTransits=1 gave %+v, want the first of %d", one, len(all))
	}

	// A higher threshold keeps a subset.
	high := s.Transits(iss, equator, epoch, end, 30, 0)
	if len(high) > len(all) {
		t.Errorf("30° threshold kept %d of %d", len(high), len(all))
	}
	for _, tr := range high {
		if tr.MaxElevation <= 30 {
			t.Errorf("kept a transit culminating at %.2f", tr.MaxElevation)
		}
	}
}

func TestTransitsNeverPass(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)
	geo := mustOrbit(t, geoLine1, geoLine2)
	far := observe.Location{Latitude: 80}

	tests := []struct {
		name  string
		orbit Orbit
		loc   observe.Location
		start time.Time
		want  error
	}{
		{"geostationary", geo, equator, epoch, ErrGeostationary},
		{"latitude out of reach", iss, far, epoch, propagation.ErrNeverVisible},
		{"decayed", iss, equator, epoch.Add(800 * 24 * time.Hour), propagation.ErrDecayed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Transits(tt.orbit, tt.loc, tt.start, tt.start.Add(72*time.Hour), 0, 0); len(got) != 0 {
				t.Errorf("got %d transits, want none", len(got))
			}
			if _, err := s.ScanTransit(tt.orbit, tt.loc, tt.start, time.Time{}); !errors.Is(err, tt.want) {
				t.Errorf("ScanTransit err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFindAOSAlreadyUp(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)

	tr := s.Transits(iss, equator, epoch, epoch.Add(24*time.Hour), 0, 1)
	if len(tr) == 0 {
		t.Fatal("no transit")
	}
	mid := tr[0].Start.Add(tr[0].Duration / 2)

	aos, err := s.FindAOS(iss, equator, mid)
	if err != nil {
		t.Fatalf("FindAOS: %v", err)
	}
	if !aos.Equal(mid.Truncate(time.Second)) {
		t.Errorf("FindAOS mid-pass = %v, want %v", aos, mid)
	}

	los, err := s.FindLOS(iss, equator, mid)
	if err != nil {
		t.Fatalf("FindLOS: %v", err)
	}
	if !los.After(mid) || los.Sub(mid) > 15*time.Minute {
		t.Errorf("FindLOS = %v, want shortly after %v", los, mid)
	}
	if el := elevation(t, s, iss, equator, los); math.Abs(el) >= horizonTolerance {
		t.Errorf("LOS elevation %.3f", el)
	}
}

func TestFindAOSAhead(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)

	tr := s.Transits(iss, equator, epoch, epoch.Add(24*time.Hour), 0, 2)
	if len(tr) < 2 {
		t.Fatalf("got %d transits", len(tr))
	}
	from := tr[0].End.Add(5 * time.Minute)

	aos, err := s.FindAOS(iss, equator, from)
	if err != nil {
		t.Fatalf("FindAOS: %v", err)
	}
	if aos.Before(from) || aos.After(tr[1].Start.Add(time.Minute)) {
		t.Errorf("FindAOS = %v, want between %v and the next transit at %v", aos, from, tr[1].Start)
	}
	if el := elevation(t, s, iss, equator, aos); math.Abs(el) >= horizonTolerance {
		t.Errorf("AOS elevation %.3f", el)
	}
}

func TestIterationLimit(t *testing.T) {
	s := newScanner(config.Search{MaxIterations: 10})
	// Over the south pole: about 43° below the horizon from the equator at
	// every instant.
	below := fixedOrbit{pos: geometry.Vector{Z: -6800}}

	if _, err := s.FindAOS(below, equator, epoch); !errors.Is(err, ErrIterationLimit) {
		t.Errorf("FindAOS err = %v, want ErrIterationLimit", err)
	}
	if _, err := s.FindLOS(below, equator, epoch); !errors.Is(err, ErrIterationLimit) {
		t.Errorf("FindLOS err = %v, want ErrIterationLimit", err)
	}
	if _, err := s.ScanTransit(below, equator, epoch, time.Time{}); !errors.Is(err, ErrIterationLimit) {
		t.Errorf("ScanTransit err = %v, want ErrIterationLimit", err)
	}
	if got := s.Transits(below, equator, epoch, epoch.Add(24*time.Hour), 0, 0); len(got) != 0 {
		t.Errorf("got %d transits from a search that never converges", len(got))
	}
}

func TestTransitSegmentBounded(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	pole := observe.Location{Latitude: 90}
	overhead := fixedOrbit{pos: geometry.Vector{Z: 6800}}
	end := epoch.Add(10 * time.Minute)

	tr, err := s.TransitSegment(overhead, pole, epoch, end)
	if err != nil {
		t.Fatalf("TransitSegment: %v", err)
	}
	if !tr.Start.Equal(epoch) {
		t.Errorf("Start = %v, want %v", tr.Start, epoch)
	}
	if tr.End.Before(end) || tr.End.Sub(end) > 5*time.Second {
		t.Errorf("End = %v, want the first sample at or after %v", tr.End, end)
	}
	if tr.MaxElevation < 89.9 {
		t.Errorf("MaxElevation = %.3f, want overhead", tr.MaxElevation)
	}

	if _, err := s.TransitSegment(overhead, pole, end, epoch); err == nil {
		t.Error("inverted segment should fail")
	}
}

func TestTransitSegmentLEO(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)

	// The second transit starts at a real AOS rather than at the window start.
	all := s.Transits(iss, equator, epoch, epoch.Add(24*time.Hour), 0, 2)
	if len(all) < 2 {
		t.Fatalf("got %d transits", len(all))
	}
	full := all[1]
	bound := full.Start.Add(full.Duration / 2)

	tr, err := s.TransitSegment(iss, equator, full.Start.Add(-10*time.Minute), bound)
	if err != nil {
		t.Fatalf("TransitSegment: %v", err)
	}
	if d := tr.Start.Sub(full.Start); d < -time.Minute || d > time.Minute {
		t.Errorf("Start = %v, want near %v", tr.Start, full.Start)
	}
	if tr.End.Before(bound) || tr.End.Sub(bound) > 2*time.Minute {
		t.Errorf("End = %v, want the first sample at or after %v", tr.End, bound)
	}
}

func TestTransitSegmentBeforeAOS(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)

	all := s.Transits(iss, equator, epoch, epoch.Add(24*time.Hour), 0, 2)
	if len(all) < 2 {
		t.Fatalf("got %d transits", len(all))
	}
	end := all[1].Start.Add(-time.Minute)

	_, err := s.TransitSegment(iss, equator, end.Add(-time.Minute), end)
	if !errors.Is(err, ErrNoTransit) {
		t.Errorf("segment ending before AOS: err = %v, want ErrNoTransit", err)
	}
}

func TestGroundWindows(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	end := epoch.Add(24 * time.Hour)

	t.Run("leo", func(t *testing.T) {
		iss := mustOrbit(t, issLine1, issLine2)
		transits := s.Transits(iss, equator, epoch, end, 0, 0)
		windows := s.GroundWindows(iss, equator, epoch, end)
		if len(windows) != len(transits) {
			t.Fatalf("got %d windows for %d transits", len(windows), len(transits))
		}
		for i := range windows {
			if !windows[i].Start.Equal(transits[i].Start) || !windows[i].End.Equal(transits[i].End) {
				t.Errorf("window %d = %+v, transit %v..%v", i, windows[i], transits[i].Start, transits[i].End)
			}
		}
	})

	geo := mustOrbit(t, geoLine1, geoLine2)
	sub, err := s.sampler.Observe(geo, nil, epoch)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("geo in view", func(t *testing.T) {
		under := observe.Location{Longitude: sub.Longitude}
		got := s.GroundWindows(geo, under, epoch, end)
		if len(got) != 1 || !got[0].Start.Equal(epoch) || !got[0].End.Equal(end) {
			t.Errorf("windows = %+v, want the whole interval", got)
		}
	})

	t.Run("geo out of view", func(t *testing.T) {
		lon := sub.Longitude + 180
		if lon > 180 {
			lon -= 360
		}
		if got := s.GroundWindows(geo, observe.Location{Longitude: lon}, epoch, end); len(got) != 0 {
			t.Errorf("windows = %+v, want none", got)
		}
	})
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0.5, 1}, {-0.5, 0}, {-0.6, -1}, {1.4, 1}, {-1.5, -1}, {0, 0},
	}
	for _, tt := range tests {
		if got := roundHalfUp(tt.in); got != tt.want {
			t.Errorf("roundHalfUp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTransitJSON(t *testing.T) {
	tr := Transit{
		Start:        epoch,
		End:          epoch.Add(90 * time.Second),
		MaxElevation: 12.5,
		Duration:     90 * time.Second,
	}
	b, err := json.Marshal(tr)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["duration_seconds"] != 90.0 || m["max_elevation"] != 12.5 {
		t.Errorf("encoded %s", b)
	}
}
