package passes

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/star/starpredict/internal/config"
	"github.com/star/starpredict/internal/propagation"
)

func TestPredictAll(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, "ISS (ZARYA)", issLine1, issLine2)
	geo := mustOrbit(t, geoLine1, geoLine2)
	end := epoch.Add(24 * time.Hour)

	req := Request{
		Location: equator,
		Orbits:   []*propagation.Orbit{iss, geo},
		Start:    epoch,
		End:      end,
	}
	got := s.PredictAll(context.Background(), req)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}

	if got[0].NORADID != 25544 || got[0].Name != "ISS (ZARYA)" {
		t.Errorf("result 0 = %d %q", got[0].NORADID, got[0].Name)
	}
	if got[0].Error != "" {
		t.Errorf("ISS error: %s", got[0].Error)
	}
	want := s.Transits(iss, equator, epoch, end, 0, 0)
	if len(got[0].Transits) != len(want) {
		t.Errorf("ISS got %d transits, direct call gives %d", len(got[0].Transits), len(want))
	}

	if got[1].NORADID != 41866 || len(got[1].Transits) != 0 {
		t.Errorf("result 1 = %+v", got[1])
	}
	if !strings.Contains(got[1].Error, "geostationary") {
		t.Errorf("GEO error = %q", got[1].Error)
	}
}

func TestPredictAllGateReason(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)

	req := Request{
		Location: equator,
		Orbits:   []*propagation.Orbit{iss},
		Start:    epoch.Add(800 * 24 * time.Hour),
	}
	req.End = req.Start.Add(24 * time.Hour)

	got := s.PredictAll(context.Background(), req)
	if !strings.Contains(got[0].Error, "decayed") {
		t.Errorf("Error = %q, want a decay reason", got[0].Error)
	}
}

func TestPredictAllCancelled(t *testing.T) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(t, issLine1, issLine2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := s.PredictAll(ctx, Request{
		Location: equator,
		Orbits:   []*propagation.Orbit{iss, iss},
		Start:    epoch,
		End:      epoch.Add(24 * time.Hour),
	})
	for i, r := range got {
		if r.Error != "cancelled" || len(r.Transits) != 0 {
			t.Errorf("result %d = %+v, want cancelled", i, r)
		}
	}
}

func BenchmarkTransitsDay(b *testing.B) {
	s := newScanner(config.DefaultSearch())
	iss := mustOrbit(b, issLine1, issLine2)
	end := epoch.Add(24 * time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Transits(iss, equator, epoch, end, 0, 0)
	}
}
