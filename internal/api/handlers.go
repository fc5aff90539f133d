package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/observe"
	"github.com/star/starpredict/internal/passes"
	"github.com/star/starpredict/internal/propagation"
	"github.com/star/starpredict/internal/visibility"
)

const (
	// maxSamples caps the number of observations one ephemeris request may
	// produce.
	maxSamples = 10000
	// maxWindow caps every prediction interval.
	maxWindow = 31 * 24 * time.Hour
	// maxBatch caps the satellites in one pass request.
	maxBatch = 200
	// maxBody caps the pass request body.
	maxBody = 1 << 20
)

type handlers struct {
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func (h *handlers) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now().UTC()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadParam),
		errors.Is(err, observe.ErrInvalidInterval),
		errors.Is(err, visibility.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, propagation.ErrUnknownSatellite):
		return http.StatusNotFound
	case errors.Is(err, propagation.ErrNoDataset),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, propagation.ErrNeverVisible),
		errors.Is(err, propagation.ErrDecayed),
		errors.Is(err, propagation.ErrPropagation),
		errors.Is(err, passes.ErrGeostationary),
		errors.Is(err, passes.ErrIterationLimit):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("request failed", "component", "api", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// orbit resolves the {norad_id} path segment.
func (h *handlers) orbit(r *http.Request) (*propagation.Orbit, error) {
	id, err := parseNORADID(r.PathValue("norad_id"))
	if err != nil {
		return nil, err
	}
	return h.deps.Catalog.Orbit(id)
}

type satelliteSummary struct {
	NORADID       int       `json:"norad_id"`
	Name          string    `json:"name,omitempty"`
	Epoch         time.Time `json:"epoch"`
	Inclination   float64   `json:"inclination"`
	MeanMotion    float64   `json:"mean_motion"`
	Geostationary bool      `json:"geostationary"`
}

type catalogResponse struct {
	Source     string             `json:"source"`
	FetchedAt  time.Time          `json:"fetched_at"`
	EpochMin   time.Time          `json:"epoch_min"`
	EpochMax   time.Time          `json:"epoch_max"`
	Count      int                `json:"count"`
	Satellites []satelliteSummary `json:"satellites"`
}

// GET /api/v1/satellites
func (h *handlers) listSatellites(w http.ResponseWriter, r *http.Request) {
	ds := h.deps.Store.Get()
	if ds == nil {
		h.fail(w, r, propagation.ErrNoDataset)
		return
	}
	resp := catalogResponse{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt.UTC(),
		EpochMin:   ds.EpochRange.Min,
		EpochMax:   ds.EpochRange.Max,
		Count:      len(ds.Satellites),
		Satellites: make([]satelliteSummary, 0, len(ds.Satellites)),
	}
	for _, e := range ds.Satellites {
		resp.Satellites = append(resp.Satellites, satelliteSummary{
			NORADID:       e.NORADID,
			Name:          e.Name,
			Epoch:         e.Epoch,
			Inclination:   e.Inclination,
			MeanMotion:    e.MeanMotion,
			Geostationary: math.Abs(e.MeanMotion-1.0027) < 0.005,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/satellites/{norad_id}/position?time=&lat=&lon=&alt=
func (h *handlers) position(w http.ResponseWriter, r *http.Request) {
	o, err := h.orbit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	t, err := parseTime(q, "time", h.clock())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	loc, err := parseLocation(q, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	obs, err := h.deps.Sampler.Position(o, loc, t)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

type ephemerisResponse struct {
	NORADID         int                   `json:"norad_id"`
	IntervalSeconds float64               `json:"interval_seconds"`
	Samples         []observe.Observation `json:"samples"`
}

// GET /api/v1/satellites/{norad_id}/ephemeris?start=&end=&interval=&lat=&lon=&alt=
func (h *handlers) ephemeris(w http.ResponseWriter, r *http.Request) {
	o, err := h.orbit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	start, end, err := parseWindow(q, h.clock(), 90*time.Minute, maxWindow)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	interval, err := parseSeconds(q, "interval", time.Minute, 24*time.Hour)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if n := int64(math.Ceil(float64(end.Sub(start)) / float64(interval))); n > maxSamples {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "too many samples, widen the interval or shorten the window",
			"max_samples": maxSamples,
		})
		return
	}
	loc, err := parseLocation(q, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	samples, err := h.deps.Sampler.Ephemeris(o, loc, start, end, interval)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if samples == nil {
		samples = []observe.Observation{}
	}
	writeJSON(w, http.StatusOK, ephemerisResponse{
		NORADID:         o.NORADID(),
		IntervalSeconds: interval.Seconds(),
		Samples:         samples,
	})
}

// GET /api/v1/satellites/{norad_id}/transits?lat=&lon=&alt=&start=&end=&min_elevation=&max_transits=
func (h *handlers) transits(w http.ResponseWriter, r *http.Request) {
	o, err := h.orbit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	loc, err := parseLocation(q, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	start, end, err := parseWindow(q, h.clock(), 24*time.Hour, maxWindow)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	minEl, err := parseFloat(q, "min_elevation", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if minEl < 0 || minEl >= 90 {
		h.fail(w, r, errors.Wrapf(errBadParam, "min_elevation %v outside [0, 90)", minEl))
		return
	}
	maxTransits, err := parseInt(q, "max_transits", 0, 0, 1000)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if o.IsGeostationary() {
		h.fail(w, r, errors.Wrapf(passes.ErrGeostationary, "NORAD %d", o.NORADID()))
		return
	}
	if err := o.Validate(&loc.Latitude, start); err != nil {
		h.fail(w, r, err)
		return
	}

	list := h.deps.Passes.Transits(o, *loc, start, end, minEl, maxTransits)
	if list == nil {
		list = []passes.Transit{}
	}
	writeJSON(w, http.StatusOK, passes.SatelliteTransits{
		NORADID:  o.NORADID(),
		Name:     o.Elements().Name,
		Transits: list,
	})
}

type windowsResponse struct {
	NORADID int                 `json:"norad_id"`
	Windows []visibility.Window `json:"windows"`
}

// GET /api/v1/satellites/{norad_id}/windows?lat=&lon=&alt=&start=&end=
func (h *handlers) windows(w http.ResponseWriter, r *http.Request) {
	o, err := h.orbit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	loc, err := parseLocation(q, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	start, end, err := parseWindow(q, h.clock(), 24*time.Hour, maxWindow)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := o.Validate(&loc.Latitude, start); err != nil {
		h.fail(w, r, err)
		return
	}

	list := h.deps.Passes.GroundWindows(o, *loc, start, end)
	if list == nil {
		list = []visibility.Window{}
	}
	writeJSON(w, http.StatusOK, windowsResponse{NORADID: o.NORADID(), Windows: list})
}

type periodResponse struct {
	NORADID       int     `json:"norad_id"`
	PeriodSeconds float64 `json:"period_seconds"`
	SemiMajorAxis float64 `json:"semi_major_axis_km"`
}

// GET /api/v1/satellites/{norad_id}/period
func (h *handlers) period(w http.ResponseWriter, r *http.Request) {
	o, err := h.orbit(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, periodResponse{
		NORADID:       o.NORADID(),
		PeriodSeconds: o.Period().Seconds(),
		SemiMajorAxis: o.SemiMajorAxis(),
	})
}

type positionEntry struct {
	NORADID   int        `json:"norad_id"`
	ECEF      [3]float64 `json:"ecef"`     // km
	Velocity  [3]float64 `json:"velocity"` // km/s, Earth-fixed
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Altitude  float64    `json:"altitude"`
}

type positionsResponse struct {
	Timestamp  time.Time       `json:"timestamp"`
	Count      int             `json:"count"`
	Satellites []positionEntry `json:"satellites"`
}

// GET /api/v1/positions?time=
func (h *handlers) positions(w http.ResponseWriter, r *http.Request) {
	t, err := parseTime(r.URL.Query(), "time", h.clock())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.deps.Catalog.Snapshot(r.Context(), t)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := positionsResponse{
		Timestamp:  snap.Timestamp.UTC(),
		Count:      len(snap.Satellites),
		Satellites: make([]positionEntry, 0, len(snap.Satellites)),
	}
	for _, s := range snap.Satellites {
		p, v := s.ECEF.Position, s.ECEF.Velocity
		resp.Satellites = append(resp.Satellites, positionEntry{
			NORADID:   s.NORADID,
			ECEF:      [3]float64{p.X, p.Y, p.Z},
			Velocity:  [3]float64{v.X, v.Y, v.Z},
			Latitude:  s.Geodetic.LatDeg,
			Longitude: s.Geodetic.LonDeg,
			Altitude:  s.Geodetic.AltKm,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type visibilityResponse struct {
	A       int                 `json:"a"`
	B       int                 `json:"b"`
	Windows []visibility.Window `json:"windows"`
}

// GET /api/v1/visibility?a=&b=&start=&end=&step=
func (h *handlers) visibility(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var orbits [2]*propagation.Orbit
	for i, key := range []string{"a", "b"} {
		id, err := parseNORADID(q.Get(key))
		if err != nil {
			h.fail(w, r, errors.Wrapf(err, "parameter %s", key))
			return
		}
		if orbits[i], err = h.deps.Catalog.Orbit(id); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	start, end, err := parseWindow(q, h.clock(), 24*time.Hour, maxWindow)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	step, err := parseSeconds(q, "step", visibility.DefaultStep, time.Hour)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	list, err := h.deps.Visibility.Windows(orbits[0], orbits[1], start, end, step)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []visibility.Window{}
	}
	writeJSON(w, http.StatusOK, visibilityResponse{
		A:       orbits[0].NORADID(),
		B:       orbits[1].NORADID(),
		Windows: list,
	})
}

type passesRequest struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Altitude     float64 `json:"altitude"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	MinElevation float64 `json:"min_elevation"`
	MaxTransits  int     `json:"max_transits"`
	NORADIDs     []int   `json:"norad_ids"`
}

type passesResponse struct {
	Start   time.Time                  `json:"start"`
	End     time.Time                  `json:"end"`
	Results []passes.SatelliteTransits `json:"results"`
}

// POST /api/v1/passes
func (h *handlers) passes(w http.ResponseWriter, r *http.Request) {
	var body passesRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.fail(w, r, errors.Wrapf(errBadParam, "request body: %v", err))
		return
	}

	req, err := h.buildRequest(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, passesResponse{
		Start:   req.Start,
		End:     req.End,
		Results: h.deps.Passes.PredictAll(r.Context(), req),
	})
}

// buildRequest validates a pass request body and resolves its orbits. An
// empty id list selects the whole catalog.
func (h *handlers) buildRequest(body passesRequest) (passes.Request, error) {
	loc := observe.Location{Latitude: body.Latitude, Longitude: body.Longitude, Altitude: body.Altitude}
	if err := checkLocation(loc); err != nil {
		return passes.Request{}, err
	}

	start := h.clock()
	if body.Start != "" {
		t, err := parseTimeValue("start", body.Start)
		if err != nil {
			return passes.Request{}, err
		}
		start = t
	}
	end := start.Add(24 * time.Hour)
	if body.End != "" {
		t, err := parseTimeValue("end", body.End)
		if err != nil {
			return passes.Request{}, err
		}
		end = t
	}
	if !end.After(start) {
		return passes.Request{}, errors.Wrap(errBadParam, "end must be after start")
	}
	if end.Sub(start) > maxWindow {
		return passes.Request{}, errors.Wrapf(errBadParam, "window longer than %v", maxWindow)
	}
	if body.MinElevation < 0 || body.MinElevation >= 90 {
		return passes.Request{}, errors.Wrapf(errBadParam, "min_elevation %v outside [0, 90)", body.MinElevation)
	}
	if body.MaxTransits < 0 {
		return passes.Request{}, errors.Wrap(errBadParam, "max_transits must not be negative")
	}

	var orbits []*propagation.Orbit
	if len(body.NORADIDs) == 0 {
		all, err := h.deps.Catalog.Orbits()
		if err != nil {
			return passes.Request{}, err
		}
		orbits = all
	} else {
		seen := make(map[int]bool, len(body.NORADIDs))
		for _, id := range body.NORADIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			o, err := h.deps.Catalog.Orbit(id)
			if err != nil {
				return passes.Request{}, err
			}
			orbits = append(orbits, o)
		}
	}
	if len(orbits) > maxBatch {
		return passes.Request{}, errors.Wrapf(errBadParam, "%d satellites requested, at most %d per request", len(orbits), maxBatch)
	}

	return passes.Request{
		Location:     loc,
		Orbits:       orbits,
		Start:        start,
		End:          end,
		MinElevation: body.MinElevation,
		MaxTransits:  body.MaxTransits,
	}, nil
}
