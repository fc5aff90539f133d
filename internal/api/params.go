package api

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/observe"
)

// errBadParam wraps every query or body validation failure.
var errBadParam = errors.New("invalid parameter")

// parseTime reads an RFC 3339 timestamp or Unix seconds. An absent value
// yields def.
func parseTime(q url.Values, key string, def time.Time) (time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	return parseTimeValue(key, v)
}

func parseTimeValue(key, v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	sec, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return time.Time{}, errors.Wrapf(errBadParam, "%s must be RFC 3339 or Unix seconds, got %q", key, v)
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
}

// parseFloat reads a finite number. An absent value yields def.
func parseFloat(q url.Values, key string, def float64) (float64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Wrapf(errBadParam, "%s must be a number, got %q", key, v)
	}
	return f, nil
}

// parseInt reads an integer in [min, max]. An absent value yields def.
func parseInt(q url.Values, key string, def, min, max int) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, errors.Wrapf(errBadParam, "%s must be an integer in [%d, %d], got %q", key, min, max, v)
	}
	return n, nil
}

// parseSeconds reads a positive duration in whole seconds, at most max.
func parseSeconds(q url.Values, key string, def, max time.Duration) (time.Duration, error) {
	n, err := parseInt(q, key, int(def/time.Second), 1, int(max/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// parseLocation reads lat, lon and alt (km). Without lat and lon the result
// is nil unless required is set, in which case that is an error.
func parseLocation(q url.Values, required bool) (*observe.Location, error) {
	hasLat, hasLon := q.Get("lat") != "", q.Get("lon") != ""
	if !hasLat && !hasLon {
		if required {
			return nil, errors.Wrap(errBadParam, "lat and lon are required")
		}
		return nil, nil
	}
	if hasLat != hasLon {
		return nil, errors.Wrap(errBadParam, "lat and lon must be given together")
	}

	lat, err := parseFloat(q, "lat", 0)
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat(q, "lon", 0)
	if err != nil {
		return nil, err
	}
	alt, err := parseFloat(q, "alt", 0)
	if err != nil {
		return nil, err
	}
	loc := observe.Location{Latitude: lat, Longitude: lon, Altitude: alt}
	if err := checkLocation(loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

func checkLocation(loc observe.Location) error {
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return errors.Wrapf(errBadParam, "latitude %v outside [-90, 90]", loc.Latitude)
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return errors.Wrapf(errBadParam, "longitude %v outside [-180, 180]", loc.Longitude)
	}
	if loc.Altitude < -1 || loc.Altitude > 100 {
		return errors.Wrapf(errBadParam, "altitude %v km outside [-1, 100]", loc.Altitude)
	}
	return nil
}

// parseWindow reads start and end. start defaults to now and end to start
// plus def. end must be after start and the span at most max.
func parseWindow(q url.Values, now time.Time, def, max time.Duration) (time.Time, time.Time, error) {
	start, err := parseTime(q, "start", now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseTime(q, "end", start.Add(def))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.Wrap(errBadParam, "end must be after start")
	}
	if end.Sub(start) > max {
		return time.Time{}, time.Time{}, errors.Wrapf(errBadParam, "window longer than %v", max)
	}
	return start, end, nil
}

// parseNORADID reads a positive catalog number from a path segment.
func parseNORADID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, errors.Wrapf(errBadParam, "invalid catalog number %q", s)
	}
	return id, nil
}
