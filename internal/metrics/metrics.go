package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starpredict_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starpredict_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	transitsFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starpredict_transits_found_total",
			Help: "Transits returned by pass enumeration.",
		},
	)

	searchExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starpredict_search_exhausted_total",
			Help: "Searches that hit the iteration cap without converging.",
		},
		[]string{"search"},
	)

	propagationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starpredict_propagation_failures_total",
			Help: "SGP4 evaluations that produced no usable state.",
		},
	)

	predictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starpredict_prediction_duration_seconds",
			Help:    "Wall time of prediction operations.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"operation"},
	)

	catalogSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starpredict_catalog_satellites",
			Help: "Satellites with an initialized orbit in the loaded catalog.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starpredict_catalog_age_seconds",
			Help: "Seconds since the loaded catalog was fetched.",
		},
	)

	snapshotCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starpredict_snapshot_cache_lookups_total",
			Help: "Snapshot cache lookups by result.",
		},
		[]string{"result"},
	)

	snapshotCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starpredict_snapshot_cache_entries",
			Help: "Snapshots currently held in the cache.",
		},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starpredict_streams_active",
			Help: "Open position streams.",
		},
	)

	streamMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starpredict_stream_messages_total",
			Help: "Messages written to position streams.",
		},
	)

	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starpredict_stream_bytes_total",
			Help: "Bytes written to position streams.",
		},
	)

	streamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starpredict_stream_errors_total",
			Help: "Position stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(transitsFound)
	prometheus.MustRegister(searchExhausted)
	prometheus.MustRegister(propagationFailures)
	prometheus.MustRegister(predictionDuration)
	prometheus.MustRegister(catalogSatellites)
	prometheus.MustRegister(catalogAgeSeconds)
	prometheus.MustRegister(snapshotCacheLookups)
	prometheus.MustRegister(snapshotCacheEntries)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessages)
	prometheus.MustRegister(streamBytes)
	prometheus.MustRegister(streamErrors)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTransits counts transits returned to a caller.
func RecordTransits(n int) {
	transitsFound.Add(float64(n))
}

// RecordSearchExhausted counts a search that hit its iteration cap. search
// is a fixed label such as "aos", "los" or "transit".
func RecordSearchExhausted(search string) {
	searchExhausted.WithLabelValues(search).Inc()
}

// RecordPropagationFailure counts one failed SGP4 evaluation.
func RecordPropagationFailure() {
	propagationFailures.Inc()
}

// ObservePrediction records how long an operation took.
func ObservePrediction(operation string, d time.Duration) {
	predictionDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetCatalogSize sets the number of satellites in the loaded catalog.
func SetCatalogSize(n int) {
	catalogSatellites.Set(float64(n))
}

// SetCatalogAge sets the age of the loaded catalog.
func SetCatalogAge(seconds float64) {
	catalogAgeSeconds.Set(seconds)
}

// RecordCacheLookup counts a snapshot cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	snapshotCacheLookups.WithLabelValues(result).Inc()
}

// SetCacheEntries sets the number of cached snapshots.
func SetCacheEntries(n int) {
	snapshotCacheEntries.Set(float64(n))
}

// StreamOpened and StreamClosed track open position streams.
func StreamOpened() { streamsActive.Inc() }
func StreamClosed() { streamsActive.Dec() }

// RecordStreamMessage counts one message of n bytes.
func RecordStreamMessage(n int) {
	streamMessages.Inc()
	streamBytes.Add(float64(n))
}

// RecordStreamError counts a stream error. reason is a fixed label such as
// "rate_limit", "send_error" or "snapshot".
func RecordStreamError(reason string) {
	streamErrors.WithLabelValues(reason).Inc()
}

// exactRoutes are label-safe paths passed through unchanged.
var exactRoutes = map[string]bool{
	"/":                  true,
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/v1/satellites": true,
	"/api/v1/positions":  true,
	"/api/v1/visibility": true,
	"/api/v1/passes":     true,

	"/api/v1/stream/positions": true,
}

// satelliteOps are the per-satellite operations under /api/v1/satellites/{id}/.
var satelliteOps = map[string]bool{
	"position":  true,
	"ephemeris": true,
	"transits":  true,
	"windows":   true,
	"period":    true,
}

// normalizeRoute maps a request path to a bounded label set so catalog
// numbers and scanner traffic cannot explode metric cardinality.
func normalizeRoute(path string) string {
	if exactRoutes[path] {
		return path
	}

	const prefix = "/api/v1/satellites/"
	if rest, ok := strings.CutPrefix(path, prefix); ok {
		id, op, found := strings.Cut(rest, "/")
		if found && satelliteOps[op] && isDigits(id) {
			return prefix + "{norad_id}/" + op
		}
	}
	return "other"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
