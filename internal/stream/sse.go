// Package stream implements Server-Sent Events (SSE) streaming of catalog
// positions. Clients connect via GET /api/v1/stream/positions and receive
// Earth-fixed positions of every satellite, or of the ones listed in
// ?norad=, once per step.
//
// SSE message format:
//
//	data: {"type":"positions","t":"2025-02-14T12:00:05Z","frame":"ECEF","sat":[...]}\n\n
//
// The first message on every connection is metadata:
//
//	data: {"type":"metadata","dataset_epoch":"...","tle_age_seconds":1800,"satellites":42}\n\n
//
// Keep-alive comments (:\n\n) are sent when no data went out for a
// keepalive interval.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/cache"
	"github.com/star/starpredict/internal/httputil"
	"github.com/star/starpredict/internal/metrics"
	"github.com/star/starpredict/internal/propagation"
	"github.com/star/starpredict/internal/tle"
)

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int
	KeepaliveInterval  time.Duration
	TrustProxy         bool
}

// Handler manages SSE streaming connections.
type Handler struct {
	snapshots *cache.SnapshotCache
	store     *tle.Store
	config    Config
	limiter   *connLimiter
	logger    *slog.Logger
}

// NewHandler creates a streaming handler.
func NewHandler(snapshots *cache.SnapshotCache, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	return &Handler{
		snapshots: snapshots,
		store:     store,
		config:    config,
		limiter:   newConnLimiter(config.MaxConcurrentPerIP),
		logger:    logger,
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseIDs reads a comma-separated list of catalog numbers. An empty string
// selects every satellite.
func parseIDs(s string) (map[int]bool, error) {
	if s == "" {
		return nil, nil
	}
	ids := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id <= 0 {
			return nil, errors.Errorf("invalid catalog number %q", part)
		}
		ids[id] = true
	}
	return ids, nil
}

// HandlePositions serves the SSE position stream.
// GET /api/v1/stream/positions?step=5&norad=25544,41866
func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	step := 5
	if v := r.URL.Query().Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 60 {
			badRequest(w, "invalid step parameter, must be 1-60")
			return
		}
		step = n
	}

	ids, err := parseIDs(r.URL.Query().Get("norad"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.acquire(ip) {
		metrics.RecordStreamError("rate_limit")
		h.logger.Warn("stream limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.StreamOpened()
	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"step", step,
		"satellites", len(ids),
	)

	defer func() {
		h.limiter.release(ip)
		metrics.StreamClosed()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Long-lived: clear the server's WriteTimeout for this connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{w: w, flusher: flusher, rc: rc, logger: h.logger}

	// Jittered retry (3-7s) spreads reconnects after a restart.
	fmt.Fprintf(w, "retry: %d\n\n", 3000+rand.Intn(4000))
	flusher.Flush()

	if ds := h.store.Get(); ds != nil {
		meta := metadataMessage{
			Type:         "metadata",
			DatasetEpoch: ds.FetchedAt.UTC().Format(time.RFC3339),
			TLEAge:       int(time.Since(ds.FetchedAt).Seconds()),
			Satellites:   len(ds.Satellites),
		}
		if err := c.sendJSON(meta); err != nil {
			metrics.RecordStreamError("send_error")
			h.logger.Warn("stream send error (metadata)", "remote_ip", ip, "error", err)
			return
		}
	}

	ticker := time.NewTicker(time.Duration(step) * time.Second)
	defer ticker.Stop()

	keepalive := time.NewTicker(h.config.KeepaliveInterval)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case t := <-ticker.C:
			snap, err := h.snapshots.Get(ctx, t)
			if err != nil {
				metrics.RecordStreamError("snapshot")
				h.logger.Debug("stream snapshot unavailable", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendJSON(buildPositionsMessage(snap, ids)); err != nil {
				metrics.RecordStreamError("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepalive.Reset(h.config.KeepaliveInterval)

		case <-keepalive.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.RecordStreamError("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

// buildPositionsMessage formats a snapshot, keeping only ids when non-nil.
func buildPositionsMessage(snap *propagation.Snapshot, ids map[int]bool) positionsMessage {
	sats := make([]satPayload, 0, len(snap.Satellites))
	for _, s := range snap.Satellites {
		if ids != nil && !ids[s.NORADID] {
			continue
		}
		p := s.ECEF.Position
		sats = append(sats, satPayload{
			ID:  s.NORADID,
			P:   [3]float64{p.X, p.Y, p.Z},
			Lat: s.Geodetic.LatDeg,
			Lon: s.Geodetic.LonDeg,
			Alt: s.Geodetic.AltKm,
		})
	}
	return positionsMessage{
		Type:  "positions",
		T:     snap.Timestamp.UTC().Format(time.RFC3339),
		Frame: "ECEF",
		Sat:   sats,
	}
}

// SSE message payload types.

type metadataMessage struct {
	Type         string `json:"type"`
	DatasetEpoch string `json:"dataset_epoch"`
	TLEAge       int    `json:"tle_age_seconds"`
	Satellites   int    `json:"satellites"`
}

type positionsMessage struct {
	Type  string       `json:"type"`
	T     string       `json:"t"`
	Frame string       `json:"frame"`
	Sat   []satPayload `json:"sat"`
}

type satPayload struct {
	ID  int        `json:"id"`
	P   [3]float64 `json:"p"` // km
	Lat float64    `json:"lat"`
	Lon float64    `json:"lon"`
	Alt float64    `json:"alt"` // km
}
