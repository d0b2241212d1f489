package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/service-monitor/internal/metrics"
)

// Assignment reports the groups this node owns.
type Assignment interface {
	AssignedGroups(worker int) []string
	NeedsRebalance() bool
}

// StopSignal reports a pending process stop.
type StopSignal interface {
	StopRequested() bool
}

// Backlog reports the status changes not yet written to the registry.
type Backlog interface {
	Pending() int
}

// Pool reports how many worker pools have been started.
type Pool interface {
	Generations() int64
}

type StatusHandler struct {
	logger     *slog.Logger
	nodeID     string
	metrics    *metrics.Metrics
	assignment Assignment
	stop       StopSignal
	backlog    Backlog
	pool       Pool
}

type statusResponse struct {
	Node           string           `json:"node"`
	Stopping       bool             `json:"stopping"`
	Rebalancing    bool             `json:"rebalancing"`
	AssignedGroups []string         `json:"assigned_groups"`
	PendingUpdates int              `json:"pending_updates"`
	Generations    int64            `json:"pool_generations"`
	Metrics        metrics.Snapshot `json:"metrics"`
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func NewStatusHandler(
	logger *slog.Logger,
	nodeID string,
	m *metrics.Metrics,
	assignment Assignment,
	stop StopSignal,
	backlog Backlog,
	pool Pool,
) *StatusHandler {
	return &StatusHandler{
		logger:     logger.With(slog.String("component", "handler")),
		nodeID:     nodeID,
		metrics:    m,
		assignment: assignment,
		stop:       stop,
		backlog:    backlog,
		pool:       pool,
	}
}

// Routes mounts every endpoint on a new mux.
func (h *StatusHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", h.metrics.Handler())
	mux.HandleFunc("GET /snapshot", h.metrics.SnapshotHandler())
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /healthz", h.Healthz)

	return h.logRequests(mux)
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Node:           h.nodeID,
		Stopping:       h.stop.StopRequested(),
		Rebalancing:    h.assignment.NeedsRebalance(),
		AssignedGroups: h.assignment.AssignedGroups(0),
		Metrics:        h.metrics.Snapshot(),
	}
	if resp.AssignedGroups == nil {
		resp.AssignedGroups = []string{}
	}
	if h.backlog != nil {
		resp.PendingUpdates = h.backlog.Pending()
	}
	if h.pool != nil {
		resp.Generations = h.pool.Generations()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("Cannot encode status", slog.Any("err", err))
	}
}

// Healthz answers 200 while the node runs and 503 once it is stopping.
func (h *StatusHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.stop.StopRequested() {
		http.Error(w, "stopping", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *StatusHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		h.logger.Debug("Served request",
			slog.String("from", r.RemoteAddr),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)))
	})
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
