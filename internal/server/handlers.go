package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/finmail/internal/common"
	"github.com/Veraticus/finmail/internal/orchestrator"
)

// ServiceName is reported by the health endpoints.
const ServiceName = "financial-email-processor"

// UserIDHeader names the caller when the invocation body does not.
const UserIDHeader = "X-User-ID"

const maxInvocationBytes = 1 << 20

// HealthReporter reports the state of a dependency in a word, e.g. the currency converter.
type HealthReporter interface {
	Health(ctx context.Context) string
}

// Handler serves the HTTP surface.
type Handler struct {
	orch     *orchestrator.Orchestrator
	exchange HealthReporter
	now      func() time.Time
	version  string
}

// NewHandler creates the HTTP handlers. exchange may be nil.
func NewHandler(orch *orchestrator.Orchestrator, exchange HealthReporter, version string) *Handler {
	return &Handler{
		orch:     orch,
		exchange: exchange,
		now:      time.Now,
		version:  version,
	}
}

// Router builds the chi router with logging, metrics and panic recovery.
func (h *Handler) Router(logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Use(Metrics)
	r.Use(middleware.Recoverer)

	r.Post("/invocations", h.Invoke)
	r.Get("/tools", h.Tools)
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// Invoke runs one tool call. Tool errors are returned as {"error": ...} with status 200,
// except unknown tools (404) and permission denials (403).
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	var inv orchestrator.Invocation
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInvocationBytes))
	dec.UseNumber()
	if err := dec.Decode(&inv); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if inv.Tool == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tool is required"})
		return
	}
	if inv.UserID == "" {
		inv.UserID = r.Header.Get(UserIDHeader)
	}

	result := h.orch.Invoke(r.Context(), inv)

	status := http.StatusOK
	outcome := "success"
	switch {
	case errors.Is(result.Err, orchestrator.ErrUnknownTool):
		status, outcome = http.StatusNotFound, "unknown"
	case errors.Is(result.Err, common.ErrPermissionDenied):
		status, outcome = http.StatusForbidden, "denied"
	case !result.OK():
		outcome = "error"
	}
	toolInvocationsTotal.WithLabelValues(inv.Tool, outcome).Inc()

	writeJSON(w, status, result)
}

// Tools lists the registered tools.
func (h *Handler) Tools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.ListTools())
}

type healthResponse struct {
	Components map[string]string `json:"components"`
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Service    string            `json:"service"`
	Version    string            `json:"version"`
}

// Health reports the state of each component. It always answers 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{
		"database":         "unknown",
		"exchange_service": "unknown",
		"email_processor":  "unavailable",
	}
	if store := h.orch.Store(); store != nil {
		components["database"] = "connected"
		if err := store.Ping(r.Context()); err != nil {
			components["database"] = "disconnected"
		}
	}
	if h.exchange != nil {
		components["exchange_service"] = h.exchange.Health(r.Context())
	}
	if h.orch.Capabilities().HasMailbox {
		components["email_processor"] = "available"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "healthy",
		Timestamp:  h.now().UTC().Format(time.RFC3339),
		Service:    ServiceName,
		Version:    h.version,
		Components: components,
	})
}

type readyResponse struct {
	Dependencies orchestrator.Capabilities `json:"dependencies"`
	Status       string                    `json:"status"`
}

// Ready reports whether the mailbox pipeline is wired.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	caps := h.orch.Capabilities()
	status := "ready"
	if !caps.HasMailbox {
		status = "not_ready"
	}
	writeJSON(w, http.StatusOK, readyResponse{Status: status, Dependencies: caps})
}

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type probeResponse struct {
	Checks    map[string]checkResult `json:"checks,omitempty"`
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
}

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// HealthLive answers 200 while the process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, probeResponse{
		Status:    statusOK,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Service:   ServiceName,
		Version:   h.version,
	})
}

// HealthReady checks the database and the currency converter. A failed database answers 503;
// a degraded converter only degrades the status.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]checkResult)
	if store := h.orch.Store(); store != nil {
		if err := store.Ping(ctx); err != nil {
			checks["database"] = checkResult{Status: statusFail, Message: err.Error()}
		} else {
			checks["database"] = checkResult{Status: statusOK}
		}
	}
	if h.exchange != nil {
		if state := h.exchange.Health(ctx); state == "operational" {
			checks["exchange_service"] = checkResult{Status: statusOK}
		} else {
			checks["exchange_service"] = checkResult{Status: statusDegraded, Message: state}
		}
	}

	resp := probeResponse{
		Status:    overallStatus(checks),
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Service:   ServiceName,
		Version:   h.version,
		Checks:    checks,
	}
	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func overallStatus(checks map[string]checkResult) string {
	degraded := false
	for _, c := range checks {
		if c.Status == statusFail {
			return statusFail
		}
		if c.Status == statusDegraded {
			degraded = true
		}
	}
	if degraded {
		return statusDegraded
	}
	return statusOK
}
