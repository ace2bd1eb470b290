// Package api serves the alert triage HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"hostline-siem/internal/alertstore"
	"hostline-siem/internal/detect"
	"hostline-siem/internal/intel"
	"hostline-siem/internal/rules"
)

// defaultListLimit caps alert list responses when no limit is supplied.
const defaultListLimit = 100

// DetectionFunc triggers one full detection run.
type DetectionFunc func(ctx context.Context) (detect.Summary, error)

// Handler provides HTTP handlers for alert operations.
type Handler struct {
	store  alertstore.Store
	intel  *intel.Service
	detect DetectionFunc
	logger *slog.Logger
}

// NewHandler creates an alert API handler. detectFn may be nil, in which
// case POST /v1/detect reports the capability as unavailable.
func NewHandler(store alertstore.Store, intelSvc *intel.Service, detectFn DetectionFunc, logger *slog.Logger) *Handler {
	return &Handler{store: store, intel: intelSvc, detect: detectFn, logger: logger}
}

// RegisterRoutes registers all alert routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/alerts", h.HandleListAlerts)
	mux.HandleFunc("GET /v1/alerts/stats", h.HandleStats)
	mux.HandleFunc("GET /v1/alerts/{id}", h.HandleGetAlert)
	mux.HandleFunc("POST /v1/alerts/{id}/acknowledge", h.HandleAcknowledge)
	mux.HandleFunc("POST /v1/alerts/{id}/close", h.HandleClose)
	mux.HandleFunc("POST /v1/detect", h.HandleDetect)
	mux.HandleFunc("POST /v1/threat-intel/check", h.HandleThreatCheck)
	mux.HandleFunc("GET /health", h.HandleHealth)
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ListResponse carries a page of alerts. Total counts the full
// filter-matched set, not the limited page.
type ListResponse struct {
	Alerts []alertstore.Alert `json:"alerts"`
	Total  int                `json:"total"`
}

// HandleListAlerts handles GET /v1/alerts.
func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter alertstore.Filter
	if severity := q.Get("severity"); severity != "" {
		filter.Severity = rules.Severity(severity)
	}
	if status := q.Get("status"); status != "" {
		filter.Status = alertstore.Status(status)
	}

	limit := defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	alerts, err := h.store.Query(r.Context(), filter)
	if err != nil {
		h.storeError(w, "query alerts", err)
		return
	}

	total := len(alerts)
	if limit < len(alerts) {
		alerts = alerts[:limit]
	}
	if alerts == nil {
		alerts = []alertstore.Alert{}
	}
	h.writeJSON(w, http.StatusOK, ListResponse{Alerts: alerts, Total: total})
}

// HandleGetAlert handles GET /v1/alerts/{id}. The response is enriched
// with threat intel matches.
func (h *Handler) HandleGetAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}

	alert, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.storeError(w, "get alert", err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.intel.EnrichAlert(*alert))
}

// HandleAcknowledge handles POST /v1/alerts/{id}/acknowledge. The body
// may carry acknowledged_by; it defaults to "analyst".
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}

	var body struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	// An empty or absent body is fine; only malformed JSON is rejected.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if body.AcknowledgedBy == "" {
		body.AcknowledgedBy = "analyst"
	}

	if err := h.store.UpdateStatus(r.Context(), id, alertstore.StatusAcknowledged, body.AcknowledgedBy); err != nil {
		h.storeError(w, "acknowledge alert", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// HandleClose handles POST /v1/alerts/{id}/close. Closing stamps no
// acknowledgment fields.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.alertID(w, r)
	if !ok {
		return
	}

	if err := h.store.UpdateStatus(r.Context(), id, alertstore.StatusClosed, ""); err != nil {
		h.storeError(w, "close alert", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// StatsResponse aggregates alert counts.
type StatsResponse struct {
	BySeverity  map[string]int `json:"by_severity"`
	ByStatus    map[string]int `json:"by_status"`
	TotalOpen   int            `json:"total_open"`
	TotalAlerts int            `json:"total_alerts"`
}

// HandleStats handles GET /v1/alerts/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.storeError(w, "alert stats", err)
		return
	}

	total := 0
	for _, n := range stats.ByStatus {
		total += n
	}
	h.writeJSON(w, http.StatusOK, StatsResponse{
		BySeverity:  stats.BySeverity,
		ByStatus:    stats.ByStatus,
		TotalOpen:   stats.ByStatus[string(alertstore.StatusOpen)],
		TotalAlerts: total,
	})
}

// HandleDetect handles POST /v1/detect.
func (h *Handler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	if h.detect == nil {
		h.writeError(w, http.StatusServiceUnavailable, "detection_unavailable", "detection is not configured")
		return
	}

	summary, err := h.detect(r.Context())
	if err != nil {
		h.logger.Error("detection run failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "detection_error", "detection run failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"alerts_generated": summary.Total()})
}

// ThreatCheckRequest is the body of POST /v1/threat-intel/check.
type ThreatCheckRequest struct {
	IP     string `json:"ip,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// HandleThreatCheck handles POST /v1/threat-intel/check. A key is
// present in the response only when the corresponding input was
// supplied; null marks a clean indicator.
func (h *Handler) HandleThreatCheck(w http.ResponseWriter, r *http.Request) {
	var req ThreatCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	resp := make(map[string]*intel.Match)
	if req.IP != "" {
		resp["ip"] = h.intel.CheckIP(req.IP)
	}
	if req.Domain != "" {
		resp["domain"] = h.intel.CheckDomain(req.Domain)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) alertID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_id", "alert id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case alertstore.IsNotFound(err):
		h.writeError(w, http.StatusNotFound, "not_found", "Alert not found")
	case alertstore.IsIllegalTransition(err):
		h.writeError(w, http.StatusConflict, "illegal_transition", "status transition not allowed")
	default:
		h.logger.Error(op+" failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "storage_error", op+" failed")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
