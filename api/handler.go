// Package api exposes the engine's admin surface over HTTP: event
// ingestion, recent-event and suspicious-actor queries, stats, and
// block list management.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/yourusername/guardrail/blocklist"
	"github.com/yourusername/guardrail/events"
)

// Handler handles event log and block list requests
type Handler struct {
	events *events.Log
	blocks *blocklist.BlockList
}

// NewHandler creates a new API handler
func NewHandler(log *events.Log, blocks *blocklist.BlockList) *Handler {
	return &Handler{
		events: log,
		blocks: blocks,
	}
}

// BlockRequest represents a block or unblock request
type BlockRequest struct {
	Actor           string `json:"actor"`                      // Required: IP or client identifier
	DurationSeconds int64  `json:"duration_seconds,omitempty"` // Optional: block duration (default 1h)
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LogEvent handles POST /events requests
func (h *Handler) LogEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var e events.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.events.Log(r.Context(), &e); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_event", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": e.ID})
}

// RecentEvents handles GET /events/recent requests.
// Query parameters: category (default security), limit, severity.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	category := r.URL.Query().Get("category")
	if category == "" {
		category = events.CategorySecurity
	}
	limit := intQuery(r, "limit", 0)
	severity := events.Severity(r.URL.Query().Get("severity"))

	list, err := h.events.Recent(r.Context(), category, limit, severity)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	h.sendJSON(w, map[string]interface{}{"events": list, "count": len(list)})
}

// SuspiciousActors handles GET /actors/suspicious requests
func (h *Handler) SuspiciousActors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	category := r.URL.Query().Get("category")
	if category == "" {
		category = events.CategoryRateLimit
	}
	limit := intQuery(r, "limit", 0)

	actors, err := h.events.SuspiciousActors(r.Context(), category, limit)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	h.sendJSON(w, map[string]interface{}{"actors": actors, "count": len(actors)})
}

// Stats handles GET /stats requests.
// Query parameter: window_hours (default 24).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	hours := intQuery(r, "window_hours", 24)
	stats, err := h.events.Stats(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	h.sendJSON(w, stats)
}

// Block handles POST /block requests
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBlockRequest(w, r)
	if !ok {
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := h.blocks.Block(r.Context(), req.Actor, duration); err != nil {
		h.sendError(w, http.StatusInternalServerError, "block_failed", err.Error())
		return
	}
	h.sendJSON(w, map[string]interface{}{"actor": req.Actor, "blocked": true})
}

// Unblock handles POST /unblock requests
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBlockRequest(w, r)
	if !ok {
		return
	}

	removed, err := h.blocks.Unblock(r.Context(), req.Actor)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "unblock_failed", err.Error())
		return
	}
	h.sendJSON(w, map[string]interface{}{"actor": req.Actor, "removed": removed})
}

// ListBlocked handles GET /blocked requests
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	actors, err := h.blocks.ListBlocked(r.Context())
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	h.sendJSON(w, map[string]interface{}{"actors": actors, "count": len(actors)})
}

func (h *Handler) decodeBlockRequest(w http.ResponseWriter, r *http.Request) (*BlockRequest, bool) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return nil, false
	}

	var req BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return nil, false
	}
	if req.Actor == "" {
		h.sendError(w, http.StatusBadRequest, "missing_actor", "actor is required")
		return nil, false
	}
	return &req, true
}

func intQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (h *Handler) sendJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
