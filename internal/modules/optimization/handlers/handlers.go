// Package handlers provides HTTP handlers for the optimization engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/modules/optimization"
)

// Handler handles optimization HTTP requests.
type Handler struct {
	service *optimization.Service
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler.
func NewHandler(service *optimization.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleRun handles POST /api/optimizer/run.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	log := h.log.With().Str("request_id", requestID).Logger()

	var req optimization.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Malformed optimization request")
		h.writeError(w, requestID, http.StatusBadRequest, "malformed request body")
		return
	}

	started := time.Now()
	result, err := h.service.Run(r.Context(), req)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("optimizer", string(req.Optimizer)).Msg("Optimization failed")
		} else {
			log.Warn().Err(err).Str("optimizer", string(req.Optimizer)).Msg("Optimization rejected")
		}
		h.writeError(w, requestID, status, err.Error())
		return
	}

	log.Info().
		Str("optimizer", string(req.Optimizer)).
		Dur("elapsed", time.Since(started)).
		Msg("Optimization request served")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"request_id": requestID,
			"elapsed_ms": time.Since(started).Milliseconds(),
			"timestamp":  time.Now().Format(time.RFC3339),
		},
	})
}

// HandleStatus handles GET /api/optimizer/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"status":     "ready",
			"optimizers": optimization.Kinds(),
			"models":     optimization.Models(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// statusForError maps the engine's error taxonomy onto HTTP statuses. Input
// problems are the caller's fault; convergence and numerical failures are
// not.
func statusForError(err error) int {
	switch {
	case errors.Is(err, optimization.ErrInsufficientData),
		errors.Is(err, optimization.ErrAssetMismatch),
		errors.Is(err, optimization.ErrInfeasibleConstraint),
		errors.Is(err, optimization.ErrInvalidView):
		return http.StatusBadRequest
	case errors.Is(err, optimization.ErrConvergence),
		errors.Is(err, optimization.ErrNumericalInstability):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, requestID string, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": message,
		"metadata": map[string]interface{}{
			"request_id": requestID,
			"timestamp":  time.Now().Format(time.RFC3339),
		},
	})
}
