// Package handlers provides HTTP handlers for the price history store.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/history"
)

// Handler handles price history HTTP requests.
type Handler struct {
	repo *history.Repository
	log  zerolog.Logger
}

// NewHandler creates a new history handler.
func NewHandler(repo *history.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "history").Logger(),
	}
}

// HandleListSymbols handles GET /api/history/symbols.
func (h *Handler) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.repo.ListSymbols()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list symbols")
		http.Error(w, "Failed to list symbols", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": symbols,
		"metadata": map[string]interface{}{
			"count":     len(symbols),
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetSeries handles GET /api/history/{symbol}?lookback_days=N.
func (h *Handler) HandleGetSeries(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	lookback := 0
	if raw := r.URL.Query().Get("lookback_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid lookback_days", http.StatusBadRequest)
			return
		}
		lookback = parsed
	}

	series, err := h.repo.GetSeries(symbol, lookback)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get series")
		http.Error(w, "Failed to get series", http.StatusInternalServerError)
		return
	}
	if len(series.Points) == 0 {
		http.Error(w, "Symbol not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": series,
		"metadata": map[string]interface{}{
			"observations": len(series.Points),
			"timestamp":    time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSavePrices handles POST /api/history/{symbol}/prices.
func (h *Handler) HandleSavePrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var points []domain.PricePoint
	if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
		http.Error(w, "Malformed price payload", http.StatusBadRequest)
		return
	}
	if len(points) == 0 {
		http.Error(w, "Empty price payload", http.StatusBadRequest)
		return
	}

	if err := h.repo.SavePrices(symbol, points); err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to save prices")
		http.Error(w, "Failed to save prices", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": symbol,
			"saved":  len(points),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetStats handles GET /api/history/{symbol}/stats.
func (h *Handler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	stats, err := h.repo.GetStats(symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get stats")
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		http.Error(w, "No statistics for symbol", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": stats,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
