package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all price history routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/symbols", h.HandleListSymbols)
		r.Get("/{symbol}", h.HandleGetSeries)
		r.Post("/{symbol}/prices", h.HandleSavePrices)
		r.Get("/{symbol}/stats", h.HandleGetStats)
	})
}
