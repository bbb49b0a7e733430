// Package handlers provides HTTP handlers for execution plans.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/modules/plans"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
)

// Handler handles plan HTTP requests
type Handler struct {
	service *plans.Service
	log     zerolog.Logger
}

// NewHandler creates a new plan handler
func NewHandler(service *plans.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "plans").Logger(),
	}
}

// RegisterRoutes registers plan routes on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/plans", func(r chi.Router) {
		r.Post("/", h.Build)
		r.Get("/quote/{id}", h.BuildForQuote)
	})
}

// buildInput accepts either a stored quote reference or an ad-hoc query
type buildInput struct {
	QuoteID string        `json:"quote_id,omitempty"`
	Query   routing.Query `json:"query"`
}

// Build creates a plan from a quote id or an inline route query
// POST /api/plans
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	var input buildInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	var plan *plans.Plan
	var err error
	if input.QuoteID != "" {
		plan, err = h.service.BuildForQuote(input.QuoteID)
	} else {
		plan, err = h.service.BuildForQuery(r.Context(), input.Query)
	}
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// BuildForQuote creates a plan from a stored quote
// GET /api/plans/quote/{id}
func (h *Handler) BuildForQuote(w http.ResponseWriter, r *http.Request) {
	plan, err := h.service.BuildForQuote(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
