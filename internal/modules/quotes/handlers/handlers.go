// Package handlers provides HTTP handlers for quote lifecycle.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/modules/quotes"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
)

// Handler handles quote HTTP requests
type Handler struct {
	service *quotes.Service
	log     zerolog.Logger
}

// NewHandler creates a new quote handler
func NewHandler(service *quotes.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "quotes").Logger(),
	}
}

// RegisterRoutes registers quote routes on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/consume", h.Consume)
	})
}

// Create resolves a route query and freezes its best route
// POST /api/quotes
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var query routing.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	quote, err := h.service.Create(r.Context(), query)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, quote)
}

// Get returns one quote
// GET /api/quotes/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Consume marks a quote as used
// POST /api/quotes/{id}/consume
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.Consume(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// List returns recent quotes
// GET /api/quotes?limit=20
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.service.List(limit)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quotes": list,
		"count":  len(list),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
