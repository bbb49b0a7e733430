// Package handlers provides HTTP handlers for the asset registry.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
)

// Handler handles asset registry HTTP requests
type Handler struct {
	service *assets.Service
	log     zerolog.Logger
}

// NewHandler creates a new asset handler
func NewHandler(service *assets.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "assets").Logger(),
	}
}

// RegisterRoutes registers asset routes on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Register)
		r.Put("/", h.Upsert)
		r.Get("/{key}", h.Get)
		r.Put("/{key}/verified", h.SetVerified)
		r.Put("/{key}/active", h.SetActive)
	})
}

// List returns all registered assets
// GET /api/assets?verified=true
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	verifiedOnly := r.URL.Query().Get("verified") == "true"

	list, err := h.service.List(verifiedOnly)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"assets": list,
		"count":  len(list),
	})
}

// Register adds a new asset to the registry
// POST /api/assets
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var input assets.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	asset, err := h.service.Register(input)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, asset)
}

// Upsert adds an asset or replaces the attributes of an existing one
// PUT /api/assets
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var input assets.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	asset, err := h.service.Upsert(input)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// Get resolves one asset by key
// GET /api/assets/{key}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	asset, err := h.service.GetByKey(key)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// SetVerified updates the verified flag of an asset
// PUT /api/assets/{key}/verified
func (h *Handler) SetVerified(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var body struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	asset, err := h.service.SetVerified(key, body.Verified)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// SetActive updates the active flag of an asset
// PUT /api/assets/{key}/active
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	asset, err := h.service.SetActive(key, body.Active)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
