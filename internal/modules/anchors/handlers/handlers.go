// Package handlers provides HTTP handlers for the anchor registry.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/modules/anchors"
)

// Handler handles anchor registry HTTP requests
type Handler struct {
	service *anchors.Service
	crawler *anchors.Crawler
	log     zerolog.Logger
}

// NewHandler creates a new anchor handler
func NewHandler(service *anchors.Service, crawler *anchors.Crawler, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		crawler: crawler,
		log:     log.With().Str("handler", "anchors").Logger(),
	}
}

// RegisterRoutes registers anchor routes on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/anchors", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Register)
		r.Post("/crawl", h.TriggerCrawl)
		r.Get("/{domain}", h.Get)
		r.Put("/{domain}/assets", h.UpsertAsset)
		r.Put("/{domain}/active", h.SetActive)
	})
}

// List returns all anchors
// GET /api/anchors
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List()
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anchors": list,
		"count":   len(list),
	})
}

// Register adds a new anchor
// POST /api/anchors
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var input anchors.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	anchor, err := h.service.Register(input)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, anchor)
}

// Get returns one anchor with its bridgeable assets
// GET /api/anchors/{domain}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	anchor, err := h.service.GetByDomain(chi.URLParam(r, "domain"))
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, anchor)
}

// UpsertAsset adds or updates a bridgeable asset on an anchor
// PUT /api/anchors/{domain}/assets
func (h *Handler) UpsertAsset(w http.ResponseWriter, r *http.Request) {
	var input anchors.AssetInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	anchor, err := h.service.UpsertAsset(chi.URLParam(r, "domain"), input)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, anchor)
}

// SetActive flips an anchor's active flag
// PUT /api/anchors/{domain}/active
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	anchor, err := h.service.SetActive(chi.URLParam(r, "domain"), body.Active)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, anchor)
}

// TriggerCrawl runs one probe sweep immediately
// POST /api/anchors/crawl
func (h *Handler) TriggerCrawl(w http.ResponseWriter, r *http.Request) {
	if err := h.crawler.Crawl(r.Context()); err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
