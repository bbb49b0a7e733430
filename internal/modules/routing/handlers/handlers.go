// Package handlers provides HTTP handlers for the route engine: the
// route query endpoint and the graph operations surface.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// rebuildTimeout bounds a manually triggered rebuild or refresh
const rebuildTimeout = 10 * time.Minute

// Handler handles route engine HTTP requests
type Handler struct {
	service *routing.Service
	builder *routing.Builder
	graph   *graph.Graph
	cache   *routing.Cache
	log     zerolog.Logger
}

// NewHandler creates a new routing handler
func NewHandler(service *routing.Service, builder *routing.Builder, g *graph.Graph, cache *routing.Cache, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		builder: builder,
		graph:   g,
		cache:   cache,
		log:     log.With().Str("handler", "routing").Logger(),
	}
}

// RegisterRoutes registers routing endpoints on the router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/routes", func(r chi.Router) {
		r.Get("/", h.FindRoutes)
		r.Post("/", h.FindRoutesBody)
	})
	r.Route("/graph", func(r chi.Router) {
		r.Get("/stats", h.GraphStats)
		r.Get("/snapshot", h.GraphSnapshot)
		r.Post("/rebuild", h.Rebuild)
		r.Post("/refresh", h.Refresh)
	})
}

// FindRoutes resolves a route query from URL parameters
// GET /api/routes?source_code=USDC&source_issuer=G...&dest_code=XLM&amount=100
func (h *Handler) FindRoutes(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query()
	q := routing.Query{
		SourceCode:   p.Get("source_code"),
		SourceIssuer: p.Get("source_issuer"),
		DestCode:     p.Get("dest_code"),
		DestIssuer:   p.Get("dest_issuer"),
		Amount:       p.Get("amount"),
		Mode:         p.Get("mode"),
		NoCache:      p.Get("no_cache") == "true",
	}
	if v, err := strconv.Atoi(p.Get("max_hops")); err == nil {
		q.MaxHops = v
	}
	if v, err := strconv.Atoi(p.Get("max_routes")); err == nil {
		q.MaxRoutes = v
	}

	h.resolve(w, r, q)
}

// FindRoutesBody resolves a route query from a JSON body
// POST /api/routes
func (h *Handler) FindRoutesBody(w http.ResponseWriter, r *http.Request) {
	var q routing.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		apperrors.WriteJSON(w, h.log, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}
	h.resolve(w, r, q)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request, q routing.Query) {
	resp, err := h.service.FindRoutes(r.Context(), q)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GraphStats returns summary statistics for the live graph
// GET /api/graph/stats
func (h *Handler) GraphStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"graph": h.graph.Stats(),
		"cache": h.cache.Stats(),
	})
}

// GraphSnapshot serializes the live graph as msgpack
// GET /api/graph/snapshot
func (h *Handler) GraphSnapshot(w http.ResponseWriter, r *http.Request) {
	payload, err := routing.TakeSnapshot(h.graph)
	if err != nil {
		apperrors.WriteJSON(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-msgpack")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// Rebuild triggers a full rebuild in the background. Returns 409 without
// queueing when a build is already running.
// POST /api/graph/rebuild
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.graph.IsBuilding() {
		apperrors.WriteJSON(w, h.log, apperrors.BuildInProgress())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()

		if err := h.builder.Rebuild(ctx); err != nil && !apperrors.IsKind(err, apperrors.KindBuildInProgress) {
			h.log.Error().Err(err).Msg("manual rebuild failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild started"})
}

// Refresh triggers a light refresh in the background
// POST /api/graph/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.graph.IsBuilding() {
		apperrors.WriteJSON(w, h.log, apperrors.BuildInProgress())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()

		if err := h.builder.Refresh(ctx); err != nil && !apperrors.IsKind(err, apperrors.KindBuildInProgress) {
			h.log.Error().Err(err).Msg("manual refresh failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
