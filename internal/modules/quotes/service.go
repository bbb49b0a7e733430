package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/events"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
)

// RouteSource resolves route queries; satisfied by the routing service
type RouteSource interface {
	FindRoutes(ctx context.Context, q routing.Query) (*routing.Response, error)
}

// Service provides quote lifecycle operations
type Service struct {
	repo   *Repository
	routes RouteSource
	bus    *events.Bus
	ttl    time.Duration
	log    zerolog.Logger
}

// NewService creates a quote service. ttlSeconds is the active window of
// a new quote.
func NewService(repo *Repository, routes RouteSource, bus *events.Bus, ttlSeconds int, log zerolog.Logger) *Service {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	return &Service{
		repo:   repo,
		routes: routes,
		bus:    bus,
		ttl:    time.Duration(ttlSeconds) * time.Second,
		log:    log.With().Str("component", "quotes").Logger(),
	}
}

// Create resolves the query and freezes its best route as a quote
func (s *Service) Create(ctx context.Context, query routing.Query) (*Quote, error) {
	resp, err := s.routes.FindRoutes(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, apperrors.NoRoute("no route available to quote")
	}

	return s.CreateFromRoute(resp.Routes[0])
}

// CreateFromRoute freezes an already resolved route as a quote
func (s *Service) CreateFromRoute(route *routing.Route) (*Quote, error) {
	payload, err := json.Marshal(route)
	if err != nil {
		return nil, fmt.Errorf("failed to freeze route manifest: %w", err)
	}

	now := time.Now().UTC()
	q := &Quote{
		ID:            uuid.New().String(),
		RouteID:       route.ID,
		Source:        route.Source,
		Destination:   route.Destination,
		SendAmount:    route.SendAmount,
		ReceiveAmount: route.ReceiveAmount,
		Score:         route.Score,
		GraphVersion:  route.GraphVersion,
		Status:        StatusActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
		routeJSON:     payload,
	}

	if err := s.repo.Create(q); err != nil {
		return nil, err
	}

	if s.bus != nil {
		s.bus.Publish("quotes", &events.QuoteLifecycleData{
			QuoteID: q.ID,
			Status:  "created",
			Source:  q.Source,
			Dest:    q.Destination,
		})
	}

	s.log.Info().
		Str("quote", q.ID).
		Str("source", q.Source).
		Str("dest", q.Destination).
		Str("receive", q.ReceiveAmount).
		Msg("Quote created")
	return q, nil
}

// Get returns a quote by id. Overdue active quotes are reported as
// expired even before the sweep has flipped them.
func (s *Service) Get(id string) (*Quote, error) {
	q, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, apperrors.NotFound("quote %s not found", id)
	}

	if q.Status == StatusActive && !q.Live(time.Now()) {
		q.Status = StatusExpired
	}
	return q, nil
}

// Consume marks a quote as used. A quote can be consumed exactly once
// and only while active.
func (s *Service) Consume(id string) (*Quote, error) {
	ok, err := s.repo.Consume(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		q, getErr := s.repo.GetByID(id)
		if getErr != nil {
			return nil, getErr
		}
		if q == nil {
			return nil, apperrors.NotFound("quote %s not found", id)
		}
		return nil, apperrors.BadRequest("quote %s is %s", id, q.Status)
	}

	if s.bus != nil {
		s.bus.Publish("quotes", &events.QuoteLifecycleData{
			QuoteID: id,
			Status:  "consumed",
		})
	}

	s.log.Info().Str("quote", id).Msg("Quote consumed")
	return s.repo.GetByID(id)
}

// List returns recent quotes
func (s *Service) List(limit int) ([]Quote, error) {
	return s.repo.ListRecent(limit)
}

// Count returns the total number of stored quotes
func (s *Service) Count() (int, error) {
	return s.repo.Count()
}

// ExpireOverdue sweeps overdue active quotes
func (s *Service) ExpireOverdue() (int64, error) {
	n, err := s.repo.ExpireOverdue()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug().Int64("expired", n).Msg("Expired overdue quotes")
	}
	return n, nil
}

// ExpireJob adapts the expiry sweep to the scheduler
type ExpireJob struct {
	service *Service
}

// NewExpireJob creates the scheduled quote expiry job
func NewExpireJob(service *Service) *ExpireJob { return &ExpireJob{service: service} }

// Name returns the job name
func (j *ExpireJob) Name() string { return "quote_expiry" }

// Run expires overdue quotes
func (j *ExpireJob) Run() error {
	_, err := j.service.ExpireOverdue()
	return err
}
