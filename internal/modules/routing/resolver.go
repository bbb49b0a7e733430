// Package routing implements the route engine: the asset graph and its
// builders, the k-shortest pathfinder, the scoring and enrichment
// pipeline, and the two-tier route cache. The resolver in this file ties
// them together behind the single find-routes entry point.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// Query modes. Send mode fixes the source amount; receive mode carries
// the desired destination amount but is priced through the same
// source-amount pipeline, so its numbers are best-effort.
const (
	ModeSend    = "send"
	ModeReceive = "receive"
)

// Strategy tags in response metadata
const (
	StrategyGraph           = "graph"
	StrategyHorizonFallback = "horizon_fallback"
)

// Resolver bounds
const (
	defaultMaxHops   = 4
	defaultMaxRoutes = 5
	maxHopsCeiling   = 6
	maxRoutesCeiling = 20

	routeTTLSeconds = 30

	// A query arriving before the first build completes waits up to the
	// grace period for version 1 instead of failing immediately.
	readinessGrace = 40 * time.Second
	readinessPoll  = 500 * time.Millisecond

	// Fallback routes carry a fixed composite score: usable, but never
	// preferred over a scored graph route on equal footing.
	fallbackScore = 0.8
)

// Query is the inbound route request
type Query struct {
	SourceCode   string `json:"source_code"`
	SourceIssuer string `json:"source_issuer,omitempty"`
	DestCode     string `json:"dest_code"`
	DestIssuer   string `json:"dest_issuer,omitempty"`
	Amount       string `json:"amount"`
	Mode         string `json:"mode,omitempty"`
	MaxHops      int    `json:"max_hops,omitempty"`
	MaxRoutes    int    `json:"max_routes,omitempty"`
	NoCache      bool   `json:"no_cache,omitempty"`
}

// Meta describes how a response was produced
type Meta struct {
	Source       string  `json:"source"`
	Destination  string  `json:"destination"`
	Amount       string  `json:"amount"`
	Mode         string  `json:"mode"`
	RouteCount   int     `json:"routeCount"`
	Strategy     string  `json:"strategy"`
	GraphVersion uint64  `json:"graphVersion"`
	Nodes        int     `json:"nodes"`
	Edges        int     `json:"edges"`
	ComputeMS    float64 `json:"computeMs"`
	Cached       bool    `json:"cached"`
	CacheSource  string  `json:"cacheSource,omitempty"`
}

// Response is the resolver output
type Response struct {
	Routes []*Route `json:"routes"`
	Meta   Meta     `json:"meta"`
}

// ResolverStats is a counter snapshot for the status endpoint
type ResolverStats struct {
	Queries  int64 `json:"queries"`
	Failures int64 `json:"failures"`
}

// Service is the route resolver: it validates queries, runs the
// pathfinder, enriches and ranks the results, and manages the cache.
type Service struct {
	graph      *graph.Graph
	pathfinder *Pathfinder
	assets     AssetSource
	enricher   *Enricher
	cache      *Cache
	metrics    *Metrics
	log        zerolog.Logger

	maxHops         int
	maxRoutes       int
	maxRoutesGlobal int

	queries  atomic.Int64
	failures atomic.Int64
}

// NewService creates the resolver. maxHops and maxRoutes are the defaults
// for queries that omit them; maxRoutesGlobal caps what a query may ask for.
func NewService(g *graph.Graph, pathfinder *Pathfinder, assetSrc AssetSource, enricher *Enricher, cache *Cache, metrics *Metrics, maxHops, maxRoutes, maxRoutesGlobal int, log zerolog.Logger) *Service {
	maxRoutesGlobal = clampInt(maxRoutesGlobal, 1, maxRoutesCeiling)
	return &Service{
		graph:           g,
		pathfinder:      pathfinder,
		assets:          assetSrc,
		enricher:        enricher,
		cache:           cache,
		metrics:         metrics,
		maxHops:         clampInt(maxHops, 1, maxHopsCeiling),
		maxRoutes:       clampInt(maxRoutes, 1, maxRoutesGlobal),
		maxRoutesGlobal: maxRoutesGlobal,
		log:             log.With().Str("component", "resolver").Logger(),
	}
}

// FindRoutes resolves a route query end to end
func (s *Service) FindRoutes(ctx context.Context, q Query) (*Response, error) {
	started := time.Now()
	s.queries.Add(1)
	if s.metrics != nil {
		s.metrics.Queries.Inc()
	}

	resp, err := s.findRoutes(ctx, q, started)
	if err != nil {
		s.failures.Add(1)
		if s.metrics != nil {
			env := apperrors.ToEnvelope(err)
			s.metrics.QueryFailures.WithLabelValues(env.Code).Inc()
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.QueryDuration.Observe(time.Since(started).Seconds())
	}
	return resp, nil
}

func (s *Service) findRoutes(ctx context.Context, q Query, started time.Time) (*Response, error) {
	srcKey, dstKey, mode, err := s.validate(&q)
	if err != nil {
		return nil, err
	}

	if err := s.awaitReady(ctx); err != nil {
		return nil, err
	}
	version := s.graph.Version()

	cacheKey := CacheKey(srcKey, dstKey, q.Amount, mode)
	if !q.NoCache && s.cache != nil {
		if payload, tier, ok := s.cache.Get(cacheKey, version); ok {
			var resp Response
			if decodeErr := json.Unmarshal(payload, &resp); decodeErr != nil {
				s.log.Warn().Err(decodeErr).Str("key", cacheKey).Msg("dropping undecodable cache entry")
			} else {
				resp.Meta.Cached = true
				resp.Meta.CacheSource = tier
				return &resp, nil
			}
		}
	}

	if err := s.checkNode(srcKey); err != nil {
		return nil, err
	}
	if err := s.checkNode(dstKey); err != nil {
		return nil, err
	}

	maxHops := s.maxHops
	if q.MaxHops > 0 {
		maxHops = clampInt(q.MaxHops, 1, maxHopsCeiling)
	}
	maxRoutes := s.maxRoutes
	if q.MaxRoutes > 0 {
		maxRoutes = clampInt(q.MaxRoutes, 1, s.maxRoutesGlobal)
	}

	strategy := StrategyGraph
	paths := s.pathfinder.KShortest(srcKey, dstKey, maxRoutes, maxHops)

	var routes []*Route
	if len(paths) == 0 {
		routes = s.horizonFallback(ctx, srcKey, dstKey, q.Amount, maxRoutes, version)
		if len(routes) == 0 {
			return nil, apperrors.NoRoute("no route from %s to %s within %d hops", srcKey, dstKey, maxHops)
		}
		strategy = StrategyHorizonFallback
	} else {
		routes = make([]*Route, 0, len(paths))
		for _, p := range paths {
			routes = append(routes, buildManifest(s.graph, p, q.Amount, version, routeTTLSeconds))
		}

		s.enricher.Enrich(ctx, routes, srcKey, dstKey, q.Amount)

		best := 0.0
		for _, r := range routes {
			if v := receiveOf(r); v > best {
				best = v
			}
		}
		for _, r := range routes {
			finalScore(r, best)
		}

		sort.SliceStable(routes, func(i, j int) bool {
			if routes[i].Score != routes[j].Score {
				return routes[i].Score > routes[j].Score
			}
			return routes[i].TotalWeight < routes[j].TotalWeight
		})
		if len(routes) > maxRoutes {
			routes = routes[:maxRoutes]
		}
	}

	resp := &Response{
		Routes: routes,
		Meta: Meta{
			Source:       srcKey,
			Destination:  dstKey,
			Amount:       q.Amount,
			Mode:         mode,
			RouteCount:   len(routes),
			Strategy:     strategy,
			GraphVersion: version,
			Nodes:        s.graph.NodeCount(),
			Edges:        s.graph.EdgeCount(),
			ComputeMS:    float64(time.Since(started).Microseconds()) / 1000.0,
		},
	}

	if !q.NoCache && s.cache != nil {
		if payload, err := json.Marshal(resp); err == nil {
			s.cache.Put(cacheKey, srcKey, dstKey, q.Amount, version, payload)
		}
	}

	s.log.Debug().
		Str("source", srcKey).
		Str("dest", dstKey).
		Str("strategy", strategy).
		Int("routes", len(routes)).
		Dur("took", time.Since(started)).
		Msg("route query resolved")
	return resp, nil
}

// validate normalizes the query and derives the canonical endpoint keys
func (s *Service) validate(q *Query) (srcKey, dstKey, mode string, err error) {
	mode = strings.ToLower(strings.TrimSpace(q.Mode))
	if mode == "" {
		mode = ModeSend
	}
	if mode != ModeSend && mode != ModeReceive {
		return "", "", "", apperrors.BadRequest("mode %q: expected %q or %q", q.Mode, ModeSend, ModeReceive)
	}

	amount, parseErr := strconv.ParseFloat(q.Amount, 64)
	if q.Amount == "" || parseErr != nil {
		return "", "", "", apperrors.BadRequest("amount %q is not a decimal number", q.Amount)
	}
	if amount <= 0 {
		return "", "", "", apperrors.BadRequest("amount must be positive")
	}

	srcKey, err = endpointKey(q.SourceCode, q.SourceIssuer)
	if err != nil {
		return "", "", "", apperrors.BadRequest("source asset: %v", err)
	}
	dstKey, err = endpointKey(q.DestCode, q.DestIssuer)
	if err != nil {
		return "", "", "", apperrors.BadRequest("destination asset: %v", err)
	}

	if srcKey == dstKey {
		return "", "", "", apperrors.BadRequest("source and destination are the same asset")
	}
	return srcKey, dstKey, mode, nil
}

// endpointKey derives the canonical key for a code/issuer query pair. An
// empty issuer only names the native asset.
func endpointKey(code, issuer string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("code is required")
	}
	if issuer == "" {
		if !strings.EqualFold(code, assets.NativeCode) && !strings.EqualFold(code, "native") {
			return "", fmt.Errorf("issuer is required for non-native asset %s", code)
		}
		return assets.NativeKey, nil
	}
	if err := assets.ValidateCode(strings.ToUpper(code)); err != nil {
		return "", err
	}
	if err := assets.ValidateIssuer(issuer); err != nil {
		return "", err
	}
	return assets.FormatKey(code, issuer), nil
}

// awaitReady blocks until the first build has completed, up to the grace
// period. Queries after boot would otherwise race the initial build.
func (s *Service) awaitReady(ctx context.Context) error {
	if s.graph.Version() > 0 {
		return nil
	}

	deadline := time.NewTimer(readinessGrace)
	defer deadline.Stop()
	tick := time.NewTicker(readinessPoll)
	defer tick.Stop()

	s.log.Info().Msg("graph not built yet, waiting for first build")
	for {
		select {
		case <-tick.C:
			if s.graph.Version() > 0 {
				return nil
			}
		case <-deadline.C:
			return apperrors.NoRoute("route graph is still building, try again shortly")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// checkNode distinguishes an unknown asset from a registered one with no
// trading relationships
func (s *Service) checkNode(key string) error {
	if s.graph.HasNode(key) {
		return nil
	}

	asset, err := s.assets.GetByKey(key)
	if err != nil {
		return err
	}
	if asset != nil {
		return apperrors.NoRoute("asset %s has no active trading relationships", key)
	}
	return apperrors.NotFound("asset %s not registered", key)
}

// horizonFallback converts strict-send records into synthetic manifests
// when the graph yields no path. Failures return an empty slice; the
// caller reports NoRoute.
func (s *Service) horizonFallback(ctx context.Context, srcKey, dstKey, amount string, limit int, version uint64) []*Route {
	records := s.enricher.strictSend(ctx, srcKey, amount, dstKey)
	if len(records) > limit {
		records = records[:limit]
	}

	routes := make([]*Route, 0, len(records))
	for _, rec := range records {
		hops := make([]string, 0, len(rec.Path))
		for _, hop := range rec.Path {
			hops = append(hops, horizonAssetKey(hop))
		}

		nodes := make([]string, 0, len(hops)+2)
		nodes = append(nodes, srcKey)
		nodes = append(nodes, hops...)
		nodes = append(nodes, dstKey)

		r := &Route{
			ID:            routeID(nodes, amount),
			Source:        srcKey,
			Destination:   dstKey,
			SendAmount:    amount,
			ReceiveAmount: rec.DestinationAmount,
			Hops:          len(hops) + 1,
			TotalWeight:   0,
			EdgeTypes:     []string{LegHorizonPath},
			Score:         fallbackScore,
			GraphVersion:  version,
			ComputedAt:    time.Now().UTC(),
			TTLSeconds:    routeTTLSeconds,
			PriceSource:   PriceSourceHorizon,
			Legs: []Leg{{
				From: srcKey,
				To:   dstKey,
				Type: LegHorizonPath,
				Details: HorizonLegDetails{
					Path: hops,
				},
			}},
		}
		for _, key := range nodes {
			r.Path = append(r.Path, stopFor(s.graph, key))
		}
		routes = append(routes, r)
	}

	if len(routes) > 0 {
		s.log.Info().
			Str("source", srcKey).
			Str("dest", dstKey).
			Int("routes", len(routes)).
			Msg("graph produced no paths, served horizon fallback")
	}
	return routes
}

// Stats returns the resolver counters
func (s *Service) Stats() ResolverStats {
	return ResolverStats{
		Queries:  s.queries.Load(),
		Failures: s.failures.Load(),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
