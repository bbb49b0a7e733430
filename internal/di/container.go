// Package di wires the application together: databases, the event bus,
// clients, module services, and the scheduler. The container owns every
// long-lived component and tears them down in reverse order on Close.
package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/clients/horizon"
	"github.com/astrolabe-io/astrolabe/internal/config"
	"github.com/astrolabe-io/astrolabe/internal/database"
	"github.com/astrolabe-io/astrolabe/internal/events"
	"github.com/astrolabe-io/astrolabe/internal/modules/anchors"
	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
	"github.com/astrolabe-io/astrolabe/internal/modules/plans"
	"github.com/astrolabe-io/astrolabe/internal/modules/quotes"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
	"github.com/astrolabe-io/astrolabe/internal/reliability"
	"github.com/astrolabe-io/astrolabe/internal/scheduler"
)

// Container holds every wired component of the application
type Container struct {
	Config    *config.Config
	Log       zerolog.Logger
	StartedAt time.Time

	RegistryDB *database.DB
	CacheDB    *database.DB

	Bus     *events.Bus
	Horizon *horizon.Client
	Metrics *routing.Metrics

	AssetService  *assets.Service
	AnchorService *anchors.Service
	AnchorCrawler *anchors.Crawler

	Graph        *graph.Graph
	GraphBuilder *routing.Builder
	RouteCache   *routing.Cache
	RouteService *routing.Service

	QuoteService *quotes.Service
	PlanService  *plans.Service

	Backup    *reliability.BackupService
	Scheduler *scheduler.Scheduler
}

// Wire builds the full dependency graph from configuration
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	c := &Container{
		Config:    cfg,
		Log:       log,
		StartedAt: time.Now().UTC(),
	}

	if err := c.wireDatabases(); err != nil {
		return nil, err
	}

	c.Bus = events.NewBus(log)
	c.Horizon = horizon.NewClient(cfg.HorizonURL, log)
	c.Metrics = routing.NewMetrics(prometheus.DefaultRegisterer)

	c.wireRegistry()
	c.wireRouting()
	c.wirePeriphery()

	if err := c.wireScheduler(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// wireDatabases opens the registry and cache databases and applies all
// schemas. Registry data is durable; the cache database is rebuildable
// and runs the fast profile.
func (c *Container) wireDatabases() error {
	registry, err := database.New(database.Config{
		Path:    filepath.Join(c.Config.DataDir, "registry.db"),
		Profile: database.ProfileStandard,
		Name:    "registry",
	})
	if err != nil {
		return fmt.Errorf("failed to open registry database: %w", err)
	}
	c.RegistryDB = registry

	cache, err := database.New(database.Config{
		Path:    filepath.Join(c.Config.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		registry.Close()
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	c.CacheDB = cache

	for _, schema := range []string{assets.Schema, anchors.Schema, quotes.Schema} {
		if err := registry.ApplySchema(schema); err != nil {
			c.Close()
			return err
		}
	}
	if err := cache.ApplySchema(routing.CacheSchema); err != nil {
		c.Close()
		return err
	}
	return nil
}

// wireRegistry builds the asset and anchor services
func (c *Container) wireRegistry() {
	assetRepo := assets.NewRepository(c.RegistryDB.Conn(), c.Log)
	c.AssetService = assets.NewService(assetRepo, c.Bus, c.Log)

	anchorRepo := anchors.NewRepository(c.RegistryDB.Conn(), c.Log)
	c.AnchorService = anchors.NewService(anchorRepo, c.Bus, c.Log)
	c.AnchorCrawler = anchors.NewCrawler(c.AnchorService, c.Log)
}

// wireRouting builds the graph, its builder, the cache, and the resolver
func (c *Container) wireRouting() {
	c.Graph = graph.New()

	cacheRepo := routing.NewCacheRepository(c.CacheDB.Conn(), c.Log)
	c.RouteCache = routing.NewCache(cacheRepo, c.Bus, c.Metrics, c.Log)

	discovery := routing.NewDiscovery(c.Horizon, c.Config.OrderbookMinDepth, c.Log)
	c.GraphBuilder = routing.NewBuilder(
		c.Graph,
		c.AssetService,
		c.AnchorService,
		discovery,
		c.RouteCache,
		c.Bus,
		c.Metrics,
		c.Config.SkipDEXDiscovery,
		c.Log,
	)

	pathfinder := routing.NewPathfinder(c.Graph, c.Log)
	enricher := routing.NewEnricher(c.Horizon, c.Log)
	c.RouteService = routing.NewService(
		c.Graph,
		pathfinder,
		c.AssetService,
		enricher,
		c.RouteCache,
		c.Metrics,
		c.Config.MaxHops,
		c.Config.MaxRoutes,
		c.Config.MaxRoutesGlobal,
		c.Log,
	)
}

// wirePeriphery builds quotes, plans, and the backup service
func (c *Container) wirePeriphery() {
	quoteRepo := quotes.NewRepository(c.RegistryDB.Conn(), c.Log)
	c.QuoteService = quotes.NewService(quoteRepo, c.RouteService, c.Bus, c.Config.QuoteTTLSeconds, c.Log)
	c.PlanService = plans.NewService(c.RouteService, c.QuoteService, c.Log)

	if c.Config.Backup != nil && c.Config.Backup.Enabled {
		store, err := reliability.NewS3Client(context.Background(), c.Config.Backup)
		if err != nil {
			// Backups degrade to disabled rather than blocking boot
			c.Log.Error().Err(err).Msg("Failed to configure snapshot storage, backups disabled")
			return
		}
		c.Backup = reliability.NewBackupService(c.RegistryDB, store, c.Config.Backup.KeepCount, c.Log)
	}
}

// wireScheduler registers every recurring job on its configured schedule
func (c *Container) wireScheduler() error {
	c.Scheduler = scheduler.New(c.Bus, c.Log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{c.Config.RefreshSchedule, routing.NewRefreshJob(c.GraphBuilder)},
		{c.Config.RebuildSchedule, routing.NewRebuildJob(c.GraphBuilder)},
		{c.Config.ProbeSchedule, anchors.NewCrawlJob(c.AnchorCrawler)},
		{c.Config.CacheSweepSchedule, routing.NewSweepJob(c.RouteCache)},
		{"@every 1m", quotes.NewExpireJob(c.QuoteService)},
	}
	if c.Backup != nil {
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{c.Config.Backup.Schedule, reliability.NewBackupJob(c.Backup)})
	}

	for _, j := range jobs {
		if err := c.Scheduler.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", j.job.Name(), err)
		}
	}
	return nil
}

// Close tears down in reverse dependency order
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Bus != nil {
		c.Bus.Close()
	}
	if c.CacheDB != nil {
		if err := c.CacheDB.Close(); err != nil {
			c.Log.Warn().Err(err).Msg("Failed to close cache database")
		}
	}
	if c.RegistryDB != nil {
		if err := c.RegistryDB.Close(); err != nil {
			c.Log.Warn().Err(err).Msg("Failed to close registry database")
		}
	}
}
