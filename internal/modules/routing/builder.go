package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/apperrors"
	"github.com/astrolabe-io/astrolabe/internal/events"
	"github.com/astrolabe-io/astrolabe/internal/modules/anchors"
	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// AssetSource is the asset registry read view the builder depends on
type AssetSource interface {
	Routable() ([]assets.Asset, error)
	GetByKey(key string) (*assets.Asset, error)
}

// AnchorSource is the anchor registry read view the builder depends on
type AnchorSource interface {
	ActiveBridges() ([]anchors.Anchor, error)
}

// Builder owns the graph rebuild and refresh pipelines. A full rebuild
// repopulates the graph under the build lock and bumps the version; a
// light refresh re-prices DEX edges in place without a bump.
type Builder struct {
	graph     *graph.Graph
	assets    AssetSource
	anchors   AnchorSource
	discovery *Discovery
	cache     *Cache
	bus       *events.Bus
	metrics   *Metrics
	skipDEX   bool
	log       zerolog.Logger
}

func NewBuilder(g *graph.Graph, assetSrc AssetSource, anchorSrc AnchorSource, discovery *Discovery, cache *Cache, bus *events.Bus, metrics *Metrics, skipDEX bool, log zerolog.Logger) *Builder {
	return &Builder{
		graph:     g,
		assets:    assetSrc,
		anchors:   anchorSrc,
		discovery: discovery,
		cache:     cache,
		bus:       bus,
		metrics:   metrics,
		skipDEX:   skipDEX,
		log:       log.With().Str("component", "builder").Logger(),
	}
}

// Rebuild runs the atomic full-rebuild pipeline. If another build holds
// the lock the call returns a BuildInProgress error without mutating
// anything. Discovery failures on single pairs are absorbed; only a
// registry read failure or cancellation aborts the build.
func (b *Builder) Rebuild(ctx context.Context) error {
	if !b.graph.StartBuild() {
		return apperrors.BuildInProgress()
	}

	started := time.Now()
	b.publish(&events.GraphBuildStartedData{Mode: "full"})
	b.log.Info().Msg("full graph rebuild started")

	routable, err := b.assets.Routable()
	if err != nil {
		return b.fail(fmt.Errorf("snapshot routable assets: %w", err))
	}
	active, err := b.anchors.ActiveBridges()
	if err != nil {
		return b.fail(fmt.Errorf("snapshot active anchors: %w", err))
	}

	if len(routable) == 0 {
		b.graph.Clear()
		version := b.graph.CompleteBuild()
		b.invalidate("rebuild", version)
		b.complete(version, started)
		b.log.Warn().Msg("no routable assets, graph cleared")
		return nil
	}

	b.graph.Clear()
	for i := range routable {
		b.installAssetNode(&routable[i])
	}

	covered := make(map[string]struct{})
	if !b.skipDEX {
		dex, err := b.discovery.DiscoverDEX(ctx, routable)
		if err != nil {
			return b.fail(fmt.Errorf("dex discovery: %w", err))
		}
		covered = dex.Covered
		for _, p := range dex.Pairs {
			if err := b.graph.AddBidirectional(p.Forward, p.Reverse); err != nil {
				b.log.Warn().Err(err).Str("from", p.Forward.From).Str("to", p.Forward.To).Msg("dropping dex edge pair")
			}
		}
	}

	for _, p := range b.discovery.DiscoverBridges(active) {
		b.ensureBridgeNode(p.Forward.From, p.Forward.Bridge.AnchorDomain)
		b.ensureBridgeNode(p.Forward.To, p.Forward.Bridge.AnchorDomain)
		if err := b.graph.AddBidirectional(p.Forward, p.Reverse); err != nil {
			b.log.Warn().Err(err).Str("from", p.Forward.From).Str("to", p.Forward.To).Msg("dropping bridge edge pair")
		}
	}

	b.installHubEdges(covered)

	version := b.graph.CompleteBuild()
	b.invalidate("rebuild", version)
	b.complete(version, started)
	return nil
}

// Refresh re-runs DEX discovery against the current routable set and
// overwrites matching edges in place. The graph version does not change,
// so cached routes stay valid until their own TTLs lapse. Skipped
// entirely when a build holds the lock.
func (b *Builder) Refresh(ctx context.Context) error {
	if !b.graph.StartBuild() {
		return apperrors.BuildInProgress()
	}
	// The lock is only held to exclude a concurrent full rebuild; a
	// refresh never bumps the version, so release goes through AbortBuild.
	defer b.graph.AbortBuild()

	if b.skipDEX {
		return nil
	}

	started := time.Now()
	routable, err := b.assets.Routable()
	if err != nil {
		return fmt.Errorf("snapshot routable assets: %w", err)
	}

	dex, err := b.discovery.DiscoverDEX(ctx, routable)
	if err != nil {
		return fmt.Errorf("dex discovery: %w", err)
	}

	updated := 0
	for _, p := range dex.Pairs {
		// Only markets the last full build installed get re-priced. A pair
		// covered by hub fallbacks keeps them until the next rebuild;
		// markets and hub edges never coexist on a pair.
		if !b.graph.HasEdgeOfType(p.Forward.From, p.Forward.To, graph.EdgeDEX) {
			continue
		}
		if err := b.graph.AddBidirectional(p.Forward, p.Reverse); err != nil {
			continue
		}
		updated += 2
	}

	elapsed := time.Since(started)
	b.publish(&events.GraphRefreshedData{
		Version:      int64(b.graph.Version()),
		EdgesUpdated: updated,
		DurationMS:   float64(elapsed.Milliseconds()),
	})
	if b.metrics != nil {
		b.metrics.BuildRuns.WithLabelValues("light", "ok").Inc()
	}
	b.log.Info().
		Int("edges_updated", updated).
		Dur("took", elapsed).
		Msg("light refresh complete")
	return nil
}

// installAssetNode adds a registry asset as a graph node, carrying the
// registry's capability and display attributes
func (b *Builder) installAssetNode(a *assets.Asset) {
	verified := a.Verified
	numAccounts := a.NumAccounts
	deposit := a.DepositEnabled
	withdraw := a.WithdrawEnabled
	b.graph.AddOrUpdateNode(a.Key(), graph.NodeAttrs{
		Code:            a.Code,
		Issuer:          a.Issuer,
		Domain:          a.HomeDomain,
		Name:            a.Name,
		Native:          a.IsNative(),
		Verified:        &verified,
		Source:          nodeSource(a.Source),
		NumAccounts:     &numAccounts,
		DepositEnabled:  &deposit,
		WithdrawEnabled: &withdraw,
		AnchorDomain:    a.AnchorDomain,
	})
}

// nodeSource maps a registry source tag to its graph counterpart
func nodeSource(s string) graph.NodeSource {
	switch s {
	case assets.SourceAnchor:
		return graph.SourceAnchor
	case assets.SourceSynthetic:
		return graph.SourceSynthetic
	default:
		return graph.SourceNetwork
	}
}

// ensureBridgeNode adds a lightweight node for a bridge endpoint that is
// not part of the routable set. Existing nodes keep their attributes.
func (b *Builder) ensureBridgeNode(key, anchorDomain string) {
	if b.graph.HasNode(key) {
		return
	}
	code, issuer, err := assets.ParseKey(key)
	if err != nil {
		code = key
	}
	b.graph.AddOrUpdateNode(key, graph.NodeAttrs{
		Code:         code,
		Issuer:       issuer,
		Source:       graph.SourceAnchor,
		AnchorDomain: anchorDomain,
	})
}

// installHubEdges wires every uncovered non-native node to XLM
func (b *Builder) installHubEdges(covered map[string]struct{}) {
	nodes := make([]*graph.Node, 0, b.graph.NodeCount())
	for _, key := range b.graph.NodeKeys() {
		nodes = append(nodes, b.graph.Node(key))
	}

	pairs := b.discovery.HubEdges(nodes, covered)
	if len(pairs) > 0 && !b.graph.HasNode(assets.NativeKey) {
		b.graph.AddOrUpdateNode(assets.NativeKey, graph.NodeAttrs{
			Code:   assets.NativeCode,
			Name:   "Stellar Lumens",
			Native: true,
			Source: graph.SourceSynthetic,
		})
	}
	for _, p := range pairs {
		if err := b.graph.AddBidirectional(p.Forward, p.Reverse); err != nil {
			b.log.Warn().Err(err).Str("from", p.Forward.From).Msg("dropping hub edge pair")
		}
	}
}

func (b *Builder) invalidate(reason string, version uint64) {
	if b.cache != nil {
		b.cache.Clear(reason, version)
	}
}

func (b *Builder) complete(version uint64, started time.Time) {
	elapsed := time.Since(started)
	b.publish(&events.GraphBuildCompletedData{
		Version:    int64(version),
		Nodes:      b.graph.NodeCount(),
		Edges:      b.graph.EdgeCount(),
		DurationMS: float64(elapsed.Milliseconds()),
	})
	if b.metrics != nil {
		b.metrics.BuildRuns.WithLabelValues("full", "ok").Inc()
		b.metrics.BuildDuration.Observe(elapsed.Seconds())
		b.metrics.GraphNodes.Set(float64(b.graph.NodeCount()))
		b.metrics.GraphEdges.Set(float64(b.graph.EdgeCount()))
		b.metrics.GraphVersion.Set(float64(version))
	}
	b.log.Info().
		Uint64("version", version).
		Int("nodes", b.graph.NodeCount()).
		Int("edges", b.graph.EdgeCount()).
		Dur("took", elapsed).
		Msg("graph rebuild complete")
}

// fail releases the lock without bumping the version, so readers keep
// the previously installed build
func (b *Builder) fail(err error) error {
	b.graph.AbortBuild()
	b.publish(&events.GraphBuildFailedData{Error: err.Error()})
	if b.metrics != nil {
		b.metrics.BuildRuns.WithLabelValues("full", "error").Inc()
	}
	b.log.Error().Err(err).Msg("graph rebuild failed")
	return err
}

func (b *Builder) publish(data events.EventData) {
	if b.bus != nil {
		b.bus.Publish("routing", data)
	}
}

// rebuildTimeout bounds a scheduled full rebuild; refreshTimeout bounds
// a light refresh sweep
const (
	rebuildTimeout = 10 * time.Minute
	refreshTimeout = 5 * time.Minute
)

// RebuildJob adapts a full rebuild to the scheduler
type RebuildJob struct {
	builder *Builder
}

func NewRebuildJob(b *Builder) *RebuildJob { return &RebuildJob{builder: b} }

func (j *RebuildJob) Name() string { return "graph_rebuild" }

func (j *RebuildJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
	defer cancel()

	err := j.builder.Rebuild(ctx)
	if apperrors.IsKind(err, apperrors.KindBuildInProgress) {
		j.builder.log.Debug().Msg("rebuild tick skipped, build already running")
		return nil
	}
	return err
}

// RefreshJob adapts a light refresh to the scheduler
type RefreshJob struct {
	builder *Builder
}

func NewRefreshJob(b *Builder) *RefreshJob { return &RefreshJob{builder: b} }

func (j *RefreshJob) Name() string { return "graph_refresh" }

func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	err := j.builder.Refresh(ctx)
	if apperrors.IsKind(err, apperrors.KindBuildInProgress) {
		j.builder.log.Debug().Msg("refresh tick skipped, build in progress")
		return nil
	}
	return err
}
