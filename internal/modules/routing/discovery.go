package routing

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/astrolabe-io/astrolabe/internal/clients/horizon"
	"github.com/astrolabe-io/astrolabe/internal/modules/anchors"
	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// Edge weight parameters. Lower weight is better; every formula floors at
// minEdgeWeight so no edge is ever free.
const (
	minEdgeWeight = 0.01

	dexBaseWeight = 0.1
	dexSpreadMult = 2.0
	dexLiqBonus   = 0.5

	bridgeBaseWeight    = 0.3
	bridgeHealthPenalty = 0.5
	bridgeFeeMult       = 1.0

	hubBaseWeight        = 0.4
	hubUnverifiedPenalty = 0.2
)

const (
	orderbookConcurrency = 3
	orderbookTimeout     = 8 * time.Second
	orderbookDepthLimit  = 20
)

// OrderbookSource is the slice of the Horizon client discovery needs
type OrderbookSource interface {
	Orderbook(ctx context.Context, selling, buying horizon.Asset, limit int) (*horizon.Orderbook, error)
}

// EdgePair is a forward and reverse edge over the same asset pair
type EdgePair struct {
	Forward *graph.Edge
	Reverse *graph.Edge
}

// DEXResult is the outcome of one DEX discovery sweep
type DEXResult struct {
	Pairs []EdgePair
	// Covered holds the unordered pair keys that produced an accepted
	// orderbook; the hub pass uses it as a mask.
	Covered map[string]struct{}
	// Queried and Skipped count orderbook attempts for logging
	Queried int
	Skipped int
}

// Discovery turns registry snapshots and Horizon orderbooks into weighted
// edges for the route graph.
type Discovery struct {
	horizon  OrderbookSource
	minDepth float64
	log      zerolog.Logger
}

func NewDiscovery(source OrderbookSource, minDepth float64, log zerolog.Logger) *Discovery {
	return &Discovery{
		horizon:  source,
		minDepth: minDepth,
		log:      log.With().Str("component", "discovery").Logger(),
	}
}

// pairKey builds an unordered identity for an asset pair
func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

type dexCandidate struct {
	base    assets.Asset
	counter assets.Asset
}

// DiscoverDEX sweeps the orderbooks for every candidate pair and returns
// the accepted edge pairs. Candidates are hub-and-spoke (each non-native
// asset against native) plus every intra-domain pair for home domains
// holding two or more routable assets. Individual orderbook failures skip
// the pair; only context cancellation aborts the sweep.
func (d *Discovery) DiscoverDEX(ctx context.Context, routable []assets.Asset) (*DEXResult, error) {
	candidates := dexCandidates(routable)

	res := &DEXResult{
		Covered: make(map[string]struct{}),
	}
	if len(candidates) == 0 {
		return res, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(orderbookConcurrency)

	for _, c := range candidates {
		c := c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			qctx, cancel := context.WithTimeout(gctx, orderbookTimeout)
			defer cancel()

			ob, err := d.horizon.Orderbook(qctx, horizonAsset(c.base), horizonAsset(c.counter), orderbookDepthLimit)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.log.Warn().Err(err).
					Str("base", c.base.Key()).
					Str("counter", c.counter.Key()).
					Msg("orderbook query failed, skipping pair")
				mu.Lock()
				res.Queried++
				res.Skipped++
				mu.Unlock()
				return nil
			}

			pair, ok := d.dexPair(c.base, c.counter, ob)

			mu.Lock()
			defer mu.Unlock()
			res.Queried++
			if !ok {
				res.Skipped++
				return nil
			}
			res.Pairs = append(res.Pairs, pair)
			res.Covered[pairKey(c.base.Key(), c.counter.Key())] = struct{}{}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.log.Debug().
		Int("queried", res.Queried).
		Int("accepted", len(res.Pairs)).
		Int("skipped", res.Skipped).
		Msg("dex discovery complete")
	return res, nil
}

// dexCandidates builds the deduplicated candidate pair list
func dexCandidates(routable []assets.Asset) []dexCandidate {
	var native *assets.Asset
	others := make([]assets.Asset, 0, len(routable))
	for i := range routable {
		if routable[i].IsNative() {
			a := routable[i]
			native = &a
			continue
		}
		others = append(others, routable[i])
	}

	seen := make(map[string]struct{})
	var candidates []dexCandidate

	add := func(base, counter assets.Asset) {
		k := pairKey(base.Key(), counter.Key())
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		candidates = append(candidates, dexCandidate{base: base, counter: counter})
	}

	if native != nil {
		for _, a := range others {
			add(a, *native)
		}
	}

	byDomain := make(map[string][]assets.Asset)
	for _, a := range others {
		if a.HomeDomain == "" {
			continue
		}
		byDomain[a.HomeDomain] = append(byDomain[a.HomeDomain], a)
	}
	for _, group := range byDomain {
		if len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				add(group[i], group[j])
			}
		}
	}

	return candidates
}

// dexPair converts one orderbook into a forward and reverse edge. The
// forward weight is computed from the ask side, the reverse from the bid
// side, and the reverse detail block presents the book from the other
// side of the market. Pairs below the depth floor are rejected.
func (d *Discovery) dexPair(base, counter assets.Asset, ob *horizon.Orderbook) (EdgePair, bool) {
	bidDepth := ob.BidDepth()
	askDepth := ob.AskDepth()
	if math.Max(bidDepth, askDepth) < d.minDepth {
		return EdgePair{}, false
	}

	topBid := ob.BestBid()
	topAsk := ob.BestAsk()
	spread := 1.0
	if topBid > 0 && topAsk > 0 {
		spread = math.Abs(topAsk-topBid) / topAsk
	}

	now := time.Now().UTC()
	fwd := &graph.Edge{
		From:      base.Key(),
		To:        counter.Key(),
		Type:      graph.EdgeDEX,
		Weight:    dexWeight(spread, askDepth),
		UpdatedAt: now,
		DEX: &graph.DEXDetails{
			TopBid:   topBid,
			TopAsk:   topAsk,
			Spread:   spread,
			BidDepth: bidDepth,
			AskDepth: askDepth,
			BidCount: len(ob.Bids),
			AskCount: len(ob.Asks),
		},
	}
	rev := &graph.Edge{
		From:      counter.Key(),
		To:        base.Key(),
		Type:      graph.EdgeDEX,
		Weight:    dexWeight(spread, bidDepth),
		UpdatedAt: now,
		DEX: &graph.DEXDetails{
			TopBid:   topAsk,
			TopAsk:   topBid,
			Spread:   spread,
			BidDepth: askDepth,
			AskDepth: bidDepth,
			BidCount: len(ob.Asks),
			AskCount: len(ob.Bids),
		},
	}
	return EdgePair{Forward: fwd, Reverse: rev}, true
}

// dexWeight scores a DEX hop from its spread and the depth on the side a
// traversal would consume
func dexWeight(spread, depth float64) float64 {
	w := dexBaseWeight + dexSpreadMult*spread - dexLiqBonus*(1-1/math.Log2(depth+2))
	return math.Max(minEdgeWeight, w)
}

// DiscoverBridges derives bridge edge pairs from the active anchors. For
// each anchor, every unordered pair of its bridgeable assets yields a
// bidirectional edge pair. No I/O is involved.
func (d *Discovery) DiscoverBridges(active []anchors.Anchor) []EdgePair {
	var pairs []EdgePair

	for ai := range active {
		anchor := &active[ai]

		bridgeable := make([]anchors.AnchorAsset, 0, len(anchor.Assets))
		for _, aa := range anchor.Assets {
			if aa.Bridgeable() {
				bridgeable = append(bridgeable, aa)
			}
		}
		if len(bridgeable) < 2 {
			continue
		}

		for i := 0; i < len(bridgeable); i++ {
			for j := i + 1; j < len(bridgeable); j++ {
				pairs = append(pairs, bridgePair(anchor, bridgeable[i], bridgeable[j]))
			}
		}
	}

	return pairs
}

// bridgePair builds the two directed edges for one anchor asset pair.
// Traversing a bridge deposits the source asset and withdraws the
// destination asset, so each direction carries the entry endpoint's
// deposit flag, the exit endpoint's withdraw flag, and the exit
// endpoint's fees.
func bridgePair(anchor *anchors.Anchor, a, b anchors.AnchorAsset) EdgePair {
	weight := bridgeWeight(anchor.Health, a.FeePercent, b.FeePercent)
	now := time.Now().UTC()

	fwd := &graph.Edge{
		From:      a.Key(),
		To:        b.Key(),
		Type:      graph.EdgeAnchorBridge,
		Weight:    weight,
		UpdatedAt: now,
		Bridge: &graph.BridgeDetails{
			AnchorDomain:    anchor.HomeDomain,
			AnchorHealth:    anchor.Health,
			DepositEnabled:  a.DepositEnabled,
			WithdrawEnabled: b.WithdrawEnabled,
			FeeFixed:        b.FeeFixed,
			FeePercent:      b.FeePercent,
		},
	}
	rev := &graph.Edge{
		From:      b.Key(),
		To:        a.Key(),
		Type:      graph.EdgeAnchorBridge,
		Weight:    weight,
		UpdatedAt: now,
		Bridge: &graph.BridgeDetails{
			AnchorDomain:    anchor.HomeDomain,
			AnchorHealth:    anchor.Health,
			DepositEnabled:  b.DepositEnabled,
			WithdrawEnabled: a.WithdrawEnabled,
			FeeFixed:        a.FeeFixed,
			FeePercent:      a.FeePercent,
		},
	}
	return EdgePair{Forward: fwd, Reverse: rev}
}

// bridgeWeight scores a bridge hop from the anchor's health and the
// percentage fees at both endpoints
func bridgeWeight(health, feePercentA, feePercentB float64) float64 {
	w := bridgeBaseWeight +
		(1-health)*bridgeHealthPenalty +
		(feePercentA/100+feePercentB/100)*bridgeFeeMult
	return math.Max(minEdgeWeight, w)
}

// HubEdges creates fallback edge pairs between each non-native node and
// the native asset for every pair not already covered by DEX data. These
// synthetic hops always rank worse than real markets.
func (d *Discovery) HubEdges(nodes []*graph.Node, covered map[string]struct{}) []EdgePair {
	var pairs []EdgePair
	now := time.Now().UTC()

	for _, n := range nodes {
		if n.Native || n.Key == assets.NativeKey {
			continue
		}
		if _, ok := covered[pairKey(n.Key, assets.NativeKey)]; ok {
			continue
		}

		weight := hubBaseWeight
		if !n.Verified {
			weight += hubUnverifiedPenalty
		}
		details := &graph.HubDetails{
			OriginCode:   n.Code,
			OriginDomain: n.Domain,
			Estimated:    true,
		}

		pairs = append(pairs, EdgePair{
			Forward: &graph.Edge{
				From: n.Key, To: assets.NativeKey,
				Type: graph.EdgeXLMHub, Weight: weight, UpdatedAt: now,
				Hub: details,
			},
			Reverse: &graph.Edge{
				From: assets.NativeKey, To: n.Key,
				Type: graph.EdgeXLMHub, Weight: weight, UpdatedAt: now,
				Hub: details,
			},
		})
	}

	return pairs
}

func horizonAsset(a assets.Asset) horizon.Asset {
	return horizon.NewAsset(a.Code, a.Issuer)
}
