package routing

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/clients/horizon"
	"github.com/astrolabe-io/astrolabe/internal/modules/anchors"
	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// fakeOrderbooks serves canned orderbooks keyed by "BASE/COUNTER" codes
type fakeOrderbooks struct {
	mu    sync.Mutex
	books map[string]*horizon.Orderbook
	calls int
}

func (f *fakeOrderbooks) Orderbook(_ context.Context, selling, buying horizon.Asset, _ int) (*horizon.Orderbook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	key := codeOf(selling) + "/" + codeOf(buying)
	ob, ok := f.books[key]
	if !ok {
		return nil, errors.New("market not found")
	}
	return ob, nil
}

func codeOf(a horizon.Asset) string {
	if a.IsNative() {
		return "XLM"
	}
	return a.Code
}

func routableAsset(code, issuer, domain string) assets.Asset {
	return assets.Asset{Code: code, Issuer: issuer, HomeDomain: domain}
}

func deepBook(bid, ask, depth float64) *horizon.Orderbook {
	return &horizon.Orderbook{
		Bids: []horizon.Level{{Price: bid, Amount: depth}},
		Asks: []horizon.Level{{Price: ask, Amount: depth}},
	}
}

func TestDEXCandidatesHubAndIntraDomain(t *testing.T) {
	routable := []assets.Asset{
		{Code: assets.NativeCode},
		routableAsset("USDC", issuerA, "centre.io"),
		routableAsset("EURC", issuerA, "centre.io"),
		routableAsset("BTC", issuerB, ""),
	}

	candidates := dexCandidates(routable)

	var pairs []string
	for _, c := range candidates {
		pairs = append(pairs, c.base.Code+"/"+c.counter.Code)
	}
	sort.Strings(pairs)
	assert.Equal(t, []string{"BTC/XLM", "EURC/XLM", "USDC/EURC", "USDC/XLM"}, pairs)
}

func TestDEXCandidatesWithoutNative(t *testing.T) {
	routable := []assets.Asset{
		routableAsset("USDC", issuerA, "centre.io"),
		routableAsset("BTC", issuerB, "other.io"),
	}
	assert.Empty(t, dexCandidates(routable))
}

func TestDiscoverDEXAcceptsAndSkips(t *testing.T) {
	source := &fakeOrderbooks{books: map[string]*horizon.Orderbook{
		"USDC/XLM": deepBook(9.9, 10, 500),
		"BTC/XLM":  deepBook(1, 1.1, 2), // below the depth floor
	}}
	d := NewDiscovery(source, 100, zerolog.Nop())

	routable := []assets.Asset{
		{Code: assets.NativeCode},
		routableAsset("USDC", issuerA, ""),
		routableAsset("BTC", issuerB, ""),
		routableAsset("EURC", issuerA, ""), // no market at all
	}

	res, err := d.DiscoverDEX(context.Background(), routable)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Queried)
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Pairs, 1)

	usdc := assets.FormatKey("USDC", issuerA)
	assert.Contains(t, res.Covered, pairKey(usdc, assets.NativeKey))
	assert.NotContains(t, res.Covered, pairKey(assets.FormatKey("BTC", issuerB), assets.NativeKey))

	fwd := res.Pairs[0].Forward
	assert.Equal(t, usdc, fwd.From)
	assert.Equal(t, assets.NativeKey, fwd.To)
	assert.Equal(t, graph.EdgeDEX, fwd.Type)
	assert.Equal(t, 10.0, fwd.DEX.TopAsk)
	assert.InDelta(t, 0.01, fwd.DEX.Spread, 1e-9)
}

func TestDiscoverDEXEmptyRegistry(t *testing.T) {
	source := &fakeOrderbooks{}
	d := NewDiscovery(source, 100, zerolog.Nop())

	res, err := d.DiscoverDEX(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Pairs)
	assert.Zero(t, source.calls)
}

func TestDEXPairReverseMirrorsBook(t *testing.T) {
	d := NewDiscovery(nil, 10, zerolog.Nop())
	base := routableAsset("USDC", issuerA, "")
	counter := assets.Asset{Code: assets.NativeCode}

	ob := &horizon.Orderbook{
		Bids: []horizon.Level{{Price: 8, Amount: 300}},
		Asks: []horizon.Level{{Price: 10, Amount: 700}},
	}
	pair, ok := d.dexPair(base, counter, ob)
	require.True(t, ok)

	fwd, rev := pair.Forward, pair.Reverse
	assert.Equal(t, fwd.To, rev.From)
	assert.Equal(t, fwd.From, rev.To)

	// The reverse edge sees the book from the other side
	assert.Equal(t, fwd.DEX.TopAsk, rev.DEX.TopBid)
	assert.Equal(t, fwd.DEX.TopBid, rev.DEX.TopAsk)
	assert.Equal(t, fwd.DEX.AskDepth, rev.DEX.BidDepth)
	assert.Equal(t, fwd.DEX.BidDepth, rev.DEX.AskDepth)

	// Forward consumes the ask side (deeper), so it should be cheaper
	assert.Equal(t, dexWeight(fwd.DEX.Spread, 700), fwd.Weight)
	assert.Equal(t, dexWeight(fwd.DEX.Spread, 300), rev.Weight)
	assert.Less(t, fwd.Weight, rev.Weight)
}

func TestDEXPairOneSidedBook(t *testing.T) {
	d := NewDiscovery(nil, 10, zerolog.Nop())
	base := routableAsset("USDC", issuerA, "")
	counter := assets.Asset{Code: assets.NativeCode}

	pair, ok := d.dexPair(base, counter, &horizon.Orderbook{
		Asks: []horizon.Level{{Price: 10, Amount: 500}},
	})
	require.True(t, ok)
	// No bid side means the spread defaults to maximal
	assert.Equal(t, 1.0, pair.Forward.DEX.Spread)
}

func TestDEXWeight(t *testing.T) {
	// Tight spread over a deep book hits the floor
	assert.Equal(t, minEdgeWeight, dexWeight(0.001, 100000))

	deep := dexWeight(0.2, 100000)
	shallow := dexWeight(0.2, 5)
	wide := dexWeight(0.5, 100000)

	assert.Less(t, deep, shallow)
	assert.Less(t, deep, wide)

	expected := dexBaseWeight + dexSpreadMult*0.5 - dexLiqBonus*(1-1/math.Log2(100000+2))
	assert.InDelta(t, expected, wide, 1e-9)
}

func testAnchor(health float64, anchorAssets ...anchors.AnchorAsset) anchors.Anchor {
	return anchors.Anchor{
		HomeDomain: "anchor.example",
		Health:     health,
		Active:     true,
		Assets:     anchorAssets,
	}
}

func anchorAsset(code, issuer string, deposit, withdraw bool) anchors.AnchorAsset {
	return anchors.AnchorAsset{
		Code:            code,
		Issuer:          issuer,
		Active:          true,
		DepositEnabled:  deposit,
		WithdrawEnabled: withdraw,
	}
}

func TestDiscoverBridgesDirectionSemantics(t *testing.T) {
	entry := anchorAsset("USD", issuerA, true, false)
	exit := anchorAsset("EUR", issuerB, false, true)
	exit.FeeFixed = 2
	exit.FeePercent = 0.5

	d := NewDiscovery(nil, 0, zerolog.Nop())
	pairs := d.DiscoverBridges([]anchors.Anchor{testAnchor(0.9, entry, exit)})
	require.Len(t, pairs, 1)

	fwd := pairs[0].Forward
	assert.Equal(t, entry.Key(), fwd.From)
	assert.Equal(t, exit.Key(), fwd.To)
	assert.Equal(t, graph.EdgeAnchorBridge, fwd.Type)
	assert.Equal(t, "anchor.example", fwd.Bridge.AnchorDomain)

	// Entry deposit flag, exit withdraw flag, exit fees
	assert.True(t, fwd.Bridge.DepositEnabled)
	assert.True(t, fwd.Bridge.WithdrawEnabled)
	assert.Equal(t, 2.0, fwd.Bridge.FeeFixed)
	assert.Equal(t, 0.5, fwd.Bridge.FeePercent)

	rev := pairs[0].Reverse
	assert.Equal(t, exit.Key(), rev.From)
	assert.Equal(t, entry.Key(), rev.To)
	assert.False(t, rev.Bridge.DepositEnabled)
	assert.False(t, rev.Bridge.WithdrawEnabled)
	assert.Zero(t, rev.Bridge.FeeFixed)

	assert.Equal(t, bridgeWeight(0.9, 0, 0.5), fwd.Weight)
	assert.Equal(t, fwd.Weight, rev.Weight)
}

func TestDiscoverBridgesSkipsThinAnchors(t *testing.T) {
	d := NewDiscovery(nil, 0, zerolog.Nop())

	inactive := anchorAsset("EUR", issuerB, true, true)
	inactive.Active = false

	pairs := d.DiscoverBridges([]anchors.Anchor{
		testAnchor(1, anchorAsset("USD", issuerA, true, true)),
		testAnchor(1, anchorAsset("USD", issuerA, true, true), inactive),
		testAnchor(1, anchorAsset("USD", issuerA, false, false), anchorAsset("EUR", issuerB, true, true)),
	})
	assert.Empty(t, pairs)
}

func TestBridgeWeight(t *testing.T) {
	// Perfect anchor, no fees: base weight
	assert.InDelta(t, bridgeBaseWeight, bridgeWeight(1, 0, 0), 1e-9)
	// 0.3 + 0.5*0.5 + (1+2)/100
	assert.InDelta(t, 0.3+0.25+0.03, bridgeWeight(0.5, 1, 2), 1e-9)
	assert.GreaterOrEqual(t, bridgeWeight(1, -100, 0), minEdgeWeight)
}

func TestHubEdgesMaskAndPenalty(t *testing.T) {
	d := NewDiscovery(nil, 0, zerolog.Nop())

	usdc := assets.FormatKey("USDC", issuerA)
	btc := assets.FormatKey("BTC", issuerB)
	nodes := []*graph.Node{
		{Key: assets.NativeKey, Code: "XLM", Native: true},
		{Key: usdc, Code: "USDC", Verified: true},
		{Key: btc, Code: "BTC"},
	}
	covered := map[string]struct{}{
		pairKey(usdc, assets.NativeKey): {},
	}

	pairs := d.HubEdges(nodes, covered)
	require.Len(t, pairs, 1)

	fwd := pairs[0].Forward
	assert.Equal(t, btc, fwd.From)
	assert.Equal(t, assets.NativeKey, fwd.To)
	assert.Equal(t, graph.EdgeXLMHub, fwd.Type)
	assert.Equal(t, hubBaseWeight+hubUnverifiedPenalty, fwd.Weight)
	assert.True(t, fwd.Hub.Estimated)
	assert.Equal(t, "BTC", fwd.Hub.OriginCode)

	assert.Equal(t, assets.NativeKey, pairs[0].Reverse.From)
	assert.Equal(t, btc, pairs[0].Reverse.To)

	// Verified assets skip the penalty
	verifiedPairs := d.HubEdges(nodes, nil)
	require.Len(t, verifiedPairs, 2)
	for _, p := range verifiedPairs {
		if p.Forward.From == usdc {
			assert.Equal(t, hubBaseWeight, p.Forward.Weight)
		}
	}
}
