package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

func marketRoute(weight float64, legs ...Leg) *Route {
	return &Route{
		TotalWeight: weight,
		Hops:        len(legs),
		Legs:        legs,
	}
}

func dexLeg(askDepth float64) Leg {
	return Leg{Type: string(graph.EdgeDEX), Details: DEXLegDetails{AskDepth: askDepth}}
}

func bridgeLeg(health float64) Leg {
	return Leg{Type: string(graph.EdgeAnchorBridge), Details: BridgeLegDetails{AnchorHealth: health}}
}

func hubLeg() Leg {
	return Leg{Type: string(graph.EdgeXLMHub), Details: HubLegDetails{Estimated: true}}
}

func TestPreliminaryScoreSingleDeepMarket(t *testing.T) {
	r := marketRoute(0.5, dexLeg(1000))
	preliminaryScore(r)

	// weight 0.9, hops 1.0, liquidity 1.0, reliability 1.0
	assert.InDelta(t, 0.9, r.ScoreBreakdown.Weight, 1e-9)
	assert.InDelta(t, 1.0, r.ScoreBreakdown.Hops, 1e-9)
	assert.InDelta(t, 1.0, r.ScoreBreakdown.Liquidity, 1e-9)
	assert.InDelta(t, 1.0, r.ScoreBreakdown.Reliability, 1e-9)
	assert.InDelta(t, 0.30*0.9+0.25+0.20+0.25, r.Score, 1e-9)
	assert.Zero(t, r.ScoreBreakdown.Amount)
}

func TestPreliminaryScorePenalizesHops(t *testing.T) {
	short := marketRoute(1, dexLeg(1000))
	long := marketRoute(1, dexLeg(1000), dexLeg(1000), dexLeg(1000))

	preliminaryScore(short)
	preliminaryScore(long)

	assert.Greater(t, short.Score, long.Score)
	assert.InDelta(t, 0.5, long.ScoreBreakdown.Hops, 1e-9)
}

func TestFinalScoreNormalizesAmount(t *testing.T) {
	best := marketRoute(1, dexLeg(1000))
	best.ReceiveAmount = "100.0000000"
	worse := marketRoute(1, dexLeg(1000))
	worse.ReceiveAmount = "50.0000000"

	finalScore(best, 100)
	finalScore(worse, 100)

	assert.InDelta(t, 1.0, best.ScoreBreakdown.Amount, 1e-9)
	assert.InDelta(t, 0.5, worse.ScoreBreakdown.Amount, 1e-9)
	assert.Greater(t, best.Score, worse.Score)
}

func TestFinalScoreZeroBest(t *testing.T) {
	r := marketRoute(1, dexLeg(1000))
	r.ReceiveAmount = "10.0000000"

	finalScore(r, 0)
	assert.Zero(t, r.ScoreBreakdown.Amount)
}

func TestLiquidityFallbacks(t *testing.T) {
	// No DEX legs: bridges rate higher than hub-only routes
	bridge := marketRoute(1, bridgeLeg(1))
	hub := marketRoute(1, hubLeg())

	assert.InDelta(t, 0.3, liquidityScore(bridge), 1e-9)
	assert.InDelta(t, 0.2, liquidityScore(hub), 1e-9)

	// Mean depth across DEX legs, capped at 1
	mixed := marketRoute(1, dexLeg(400), dexLeg(600))
	assert.InDelta(t, 0.5, liquidityScore(mixed), 1e-9)
	deep := marketRoute(1, dexLeg(50000))
	assert.InDelta(t, 1.0, liquidityScore(deep), 1e-9)
}

func TestReliabilityAveragesAnchorHealth(t *testing.T) {
	pure := marketRoute(1, dexLeg(1000))
	assert.InDelta(t, 1.0, reliabilityScore(pure), 1e-9)

	bridged := marketRoute(1, bridgeLeg(0.8), bridgeLeg(0.4))
	assert.InDelta(t, 0.6, reliabilityScore(bridged), 1e-9)
}

func TestIsPureMarket(t *testing.T) {
	assert.True(t, isPureMarket(marketRoute(1, dexLeg(10))))
	assert.True(t, isPureMarket(marketRoute(1, dexLeg(10), hubLeg())))
	assert.False(t, isPureMarket(marketRoute(1, dexLeg(10), bridgeLeg(1))))
	assert.False(t, isPureMarket(marketRoute(1)))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 0.5, clamp01(0.5))
	assert.Equal(t, 1.0, clamp01(1.5))
}
