package routing

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// Composite score weights. Before enrichment only topology signals are
// available; afterwards the realized receive amount dominates.
const (
	preWeightW = 0.30
	preHopsW   = 0.25
	preLiqW    = 0.20
	preRelW    = 0.25

	postAmountW = 0.40
	postWeightW = 0.15
	postHopsW   = 0.15
	postLiqW    = 0.15
	postRelW    = 0.15
)

// ScoreBreakdown exposes the sub-scores behind a composite score. Every
// component lies in [0, 1].
type ScoreBreakdown struct {
	Amount      float64 `json:"amount"`
	Weight      float64 `json:"weight"`
	Hops        float64 `json:"hops"`
	Liquidity   float64 `json:"liquidity"`
	Reliability float64 `json:"reliability"`
}

// preliminaryScore ranks a manifest on topology alone. The amount
// sub-score stays zero until enrichment provides real receive amounts.
func preliminaryScore(r *Route) {
	w, h, l, rel := subScores(r)
	r.ScoreBreakdown = ScoreBreakdown{Weight: w, Hops: h, Liquidity: l, Reliability: rel}
	r.Score = clamp01(preWeightW*w + preHopsW*h + preLiqW*l + preRelW*rel)
}

// finalScore re-ranks a manifest once enriched, normalizing its receive
// amount against the best route in the same response
func finalScore(r *Route, bestReceive float64) {
	w, h, l, rel := subScores(r)

	amount := 0.0
	if bestReceive > 0 {
		receive, _ := strconv.ParseFloat(r.ReceiveAmount, 64)
		amount = clamp01(receive / bestReceive)
	}

	r.ScoreBreakdown = ScoreBreakdown{Amount: amount, Weight: w, Hops: h, Liquidity: l, Reliability: rel}
	r.Score = clamp01(postAmountW*amount + postWeightW*w + postHopsW*h + postLiqW*l + postRelW*rel)
}

// subScores derives the topology sub-scores from the manifest legs
func subScores(r *Route) (weight, hops, liquidity, reliability float64) {
	weight = math.Max(0, 1-r.TotalWeight/5)
	hops = math.Max(0, 1-float64(r.Hops-1)*0.25)
	liquidity = liquidityScore(r)
	reliability = reliabilityScore(r)
	return weight, hops, liquidity, reliability
}

// liquidityScore scales with mean ask depth across DEX legs; routes
// without market data fall back to flat ratings, bridges being somewhat
// more trustworthy than synthetic hub hops
func liquidityScore(r *Route) float64 {
	var depths []float64
	for _, l := range r.Legs {
		if d, ok := l.Details.(DEXLegDetails); ok {
			depths = append(depths, d.AskDepth)
		}
	}
	if len(depths) > 0 {
		return math.Min(1, stat.Mean(depths, nil)/1000)
	}
	if r.hasBridgeLegs() {
		return 0.3
	}
	return 0.2
}

// reliabilityScore averages anchor health over bridge legs; pure market
// routes carry no anchor risk
func reliabilityScore(r *Route) float64 {
	var healths []float64
	for _, l := range r.Legs {
		if d, ok := l.Details.(BridgeLegDetails); ok {
			healths = append(healths, d.AnchorHealth)
		}
	}
	if len(healths) == 0 {
		return 1.0
	}
	return clamp01(stat.Mean(healths, nil))
}

// isPureMarket reports whether every leg is DEX or hub, i.e. the route
// can be validated with a single strict-send query
func isPureMarket(r *Route) bool {
	for _, l := range r.Legs {
		if l.Type != string(graph.EdgeDEX) && l.Type != string(graph.EdgeXLMHub) {
			return false
		}
	}
	return len(r.Legs) > 0
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
