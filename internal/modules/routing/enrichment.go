package routing

import (
	"context"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/clients/horizon"
	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// Enrichment parameters. Validated routes adopt Horizon's destination
// amount; everything else degrades through estimate tiers that penalize
// routes by how much worse their weight is than the best validated one.
const (
	enrichTimeout = 10 * time.Second

	estimatePenaltyFactor   = 0.3
	unverifiedBase          = 0.85
	unverifiedPenaltyFactor = 0.5
)

// PathSource is the slice of the Horizon client enrichment needs
type PathSource interface {
	StrictSendPaths(ctx context.Context, source horizon.Asset, sourceAmount string, destinations []horizon.Asset) ([]horizon.PathRecord, error)
}

// Enricher re-prices candidate routes against Horizon's strict-send
// pathfinder. Every Horizon failure degrades the affected routes to an
// estimate tier; enrichment itself never fails.
type Enricher struct {
	horizon PathSource
	log     zerolog.Logger
}

// NewEnricher creates an enricher
func NewEnricher(source PathSource, log zerolog.Logger) *Enricher {
	return &Enricher{
		horizon: source,
		log:     log.With().Str("component", "enricher").Logger(),
	}
}

// Enrich prices the routes for the given send amount. On return every
// route carries a receive amount and one of the price source tags:
// horizon (validated against a live path), estimated (derived from a
// validated reference), or unverified (no reference at all).
func (e *Enricher) Enrich(ctx context.Context, routes []*Route, srcKey, dstKey, amount string) {
	if len(routes) == 0 {
		return
	}

	records := e.strictSend(ctx, srcKey, amount, dstKey)
	bestHorizon := bestDestinationAmount(records)

	// Pass 1: pure market routes validate against the single end-to-end
	// query by matching their intermediate stop sequence.
	validated := make(map[*Route]bool)
	for _, r := range routes {
		if !isPureMarket(r) {
			continue
		}
		if rec := matchRecord(records, r.intermediates()); rec != nil {
			if amt, ok := parseDecimal(rec.DestinationAmount); ok {
				r.ReceiveAmount = formatDecimal(amt)
				r.PriceSource = PriceSourceHorizon
				validated[r] = true
			}
		}
	}

	// The best validated pure-market route anchors the penalty math for
	// every estimated route.
	var base *Route
	for r := range validated {
		if base == nil || r.TotalWeight < base.TotalWeight {
			base = r
		}
	}

	// Pass 2: bridge routes are priced segment by segment, market runs
	// through their own strict-send queries and bridge hops through fee
	// arithmetic.
	for _, r := range routes {
		if validated[r] || !r.hasBridgeLegs() {
			continue
		}
		if amt, ok := e.priceSegments(ctx, r, amount); ok {
			r.ReceiveAmount = formatDecimal(amt)
			r.PriceSource = PriceSourceHorizon
			validated[r] = true
		}
	}

	// Pass 3: unvalidated routes estimate from the best Horizon amount,
	// after this route's own bridge fees and a weight-ratio penalty.
	for _, r := range routes {
		if validated[r] {
			continue
		}
		if bestHorizon == nil {
			continue
		}

		est := applyBridgeFees(new(big.Rat).Set(bestHorizon), r)

		baseWeight := r.TotalWeight
		if base != nil {
			baseWeight = base.TotalWeight
		}
		penalty := 1 / (1 + math.Max(0, r.TotalWeight-baseWeight)*estimatePenaltyFactor)
		est.Mul(est, floatRat(penalty))

		r.ReceiveAmount = formatDecimal(est)
		r.PriceSource = PriceSourceEstimated
		validated[r] = true
	}

	// Pass 4: with no Horizon reference at all, derive from the best
	// enriched sibling, or fall back to the leg-walk estimate.
	var bestEnriched *Route
	for r := range validated {
		if bestEnriched == nil || receiveOf(r) > receiveOf(bestEnriched) {
			bestEnriched = r
		}
	}
	for _, r := range routes {
		if validated[r] {
			continue
		}
		if bestEnriched != nil {
			ratio := 1.0
			if bestEnriched.TotalWeight > 0 {
				ratio = r.TotalWeight / bestEnriched.TotalWeight
			}
			penalty := unverifiedBase / (1 + math.Max(0, ratio-1)*unverifiedPenaltyFactor)
			r.ReceiveAmount = formatAmount(receiveOf(bestEnriched) * penalty)
		}
		r.PriceSource = PriceSourceUnverified
	}
}

// priceSegments walks a bridge route as alternating market and bridge
// segments, threading the running amount through strict-send queries and
// fee deductions. Returns false when any market segment cannot be priced.
func (e *Enricher) priceSegments(ctx context.Context, r *Route, amount string) (*big.Rat, bool) {
	running, ok := parseDecimal(amount)
	if !ok {
		return nil, false
	}

	i := 0
	for i < len(r.Legs) {
		leg := r.Legs[i]

		if leg.Type == string(graph.EdgeAnchorBridge) {
			d, ok := leg.Details.(BridgeLegDetails)
			if !ok {
				return nil, false
			}
			deductBridgeFee(running, d)
			if running.Sign() < 0 {
				return nil, false
			}
			i++
			continue
		}

		// Consecutive market legs collapse into one strict-send query from
		// the segment start to the segment end.
		start := leg.From
		j := i
		for j < len(r.Legs) && r.Legs[j].Type != string(graph.EdgeAnchorBridge) {
			j++
		}
		end := r.Legs[j-1].To

		records := e.strictSend(ctx, start, formatDecimal(running), end)
		best := bestDestinationAmount(records)
		if best == nil {
			return nil, false
		}
		running = best
		i = j
	}

	return running, true
}

// strictSend issues one bounded strict-send query, absorbing failures
func (e *Enricher) strictSend(ctx context.Context, srcKey, amount, dstKey string) []horizon.PathRecord {
	src, err := keyToHorizonAsset(srcKey)
	if err != nil {
		return nil
	}
	dst, err := keyToHorizonAsset(dstKey)
	if err != nil {
		return nil
	}

	qctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	records, err := e.horizon.StrictSendPaths(qctx, src, amount, []horizon.Asset{dst})
	if err != nil {
		e.log.Warn().Err(err).
			Str("source", srcKey).
			Str("dest", dstKey).
			Msg("strict-send query failed, degrading to estimate")
		return nil
	}
	return records
}

// matchRecord finds the record whose intermediate asset sequence equals
// the given keys
func matchRecord(records []horizon.PathRecord, intermediates []string) *horizon.PathRecord {
	for i := range records {
		hops := records[i].Path
		if len(hops) != len(intermediates) {
			continue
		}
		match := true
		for j, hop := range hops {
			if horizonAssetKey(hop) != intermediates[j] {
				match = false
				break
			}
		}
		if match {
			return &records[i]
		}
	}
	return nil
}

// bestDestinationAmount returns the largest destination amount across the
// records, or nil
func bestDestinationAmount(records []horizon.PathRecord) *big.Rat {
	var best *big.Rat
	for _, rec := range records {
		amt, ok := parseDecimal(rec.DestinationAmount)
		if !ok {
			continue
		}
		if best == nil || amt.Cmp(best) > 0 {
			best = amt
		}
	}
	return best
}

// applyBridgeFees deducts every bridge leg's fees from the amount
func applyBridgeFees(amount *big.Rat, r *Route) *big.Rat {
	for _, leg := range r.Legs {
		if d, ok := leg.Details.(BridgeLegDetails); ok {
			deductBridgeFee(amount, d)
		}
	}
	if amount.Sign() < 0 {
		amount.SetInt64(0)
	}
	return amount
}

// deductBridgeFee applies one bridge hop's fixed then percentage fee
func deductBridgeFee(amount *big.Rat, d BridgeLegDetails) {
	amount.Sub(amount, floatRat(d.FeeFixed))
	amount.Mul(amount, floatRat(1-d.FeePercent/100))
}

// horizonAssetKey converts a Horizon path hop to a canonical asset key
func horizonAssetKey(a horizon.Asset) string {
	if a.IsNative() {
		return assets.NativeKey
	}
	return assets.FormatKey(a.Code, a.Issuer)
}

// keyToHorizonAsset converts a canonical asset key to Horizon parameters
func keyToHorizonAsset(key string) (horizon.Asset, error) {
	code, issuer, err := assets.ParseKey(key)
	if err != nil {
		return horizon.Asset{}, err
	}
	return horizon.NewAsset(code, issuer), nil
}

// parseDecimal reads a decimal amount string into exact form
func parseDecimal(s string) (*big.Rat, bool) {
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return nil, false
	}
	return r, true
}

// formatDecimal renders an exact amount with the wire precision
func formatDecimal(r *big.Rat) string {
	if r.Sign() < 0 {
		return formatDecimal(new(big.Rat))
	}
	return r.FloatString(amountDigits)
}

// floatRat converts a float factor to exact form. Factors are small
// human-scale numbers (fees, penalties), safe to round-trip through text.
func floatRat(f float64) *big.Rat {
	r, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'f', -1, 64))
	if !ok {
		return new(big.Rat)
	}
	return r
}

func receiveOf(r *Route) float64 {
	v, _ := strconv.ParseFloat(r.ReceiveAmount, 64)
	return v
}
