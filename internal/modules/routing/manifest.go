package routing

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/modules/assets"
	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// Price source tags on a returned route. The graph tag marks a raw
// leg-walk estimate that enrichment has not touched yet.
const (
	PriceSourceHorizon    = "horizon"
	PriceSourceEstimated  = "estimated"
	PriceSourceGraph      = "graph"
	PriceSourceUnverified = "unverified"
)

// LegHorizonPath marks a synthetic leg from the strict-send fallback
const LegHorizonPath = "horizon_path"

// amountDigits is the fractional precision of amount strings on the wire
const amountDigits = 7

// Stop is one asset along a route, with display attributes
type Stop struct {
	Key      string `json:"key"`
	Code     string `json:"code"`
	Issuer   string `json:"issuer,omitempty"`
	Name     string `json:"name,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Native   bool   `json:"native"`
	Verified bool   `json:"verified"`
}

// LegDetails is the per-type detail block of a leg
type LegDetails interface {
	legDetails()
}

// DEXLegDetails describes an orderbook hop
type DEXLegDetails struct {
	TopBid   float64 `json:"topBid"`
	TopAsk   float64 `json:"topAsk"`
	Spread   float64 `json:"spread"`
	BidDepth float64 `json:"bidDepth"`
	AskDepth float64 `json:"askDepth"`
	BidCount int     `json:"bidCount"`
	AskCount int     `json:"askCount"`
}

// BridgeLegDetails describes an anchor bridge hop
type BridgeLegDetails struct {
	AnchorDomain    string  `json:"anchorDomain"`
	AnchorHealth    float64 `json:"anchorHealth"`
	DepositEnabled  bool    `json:"depositEnabled"`
	WithdrawEnabled bool    `json:"withdrawEnabled"`
	FeeFixed        float64 `json:"feeFixed"`
	FeePercent      float64 `json:"feePercent"`
}

// HubLegDetails describes a synthetic hop through native XLM
type HubLegDetails struct {
	OriginCode   string `json:"originCode"`
	OriginDomain string `json:"originDomain,omitempty"`
	Estimated    bool   `json:"estimated"`
}

// HorizonLegDetails describes a strict-send fallback leg; the path holds
// the intermediate asset keys Horizon routed through
type HorizonLegDetails struct {
	Path      []string `json:"path"`
	Estimated bool     `json:"estimated"`
}

func (DEXLegDetails) legDetails()     {}
func (BridgeLegDetails) legDetails()  {}
func (HubLegDetails) legDetails()     {}
func (HorizonLegDetails) legDetails() {}

// Leg is one traversed edge of a route
type Leg struct {
	From    string     `json:"from"`
	To      string     `json:"to"`
	Type    string     `json:"type"`
	Weight  float64    `json:"weight"`
	Details LegDetails `json:"details,omitempty"`
}

// Route is one ranked candidate path returned to the caller
type Route struct {
	ID             string         `json:"id"`
	Source         string         `json:"source"`
	Destination    string         `json:"destination"`
	SendAmount     string         `json:"sendAmount"`
	ReceiveAmount  string         `json:"receiveAmount"`
	Hops           int            `json:"hops"`
	Path           []Stop         `json:"path"`
	Legs           []Leg          `json:"legs"`
	TotalWeight    float64        `json:"totalWeight"`
	EdgeTypes      []string       `json:"edgeTypes"`
	Score          float64        `json:"score"`
	ScoreBreakdown ScoreBreakdown `json:"scoreBreakdown"`
	GraphVersion   uint64         `json:"graphVersion"`
	ComputedAt     time.Time      `json:"computedAt"`
	TTLSeconds     int            `json:"ttlSeconds"`
	PriceSource    string         `json:"priceSource"`
}

// hasBridgeLegs reports whether any leg crosses an anchor
func (r *Route) hasBridgeLegs() bool {
	for _, l := range r.Legs {
		if l.Type == string(graph.EdgeAnchorBridge) {
			return true
		}
	}
	return false
}

// intermediates returns the asset keys strictly between source and
// destination
func (r *Route) intermediates() []string {
	if len(r.Path) <= 2 {
		return nil
	}
	keys := make([]string, 0, len(r.Path)-2)
	for _, s := range r.Path[1 : len(r.Path)-1] {
		keys = append(keys, s.Key)
	}
	return keys
}

// routeID derives a stable id from the node sequence and send amount.
// Ids correlate log lines for repeated queries; they are not unique
// across distinct requests by design.
func routeID(nodes []string, amount string) string {
	h := fnv.New64a()
	h.Write([]byte(strings.Join(nodes, ">")))
	h.Write([]byte("|"))
	h.Write([]byte(amount))
	return fmt.Sprintf("rt_%012x", h.Sum64()&0xffffffffffff)
}

// formatAmount renders an amount with the wire precision
func formatAmount(x float64) string {
	if x < 0 {
		x = 0
	}
	return strconv.FormatFloat(x, 'f', amountDigits, 64)
}

// buildManifest assembles the initial manifest for a discovered path:
// stops and legs from the graph, a leg-walk receive estimate, and the
// topology-only preliminary score. Enrichment replaces the estimate and
// the price source tag afterwards.
func buildManifest(g *graph.Graph, path *Path, sendAmount string, version uint64, ttlSeconds int) *Route {
	r := &Route{
		ID:           routeID(path.Nodes, sendAmount),
		Source:       path.Nodes[0],
		Destination:  path.Nodes[len(path.Nodes)-1],
		SendAmount:   sendAmount,
		Hops:         path.Hops(),
		Path:         make([]Stop, 0, len(path.Nodes)),
		Legs:         make([]Leg, 0, len(path.Edges)),
		TotalWeight:  path.TotalWeight,
		GraphVersion: version,
		ComputedAt:   time.Now().UTC(),
		TTLSeconds:   ttlSeconds,
		PriceSource:  PriceSourceGraph,
	}

	for _, key := range path.Nodes {
		r.Path = append(r.Path, stopFor(g, key))
	}

	types := make(map[string]struct{})
	for _, e := range path.Edges {
		r.Legs = append(r.Legs, legFromEdge(e))
		types[string(e.Type)] = struct{}{}
	}
	r.EdgeTypes = sortedTypes(types)

	send, _ := strconv.ParseFloat(sendAmount, 64)
	r.ReceiveAmount = formatAmount(estimateReceive(path.Edges, send))

	preliminaryScore(r)
	return r
}

// estimateReceive walks the legs with a crude conversion model. DEX hops
// convert at top ask less the spread, bridges deduct their fees, hub
// hops assume a two percent haircut. The result only seeds the manifest
// until enrichment prices it against live paths.
func estimateReceive(edges []*graph.Edge, amount float64) float64 {
	for _, e := range edges {
		switch e.Type {
		case graph.EdgeDEX:
			if e.DEX != nil && e.DEX.TopAsk > 0 {
				amount *= e.DEX.TopAsk
			}
			if e.DEX != nil {
				amount *= 1 - e.DEX.Spread
			}
		case graph.EdgeAnchorBridge:
			if e.Bridge != nil {
				amount -= e.Bridge.FeeFixed
				amount *= 1 - e.Bridge.FeePercent/100
			}
		case graph.EdgeXLMHub:
			amount *= 0.98
		}
		if amount < 0 {
			return 0
		}
	}
	return amount
}

func legFromEdge(e *graph.Edge) Leg {
	leg := Leg{
		From:   e.From,
		To:     e.To,
		Type:   string(e.Type),
		Weight: e.Weight,
	}
	switch {
	case e.DEX != nil:
		leg.Details = DEXLegDetails{
			TopBid:   e.DEX.TopBid,
			TopAsk:   e.DEX.TopAsk,
			Spread:   e.DEX.Spread,
			BidDepth: e.DEX.BidDepth,
			AskDepth: e.DEX.AskDepth,
			BidCount: e.DEX.BidCount,
			AskCount: e.DEX.AskCount,
		}
	case e.Bridge != nil:
		leg.Details = BridgeLegDetails{
			AnchorDomain:    e.Bridge.AnchorDomain,
			AnchorHealth:    e.Bridge.AnchorHealth,
			DepositEnabled:  e.Bridge.DepositEnabled,
			WithdrawEnabled: e.Bridge.WithdrawEnabled,
			FeeFixed:        e.Bridge.FeeFixed,
			FeePercent:      e.Bridge.FeePercent,
		}
	case e.Hub != nil:
		leg.Details = HubLegDetails{
			OriginCode:   e.Hub.OriginCode,
			OriginDomain: e.Hub.OriginDomain,
			Estimated:    e.Hub.Estimated,
		}
	}
	return leg
}

// stopFor resolves display attributes for a path stop, falling back to a
// bare parse when the node has vanished between search and assembly
func stopFor(g *graph.Graph, key string) Stop {
	if n := g.Node(key); n != nil {
		return Stop{
			Key:      n.Key,
			Code:     n.Code,
			Issuer:   n.Issuer,
			Name:     n.Name,
			Domain:   n.Domain,
			Native:   n.Native,
			Verified: n.Verified,
		}
	}
	code, issuer, err := assets.ParseKey(key)
	if err != nil {
		code = key
	}
	return Stop{Key: key, Code: code, Issuer: issuer, Native: issuer == "" && code == assets.NativeCode}
}

func sortedTypes(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
