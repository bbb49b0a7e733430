// Package graph implements the in-memory route graph: a directed
// multigraph whose nodes are assets and whose edges are conversion
// opportunities (DEX markets, anchor bridges, native-hub fallbacks).
// The graph is process-wide state, mutated only by the builder under the
// build lock; any number of readers may traverse it concurrently.
package graph

import (
	"errors"
	"time"
)

var (
	// ErrNodeNotFound is returned when an edge references a missing endpoint
	ErrNodeNotFound = errors.New("graph: node not found")
)

// EdgeType classifies a conversion edge
type EdgeType string

const (
	// EdgeDEX is a direct orderbook market between two assets
	EdgeDEX EdgeType = "DEX"
	// EdgeAnchorBridge is an off-network conversion through one anchor
	EdgeAnchorBridge EdgeType = "ANCHOR_BRIDGE"
	// EdgeXLMHub is a synthetic fallback hop through native XLM, used only
	// when no real market data exists for the pair
	EdgeXLMHub EdgeType = "XLM_HUB"
)

// NodeSource tags where a node's asset record came from
type NodeSource string

const (
	// SourceNetwork marks assets from the asset registry
	SourceNetwork NodeSource = "network"
	// SourceAnchor marks lightweight nodes created for bridge endpoints
	// that are not in the routable set
	SourceAnchor NodeSource = "anchor"
	// SourceSynthetic marks lightweight nodes created during hub wiring
	SourceSynthetic NodeSource = "synthetic"
)

// Node is one asset in the graph
type Node struct {
	Key      string
	Code     string
	Issuer   string
	Domain   string
	Name     string
	Native   bool
	Verified bool
	Source   NodeSource

	// NumAccounts counts trustlines when known (display only)
	NumAccounts int64

	DepositEnabled  bool
	WithdrawEnabled bool
	AnchorDomain    string

	// Adjacency maps target key to the parallel edges toward it.
	// Owned by the graph; readers must not mutate.
	Adjacency map[string][]*Edge
}

// NodeAttrs carries the mergeable attributes of a node. Nil-able fields
// are merged only when set, so an update never erases existing data.
type NodeAttrs struct {
	Code            string
	Issuer          string
	Domain          string
	Name            string
	Native          bool
	Verified        *bool
	Source          NodeSource
	NumAccounts     *int64
	DepositEnabled  *bool
	WithdrawEnabled *bool
	AnchorDomain    string
}

// DEXDetails are the market attributes of a DEX edge
type DEXDetails struct {
	TopBid   float64
	TopAsk   float64
	Spread   float64
	BidDepth float64
	AskDepth float64
	BidCount int
	AskCount int
}

// BridgeDetails are the attributes of an ANCHOR_BRIDGE edge. Fees are the
// charges applied when exiting through this edge's destination endpoint.
type BridgeDetails struct {
	AnchorDomain    string
	AnchorHealth    float64
	DepositEnabled  bool
	WithdrawEnabled bool
	FeeFixed        float64
	FeePercent      float64
}

// HubDetails are the attributes of an XLM_HUB edge
type HubDetails struct {
	OriginCode   string
	OriginDomain string
	Estimated    bool
}

// Edge is a directed conversion from one asset to another. Exactly one of
// the detail blocks is set, matching Type.
type Edge struct {
	From      string
	To        string
	Type      EdgeType
	Weight    float64
	UpdatedAt time.Time

	DEX    *DEXDetails
	Bridge *BridgeDetails
	Hub    *HubDetails
}

// sameIdentity reports whether other would replace this edge in place.
// DEX and hub edges are singletons per directed pair; bridge edges are
// keyed by their anchor, so distinct anchors coexist on the same pair.
func (e *Edge) sameIdentity(other *Edge) bool {
	if e.Type != other.Type {
		return false
	}
	if e.Type == EdgeAnchorBridge {
		return e.Bridge != nil && other.Bridge != nil &&
			e.Bridge.AnchorDomain == other.Bridge.AnchorDomain
	}
	return true
}
