package routing

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// Snapshot DTOs: the graph rendered as parallel arenas, nodes by index
// and edges referencing them. Diagnostic only; the graph is never
// restored from a snapshot.

// SnapshotNode is one node of a graph snapshot
type SnapshotNode struct {
	Key          string `msgpack:"key"`
	Code         string `msgpack:"code"`
	Issuer       string `msgpack:"issuer,omitempty"`
	Domain       string `msgpack:"domain,omitempty"`
	Name         string `msgpack:"name,omitempty"`
	Native       bool   `msgpack:"native"`
	Verified     bool   `msgpack:"verified"`
	Source       string `msgpack:"source"`
	AnchorDomain string `msgpack:"anchorDomain,omitempty"`
}

// SnapshotEdge is one directed edge, endpoints as node indices
type SnapshotEdge struct {
	From      int     `msgpack:"from"`
	To        int     `msgpack:"to"`
	Type      string  `msgpack:"type"`
	Weight    float64 `msgpack:"weight"`
	UpdatedAt int64   `msgpack:"updatedAt"`

	// DEX details
	TopBid   float64 `msgpack:"topBid,omitempty"`
	TopAsk   float64 `msgpack:"topAsk,omitempty"`
	Spread   float64 `msgpack:"spread,omitempty"`
	BidDepth float64 `msgpack:"bidDepth,omitempty"`
	AskDepth float64 `msgpack:"askDepth,omitempty"`

	// Bridge details
	AnchorDomain string  `msgpack:"anchorDomain,omitempty"`
	AnchorHealth float64 `msgpack:"anchorHealth,omitempty"`
	FeeFixed     float64 `msgpack:"feeFixed,omitempty"`
	FeePercent   float64 `msgpack:"feePercent,omitempty"`

	// Hub details
	Estimated bool `msgpack:"estimated,omitempty"`
}

// GraphSnapshot is the full serialized graph
type GraphSnapshot struct {
	Version    uint64         `msgpack:"version"`
	TakenAt    int64          `msgpack:"takenAt"`
	Nodes      []SnapshotNode `msgpack:"nodes"`
	Edges      []SnapshotEdge `msgpack:"edges"`
	NodeCount  int            `msgpack:"nodeCount"`
	EdgeCount  int            `msgpack:"edgeCount"`
}

// TakeSnapshot serializes the current graph to msgpack. Node order is the
// sorted key order, so snapshots of the same build compare equal.
func TakeSnapshot(g *graph.Graph) ([]byte, error) {
	keys := g.NodeKeys()
	index := make(map[string]int, len(keys))

	snap := GraphSnapshot{
		Version: g.Version(),
		TakenAt: time.Now().Unix(),
		Nodes:   make([]SnapshotNode, 0, len(keys)),
	}

	for i, key := range keys {
		index[key] = i
		n := g.Node(key)
		if n == nil {
			continue
		}
		snap.Nodes = append(snap.Nodes, SnapshotNode{
			Key:          n.Key,
			Code:         n.Code,
			Issuer:       n.Issuer,
			Domain:       n.Domain,
			Name:         n.Name,
			Native:       n.Native,
			Verified:     n.Verified,
			Source:       string(n.Source),
			AnchorDomain: n.AnchorDomain,
		})
	}

	for _, key := range keys {
		for _, edges := range g.EdgesFrom(key) {
			for _, e := range edges {
				se := SnapshotEdge{
					From:      index[e.From],
					To:        index[e.To],
					Type:      string(e.Type),
					Weight:    e.Weight,
					UpdatedAt: e.UpdatedAt.Unix(),
				}
				switch {
				case e.DEX != nil:
					se.TopBid = e.DEX.TopBid
					se.TopAsk = e.DEX.TopAsk
					se.Spread = e.DEX.Spread
					se.BidDepth = e.DEX.BidDepth
					se.AskDepth = e.DEX.AskDepth
				case e.Bridge != nil:
					se.AnchorDomain = e.Bridge.AnchorDomain
					se.AnchorHealth = e.Bridge.AnchorHealth
					se.FeeFixed = e.Bridge.FeeFixed
					se.FeePercent = e.Bridge.FeePercent
				case e.Hub != nil:
					se.Estimated = e.Hub.Estimated
				}
				snap.Edges = append(snap.Edges, se)
			}
		}
	}

	snap.NodeCount = len(snap.Nodes)
	snap.EdgeCount = len(snap.Edges)
	return msgpack.Marshal(&snap)
}

// DecodeSnapshot reads a msgpack snapshot back into its DTOs
func DecodeSnapshot(payload []byte) (*GraphSnapshot, error) {
	var snap GraphSnapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
