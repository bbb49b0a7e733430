package graph

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stats is an on-demand summary of the graph's shape
type Stats struct {
	Version           uint64             `json:"version"`
	Building          bool               `json:"building"`
	Nodes             int                `json:"nodes"`
	Edges             int                `json:"edges"`
	EdgesByType       map[EdgeType]int   `json:"edges_by_type"`
	ConnectedNodes    int                `json:"connected_nodes"`
	ConnectivityRatio float64            `json:"connectivity_ratio"`
	MeanEdgeWeight    float64            `json:"mean_edge_weight"`
	LastBuildAt       time.Time          `json:"last_build_at"`
	LastBuildMS       float64            `json:"last_build_ms"`
}

// Stats computes summary statistics over the current graph
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{
		Version:       g.version,
		Building:      g.building,
		Nodes:         len(g.nodes),
		Edges:         g.edgeCount,
		EdgesByType:   make(map[EdgeType]int),
		LastBuildAt:   g.lastBuildAt,
		LastBuildMS:   float64(g.lastBuildTook.Microseconds()) / 1000.0,
	}

	var weights []float64
	for _, n := range g.nodes {
		if len(n.Adjacency) > 0 {
			s.ConnectedNodes++
		}
		for _, edges := range n.Adjacency {
			for _, e := range edges {
				s.EdgesByType[e.Type]++
				if !math.IsInf(e.Weight, 0) && !math.IsNaN(e.Weight) {
					weights = append(weights, e.Weight)
				}
			}
		}
	}

	if s.Nodes > 0 {
		s.ConnectivityRatio = float64(s.ConnectedNodes) / float64(s.Nodes)
	}
	if len(weights) > 0 {
		s.MeanEdgeWeight = stat.Mean(weights, nil)
	}

	return s
}
