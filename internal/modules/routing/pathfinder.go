package routing

import (
	"container/heap"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/astrolabe-io/astrolabe/internal/modules/routing/graph"
)

// Path is one simple path through the graph
type Path struct {
	Nodes       []string
	Edges       []*graph.Edge
	TotalWeight float64
}

// Hops returns the number of edges in the path
func (p *Path) Hops() int {
	return len(p.Edges)
}

// sequence is the dedupe identity of a path
func (p *Path) sequence() string {
	return strings.Join(p.Nodes, ">")
}

// Pathfinder runs bounded shortest-path searches over the live graph.
// All methods are read-only and safe to call concurrently with builds.
type Pathfinder struct {
	graph *graph.Graph
	log   zerolog.Logger
}

func NewPathfinder(g *graph.Graph, log zerolog.Logger) *Pathfinder {
	return &Pathfinder{
		graph: g,
		log:   log.With().Str("component", "pathfinder").Logger(),
	}
}

// pqItem is one frontier entry. Items carry their full node sequence so
// cycle avoidance and result reconstruction need no predecessor maps.
type pqItem struct {
	key    string
	weight float64
	nodes  []string
	edges  []*graph.Edge
}

type pathQueue []*pqItem

func (q pathQueue) Len() int            { return len(q) }
func (q pathQueue) Less(i, j int) bool  { return q[i].weight < q[j].weight }
func (q pathQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x interface{}) { *q = append(*q, x.(*pqItem)) }
func (q *pathQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// edgeKey identifies a directed pair for the avoid-edges set
func edgeKey(from, to string) string {
	return from + "|" + to
}

// Shortest returns the lowest-weight simple path from src to dst with at
// most maxHops edges, or nil when none exists. Traversal never enters a
// node in avoidNodes and never takes a pair listed in avoidEdges. Among
// parallel edges to the same neighbor the lowest-weight one is taken.
// A query with src == dst returns nil.
func (p *Pathfinder) Shortest(src, dst string, maxHops int, avoidNodes, avoidEdges map[string]struct{}) *Path {
	if src == dst || maxHops < 1 {
		return nil
	}
	if !p.graph.HasNode(src) || !p.graph.HasNode(dst) {
		return nil
	}
	if _, ok := avoidNodes[src]; ok {
		return nil
	}

	pq := &pathQueue{{key: src, nodes: []string{src}}}
	heap.Init(pq)
	settled := make(map[string]struct{})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)

		if item.key == dst {
			return &Path{Nodes: item.nodes, Edges: item.edges, TotalWeight: item.weight}
		}
		if _, done := settled[item.key]; done {
			continue
		}
		settled[item.key] = struct{}{}

		if len(item.edges) >= maxHops {
			continue
		}

		for target, edges := range p.graph.EdgesFrom(item.key) {
			if _, avoid := avoidNodes[target]; avoid {
				continue
			}
			if _, avoid := avoidEdges[edgeKey(item.key, target)]; avoid {
				continue
			}
			if containsNode(item.nodes, target) {
				continue
			}

			best := bestOf(edges)
			if best == nil {
				continue
			}

			nodes := make([]string, len(item.nodes), len(item.nodes)+1)
			copy(nodes, item.nodes)
			nextEdges := make([]*graph.Edge, len(item.edges), len(item.edges)+1)
			copy(nextEdges, item.edges)

			heap.Push(pq, &pqItem{
				key:    target,
				weight: item.weight + best.Weight,
				nodes:  append(nodes, target),
				edges:  append(nextEdges, best),
			})
		}
	}

	return nil
}

// KShortest returns up to k simple paths sorted by ascending total
// weight, each within maxHops. Additional paths come from the deviation
// method: every prefix of the last accepted path spawns a spur search
// that is forbidden from retracing an accepted continuation.
func (p *Pathfinder) KShortest(src, dst string, k, maxHops int) []*Path {
	if k < 1 {
		return nil
	}

	first := p.Shortest(src, dst, maxHops, nil, nil)
	if first == nil {
		return nil
	}

	accepted := []*Path{first}
	acceptedSeqs := map[string]struct{}{first.sequence(): {}}
	candidates := make(map[string]*Path)

	for len(accepted) < k {
		last := accepted[len(accepted)-1]

		for i := 0; i < len(last.Nodes)-1; i++ {
			spurNode := last.Nodes[i]
			prefixNodes := last.Nodes[:i+1]
			prefixEdges := last.Edges[:i]

			avoidEdges := make(map[string]struct{})
			for _, ap := range accepted {
				if len(ap.Nodes) > i+1 && samePrefix(ap.Nodes, prefixNodes) {
					avoidEdges[edgeKey(ap.Nodes[i], ap.Nodes[i+1])] = struct{}{}
				}
			}

			avoidNodes := make(map[string]struct{})
			for _, n := range prefixNodes[:i] {
				if n != dst {
					avoidNodes[n] = struct{}{}
				}
			}

			spur := p.Shortest(spurNode, dst, maxHops-i, avoidNodes, avoidEdges)
			if spur == nil {
				continue
			}

			cand := joinPaths(prefixNodes, prefixEdges, spur)
			seq := cand.sequence()
			if _, taken := acceptedSeqs[seq]; taken {
				continue
			}
			candidates[seq] = cand
		}

		if len(candidates) == 0 {
			break
		}

		next := popBestCandidate(candidates)
		accepted = append(accepted, next)
		acceptedSeqs[next.sequence()] = struct{}{}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return lessPath(accepted[i], accepted[j])
	})
	return accepted
}

// popBestCandidate removes and returns the candidate with the lowest
// total weight; ties break on fewer hops, then lexicographic sequence
func popBestCandidate(candidates map[string]*Path) *Path {
	var bestSeq string
	var best *Path
	for seq, c := range candidates {
		if best == nil || lessPath(c, best) {
			best, bestSeq = c, seq
		}
	}
	delete(candidates, bestSeq)
	return best
}

func lessPath(a, b *Path) bool {
	if a.TotalWeight != b.TotalWeight {
		return a.TotalWeight < b.TotalWeight
	}
	if len(a.Edges) != len(b.Edges) {
		return len(a.Edges) < len(b.Edges)
	}
	return a.sequence() < b.sequence()
}

func joinPaths(prefixNodes []string, prefixEdges []*graph.Edge, spur *Path) *Path {
	nodes := make([]string, 0, len(prefixNodes)+len(spur.Nodes)-1)
	nodes = append(nodes, prefixNodes...)
	nodes = append(nodes, spur.Nodes[1:]...)

	edges := make([]*graph.Edge, 0, len(prefixEdges)+len(spur.Edges))
	edges = append(edges, prefixEdges...)
	edges = append(edges, spur.Edges...)

	total := 0.0
	for _, e := range edges {
		total += e.Weight
	}
	return &Path{Nodes: nodes, Edges: edges, TotalWeight: total}
}

func samePrefix(nodes, prefix []string) bool {
	if len(nodes) < len(prefix) {
		return false
	}
	for i := range prefix {
		if nodes[i] != prefix[i] {
			return false
		}
	}
	return true
}

func containsNode(nodes []string, key string) bool {
	for _, n := range nodes {
		if n == key {
			return true
		}
	}
	return false
}

func bestOf(edges []*graph.Edge) *graph.Edge {
	var best *graph.Edge
	for _, e := range edges {
		if best == nil || e.Weight < best.Weight {
			best = e
		}
	}
	return best
}
