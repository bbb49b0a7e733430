package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Graph is the route graph. A monotonically increasing build version
// distinguishes full rebuilds; light refreshes overwrite edges in place
// without bumping it. Version zero means no build has completed yet.
type Graph struct {
	mu sync.RWMutex

	nodes     map[string]*Node
	edgeCount int

	version       uint64
	building      bool
	buildStarted  time.Time
	lastBuildAt   time.Time
	lastBuildTook time.Duration
}

// New creates an empty graph at version zero
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
	}
}

// AddOrUpdateNode creates a node or merges non-zero attributes into an
// existing one. Adjacency is never touched by an update. The merge
// installs a fresh copy of the node, so references handed out earlier
// keep their frozen attribute view.
func (g *Graph) AddOrUpdateNode(key string, attrs NodeAttrs) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	var n *Node
	if old, ok := g.nodes[key]; ok {
		clone := *old
		n = &clone
	} else {
		n = &Node{
			Key:       key,
			Adjacency: make(map[string][]*Edge),
		}
	}
	g.nodes[key] = n

	if attrs.Code != "" {
		n.Code = attrs.Code
	}
	if attrs.Issuer != "" {
		n.Issuer = attrs.Issuer
	}
	if attrs.Domain != "" {
		n.Domain = attrs.Domain
	}
	if attrs.Name != "" {
		n.Name = attrs.Name
	}
	if attrs.Native {
		n.Native = true
	}
	if attrs.Verified != nil {
		n.Verified = *attrs.Verified
	}
	if attrs.Source != "" {
		n.Source = attrs.Source
	}
	if attrs.NumAccounts != nil {
		n.NumAccounts = *attrs.NumAccounts
	}
	if attrs.DepositEnabled != nil {
		n.DepositEnabled = *attrs.DepositEnabled
	}
	if attrs.WithdrawEnabled != nil {
		n.WithdrawEnabled = *attrs.WithdrawEnabled
	}
	if attrs.AnchorDomain != "" {
		n.AnchorDomain = attrs.AnchorDomain
	}

	return n
}

// AddEdge installs a directed edge. Both endpoints must already exist.
// An edge with the same identity (same type; for bridges, same anchor)
// replaces the previous one in place, which is the light-refresh
// primitive; otherwise the edge is appended and the edge count grows.
func (g *Graph) AddEdge(e *Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.nodes[e.From]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.From)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.To)
	}

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}

	// Edge slices are replaced wholesale rather than mutated, so slices
	// returned to readers before this write stay consistent.
	existing := src.Adjacency[e.To]
	for i, old := range existing {
		if old.sameIdentity(e) {
			next := make([]*Edge, len(existing))
			copy(next, existing)
			next[i] = e
			src.Adjacency[e.To] = next
			return nil
		}
	}

	next := make([]*Edge, len(existing)+1)
	copy(next, existing)
	next[len(existing)] = e
	src.Adjacency[e.To] = next
	g.edgeCount++
	return nil
}

// AddBidirectional installs a forward and reverse edge pair in one call
func (g *Graph) AddBidirectional(fwd, rev *Edge) error {
	if err := g.AddEdge(fwd); err != nil {
		return err
	}
	return g.AddEdge(rev)
}

// Node returns the node for key, or nil
func (g *Graph) Node(key string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[key]
}

// HasNode reports whether key is present
func (g *Graph) HasNode(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[key]
	return ok
}

// NodeKeys returns all node keys in sorted order
func (g *Graph) NodeKeys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EdgesFrom returns the outgoing edges of a node grouped by target key.
// The map is a point-in-time copy; the edge slices and edges themselves
// are immutable once installed.
func (g *Graph) EdgesFrom(key string) map[string][]*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[key]
	if !ok {
		return nil
	}
	out := make(map[string][]*Edge, len(n.Adjacency))
	for target, edges := range n.Adjacency {
		out[target] = edges
	}
	return out
}

// EdgesBetween returns the parallel edges from src to dst
func (g *Graph) EdgesBetween(src, dst string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[src]
	if !ok {
		return nil
	}
	return n.Adjacency[dst]
}

// BestEdge returns the lowest-weight edge from src to dst, or nil
func (g *Graph) BestEdge(src, dst string) *Edge {
	edges := g.EdgesBetween(src, dst)

	var best *Edge
	for _, e := range edges {
		if best == nil || e.Weight < best.Weight {
			best = e
		}
	}
	return best
}

// HasEdgeOfType reports whether any src→dst edge of the given type exists
func (g *Graph) HasEdgeOfType(src, dst string, t EdgeType) bool {
	for _, e := range g.EdgesBetween(src, dst) {
		if e.Type == t {
			return true
		}
	}
	return false
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of directed edges
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgeCount
}

// Clear drops all nodes and edges. Used by the builder under the lock.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*Node)
	g.edgeCount = 0
}

// StartBuild attempts to acquire the build lock. Returns false if another
// build is already in progress.
func (g *Graph) StartBuild() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.building {
		return false
	}
	g.building = true
	g.buildStarted = time.Now().UTC()
	return true
}

// CompleteBuild bumps the version, stamps timing, and releases the build
// lock. Callers invalidate the route cache after this returns.
func (g *Graph) CompleteBuild() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.version++
	g.lastBuildAt = time.Now().UTC()
	g.lastBuildTook = g.lastBuildAt.Sub(g.buildStarted)
	g.building = false
	return g.version
}

// AbortBuild releases the build lock without bumping the version. The
// prior graph content remains installed.
func (g *Graph) AbortBuild() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.building = false
}

// Version returns the current build version (zero before the first build)
func (g *Graph) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// IsBuilding reports whether a builder holds the build lock
func (g *Graph) IsBuilding() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.building
}

// LastBuild returns the completion time and duration of the last build
func (g *Graph) LastBuild() (time.Time, time.Duration) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastBuildAt, g.lastBuildTook
}
