// Package graph provides the residual-graph data structure used by the
// routing-core assignment solver to compute a minimum-cost maximum flow
// over the depot/tech/customer bipartite network (spec §4.2 "Multi-vehicle
// assignment").
//
// Adapted from the teacher repository's services/solver-svc/internal/graph
// package: trimmed to the subset the assignment solver actually exercises
// (deterministic edge storage, flow/cost bookkeeping) and stripped of the
// pooling and thread-safety variants that routing-core's single-goroutine
// solve path never calls.
package graph

import (
	"math"
	"sort"
	"sync"
)

// Epsilon is the tolerance used for floating-point comparisons throughout
// the flow algorithms. Values smaller than Epsilon are treated as zero.
const Epsilon = 1e-9

// Infinity stands in for an unreachable distance in shortest-path searches.
const Infinity = math.MaxFloat64

// ResidualEdge is one directed edge of the residual graph.
type ResidualEdge struct {
	// To is the destination node ID.
	To int64

	// Capacity is the current residual capacity.
	// For forward edges: OriginalCapacity - Flow.
	// For backward edges: equals the flow on the corresponding forward edge.
	Capacity float64

	// Cost is the cost per unit of flow. Backward edges carry the negated
	// cost of their forward counterpart.
	Cost float64

	// Flow is the amount of flow currently on this edge. Only meaningful
	// for forward edges.
	Flow float64

	// OriginalCapacity is the initial capacity of the edge, used when
	// computing utilization or resetting the graph.
	OriginalCapacity float64

	// IsReverse marks a backward (reverse) edge. Reverse edges are created
	// automatically and excluded from flow/cost totals.
	IsReverse bool

	// Index is the position of this edge in the node's edge list.
	Index int
}

// HasCapacity reports whether the edge has positive residual capacity.
func (e *ResidualEdge) HasCapacity() bool {
	return e.Capacity > Epsilon
}

// IncomingEdge pairs a source node with the edge arriving from it, used for
// reverse-direction traversal.
type IncomingEdge struct {
	From int64
	Edge *ResidualEdge
}

// ResidualGraph is the flow network the assignment solver builds each time
// it runs: source -> tech nodes -> customer nodes -> sink.
//
// Edges are stored both as a map (O(1) lookup by (from, to)) and as a
// per-node slice in insertion order, so algorithms that need reproducible
// results iterate the slice rather than the map.
type ResidualGraph struct {
	Nodes     map[int64]bool
	Edges     map[int64]map[int64]*ResidualEdge
	EdgesList map[int64][]*ResidualEdge

	ReverseEdges map[int64]map[int64]*ResidualEdge

	sortedNodesMu    sync.Mutex
	sortedNodes      []int64
	sortedNodesDirty bool
}

// NewResidualGraph creates an empty graph ready for AddEdgeWithReverse calls.
func NewResidualGraph() *ResidualGraph {
	return &ResidualGraph{
		Nodes:            make(map[int64]bool),
		Edges:            make(map[int64]map[int64]*ResidualEdge),
		EdgesList:        make(map[int64][]*ResidualEdge),
		ReverseEdges:     make(map[int64]map[int64]*ResidualEdge),
		sortedNodesDirty: true,
	}
}

func (rg *ResidualGraph) ensureNode(id int64) {
	if !rg.Nodes[id] {
		rg.Nodes[id] = true
		rg.markSortedNodesDirty()
	}
}

func (rg *ResidualGraph) markSortedNodesDirty() {
	rg.sortedNodesMu.Lock()
	rg.sortedNodesDirty = true
	rg.sortedNodesMu.Unlock()
}

// AddEdge adds a forward edge. If a reverse edge already occupies (from, to)
// it is converted to a forward edge; otherwise capacity accumulates on
// parallel edges. Prefer AddEdgeWithReverse for building flow networks.
func (rg *ResidualGraph) AddEdge(from, to int64, capacity, cost float64) {
	rg.ensureNode(from)
	rg.ensureNode(to)

	if rg.Edges[from] == nil {
		rg.Edges[from] = make(map[int64]*ResidualEdge)
	}

	if existing := rg.Edges[from][to]; existing != nil {
		if existing.IsReverse {
			existing.OriginalCapacity = capacity
			existing.Capacity = capacity
			existing.Cost = cost
			existing.IsReverse = false
			return
		}
		existing.Capacity += capacity
		existing.OriginalCapacity += capacity
		return
	}

	edge := &ResidualEdge{
		To:               to,
		Capacity:         capacity,
		Cost:             cost,
		OriginalCapacity: capacity,
		Index:            len(rg.EdgesList[from]),
	}

	rg.Edges[from][to] = edge
	rg.EdgesList[from] = append(rg.EdgesList[from], edge)
	rg.addReverseIndex(from, to, edge)
}

// AddReverseEdge adds a zero-capacity backward edge used for flow
// cancellation. Typically called by AddEdgeWithReverse, not directly.
func (rg *ResidualGraph) AddReverseEdge(from, to int64, cost float64) {
	rg.ensureNode(from)
	rg.ensureNode(to)

	if rg.Edges[from] == nil {
		rg.Edges[from] = make(map[int64]*ResidualEdge)
	}
	if existing := rg.Edges[from][to]; existing != nil {
		return
	}

	edge := &ResidualEdge{
		To:        to,
		Cost:      -cost,
		IsReverse: true,
		Index:     len(rg.EdgesList[from]),
	}

	rg.addReverseIndex(from, to, edge)
	rg.Edges[from][to] = edge
	rg.EdgesList[from] = append(rg.EdgesList[from], edge)
}

func (rg *ResidualGraph) addReverseIndex(from, to int64, edge *ResidualEdge) {
	if rg.ReverseEdges[to] == nil {
		rg.ReverseEdges[to] = make(map[int64]*ResidualEdge)
	}
	rg.ReverseEdges[to][from] = edge
}

// AddEdgeWithReverse adds a forward edge (from -> to) with the given
// capacity and cost, plus its zero-capacity reverse edge (to -> from).
func (rg *ResidualGraph) AddEdgeWithReverse(from, to int64, capacity, cost float64) {
	rg.AddEdge(from, to, capacity, cost)
	rg.AddReverseEdge(to, from, cost)
}

// GetEdge returns the edge from 'from' to 'to', or nil if none exists.
func (rg *ResidualGraph) GetEdge(from, to int64) *ResidualEdge {
	if rg.Edges[from] == nil {
		return nil
	}
	return rg.Edges[from][to]
}

// GetNeighborsList returns the outgoing edges of a node in insertion order,
// for deterministic traversal.
func (rg *ResidualGraph) GetNeighborsList(node int64) []*ResidualEdge {
	return rg.EdgesList[node]
}

// GetSortedNodes returns all node IDs in ascending order. The result is
// cached until the next node insertion invalidates it.
func (rg *ResidualGraph) GetSortedNodes() []int64 {
	rg.sortedNodesMu.Lock()
	defer rg.sortedNodesMu.Unlock()

	if rg.sortedNodesDirty || len(rg.sortedNodes) != len(rg.Nodes) {
		rg.sortedNodes = make([]int64, 0, len(rg.Nodes))
		for node := range rg.Nodes {
			rg.sortedNodes = append(rg.sortedNodes, node)
		}
		sort.Slice(rg.sortedNodes, func(i, j int) bool {
			return rg.sortedNodes[i] < rg.sortedNodes[j]
		})
		rg.sortedNodesDirty = false
	}

	return rg.sortedNodes
}

// UpdateFlow pushes flow along the (from, to) edge, decreasing its residual
// capacity and increasing the matching reverse edge's capacity so the flow
// can be cancelled by a later augmenting path.
func (rg *ResidualGraph) UpdateFlow(from, to int64, flow float64) {
	if edge := rg.GetEdge(from, to); edge != nil {
		edge.Flow += flow
		edge.Capacity -= flow
	}

	if backEdge := rg.GetEdge(to, from); backEdge != nil {
		backEdge.Capacity += flow
		return
	}

	if rg.Edges[to] == nil {
		rg.Edges[to] = make(map[int64]*ResidualEdge)
	}
	cost := 0.0
	if forward := rg.GetEdge(from, to); forward != nil {
		cost = -forward.Cost
	}
	newEdge := &ResidualEdge{
		To:        from,
		Capacity:  flow,
		Cost:      cost,
		IsReverse: true,
		Index:     len(rg.EdgesList[to]),
	}
	rg.Edges[to][from] = newEdge
	rg.EdgesList[to] = append(rg.EdgesList[to], newEdge)
	rg.addReverseIndex(to, from, newEdge)
}

// GetFlowOnEdge returns the flow currently pushed over (from, to), or 0 if
// the edge does not exist.
func (rg *ResidualGraph) GetFlowOnEdge(from, to int64) float64 {
	if edge := rg.GetEdge(from, to); edge != nil {
		return edge.Flow
	}
	return 0
}
