package flow

import (
	"context"

	"logistics/internal/routing/flow/graph"
)

// BellmanFordResult holds shortest-path distances and parent pointers from
// a single-source Bellman-Ford search. Unlike Dijkstra, Bellman-Ford
// tolerates negative edge costs, which is why it seeds the potentials used
// by the Dijkstra-based phases of Successive Shortest Path.
type BellmanFordResult struct {
	Distances map[int64]float64
	Parent    map[int64]int64

	// HasNegativeCycle is true if a negative-weight cycle was detected; if
	// so, the distances may not be valid.
	HasNegativeCycle bool

	Canceled bool
}

func (r *BellmanFordResult) GetDistances() map[int64]float64 { return r.Distances }
func (r *BellmanFordResult) GetParent() map[int64]int64      { return r.Parent }

// BellmanFordWithContext runs Bellman-Ford from source, checking ctx for
// cancellation every 100 relaxation rounds. Nodes and edges are visited in
// deterministic (sorted / insertion) order so repeated runs on the same
// graph produce identical results.
func BellmanFordWithContext(ctx context.Context, g *graph.ResidualGraph, source int64) *BellmanFordResult {
	nodes := g.GetSortedNodes()
	n := len(nodes)

	dist := make(map[int64]float64, n)
	parent := make(map[int64]int64, n)
	for _, node := range nodes {
		dist[node] = graph.Infinity
		parent[node] = -1
	}
	dist[source] = 0

	const checkInterval = 100

	for i := 0; i < n-1; i++ {
		if i%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return &BellmanFordResult{Distances: dist, Parent: parent, Canceled: true}
			default:
			}
		}

		if !relaxAllEdges(g, nodes, dist, parent) {
			break
		}
	}

	return &BellmanFordResult{
		Distances:        dist,
		Parent:           parent,
		HasNegativeCycle: hasNegativeCycle(g, nodes, dist),
	}
}

// BellmanFordWithPotentialsContext runs Bellman-Ford using reduced costs
// cost(u,v) + potential[u] - potential[v], for periodic potential
// reinitialization in Successive Shortest Path.
func BellmanFordWithPotentialsContext(ctx context.Context, g *graph.ResidualGraph, source int64, potentials map[int64]float64) *BellmanFordResult {
	nodes := g.GetSortedNodes()
	n := len(nodes)

	dist := make(map[int64]float64, n)
	parent := make(map[int64]int64, n)
	for _, node := range nodes {
		dist[node] = graph.Infinity
		parent[node] = -1
	}
	dist[source] = 0

	const checkInterval = 100

	for i := 0; i < n-1; i++ {
		if i%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return &BellmanFordResult{Distances: dist, Parent: parent, Canceled: true}
			default:
			}
		}

		updated := false
		for _, u := range nodes {
			if dist[u] >= graph.Infinity-graph.Epsilon {
				continue
			}
			for _, edge := range g.GetNeighborsList(u) {
				if edge.Capacity <= graph.Epsilon {
					continue
				}
				v := edge.To
				reduced := edge.Cost + potentials[u] - potentials[v]
				if newDist := dist[u] + reduced; newDist < dist[v]-graph.Epsilon {
					dist[v] = newDist
					parent[v] = u
					updated = true
				}
			}
		}
		if !updated {
			break
		}
	}

	return &BellmanFordResult{
		Distances:        dist,
		Parent:           parent,
		HasNegativeCycle: hasNegativeCycleWithPotentials(g, nodes, dist, potentials),
	}
}

func relaxAllEdges(g *graph.ResidualGraph, nodes []int64, dist map[int64]float64, parent map[int64]int64) bool {
	updated := false
	for _, u := range nodes {
		if dist[u] >= graph.Infinity-graph.Epsilon {
			continue
		}
		for _, edge := range g.GetNeighborsList(u) {
			if edge.Capacity <= graph.Epsilon {
				continue
			}
			v := edge.To
			if newDist := dist[u] + edge.Cost; newDist < dist[v]-graph.Epsilon {
				dist[v] = newDist
				parent[v] = u
				updated = true
			}
		}
	}
	return updated
}

func hasNegativeCycle(g *graph.ResidualGraph, nodes []int64, dist map[int64]float64) bool {
	for _, u := range nodes {
		if dist[u] >= graph.Infinity-graph.Epsilon {
			continue
		}
		for _, edge := range g.GetNeighborsList(u) {
			if edge.Capacity > graph.Epsilon && dist[u]+edge.Cost < dist[edge.To]-graph.Epsilon {
				return true
			}
		}
	}
	return false
}

func hasNegativeCycleWithPotentials(g *graph.ResidualGraph, nodes []int64, dist map[int64]float64, potentials map[int64]float64) bool {
	for _, u := range nodes {
		if dist[u] >= graph.Infinity-graph.Epsilon {
			continue
		}
		for _, edge := range g.GetNeighborsList(u) {
			if edge.Capacity <= graph.Epsilon {
				continue
			}
			v := edge.To
			reduced := edge.Cost + potentials[u] - potentials[v]
			if dist[u]+reduced < dist[v]-graph.Epsilon {
				return true
			}
		}
	}
	return false
}
