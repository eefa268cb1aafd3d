package flow

import (
	"container/heap"
	"context"

	"logistics/internal/routing/flow/graph"
)

// DijkstraResult holds shortest-path distances and parent pointers. When
// the search meets a negative reduced cost it falls back to Bellman-Ford
// and reports UsedBellmanFord so the caller knows the potentials need
// reinitializing.
type DijkstraResult struct {
	Distances       map[int64]float64
	Parent          map[int64]int64
	Canceled        bool
	UsedBellmanFord bool
}

func (r *DijkstraResult) GetDistances() map[int64]float64 { return r.Distances }
func (r *DijkstraResult) GetParent() map[int64]int64      { return r.Parent }

type pqItem struct {
	node     int64
	distance float64
	index    int
}

// priorityQueue is a min-heap ordered by distance, with node ID as a
// deterministic tiebreaker.
type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].distance != pq[j].distance {
		return pq[i].distance < pq[j].distance
	}
	return pq[i].node < pq[j].node
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}
func (pq *priorityQueue) update(item *pqItem, distance float64) {
	item.distance = distance
	heap.Fix(pq, item.index)
}

// DefaultNegativeEdgeFallbackThreshold is kept for parity with the
// teacher's API; the current implementation falls back to Bellman-Ford
// immediately on any non-trivial negative reduced cost rather than
// tolerating a threshold of them.
const DefaultNegativeEdgeFallbackThreshold = 3

// DijkstraWithPotentialsContext runs Dijkstra using Johnson's reduced
// costs, cost(u,v) + potential[u] - potential[v]. With correct potentials
// all reduced costs are non-negative; if one still comes out meaningfully
// negative (stale potentials, accumulated floating-point error), the
// search falls back to a full Bellman-Ford pass.
func DijkstraWithPotentialsContext(ctx context.Context, g *graph.ResidualGraph, source int64, potentials map[int64]float64) *DijkstraResult {
	nodes := g.GetSortedNodes()

	dist := make(map[int64]float64, len(nodes))
	parent := make(map[int64]int64, len(nodes))
	items := make(map[int64]*pqItem, len(nodes))
	for _, node := range nodes {
		dist[node] = graph.Infinity
		parent[node] = -1
	}
	dist[source] = 0

	pq := make(priorityQueue, 0, len(nodes))
	heap.Init(&pq)
	start := &pqItem{node: source, distance: 0}
	heap.Push(&pq, start)
	items[source] = start

	const checkInterval = 100
	iterations := 0
	usedFallback := false

	for pq.Len() > 0 {
		if iterations%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return &DijkstraResult{Distances: dist, Parent: parent, Canceled: true}
			default:
			}
		}
		iterations++

		current := heap.Pop(&pq).(*pqItem)
		u := current.node
		if current.distance > dist[u]+graph.Epsilon {
			continue
		}

		for _, edge := range g.GetNeighborsList(u) {
			if edge.Capacity <= graph.Epsilon {
				continue
			}
			v := edge.To
			reduced := edge.Cost + potentials[u] - potentials[v]

			if reduced < -graph.Epsilon {
				bf := BellmanFordWithPotentialsContext(ctx, g, source, potentials)
				return &DijkstraResult{
					Distances:       bf.Distances,
					Parent:          bf.Parent,
					Canceled:        bf.Canceled,
					UsedBellmanFord: true,
				}
			}
			if reduced < 0 {
				reduced = 0
				usedFallback = true
			}

			newDist := dist[u] + reduced
			if newDist < dist[v]-graph.Epsilon {
				dist[v] = newDist
				parent[v] = u
				if item, ok := items[v]; ok && item.index >= 0 {
					pq.update(item, newDist)
				} else {
					newItem := &pqItem{node: v, distance: newDist}
					heap.Push(&pq, newItem)
					items[v] = newItem
				}
			}
		}
	}

	return &DijkstraResult{Distances: dist, Parent: parent, UsedBellmanFord: usedFallback}
}
