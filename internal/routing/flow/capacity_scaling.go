package flow

import (
	"container/heap"
	"context"
	"math"

	"logistics/internal/routing/flow/graph"
)

// CapacityScalingThreshold is the maximum-edge-capacity value above which
// Capacity Scaling is recommended over plain Successive Shortest Path. The
// depot/tech/customer network's edges are bounded by tech stop capacity,
// so routing-core graphs essentially never cross this threshold, but the
// selection logic is kept so the solver degrades gracefully if capacities
// ever grow (e.g. a much larger fleet import).
const CapacityScalingThreshold = 1e6

// MinCostAlgorithmType enumerates the min-cost-flow algorithms the package
// can run.
type MinCostAlgorithmType int

const (
	MinCostAlgorithmSSP MinCostAlgorithmType = iota
	MinCostAlgorithmCapacityScaling
)

// RecommendMinCostAlgorithm picks Capacity Scaling for graphs whose edges
// exceed CapacityScalingThreshold and Successive Shortest Path otherwise.
func RecommendMinCostAlgorithm(g *graph.ResidualGraph) MinCostAlgorithmType {
	if findMaxCapacity(g) > CapacityScalingThreshold {
		return MinCostAlgorithmCapacityScaling
	}
	return MinCostAlgorithmSSP
}

// CapacityScalingMinCostFlowWithContext implements Capacity Scaling: it
// starts at the largest power-of-two delta not exceeding the max edge
// capacity, augments flow phase by phase while halving delta, then
// finishes any remaining fractional flow with plain SSP.
func CapacityScalingMinCostFlowWithContext(ctx context.Context, g *graph.ResidualGraph, source, sink int64, requiredFlow float64, options *SolverOptions) *MinCostFlowResult {
	if options == nil {
		options = DefaultSolverOptions()
	}

	maxCap := findMaxCapacity(g)
	if maxCap <= options.Epsilon {
		return &MinCostFlowResult{}
	}
	delta := computeInitialDelta(maxCap)

	potentials := initializePotentials(ctx, g, source)
	if potentials == nil {
		return &MinCostFlowResult{Canceled: ctx.Err() != nil}
	}

	totalFlow, totalCost, iterations := 0.0, 0.0, 0
	var paths []PathWithFlow
	const checkInterval = 20

	for delta >= 1.0 && totalFlow < requiredFlow-options.Epsilon {
		select {
		case <-ctx.Done():
			return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths, Canceled: true}
		default:
		}

		phase := processScalingPhase(ctx, g, source, sink, requiredFlow-totalFlow, delta, potentials, options, iterations, checkInterval)
		totalFlow += phase.flow
		totalCost += phase.cost
		iterations += phase.iterations
		paths = append(paths, phase.paths...)
		if phase.canceled {
			return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths, Canceled: true}
		}

		delta /= 2
	}

	if totalFlow < requiredFlow-options.Epsilon {
		final := finishWithSSP(ctx, g, source, sink, requiredFlow-totalFlow, potentials, options)
		if final.Canceled {
			return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths, Canceled: true}
		}
		totalFlow += final.Flow
		totalCost += final.Cost
		iterations += final.Iterations
		paths = append(paths, final.Paths...)
	}

	return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths}
}

type phaseResult struct {
	flow       float64
	cost       float64
	iterations int
	paths      []PathWithFlow
	canceled   bool
}

func processScalingPhase(ctx context.Context, g *graph.ResidualGraph, source, sink int64, remainingFlow, delta float64, potentials map[int64]float64, options *SolverOptions, startIterations, checkInterval int) phaseResult {
	result := phaseResult{}
	iterations := 0
	maxPhaseIterations := len(g.Nodes) * len(g.Nodes)

	for result.flow < remainingFlow-options.Epsilon && iterations < maxPhaseIterations {
		if options.MaxIterations > 0 && startIterations+iterations >= options.MaxIterations {
			break
		}
		if iterations%checkInterval == 0 {
			select {
			case <-ctx.Done():
				result.canceled = true
				result.iterations = iterations
				return result
			default:
			}
		}

		sp := dijkstraWithDeltaNetwork(ctx, g, source, sink, potentials, delta, options.Epsilon)
		if sp.Canceled {
			result.canceled = true
			result.iterations = iterations
			return result
		}
		if sp.Distances[sink] >= graph.Infinity-options.Epsilon {
			break
		}

		updatePotentials(g, potentials, sp.Distances)

		path := graph.ReconstructPath(sp.Parent, source, sink)
		if len(path) == 0 {
			break
		}

		pathFlow := findPathFlowWithDelta(g, path, remainingFlow-result.flow, delta, options.Epsilon)
		if pathFlow <= options.Epsilon {
			break
		}

		pathCost := augmentPathWithCost(g, path, pathFlow)
		result.flow += pathFlow
		result.cost += pathCost
		iterations++

		if options.ReturnPaths {
			result.paths = append(result.paths, PathWithFlow{NodeIDs: copyPath(path), Flow: pathFlow})
		}
	}

	result.iterations = iterations
	return result
}

func computeInitialDelta(maxCap float64) float64 {
	if maxCap <= 0 {
		return 0
	}
	delta := 1.0
	for delta*2 <= maxCap {
		delta *= 2
	}
	return delta
}

func initializePotentials(ctx context.Context, g *graph.ResidualGraph, source int64) map[int64]float64 {
	init := BellmanFordWithContext(ctx, g, source)
	if init.Canceled || init.HasNegativeCycle {
		return nil
	}

	potentials := make(map[int64]float64, len(g.Nodes))
	for node := range g.Nodes {
		potentials[node] = 0
	}
	for node, dist := range init.Distances {
		if dist < graph.Infinity-graph.Epsilon {
			potentials[node] = dist
		}
	}
	return potentials
}

func updatePotentials(g *graph.ResidualGraph, potentials map[int64]float64, distances map[int64]float64) {
	for node := range g.Nodes {
		if distances[node] < graph.Infinity-graph.Epsilon {
			potentials[node] += distances[node]
		}
	}
}

// dijkstraWithDeltaNetwork runs Dijkstra restricted to edges whose residual
// capacity is at least delta, the core move of each capacity-scaling phase.
func dijkstraWithDeltaNetwork(ctx context.Context, g *graph.ResidualGraph, source, sink int64, potentials map[int64]float64, delta, epsilon float64) *DijkstraResult {
	nodes := g.GetSortedNodes()

	dist := make(map[int64]float64, len(nodes))
	parent := make(map[int64]int64, len(nodes))
	for _, node := range nodes {
		dist[node] = graph.Infinity
		parent[node] = -1
	}
	dist[source] = 0

	pq := make(dijkstraPQ, 0, len(nodes))
	heap.Init(&pq)
	heap.Push(&pq, &dijkstraPQItem{node: source, distance: 0})

	const checkInterval = 100
	iterations := 0

	for pq.Len() > 0 {
		if iterations%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return &DijkstraResult{Distances: dist, Parent: parent, Canceled: true}
			default:
			}
		}
		iterations++

		current := heap.Pop(&pq).(*dijkstraPQItem)
		u := current.node
		if current.distance > dist[u]+epsilon {
			continue
		}
		if u == sink {
			break
		}

		for _, edge := range g.GetNeighborsList(u) {
			if edge.Capacity < delta-epsilon {
				continue
			}
			v := edge.To
			reduced := edge.Cost + potentials[u] - potentials[v]
			if reduced < 0 {
				reduced = 0
			}
			if newDist := dist[u] + reduced; newDist < dist[v]-epsilon {
				dist[v] = newDist
				parent[v] = u
				heap.Push(&pq, &dijkstraPQItem{node: v, distance: newDist})
			}
		}
	}

	return &DijkstraResult{Distances: dist, Parent: parent}
}

func findPathFlowWithDelta(g *graph.ResidualGraph, path []int64, remainingFlow, delta, epsilon float64) float64 {
	pathFlow := remainingFlow
	for i := 0; i < len(path)-1; i++ {
		edge := g.GetEdge(path[i], path[i+1])
		if edge == nil {
			return 0
		}
		if edge.Capacity < pathFlow {
			pathFlow = edge.Capacity
		}
	}
	// Round down to a multiple of delta so early phases stay integral.
	if delta >= 1.0 && pathFlow >= delta {
		pathFlow = math.Floor(pathFlow/delta) * delta
	}
	return pathFlow
}

func augmentPathWithCost(g *graph.ResidualGraph, path []int64, flow float64) float64 {
	cost := 0.0
	for i := 0; i < len(path)-1; i++ {
		if edge := g.GetEdge(path[i], path[i+1]); edge != nil {
			cost += edge.Cost * flow
		}
	}
	graph.AugmentPath(g, path, flow)
	return cost
}

// finishWithSSP completes the flow with ordinary Successive Shortest Path
// once capacity scaling has pushed delta below 1.
func finishWithSSP(ctx context.Context, g *graph.ResidualGraph, source, sink int64, requiredFlow float64, potentials map[int64]float64, options *SolverOptions) *MinCostFlowResult {
	totalFlow, totalCost, iterations := 0.0, 0.0, 0
	var paths []PathWithFlow
	const checkInterval = 50

	for totalFlow < requiredFlow-options.Epsilon {
		if options.MaxIterations > 0 && iterations >= options.MaxIterations {
			break
		}
		if iterations%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths, Canceled: true}
			default:
			}
		}

		dr := dijkstraWithPotentialsDeterministic(ctx, g, source, potentials, options.Epsilon)
		if dr.Canceled {
			return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths, Canceled: true}
		}
		if dr.Distances[sink] >= graph.Infinity-options.Epsilon {
			break
		}

		updatePotentials(g, potentials, dr.Distances)

		path := graph.ReconstructPath(dr.Parent, source, sink)
		if len(path) == 0 {
			break
		}

		pathFlow := requiredFlow - totalFlow
		if bottleneck := graph.FindMinCapacityOnPath(g, path); bottleneck < pathFlow {
			pathFlow = bottleneck
		}
		if pathFlow <= options.Epsilon {
			break
		}

		pathCost := augmentPathWithCost(g, path, pathFlow)
		totalFlow += pathFlow
		totalCost += pathCost
		iterations++

		if options.ReturnPaths {
			paths = append(paths, PathWithFlow{NodeIDs: copyPath(path), Flow: pathFlow})
		}
	}

	return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths}
}

// dijkstraWithPotentialsDeterministic is dijkstraWithDeltaNetwork without
// the delta threshold, used once capacity scaling hands off to plain SSP.
func dijkstraWithPotentialsDeterministic(ctx context.Context, g *graph.ResidualGraph, source int64, potentials map[int64]float64, epsilon float64) *DijkstraResult {
	nodes := g.GetSortedNodes()

	dist := make(map[int64]float64, len(nodes))
	parent := make(map[int64]int64, len(nodes))
	for _, node := range nodes {
		dist[node] = graph.Infinity
		parent[node] = -1
	}
	dist[source] = 0

	pq := make(dijkstraPQ, 0, len(nodes))
	heap.Init(&pq)
	heap.Push(&pq, &dijkstraPQItem{node: source, distance: 0})

	const checkInterval = 100
	iterations := 0

	for pq.Len() > 0 {
		if iterations%checkInterval == 0 {
			select {
			case <-ctx.Done():
				return &DijkstraResult{Distances: dist, Parent: parent, Canceled: true}
			default:
			}
		}
		iterations++

		current := heap.Pop(&pq).(*dijkstraPQItem)
		u := current.node
		if current.distance > dist[u]+epsilon {
			continue
		}

		for _, edge := range g.GetNeighborsList(u) {
			if edge.Capacity <= epsilon {
				continue
			}
			v := edge.To
			reduced := edge.Cost + potentials[u] - potentials[v]
			if reduced < 0 {
				reduced = 0
			}
			if newDist := dist[u] + reduced; newDist < dist[v]-epsilon {
				dist[v] = newDist
				parent[v] = u
				heap.Push(&pq, &dijkstraPQItem{node: v, distance: newDist})
			}
		}
	}

	return &DijkstraResult{Distances: dist, Parent: parent}
}

type dijkstraPQItem struct {
	node     int64
	distance float64
	index    int
}

type dijkstraPQ []*dijkstraPQItem

func (pq dijkstraPQ) Len() int { return len(pq) }
func (pq dijkstraPQ) Less(i, j int) bool {
	if pq[i].distance == pq[j].distance {
		return pq[i].node < pq[j].node
	}
	return pq[i].distance < pq[j].distance
}
func (pq dijkstraPQ) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *dijkstraPQ) Push(x any) {
	item := x.(*dijkstraPQItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *dijkstraPQ) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

func findMaxCapacity(g *graph.ResidualGraph) float64 {
	maxCap := 0.0
	for _, edges := range g.EdgesList {
		for _, edge := range edges {
			if !edge.IsReverse && edge.OriginalCapacity > maxCap {
				maxCap = edge.OriginalCapacity
			}
		}
	}
	return maxCap
}

func copyPath(path []int64) []int64 {
	result := make([]int64, len(path))
	copy(result, path)
	return result
}
