package flow

import (
	"context"

	"logistics/internal/routing/flow/graph"
)

// ShortestPathResult abstracts over BellmanFordResult and DijkstraResult so
// the SSP loop below can consume either interchangeably.
type ShortestPathResult interface {
	GetDistances() map[int64]float64
	GetParent() map[int64]int64
}

// MinCostFlowResult is the outcome of a min-cost-flow computation.
type MinCostFlowResult struct {
	// Flow is the total flow pushed from source to sink.
	Flow float64

	// Cost is the total cost incurred (sum of flow * edge cost).
	Cost float64

	// Iterations counts augmenting paths found.
	Iterations int

	// Paths holds the augmenting paths when SolverOptions.ReturnPaths is set.
	Paths []PathWithFlow

	// Canceled is true if ctx was done before the flow converged.
	Canceled bool
}

// MinCostMaxFlowWithContext finds the minimum-cost maximum flow from source
// to sink, selecting Successive Shortest Path or Capacity Scaling based on
// the graph's edge capacities (see RecommendMinCostAlgorithm).
func MinCostMaxFlowWithContext(ctx context.Context, g *graph.ResidualGraph, source, sink int64, requiredFlow float64, options *SolverOptions) *MinCostFlowResult {
	if options == nil {
		options = DefaultSolverOptions()
	}

	if RecommendMinCostAlgorithm(g) == MinCostAlgorithmCapacityScaling {
		return CapacityScalingMinCostFlowWithContext(ctx, g, source, sink, requiredFlow, options)
	}
	return SuccessiveShortestPathInternal(ctx, g, source, sink, requiredFlow, options)
}

// SuccessiveShortestPathInternal implements SSP with Johnson's potential
// technique: Bellman-Ford seeds the potentials (handling any negative
// costs from reverse edges), then each iteration augments flow along the
// shortest path found by Dijkstra over the reduced-cost network.
func SuccessiveShortestPathInternal(ctx context.Context, g *graph.ResidualGraph, source, sink int64, requiredFlow float64, options *SolverOptions) *MinCostFlowResult {
	if options == nil {
		options = DefaultSolverOptions()
	}

	nodes := g.GetSortedNodes()
	totalFlow, totalCost, iterations := 0.0, 0.0, 0
	var paths []PathWithFlow

	potentials := make(map[int64]float64, len(nodes))
	for _, node := range nodes {
		potentials[node] = 0
	}

	initResult := BellmanFordWithContext(ctx, g, source)
	if initResult.Canceled {
		return &MinCostFlowResult{Canceled: true}
	}
	if initResult.HasNegativeCycle {
		return &MinCostFlowResult{}
	}
	for _, node := range nodes {
		if initResult.Distances[node] < graph.Infinity-graph.Epsilon {
			potentials[node] = initResult.Distances[node]
		}
	}

	const checkInterval = 50
	reinitInterval := computeReinitInterval(len(nodes))
	useInitialResult := true
	negativeCycleFound := false

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

		var spResult ShortestPathResult
		var shouldUpdatePotentials bool

		switch {
		case iterations > 0 && iterations%reinitInterval == 0:
			// Periodic full reinitialization keeps potentials numerically
			// stable across many iterations.
			bf := BellmanFordWithContext(ctx, g, source)
			if bf.Canceled {
				return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths, Canceled: true}
			}
			if bf.HasNegativeCycle {
				negativeCycleFound = true
				break
			}
			for _, node := range nodes {
				if bf.Distances[node] < graph.Infinity-graph.Epsilon {
					potentials[node] = bf.Distances[node]
				}
			}
			spResult = bf
			shouldUpdatePotentials = false
		case useInitialResult:
			spResult = initResult
			shouldUpdatePotentials = false
			useInitialResult = false
		default:
			dr := DijkstraWithPotentialsContext(ctx, g, source, potentials)
			if dr.Canceled {
				return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths, Canceled: true}
			}
			spResult = dr
			shouldUpdatePotentials = true
		}

		if negativeCycleFound {
			break
		}

		distances := spResult.GetDistances()
		parent := spResult.GetParent()

		if distances[sink] >= graph.Infinity-options.Epsilon {
			break
		}

		if shouldUpdatePotentials {
			for _, node := range nodes {
				if distances[node] < graph.Infinity-graph.Epsilon {
					potentials[node] += distances[node]
				}
			}
		}

		path := graph.ReconstructPath(parent, source, sink)
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

		pathCost := computePathCost(g, path, pathFlow)
		graph.AugmentPath(g, path, pathFlow)

		totalFlow += pathFlow
		totalCost += pathCost
		iterations++

		if options.ReturnPaths {
			paths = append(paths, PathWithFlow{NodeIDs: copyPath(path), Flow: pathFlow})
		}
	}

	return &MinCostFlowResult{Flow: totalFlow, Cost: totalCost, Iterations: iterations, Paths: paths}
}

func computePathCost(g *graph.ResidualGraph, path []int64, flow float64) float64 {
	cost := 0.0
	for i := 0; i < len(path)-1; i++ {
		if edge := g.GetEdge(path[i], path[i+1]); edge != nil {
			cost += edge.Cost * flow
		}
	}
	return cost
}

// computeReinitInterval scales how often potentials get a full Bellman-Ford
// reset: small graphs can afford to do it often, large graphs amortize the
// O(V*E) cost over more iterations.
func computeReinitInterval(nodeCount int) int {
	switch {
	case nodeCount < 50:
		return 100
	case nodeCount < 500:
		return 200
	default:
		return 500
	}
}
