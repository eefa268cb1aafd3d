package solver

import (
	"fmt"
	"strconv"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/tsp"
)

// VehicleSolver orders one tech's stops within an already-assigned customer
// group (the second half of §4.2 VRPSolver — per-vehicle ordering). It uses
// the real TSP library github.com/katalvlaran/lvlath rather than a
// hand-rolled heuristic: a tech's route is an open path (starts at the
// depot, doesn't have to return to it), while lvlath only solves Hamiltonian
// cycles. The open path is reduced to a cycle with the usual trick: the
// "last stop -> depot" edge is given zero cost, the cycle is solved as
// normal, and the trailing depot return is then dropped from the result.
type VehicleSolver struct {
	// Algo selects the lvlath algorithm. For a tech's typical route size
	// (single to low double digits of stops per day), the two-opt
	// heuristic is fast enough and consistently gives good routes without
	// the exponential cost of exact methods.
	Algo              tsp.Algorithm
	EnableLocalSearch bool
	BestImprovement   bool
}

// NewVehicleSolver creates the per-tech stop-ordering solver.
func NewVehicleSolver() *VehicleSolver {
	return &VehicleSolver{
		Algo:              tsp.TwoOptOnly,
		EnableLocalSearch: true,
		BestImprovement:   true,
	}
}

// Order takes a square cost matrix of transitions between the depot (index
// 0) and customerCount customers (indices 1..customerCount) and returns the
// visit order (indices into [0, customerCount) of the original customer
// slice, depot excluded from the result) and the total cost of the
// traversed open path.
//
// cost must be a square matrix of size (customerCount+1) x
// (customerCount+1), where index 0 is the depot.
func (s *VehicleSolver) Order(cost [][]float64, customerCount int) ([]int, float64, error) {
	if customerCount == 0 {
		return nil, 0, nil
	}
	if customerCount == 1 {
		return []int{0}, cost[0][1], nil
	}

	n := customerCount + 1
	if len(cost) != n {
		return nil, 0, fmt.Errorf("solver: cost matrix has %d rows, want %d", len(cost), n)
	}

	g := core.NewGraph(core.WithDirected(true), core.WithWeighted(true))
	for i := 0; i < n; i++ {
		if err := g.AddVertex(strconv.Itoa(i)); err != nil {
			return nil, 0, fmt.Errorf("solver: building tour graph: %w", err)
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			weight := cost[i][j]
			if j == 0 {
				// Open path: returning to the depot costs nothing, the
				// final edge is dropped after the cycle is solved.
				weight = 0
			}
			if err := g.AddEdge(strconv.Itoa(i), strconv.Itoa(j), weight); err != nil {
				return nil, 0, fmt.Errorf("solver: building tour graph: %w", err)
			}
		}
	}

	opts := tsp.Options{
		Algo:              s.Algo,
		StartVertex:       0,
		Symmetric:         false,
		EnableLocalSearch: s.EnableLocalSearch,
		BestImprovement:   s.BestImprovement,
	}

	result, err := tsp.SolveWithGraph(g, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("solver: tsp solve failed: %w", err)
	}

	// result.Tour is a closed cycle starting and ending at the depot
	// (index 0). Drop the depot at both ends, leaving only customer order.
	order := make([]int, 0, customerCount)
	for _, v := range result.Tour {
		if v == 0 {
			continue
		}
		order = append(order, v-1)
	}

	return order, result.Cost, nil
}
